// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
	"golang.org/x/exp/slices"
)

// AccountMergeInfo identifies the legacy cold wallet merged into an account.
type AccountMergeInfo struct {
	LegacyAddress   common.LegacyAddress
	TransactionHash common.Hash
}

// AccountUpdate summarizes the change of an account by a commit for external
// consumers.
type AccountUpdate struct {
	Address          common.Address
	Balance          amount.Amount
	Nonce            uint64
	Vote             *common.Address
	Unvote           *common.Address
	Username         *string
	UsernameResigned bool
	MergeInfo        *AccountMergeInfo
}

const systemEventsABI = `[
	{"type":"event","name":"Voted","inputs":[
		{"name":"voter","type":"address","indexed":false},
		{"name":"validator","type":"address","indexed":false}]},
	{"type":"event","name":"Unvoted","inputs":[
		{"name":"voter","type":"address","indexed":false},
		{"name":"validator","type":"address","indexed":false}]},
	{"type":"event","name":"UsernameRegistered","inputs":[
		{"name":"addr","type":"address","indexed":false},
		{"name":"username","type":"string","indexed":false},
		{"name":"previousUsername","type":"string","indexed":false}]},
	{"type":"event","name":"UsernameResigned","inputs":[
		{"name":"addr","type":"address","indexed":false},
		{"name":"username","type":"string","indexed":false}]}
]`

// SystemEvents is the ABI of the events emitted by the validator and username
// contracts.
var SystemEvents = mustParseABI(systemEventsABI)

func mustParseABI(definition string) abi.ABI {
	res, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return res
}

// decodeEvent unpacks the arguments of a log if it was emitted as the given
// event.
func decodeEvent(name string, log *types.Log) ([]any, bool) {
	event, found := SystemEvents.Events[name]
	if !found || len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, false
	}
	values, err := event.Inputs.Unpack(log.Data)
	if err != nil || len(values) != len(event.Inputs) {
		return nil, false
	}
	return values, true
}

func decodeAddressPair(name string, log *types.Log) (first, second common.Address, ok bool) {
	values, ok := decodeEvent(name, log)
	if !ok {
		return first, second, false
	}
	first, ok1 := values[0].(common.Address)
	second, ok2 := values[1].(common.Address)
	return first, second, ok1 && ok2
}

func decodeUsername(name string, log *types.Log) (address common.Address, username string, ok bool) {
	values, ok := decodeEvent(name, log)
	if !ok {
		return address, username, false
	}
	address, ok1 := values[0].(common.Address)
	username, ok2 := values[1].(string)
	return address, username, ok1 && ok2
}

// ProjectAccountUpdates derives the account updates of a built commit. Every
// account changed by the commit gets an entry; events of the system contracts
// are folded into the entries of the accounts they name. Events naming
// accounts without a change are dropped.
func ProjectAccountUpdates(commit *StateCommit, genesis *common.GenesisInfo) []AccountUpdate {
	dirty := map[common.Address]*AccountUpdate{}
	for _, change := range commit.Changes.Accounts {
		if change.Info == nil {
			continue
		}
		update := &AccountUpdate{
			Address: change.Address,
			Balance: change.Info.Balance,
			Nonce:   change.Info.Nonce,
		}
		if merge, found := commit.Changes.MergedLegacy[change.Address]; found {
			update.MergeInfo = &AccountMergeInfo{
				LegacyAddress:   merge.LegacyAddress,
				TransactionHash: merge.TransactionHash,
			}
		}
		dirty[change.Address] = update
	}

	if genesis != nil {
		for _, txHash := range commit.Order {
			result := commit.Results[txHash]
			if result == nil || !result.IsSuccess() {
				continue
			}
			for _, log := range result.Logs {
				switch log.Address {
				case genesis.ValidatorContract:
					projectVote(dirty, log)
				case genesis.UsernameContract:
					projectUsername(dirty, log)
				}
			}
		}
	}

	res := make([]AccountUpdate, 0, len(dirty))
	for _, update := range dirty {
		res = append(res, *update)
	}
	slices.SortFunc(res, func(a, b AccountUpdate) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return res
}

func projectVote(dirty map[common.Address]*AccountUpdate, log *types.Log) {
	if voter, validator, ok := decodeAddressPair("Voted", log); ok {
		if update, found := dirty[voter]; found {
			update.Vote = &validator
			update.Unvote = nil
		}
		return
	}
	if voter, validator, ok := decodeAddressPair("Unvoted", log); ok {
		if update, found := dirty[voter]; found {
			update.Unvote = &validator
			update.Vote = nil
		}
	}
}

func projectUsername(dirty map[common.Address]*AccountUpdate, log *types.Log) {
	if address, username, ok := decodeUsername("UsernameRegistered", log); ok {
		if update, found := dirty[address]; found {
			update.Username = &username
			update.UsernameResigned = false
		}
		return
	}
	if address, _, ok := decodeUsername("UsernameResigned", log); ok {
		if update, found := dirty[address]; found {
			update.Username = nil
			update.UsernameResigned = true
		}
	}
}
