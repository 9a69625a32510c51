// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package evm

import (
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/state"
)

const validatorContractABI = `[
	{"type":"function","name":"updateVoters","stateMutability":"nonpayable","inputs":[
		{"name":"voters","type":"address[]"}],"outputs":[]},
	{"type":"function","name":"calculateActiveValidators","stateMutability":"nonpayable","inputs":[
		{"name":"n","type":"uint8"}],"outputs":[]}
]`

// ValidatorContract is the ABI of the consensus functions invoked by the
// node itself.
var ValidatorContract = func() abi.ABI {
	res, err := abi.JSON(strings.NewReader(validatorContractABI))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return res
}()

// systemCall executes a call of the deployer account into the validator
// contract as part of the pending commit. Its result is not recorded as a
// transaction.
func (e *Evm) systemCall(key common.CommitKey, timestamp uint64, validator common.Address, specID string, method string, args ...any) (*common.ExecutionResult, error) {
	genesis := e.db.GenesisInfo()
	if genesis == nil {
		return nil, ErrNoGenesis
	}
	data, err := ValidatorContract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	nonce, err := e.pending.Nonce(e.db, genesis.DeployerAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployer nonce: %w", err)
	}
	recipient := genesis.ValidatorContract
	result, err := e.transact(&state.ExecutionContext{
		Caller:    genesis.DeployerAccount,
		Recipient: &recipient,
		GasLimit:  math.MaxUint64,
		Nonce:     &nonce,
		Data:      data,
		Block: &state.BlockContext{
			Commit:    key,
			GasLimit:  math.MaxUint64,
			Timestamp: timestamp,
			Validator: validator,
		},
		SpecID: specID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	if !result.IsSuccess() {
		return result, fmt.Errorf("%s unsuccessful: %v", method, result.Status)
	}
	return result, nil
}
