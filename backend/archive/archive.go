// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package archive

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
	"golang.org/x/exp/slices"
)

// AccountData is the part of an account retained in the history.
type AccountData struct {
	Balance  amount.Amount
	Nonce    uint64
	CodeHash common.Hash
}

// NewAccountData drops the code of the given info.
func NewAccountData(info common.AccountInfo) AccountData {
	return AccountData{
		Balance:  info.Balance,
		Nonce:    info.Nonce,
		CodeHash: info.CodeHash,
	}
}

// AccountInfo converts the data back into an account info without code.
func (d AccountData) AccountInfo() common.AccountInfo {
	return common.AccountInfo{
		Balance:  d.Balance,
		Nonce:    d.Nonce,
		CodeHash: d.CodeHash,
	}
}

// HistoricalAccount is the state of an account at the end of a height.
type HistoricalAccount struct {
	Address common.Address
	AccountData
}

// AccountHistory is a sliding window of per-height snapshots of the accounts
// touched at each height. A snapshot only lists the accounts modified at its
// height; an account missing from a snapshot is unchanged since the closest
// earlier snapshot mentioning it.
//
// AccountHistory holds no state besides its capacity; all data lives in the
// AccountsHistory table of the transaction passed to its methods.
type AccountHistory struct {
	capacity uint64
}

// NewAccountHistory creates a history retaining at most capacity heights.
// A capacity of 0 disables the history.
func NewAccountHistory(capacity uint64) *AccountHistory {
	return &AccountHistory{capacity: capacity}
}

func (h *AccountHistory) Enabled() bool {
	return h != nil && h.capacity > 0
}

func (h *AccountHistory) Capacity() uint64 {
	if h == nil {
		return 0
	}
	return h.capacity
}

// Insert records the snapshot of the given height. Heights may only be
// recorded once. If the history is at capacity, all heights at or below
// height-capacity are evicted first.
func (h *AccountHistory) Insert(txn *kvdb.Txn, height uint64, accounts []HistoricalAccount) error {
	if !h.Enabled() {
		return nil
	}
	key := kvdb.NewHeightKey(height)
	present, err := txn.Has(kvdb.AccountsHistory, key[:])
	if err != nil {
		return err
	}
	if present {
		panic(fmt.Sprintf("history of height %d already recorded", height))
	}

	count, err := txn.Count(kvdb.AccountsHistory)
	if err != nil {
		return err
	}
	// Below the capacity there is no height old enough to evict.
	if count >= h.capacity && height >= h.capacity {
		bound := height - h.capacity
		if _, err := txn.DeleteWhile(kvdb.AccountsHistory, func(k []byte) bool {
			stored, err := kvdb.DecodeHeight(k)
			return err == nil && stored <= bound
		}); err != nil {
			return fmt.Errorf("failed to evict history: %w", err)
		}
	}

	sorted := slices.Clone(accounts)
	slices.SortFunc(sorted, func(a, b HistoricalAccount) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	data, err := rlp.EncodeToBytes(sorted)
	if err != nil {
		return fmt.Errorf("failed to encode history of height %d: %w", height, err)
	}
	return txn.Put(kvdb.AccountsHistory, key[:], data)
}

// Lookup returns the most recent state of the account recorded at or below
// the given height. It reports false if no retained snapshot mentions the
// account, which does not imply that the account does not exist.
func (h *AccountHistory) Lookup(txn *kvdb.Txn, height uint64, address common.Address) (AccountData, bool, error) {
	if !h.Enabled() {
		return AccountData{}, false, nil
	}
	var (
		res   AccountData
		found bool
	)
	from := kvdb.NewHeightKey(height)
	err := txn.ForEachReverse(kvdb.AccountsHistory, from[:], func(k, v []byte) (bool, error) {
		var snapshot []HistoricalAccount
		if err := rlp.DecodeBytes(v, &snapshot); err != nil {
			return false, fmt.Errorf("failed to decode history at %x: %w", k, err)
		}
		i, exists := slices.BinarySearchFunc(snapshot, address, func(a HistoricalAccount, t common.Address) int {
			return bytes.Compare(a.Address[:], t[:])
		})
		if exists {
			res, found = snapshot[i].AccountData, true
			return false, nil
		}
		return true, nil
	})
	return res, found, err
}

// Heights returns the retained heights in ascending order.
func (h *AccountHistory) Heights(txn *kvdb.Txn) ([]uint64, error) {
	var res []uint64
	err := txn.ForEach(kvdb.AccountsHistory, nil, func(k, _ []byte) (bool, error) {
		height, err := kvdb.DecodeHeight(k)
		if err != nil {
			return false, err
		}
		res = append(res, height)
		return true, nil
	})
	return res, err
}
