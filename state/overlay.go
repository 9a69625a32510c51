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

	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
	"golang.org/x/exp/maps"
)

// CachedAccount is the latest known state of an account within a commit.
type CachedAccount struct {
	// Info is nil if the account does not exist.
	Info    *common.AccountInfo
	Storage map[uint256.Int]uint256.Int
	// Cleared is set once the storage was wiped; slots missing in Storage are
	// zero instead of being read from the backing state.
	Cleared bool
}

func (a *CachedAccount) clone() *CachedAccount {
	return &CachedAccount{
		Info:    a.Info.Clone(),
		Storage: maps.Clone(a.Storage),
		Cleared: a.Cleared,
	}
}

// Cache holds every account and contract loaded or modified by a commit.
type Cache struct {
	Accounts  map[common.Address]*CachedAccount
	Contracts map[common.Hash][]byte
}

func NewCache() *Cache {
	return &Cache{
		Accounts:  map[common.Address]*CachedAccount{},
		Contracts: map[common.Hash][]byte{},
	}
}

func (c *Cache) Clone() *Cache {
	res := &Cache{
		Accounts:  make(map[common.Address]*CachedAccount, len(c.Accounts)),
		Contracts: make(map[common.Hash][]byte, len(c.Contracts)),
	}
	for address, account := range c.Accounts {
		res.Accounts[address] = account.clone()
	}
	for hash, code := range c.Contracts {
		res.Contracts[hash] = bytes.Clone(code)
	}
	return res
}

// Overlay is a StateReader serving the cache of a commit on top of a backing
// state. Reads of uncached data are loaded into the cache.
type Overlay struct {
	backing StateReader
	cache   *Cache
}

func NewOverlay(backing StateReader, cache *Cache) *Overlay {
	if backing == nil {
		backing = emptyState{}
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Overlay{backing: backing, cache: cache}
}

func (o *Overlay) load(address common.Address) (*CachedAccount, error) {
	if account, found := o.cache.Accounts[address]; found {
		return account, nil
	}
	info, err := o.backing.AccountInfo(address)
	if err != nil {
		return nil, err
	}
	account := &CachedAccount{
		Info:    info.Clone(),
		Storage: map[uint256.Int]uint256.Int{},
	}
	o.cache.Accounts[address] = account
	return account, nil
}

func (o *Overlay) AccountInfo(address common.Address) (*common.AccountInfo, error) {
	account, err := o.load(address)
	if err != nil {
		return nil, err
	}
	return account.Info.Clone(), nil
}

func (o *Overlay) Code(codeHash common.Hash) ([]byte, error) {
	if code, found := o.cache.Contracts[codeHash]; found {
		return code, nil
	}
	code, err := o.backing.Code(codeHash)
	if err != nil {
		return nil, err
	}
	if len(code) > 0 {
		o.cache.Contracts[codeHash] = code
	}
	return code, nil
}

func (o *Overlay) Storage(address common.Address, slot uint256.Int) (uint256.Int, error) {
	account, err := o.load(address)
	if err != nil {
		return uint256.Int{}, err
	}
	if value, found := account.Storage[slot]; found {
		return value, nil
	}
	if account.Cleared {
		return uint256.Int{}, nil
	}
	value, err := o.backing.Storage(address, slot)
	if err != nil {
		return uint256.Int{}, err
	}
	account.Storage[slot] = value
	return value, nil
}

// Apply folds the effects of a transaction into the cache and returns the
// resulting transitions.
func (o *Overlay) Apply(delta StateDelta) (*TransitionState, error) {
	res := NewTransitionState()
	for address, change := range delta {
		account, err := o.load(address)
		if err != nil {
			return nil, err
		}
		transition := &AccountTransition{
			Original:  account.Info.Clone(),
			Storage:   make(map[uint256.Int]*SlotTransition, len(change.Storage)),
			Destroyed: change.Destroyed,
		}

		for slot := range change.Storage {
			original, err := o.Storage(address, slot)
			if err != nil {
				return nil, fmt.Errorf("failed to read slot %v of %v: %w", slot.Hex(), address, err)
			}
			transition.Storage[slot] = &SlotTransition{Original: original}
		}
		if change.Destroyed {
			account.Storage = map[uint256.Int]uint256.Int{}
			account.Cleared = true
		}
		for slot, value := range change.Storage {
			account.Storage[slot] = value
			transition.Storage[slot].Present = value
		}

		if info := change.Info; info != nil && len(info.Code) > 0 && info.CodeHash != common.EmptyCodeHash {
			code := bytes.Clone(info.Code)
			o.cache.Contracts[info.CodeHash] = code
			res.Contracts[info.CodeHash] = code
		}
		if change.Info == nil {
			account.Info = nil
		} else {
			info := change.Info.WithoutCode()
			account.Info = &info
		}
		transition.Present = account.Info.Clone()
		res.Accounts[address] = transition
	}
	return res, nil
}

// IncrementBalances credits the given amounts. Zero amounts are skipped
// without loading the account.
func (o *Overlay) IncrementBalances(balances map[common.Address]amount.Amount) (*TransitionState, error) {
	delta := StateDelta{}
	for address, value := range balances {
		if value.IsZero() {
			continue
		}
		info, err := o.AccountInfo(address)
		if err != nil {
			return nil, err
		}
		if info == nil {
			empty := common.EmptyAccountInfo()
			info = &empty
		}
		balance, overflow := amount.AddOverflow(info.Balance, value)
		if overflow {
			return nil, fmt.Errorf("balance overflow of %v", address)
		}
		info.Balance = balance
		delta[address] = &AccountDelta{Info: info}
	}
	return o.Apply(delta)
}
