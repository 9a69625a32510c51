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

	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"golang.org/x/exp/slices"
)

// AccountChange is the new state of an account; a nil Info deletes it.
type AccountChange struct {
	Address common.Address
	Info    *common.AccountInfo `rlp:"nil"`
}

type SlotChange struct {
	Slot     uint256.Int
	Original uint256.Int
	Present  uint256.Int
}

// StorageChangeset lists the slot updates of one account. If WipeStorage is
// set, all existing slots are removed before the updates are applied.
type StorageChangeset struct {
	Address     common.Address
	WipeStorage bool
	Slots       []SlotChange
}

type ContractCode struct {
	CodeHash common.Hash
	Code     []byte
}

type LegacyAttributesEntry struct {
	Address    common.Address
	Attributes common.LegacyAccountAttributes
}

type LegacyMergeEntry struct {
	Address common.Address
	Merge   common.LegacyMerge
}

// StateChangeset is the net effect of a commit on the persistent state.
type StateChangeset struct {
	Accounts          []AccountChange
	Storage           []StorageChangeset
	Contracts         []ContractCode
	LegacyAttributes  map[common.Address]common.LegacyAccountAttributes
	LegacyColdWallets map[common.LegacyAddress]common.LegacyColdWallet
	MergedLegacy      map[common.Address]common.LegacyMerge
}

func compareAddresses(a, b common.Address) int {
	return bytes.Compare(a[:], b[:])
}

// Sorted returns a copy with accounts and storage ordered by address, slots
// by slot and contracts by code hash.
func (c *StateChangeset) Sorted() *StateChangeset {
	res := *c
	res.Accounts = slices.Clone(c.Accounts)
	slices.SortFunc(res.Accounts, func(a, b AccountChange) int {
		return compareAddresses(a.Address, b.Address)
	})
	res.Storage = make([]StorageChangeset, len(c.Storage))
	for i, storage := range c.Storage {
		storage.Slots = slices.Clone(storage.Slots)
		slices.SortFunc(storage.Slots, func(a, b SlotChange) int {
			return a.Slot.Cmp(&b.Slot)
		})
		res.Storage[i] = storage
	}
	slices.SortFunc(res.Storage, func(a, b StorageChangeset) int {
		return compareAddresses(a.Address, b.Address)
	})
	res.Contracts = slices.Clone(c.Contracts)
	slices.SortFunc(res.Contracts, func(a, b ContractCode) int {
		return bytes.Compare(a.CodeHash[:], b.CodeHash[:])
	})
	return &res
}

// SortedLegacyAttributes lists the legacy attributes by address.
func (c *StateChangeset) SortedLegacyAttributes() []LegacyAttributesEntry {
	res := make([]LegacyAttributesEntry, 0, len(c.LegacyAttributes))
	for address, attributes := range c.LegacyAttributes {
		res = append(res, LegacyAttributesEntry{Address: address, Attributes: attributes})
	}
	slices.SortFunc(res, func(a, b LegacyAttributesEntry) int {
		return compareAddresses(a.Address, b.Address)
	})
	return res
}

// SortedLegacyColdWallets lists the cold wallets by legacy address.
func (c *StateChangeset) SortedLegacyColdWallets() []common.LegacyColdWallet {
	res := make([]common.LegacyColdWallet, 0, len(c.LegacyColdWallets))
	for _, wallet := range c.LegacyColdWallets {
		res = append(res, wallet)
	}
	slices.SortFunc(res, func(a, b common.LegacyColdWallet) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return res
}

// SortedMergedLegacy lists the merges by the address of the merging account.
func (c *StateChangeset) SortedMergedLegacy() []LegacyMergeEntry {
	res := make([]LegacyMergeEntry, 0, len(c.MergedLegacy))
	for address, merge := range c.MergedLegacy {
		res = append(res, LegacyMergeEntry{Address: address, Merge: merge})
	}
	slices.SortFunc(res, func(a, b LegacyMergeEntry) int {
		return compareAddresses(a.Address, b.Address)
	})
	return res
}

// StateCommit is a built pending commit ready to be persisted.
type StateCommit struct {
	Key     common.CommitKey
	Changes *StateChangeset
	Results map[common.Hash]*common.ExecutionResult
	// Order lists the transactions in execution order.
	Order []common.Hash
}

// Build reduces the pending commit into a StateCommit and freezes it. Repeated
// calls return the same commit.
func (p *PendingCommit) Build() *StateCommit {
	if p.built != nil {
		return p.built
	}
	changes := &StateChangeset{
		LegacyAttributes:  p.legacyAttributes,
		LegacyColdWallets: p.legacyColdWallets,
		MergedLegacy:      map[common.Address]common.LegacyMerge{},
	}
	for address, transition := range p.transitions.Accounts {
		if transition.IsChanged() {
			changes.Accounts = append(changes.Accounts, AccountChange{
				Address: address,
				Info:    transition.Present.Clone(),
			})
		}

		var slots []SlotChange
		for slot, change := range transition.Storage {
			include := change.Present != change.Original
			if transition.Destroyed {
				include = !change.Present.IsZero()
			}
			if include {
				slots = append(slots, SlotChange{Slot: slot, Original: change.Original, Present: change.Present})
			}
		}
		if len(slots) > 0 || transition.Destroyed {
			changes.Storage = append(changes.Storage, StorageChangeset{
				Address:     address,
				WipeStorage: transition.Destroyed,
				Slots:       slots,
			})
		}
	}
	for hash, code := range p.transitions.Contracts {
		if hash != common.EmptyCodeHash {
			changes.Contracts = append(changes.Contracts, ContractCode{CodeHash: hash, Code: code})
		}
	}
	for address, merge := range p.mergedLegacy {
		if merge != nil {
			changes.MergedLegacy[address] = *merge
		}
	}

	p.built = &StateCommit{
		Key:     p.key,
		Changes: changes,
		Results: p.results,
		Order:   p.order,
	}
	p.transitions = NewTransitionState()
	return p.built
}
