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
)

// SlotTransition is the change of a single storage slot.
type SlotTransition struct {
	Original uint256.Int
	Present  uint256.Int
}

// AccountTransition is the change of a single account since the start of a
// commit.
type AccountTransition struct {
	// Original is the info before the first modification; nil if the account
	// did not exist.
	Original *common.AccountInfo
	// Present is the current info; nil if the account does not exist anymore.
	Present *common.AccountInfo
	Storage map[uint256.Int]*SlotTransition
	// Destroyed is set if the storage of the account was wiped. Storage then
	// only lists slots written after the destruction.
	Destroyed bool
}

func (t *AccountTransition) IsChanged() bool {
	return t.Destroyed || !t.Original.Equal(t.Present)
}

func (t *AccountTransition) clone() *AccountTransition {
	res := &AccountTransition{
		Original:  t.Original.Clone(),
		Present:   t.Present.Clone(),
		Storage:   make(map[uint256.Int]*SlotTransition, len(t.Storage)),
		Destroyed: t.Destroyed,
	}
	for slot, change := range t.Storage {
		copied := *change
		res.Storage[slot] = &copied
	}
	return res
}

// TransitionState collects account transitions and newly deployed code.
type TransitionState struct {
	Accounts  map[common.Address]*AccountTransition
	Contracts map[common.Hash][]byte
}

func NewTransitionState() *TransitionState {
	return &TransitionState{
		Accounts:  map[common.Address]*AccountTransition{},
		Contracts: map[common.Hash][]byte{},
	}
}

// Add merges later transitions into this state. For every account the
// earliest original and the latest present value are kept.
func (s *TransitionState) Add(other *TransitionState) {
	if other == nil {
		return
	}
	for address, next := range other.Accounts {
		cur, found := s.Accounts[address]
		if !found {
			s.Accounts[address] = next.clone()
			continue
		}
		cur.Present = next.Present.Clone()
		if next.Destroyed {
			cur.Destroyed = true
			cur.Storage = next.clone().Storage
			continue
		}
		for slot, change := range next.Storage {
			if existing, found := cur.Storage[slot]; found {
				existing.Present = change.Present
			} else {
				copied := *change
				cur.Storage[slot] = &copied
			}
		}
	}
	for hash, code := range other.Contracts {
		s.Contracts[hash] = bytes.Clone(code)
	}
}

func (s *TransitionState) IsEmpty() bool {
	return len(s.Accounts) == 0 && len(s.Contracts) == 0
}

func (s *TransitionState) Clone() *TransitionState {
	res := NewTransitionState()
	res.Add(s)
	return res
}
