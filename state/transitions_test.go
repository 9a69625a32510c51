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
	"testing"

	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

func slotTransitions(values ...uint64) map[uint256.Int]*SlotTransition {
	res := map[uint256.Int]*SlotTransition{}
	for i := 0; i+2 < len(values); i += 3 {
		res[u256(values[i])] = &SlotTransition{Original: u256(values[i+1]), Present: u256(values[i+2])}
	}
	return res
}

func TestTransitionState_AddKeepsEarliestOriginalAndLatestPresent(t *testing.T) {
	state := NewTransitionState()
	state.Add(&TransitionState{
		Accounts: map[common.Address]*AccountTransition{
			address1: {Original: nil, Present: accountInfo(1, 1), Storage: slotTransitions(1, 0, 10)},
		},
	})
	state.Add(&TransitionState{
		Accounts: map[common.Address]*AccountTransition{
			address1: {Original: accountInfo(1, 1), Present: accountInfo(2, 2), Storage: slotTransitions(1, 10, 11, 2, 5, 6)},
		},
	})

	transition := state.Accounts[address1]
	if transition.Original != nil {
		t.Errorf("original should stay the earliest, got %v", transition.Original)
	}
	if !transition.Present.Equal(accountInfo(2, 2)) {
		t.Errorf("present should be the latest, got %v", transition.Present)
	}

	tests := map[string]struct {
		slot, original, present uint64
	}{
		"written twice": {1, 0, 11},
		"written once":  {2, 5, 6},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			change := transition.Storage[u256(test.slot)]
			if change == nil || change.Original != u256(test.original) || change.Present != u256(test.present) {
				t.Errorf("unexpected slot transition %v", change)
			}
		})
	}
}

func TestTransitionState_DestructionReplacesStorage(t *testing.T) {
	state := NewTransitionState()
	state.Add(&TransitionState{
		Accounts: map[common.Address]*AccountTransition{
			address1: {Original: accountInfo(1, 1), Present: accountInfo(1, 2), Storage: slotTransitions(1, 1, 2)},
		},
	})
	state.Add(&TransitionState{
		Accounts: map[common.Address]*AccountTransition{
			address1: {Original: accountInfo(1, 2), Present: nil, Destroyed: true, Storage: slotTransitions(3, 0, 3)},
		},
	})

	transition := state.Accounts[address1]
	if !transition.Destroyed {
		t.Errorf("account should be marked destroyed")
	}
	if _, found := transition.Storage[u256(1)]; found {
		t.Errorf("storage written before destruction should be dropped")
	}
	if _, found := transition.Storage[u256(3)]; !found {
		t.Errorf("storage written with destruction should be kept")
	}
	if !transition.IsChanged() {
		t.Errorf("destroyed account should count as changed")
	}
}

func TestTransitionState_CloneIsIndependent(t *testing.T) {
	state := NewTransitionState()
	state.Add(&TransitionState{
		Accounts: map[common.Address]*AccountTransition{
			address1: {Present: accountInfo(1, 1), Storage: slotTransitions(1, 0, 1)},
		},
		Contracts: map[common.Hash][]byte{{1}: {0x60}},
	})
	clone := state.Clone()
	state.Accounts[address1].Storage[u256(1)].Present = u256(9)
	state.Accounts[address1].Present.Nonce = 9

	got := clone.Accounts[address1]
	if got.Present.Nonce != 1 || got.Storage[u256(1)].Present != u256(1) {
		t.Errorf("clone was modified")
	}
	if len(clone.Contracts) != 1 {
		t.Errorf("contracts not cloned")
	}
}

func TestAccountTransition_IsChanged(t *testing.T) {
	tests := map[string]struct {
		transition AccountTransition
		changed    bool
	}{
		"unchanged":       {AccountTransition{Original: accountInfo(1, 1), Present: accountInfo(1, 1)}, false},
		"both absent":     {AccountTransition{}, false},
		"balance changed": {AccountTransition{Original: accountInfo(1, 1), Present: accountInfo(2, 1)}, true},
		"created":         {AccountTransition{Present: accountInfo(0, 0)}, true},
		"deleted":         {AccountTransition{Original: accountInfo(1, 1)}, true},
		"destroyed":       {AccountTransition{Destroyed: true}, true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := test.transition.IsChanged(); got != test.changed {
				t.Errorf("unexpected result %t", got)
			}
		})
	}
}
