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
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

func findStorage(changes *StateChangeset, address common.Address) *StorageChangeset {
	for i := range changes.Storage {
		if changes.Storage[i].Address == address {
			return &changes.Storage[i]
		}
	}
	return nil
}

func TestPendingCommit_BuildListsOnlyChangedAccounts(t *testing.T) {
	backing := newCountingState()
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	hash := txHash(1)
	err := pending.Apply(backing, &hash, successResult(), StateDelta{
		address1: {Info: accountInfo(10, 1)}, // unchanged
		address2: {Info: accountInfo(2, 0)},  // created
	})
	if err != nil {
		t.Fatalf("failed to apply: %v", err)
	}
	// read only access does not make an account dirty
	if _, err := pending.Overlay(backing).AccountInfo(address3); err != nil {
		t.Fatalf("failed to read: %v", err)
	}

	commit := pending.Build()
	if len(commit.Changes.Accounts) != 1 || commit.Changes.Accounts[0].Address != address2 {
		t.Errorf("unexpected accounts %v", commit.Changes.Accounts)
	}
	if len(commit.Results) != 1 || len(commit.Order) != 1 {
		t.Errorf("unexpected results %v", commit.Results)
	}
}

func TestPendingCommit_BuildStorageRules(t *testing.T) {
	tests := map[string]struct {
		delta     AccountDelta
		wipe      bool
		slots     map[uint64]uint64
		noStorage bool
	}{
		"changed slot is listed": {
			delta: AccountDelta{Info: accountInfo(10, 1), Storage: map[uint256.Int]uint256.Int{u256(1): u256(5)}},
			slots: map[uint64]uint64{1: 5},
		},
		"rewritten original value is dropped": {
			delta:     AccountDelta{Info: accountInfo(10, 1), Storage: map[uint256.Int]uint256.Int{u256(1): u256(100)}},
			noStorage: true,
		},
		"cleared slot is listed as zero": {
			delta: AccountDelta{Info: accountInfo(10, 1), Storage: map[uint256.Int]uint256.Int{u256(2): u256(0)}},
			slots: map[uint64]uint64{2: 0},
		},
		"destroyed account is wiped": {
			delta: AccountDelta{Destroyed: true},
			wipe:  true,
			slots: map[uint64]uint64{},
		},
		"destroyed account keeps non-zero slots": {
			delta: AccountDelta{Info: accountInfo(0, 0), Destroyed: true, Storage: map[uint256.Int]uint256.Int{
				u256(1): u256(100), // equal to the original but must survive the wipe
				u256(3): u256(0),
			}},
			wipe:  true,
			slots: map[uint64]uint64{1: 100},
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			pending := NewPendingCommit(common.CommitKey{Height: 1})
			delta := test.delta
			if err := pending.Apply(newCountingState(), nil, nil, StateDelta{address1: &delta}); err != nil {
				t.Fatalf("failed to apply: %v", err)
			}
			storage := findStorage(pending.Build().Changes, address1)
			if test.noStorage {
				if storage != nil {
					t.Errorf("unexpected storage change %v", storage)
				}
				return
			}
			if storage == nil {
				t.Fatalf("missing storage change")
			}
			if storage.WipeStorage != test.wipe {
				t.Errorf("unexpected wipe flag %t", storage.WipeStorage)
			}
			if len(storage.Slots) != len(test.slots) {
				t.Fatalf("unexpected slots %v", storage.Slots)
			}
			for _, slot := range storage.Slots {
				want, found := test.slots[slot.Slot.Uint64()]
				if !found || slot.Present != u256(want) {
					t.Errorf("unexpected slot %v = %v", slot.Slot.Dec(), slot.Present.Dec())
				}
			}
		})
	}
}

func TestPendingCommit_BuildSkipsEmptyCodeAndUnmergedLegacy(t *testing.T) {
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	pending.transitions.Contracts[common.EmptyCodeHash] = nil
	pending.transitions.Contracts[common.Hash{1}] = []byte{0x60}
	pending.setLegacyMerge(address1, nil)
	pending.setLegacyMerge(address2, &common.LegacyMerge{TransactionHash: txHash(1)})

	changes := pending.Build().Changes
	if len(changes.Contracts) != 1 || changes.Contracts[0].CodeHash != (common.Hash{1}) {
		t.Errorf("unexpected contracts %v", changes.Contracts)
	}
	if len(changes.MergedLegacy) != 1 {
		t.Errorf("unexpected merges %v", changes.MergedLegacy)
	}
	if _, found := changes.MergedLegacy[address2]; !found {
		t.Errorf("merge of address 2 missing")
	}
}

func TestPendingCommit_BuildIsMemoizedAndFreezes(t *testing.T) {
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	if err := pending.Apply(newCountingState(), nil, nil, StateDelta{address2: {Info: accountInfo(1, 0)}}); err != nil {
		t.Fatalf("failed to apply: %v", err)
	}
	first := pending.Build()
	second := pending.Build()
	if first != second {
		t.Errorf("build should be memoized")
	}
	if len(second.Changes.Accounts) != 1 {
		t.Errorf("repeated build lost changes: %v", second.Changes.Accounts)
	}
	if !pending.IsBuilt() {
		t.Errorf("pending commit should be built")
	}

	defer func() {
		if recover() == nil {
			t.Errorf("modifying a built commit should panic")
		}
	}()
	pending.Apply(newCountingState(), nil, nil, StateDelta{address3: {Info: accountInfo(1, 0)}})
}

func TestPendingCommit_ResultsKeepExecutionOrder(t *testing.T) {
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	hashes := []common.Hash{txHash(3), txHash(1), txHash(2), txHash(1)}
	for _, hash := range hashes {
		hash := hash
		if err := pending.Apply(newCountingState(), &hash, successResult(), nil); err != nil {
			t.Fatalf("failed to apply: %v", err)
		}
	}
	got := pending.TransactionHashes()
	want := []common.Hash{txHash(3), txHash(1), txHash(2)}
	if len(got) != len(want) {
		t.Fatalf("unexpected order %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unexpected hash at %d: %v", i, got[i])
		}
	}
}

func TestPendingCommit_CloneIsIndependent(t *testing.T) {
	backing := newCountingState()
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	if err := pending.Apply(backing, nil, nil, StateDelta{address2: {Info: accountInfo(1, 0)}}); err != nil {
		t.Fatalf("failed to apply: %v", err)
	}
	snapshot := pending.Clone()

	hash := txHash(1)
	if err := pending.Apply(backing, &hash, successResult(), StateDelta{address2: {Info: accountInfo(5, 1)}}); err != nil {
		t.Fatalf("failed to apply: %v", err)
	}
	pending.setLegacyMerge(address1, nil)

	info, _ := snapshot.Overlay(backing).AccountInfo(address2)
	if info == nil || info.Balance != amount.New(1) {
		t.Errorf("snapshot was modified: %v", info)
	}
	if _, found := snapshot.Result(hash); found {
		t.Errorf("snapshot should not see later results")
	}
	if _, checked := snapshot.LegacyMerge(address1); checked {
		t.Errorf("snapshot should not see later legacy lookups")
	}
	changes := snapshot.Build().Changes
	if len(changes.Accounts) != 1 || changes.Accounts[0].Info.Balance != amount.New(1) {
		t.Errorf("unexpected snapshot changes %v", changes.Accounts)
	}
}

func TestPendingCommit_ImportAccount(t *testing.T) {
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	key := "02cc"
	info := common.AccountInfo{Balance: amount.New(7), Nonce: 4, CodeHash: common.Hash{0xff}}
	if err := pending.ImportAccount(address1, info, &common.LegacyAccountAttributes{SecondPublicKey: &key}); err != nil {
		t.Fatalf("failed to import: %v", err)
	}
	if err := pending.ImportAccount(address2, common.AccountInfo{Balance: amount.New(1)}, nil); err != nil {
		t.Fatalf("failed to import: %v", err)
	}

	got, _ := pending.Overlay(nil).AccountInfo(address1)
	if got == nil || got.Balance != amount.New(7) || got.Nonce != 4 || got.CodeHash != common.EmptyCodeHash {
		t.Errorf("unexpected imported account %v", got)
	}
	changes := pending.Build().Changes
	if len(changes.Accounts) != 2 {
		t.Errorf("unexpected accounts %v", changes.Accounts)
	}
	if len(changes.LegacyAttributes) != 1 {
		t.Errorf("unexpected legacy attributes %v", changes.LegacyAttributes)
	}
}

func TestPendingCommit_DuplicateImportsPanic(t *testing.T) {
	tests := map[string]func(*PendingCommit){
		"account": func(p *PendingCommit) {
			p.ImportAccount(address1, *accountInfo(1, 0), nil)
		},
		"cold wallet": func(p *PendingCommit) {
			p.ImportLegacyColdWallet(common.LegacyColdWallet{Address: common.LegacyAddress{1}})
		},
	}
	for name, importer := range tests {
		t.Run(name, func(t *testing.T) {
			pending := NewPendingCommit(common.CommitKey{Height: 1})
			importer(pending)
			defer func() {
				if recover() == nil {
					t.Errorf("duplicate import should panic")
				}
			}()
			importer(pending)
		})
	}
}

func TestApplyRewards_ZeroAmountsLeaveNoTrace(t *testing.T) {
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	err := ApplyRewards(newCountingState(), pending, map[common.Address]amount.Amount{
		address2: amount.New(1234),
		address3: amount.New(0),
	})
	if err != nil {
		t.Fatalf("failed to apply rewards: %v", err)
	}
	if _, found := pending.cache.Accounts[address2]; !found {
		t.Errorf("rewarded account missing in cache")
	}
	if _, found := pending.transitions.Accounts[address2]; !found {
		t.Errorf("rewarded account missing in transitions")
	}
	if _, found := pending.cache.Accounts[address3]; found {
		t.Errorf("zero reward should not create a cache entry")
	}
	if _, found := pending.transitions.Accounts[address3]; found {
		t.Errorf("zero reward should not create a transition")
	}
}

func TestApplyRewards_ComposesWithEarlierChanges(t *testing.T) {
	backing := newCountingState()
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	if err := pending.Apply(backing, nil, nil, StateDelta{address1: {Info: accountInfo(3, 2)}}); err != nil {
		t.Fatalf("failed to apply: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := ApplyRewards(backing, pending, map[common.Address]amount.Amount{address1: amount.New(5)}); err != nil {
			t.Fatalf("failed to apply rewards: %v", err)
		}
	}
	changes := pending.Build().Changes
	if len(changes.Accounts) != 1 {
		t.Fatalf("unexpected changes %v", changes.Accounts)
	}
	if got := changes.Accounts[0].Info; got.Balance != amount.New(13) || got.Nonce != 2 {
		t.Errorf("unexpected account %v", got)
	}
}
