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
	"encoding/binary"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

func TestStateHash_EmptyChangesetHashesEmptyLists(t *testing.T) {
	hashes, err := GetContentHashes(&StateChangeset{})
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	for name, hash := range map[string]common.Hash{
		"accounts":  hashes.Accounts,
		"contracts": hashes.Contracts,
		"storage":   hashes.Storage,
	} {
		if hash != types.EmptyUncleHash {
			t.Errorf("unexpected %s hash %v", name, hash)
		}
	}

	previous := common.Hash{0xaa}
	got, err := StateHash(7, nil, previous, hashes)
	if err != nil {
		t.Fatalf("failed to compute state hash: %v", err)
	}
	want := common.Keccak256(
		binary.LittleEndian.AppendUint64(nil, 7),
		make([]byte, 32),
		previous[:],
		types.EmptyUncleHash[:],
		types.EmptyUncleHash[:],
		types.EmptyUncleHash[:],
	)
	if got != want {
		t.Errorf("unexpected state hash %v, wanted %v", got, want)
	}
}

func TestStateHash_DependsOnAllInputs(t *testing.T) {
	hashes := ContentHashes{Accounts: common.Hash{1}, Contracts: common.Hash{2}, Storage: common.Hash{3}}
	genesis := &common.GenesisInfo{Account: address1, InitialSupply: amount.New(1)}
	base, err := StateHash(1, genesis, common.Hash{}, hashes)
	if err != nil {
		t.Fatalf("failed to compute state hash: %v", err)
	}

	tests := map[string]func() (common.Hash, error){
		"height": func() (common.Hash, error) { return StateHash(2, genesis, common.Hash{}, hashes) },
		"genesis": func() (common.Hash, error) {
			return StateHash(1, &common.GenesisInfo{Account: address2, InitialSupply: amount.New(1)}, common.Hash{}, hashes)
		},
		"no genesis": func() (common.Hash, error) { return StateHash(1, nil, common.Hash{}, hashes) },
		"previous":   func() (common.Hash, error) { return StateHash(1, genesis, common.Hash{9}, hashes) },
		"storage": func() (common.Hash, error) {
			changed := hashes
			changed.Storage = common.Hash{4}
			return StateHash(1, genesis, common.Hash{}, changed)
		},
	}
	for name, compute := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := compute()
			if err != nil {
				t.Fatalf("failed to compute state hash: %v", err)
			}
			if got == base {
				t.Errorf("state hash does not depend on %s", name)
			}
		})
	}
}

func TestStateHash_IndependentOfExecutionOrder(t *testing.T) {
	deltas := []StateDelta{
		{address1: {Info: accountInfo(1, 1), Storage: map[uint256.Int]uint256.Int{u256(2): u256(2), u256(1): u256(1)}}},
		{address3: {Info: accountInfo(3, 1), Storage: map[uint256.Int]uint256.Int{u256(9): u256(9)}}},
		{address2: {Info: accountInfo(2, 1)}},
	}
	build := func(order ...int) ContentHashes {
		pending := NewPendingCommit(common.CommitKey{Height: 1})
		for _, i := range order {
			if err := pending.Apply(newCountingState(), nil, nil, deltas[i]); err != nil {
				t.Fatalf("failed to apply: %v", err)
			}
		}
		hashes, err := GetContentHashes(pending.Build().Changes)
		if err != nil {
			t.Fatalf("failed to hash: %v", err)
		}
		return hashes
	}
	if a, b := build(0, 1, 2), build(2, 1, 0); a != b {
		t.Errorf("hashes depend on execution order: %v vs %v", a, b)
	}
}

func TestStateHash_LegacyComponentsAreChainedIntoAccountsHash(t *testing.T) {
	plain := &StateChangeset{}
	withLegacy := &StateChangeset{
		LegacyColdWallets: map[common.LegacyAddress]common.LegacyColdWallet{
			{1}: {Address: common.LegacyAddress{1}, Balance: amount.New(5)},
		},
	}
	a, err := GetContentHashes(plain)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	b, err := GetContentHashes(withLegacy)
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if a.Accounts == b.Accounts {
		t.Errorf("legacy wallets should change the accounts hash")
	}
	wallets, err := hashOf(withLegacy.SortedLegacyColdWallets())
	if err != nil {
		t.Fatalf("failed to hash: %v", err)
	}
	if want := common.Keccak256(types.EmptyUncleHash[:], wallets[:]); b.Accounts != want {
		t.Errorf("unexpected accounts hash %v, wanted %v", b.Accounts, want)
	}
	if a.Contracts != b.Contracts || a.Storage != b.Storage {
		t.Errorf("legacy wallets should only affect the accounts hash")
	}
}

func TestCalculateStateHash_CommittedHeightReusesStoredHashes(t *testing.T) {
	db := openTestDB(t, Parameters{})
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	if err := pending.Apply(db, nil, nil, StateDelta{address1: {Info: accountInfo(1, 1)}}); err != nil {
		t.Fatalf("failed to apply: %v", err)
	}
	before, err := CalculateStateHash(db, pending, common.Hash{})
	if err != nil {
		t.Fatalf("failed to compute state hash: %v", err)
	}
	if !pending.IsBuilt() {
		t.Errorf("computing the state hash should build the commit")
	}
	if _, err := CommitToDB(db, pending, nil); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}

	// an empty pending commit of the committed height yields the stored hash
	after, err := CalculateStateHash(db, NewPendingCommit(common.CommitKey{Height: 1}), common.Hash{})
	if err != nil {
		t.Fatalf("failed to compute state hash: %v", err)
	}
	if before != after {
		t.Errorf("state hash of committed height changed: %v vs %v", before, after)
	}
}
