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
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

func hashOf(value any) (common.Hash, error) {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode %T: %w", value, err)
	}
	return common.Keccak256(data), nil
}

// GetContentHashes computes the component hashes of a change set. The
// accounts hash covers the legacy components as well if any is non-empty.
func GetContentHashes(changes *StateChangeset) (ContentHashes, error) {
	sorted := changes.Sorted()

	accounts, err := hashOf(sorted.Accounts)
	if err != nil {
		return ContentHashes{}, err
	}
	parts := [][]byte{accounts[:]}
	if len(sorted.LegacyAttributes) > 0 {
		hash, err := hashOf(sorted.SortedLegacyAttributes())
		if err != nil {
			return ContentHashes{}, err
		}
		parts = append(parts, hash[:])
	}
	if len(sorted.LegacyColdWallets) > 0 {
		hash, err := hashOf(sorted.SortedLegacyColdWallets())
		if err != nil {
			return ContentHashes{}, err
		}
		parts = append(parts, hash[:])
	}
	if len(sorted.MergedLegacy) > 0 {
		hash, err := hashOf(sorted.SortedMergedLegacy())
		if err != nil {
			return ContentHashes{}, err
		}
		parts = append(parts, hash[:])
	}
	if len(parts) > 1 {
		accounts = common.Keccak256(parts...)
	}

	contracts, err := hashOf(sorted.Contracts)
	if err != nil {
		return ContentHashes{}, err
	}
	storage, err := hashOf(sorted.Storage)
	if err != nil {
		return ContentHashes{}, err
	}
	return ContentHashes{
		Accounts:  accounts,
		Contracts: contracts,
		Storage:   storage,
	}, nil
}

// StateHash chains the content hashes of a height onto the previous state
// hash. The genesis configuration, if known, is part of every hash.
func StateHash(height uint64, genesis *common.GenesisInfo, previous common.Hash, hashes ContentHashes) (common.Hash, error) {
	var genesisHash common.Hash
	if genesis != nil {
		var err error
		if genesisHash, err = hashOf(genesis); err != nil {
			return common.Hash{}, err
		}
	}
	return common.Keccak256(
		binary.LittleEndian.AppendUint64(nil, height),
		genesisHash[:],
		previous[:],
		hashes.Accounts[:],
		hashes.Contracts[:],
		hashes.Storage[:],
	), nil
}

// CalculateStateHash returns the state hash of the pending commit. Committed
// heights reuse their stored content hashes; otherwise the pending commit is
// built, which freezes it.
func CalculateStateHash(db *PersistentDB, pending *PendingCommit, previous common.Hash) (common.Hash, error) {
	height := pending.Key().Height
	committed, err := db.CommittedHashes(height)
	if err != nil {
		return common.Hash{}, err
	}
	commit := pending.Build()

	var hashes ContentHashes
	if committed != nil {
		hashes = *committed
	} else if hashes, err = GetContentHashes(commit.Changes); err != nil {
		return common.Hash{}, err
	}
	return StateHash(height, db.GenesisInfo(), previous, hashes)
}
