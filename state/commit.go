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
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/backend/archive"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"golang.org/x/exp/slices"
)

// CommitData are the block artifacts stored together with a commit.
type CommitData struct {
	CommitRound       uint64
	BlockHash         common.Hash
	Block             []byte
	Proof             []byte
	TransactionHashes []common.Hash
	Transactions      [][]byte
}

// CommitToDB persists the pending commit in a single write transaction and
// returns the resulting account updates. If the memory map runs full, it is
// grown and the commit is retried once. Committing a height twice panics.
func CommitToDB(db *PersistentDB, pending *PendingCommit, data *CommitData) ([]AccountUpdate, error) {
	start := time.Now()
	commit := pending.Build()
	changes := commit.Changes.Sorted()
	hashes, err := GetContentHashes(changes)
	if err != nil {
		return nil, err
	}
	receipts := collectReceipts(commit)

	apply := func(txn *kvdb.Txn) error {
		return writeCommit(db, txn, commit.Key, changes, hashes, receipts, data)
	}
	err = db.env.Update(apply)
	if errors.Is(err, kvdb.ErrMapFull) {
		db.log.Warn("Database full, growing memory map", "height", commit.Key.Height, "size", db.env.MapSize().HR())
		metrics.retries.Inc()
		if err := db.env.Grow(); err != nil {
			return nil, err
		}
		err = db.env.Update(apply)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to commit height %d: %w", commit.Key.Height, err)
	}

	metrics.commitTime.Observe(time.Since(start).Seconds())
	metrics.committedHeight.Set(float64(commit.Key.Height))
	metrics.accounts.Observe(float64(len(changes.Accounts)))
	return ProjectAccountUpdates(commit, db.GenesisInfo()), nil
}

func collectReceipts(commit *StateCommit) []common.ReceiptEntry {
	res := make([]common.ReceiptEntry, 0, len(commit.Results))
	for hash, result := range commit.Results {
		res = append(res, common.ReceiptEntry{TxHash: hash, Receipt: result.Receipt()})
	}
	slices.SortFunc(res, func(a, b common.ReceiptEntry) int {
		return bytes.Compare(a.TxHash[:], b.TxHash[:])
	})
	return res
}

func writeCommit(
	db *PersistentDB,
	txn *kvdb.Txn,
	key common.CommitKey,
	changes *StateChangeset,
	hashes ContentHashes,
	receipts []common.ReceiptEntry,
	data *CommitData,
) error {
	height := kvdb.NewHeightKey(key.Height)
	committed, err := txn.Has(kvdb.Commits, height[:])
	if err != nil {
		return err
	}
	if committed {
		panic(fmt.Sprintf("height %d is already committed", key.Height))
	}

	history := make([]archive.HistoricalAccount, 0, len(changes.Accounts))
	for _, account := range changes.Accounts {
		if account.Info == nil {
			if _, err := txn.Delete(kvdb.Accounts, account.Address[:]); err != nil {
				return err
			}
			history = append(history, archive.HistoricalAccount{
				Address:     account.Address,
				AccountData: archive.NewAccountData(common.EmptyAccountInfo()),
			})
			continue
		}
		if err := putRLP(txn, kvdb.Accounts, account.Address[:], account.Info.WithoutCode()); err != nil {
			return err
		}
		history = append(history, archive.HistoricalAccount{
			Address:     account.Address,
			AccountData: archive.NewAccountData(*account.Info),
		})
	}
	if err := db.history.Insert(txn, key.Height, history); err != nil {
		return err
	}

	for _, entry := range changes.SortedLegacyAttributes() {
		if err := putRLP(txn, kvdb.LegacyAttributes, entry.Address[:], entry.Attributes); err != nil {
			return err
		}
	}
	for _, wallet := range changes.SortedLegacyColdWallets() {
		if err := putRLP(txn, kvdb.LegacyColdWallets, wallet.Address[:], wallet); err != nil {
			return err
		}
	}
	for _, contract := range changes.Contracts {
		if err := txn.Put(kvdb.Contracts, contract.CodeHash[:], contract.Code); err != nil {
			return err
		}
	}

	for _, storage := range changes.Storage {
		if err := writeStorage(txn, storage); err != nil {
			return err
		}
	}

	for _, entry := range changes.SortedMergedLegacy() {
		if err := markMerged(db, txn, entry); err != nil {
			return err
		}
	}

	if data != nil {
		if err := writeCommitData(txn, key, data); err != nil {
			return err
		}
	}

	return putRLP(txn, kvdb.Commits, height[:], &CommitReceipts{
		AccountsHash:  hashes.Accounts,
		ContractsHash: hashes.Contracts,
		StorageHash:   hashes.Storage,
		Receipts:      receipts,
	})
}

func putRLP(txn *kvdb.Txn, table kvdb.Table, key []byte, value any) error {
	data, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("failed to encode %T: %w", value, err)
	}
	return txn.Put(table, key, data)
}

// writeStorage applies the slot changes of one account. Zero values remove a
// slot; unchanged values are skipped.
func writeStorage(txn *kvdb.Txn, storage StorageChangeset) error {
	if storage.WipeStorage {
		if err := txn.WipeStorage(storage.Address[:]); err != nil {
			return fmt.Errorf("failed to wipe storage of %v: %w", storage.Address, err)
		}
	}
	for _, slot := range storage.Slots {
		if err := txn.PutSlot(storage.Address[:], slotKey(slot.Slot), slotKey(slot.Present)); err != nil {
			return fmt.Errorf("failed to write slot %v of %v: %w", slot.Slot.Hex(), storage.Address, err)
		}
	}
	return nil
}

func slotKey(value uint256.Int) kvdb.Slot {
	return value.Bytes32()
}

func markMerged(db *PersistentDB, txn *kvdb.Txn, entry LegacyMergeEntry) error {
	legacy := entry.Merge.LegacyAddress
	db.log.Info("Merging legacy cold wallet", "legacy", legacy, "address", entry.Address)
	wallet, err := readColdWallet(txn, legacy)
	if err != nil {
		return err
	}
	if wallet == nil {
		panic(fmt.Sprintf("legacy cold wallet %v to be merged not found", legacy))
	}
	if wallet.IsMerged() {
		panic(fmt.Sprintf("legacy cold wallet %v is already merged", legacy))
	}
	wallet.MergeInfo = &common.LegacyMergeInfo{
		TransactionHash: entry.Merge.TransactionHash,
		Address:         entry.Address,
	}
	if err := putRLP(txn, kvdb.LegacyColdWallets, legacy[:], wallet); err != nil {
		return err
	}
	// The balance has been credited by the pending commit already.
	return putRLP(txn, kvdb.LegacyAttributes, entry.Address[:], wallet.LegacyAttributes)
}

func writeCommitData(txn *kvdb.Txn, key common.CommitKey, data *CommitData) error {
	height := kvdb.NewHeightKey(key.Height)
	if err := txn.Put(kvdb.Blocks, height[:], data.Block); err != nil {
		return err
	}
	if err := txn.Put(kvdb.BlocksHashNumber, data.BlockHash[:], height[:]); err != nil {
		return err
	}
	if err := txn.Put(kvdb.Proofs, height[:], data.Proof); err != nil {
		return err
	}
	if len(data.TransactionHashes) != len(data.Transactions) {
		return fmt.Errorf("got %d transaction hashes for %d transactions", len(data.TransactionHashes), len(data.Transactions))
	}
	for i, transaction := range data.Transactions {
		txKey := kvdb.TransactionKey(key.Height, i)
		if err := txn.Put(kvdb.TransactionsHashKey, data.TransactionHashes[i][:], []byte(txKey)); err != nil {
			return err
		}
		if err := txn.Put(kvdb.Transactions, []byte(txKey), transaction); err != nil {
			return err
		}
	}

	current, _, err := txn.Get(kvdb.State, []byte(kvdb.TotalRoundKey))
	if err != nil {
		return err
	}
	total := kvdb.DecodeCounter(current) + data.CommitRound + 1
	return txn.Put(kvdb.State, []byte(kvdb.TotalRoundKey), kvdb.EncodeCounter(total))
}
