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
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/backend/archive"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"golang.org/x/exp/slices"
)

// CommitReceipts is the record stored for every committed height.
type CommitReceipts struct {
	AccountsHash  common.Hash
	ContractsHash common.Hash
	StorageHash   common.Hash
	// Receipts are sorted by transaction hash.
	Receipts []common.ReceiptEntry
}

// Find returns the receipt of the given transaction.
func (r *CommitReceipts) Find(txHash common.Hash) (common.TxReceipt, bool) {
	i, found := slices.BinarySearchFunc(r.Receipts, txHash, func(e common.ReceiptEntry, h common.Hash) int {
		return bytes.Compare(e.TxHash[:], h[:])
	})
	if !found {
		return common.TxReceipt{}, false
	}
	return r.Receipts[i].Receipt, true
}

// ContentHashes are the per-component hashes of a commit.
type ContentHashes struct {
	Accounts  common.Hash
	Contracts common.Hash
	Storage   common.Hash
}

// HeightReceipts are the receipts of one committed height.
type HeightReceipts struct {
	Height   uint64
	Receipts []common.ReceiptEntry
}

// PersistentDB is the committed ledger state kept in a kvdb environment. It
// serves as the backing StateReader of all pending commits. Reads are safe
// for concurrent use; writes are performed by CommitToDB only.
type PersistentDB struct {
	env      *kvdb.Env
	registry *kvdb.Registry
	history  *archive.AccountHistory
	fallback HistoryFallback
	genesis  atomic.Pointer[common.GenesisInfo]
	codes    *lru.Cache[common.Hash, []byte]
	log      log.Logger
}

// OpenPersistentDB opens the state in the directory of the given parameters.
// The environment is shared through the registry with other instances using
// the same directory; a nil registry uses kvdb.DefaultRegistry.
func OpenPersistentDB(registry *kvdb.Registry, params Parameters) (*PersistentDB, error) {
	params = params.withDefaults()
	if err := params.validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = kvdb.DefaultRegistry
	}
	codes, err := lru.New[common.Hash, []byte](params.CodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create code cache: %w", err)
	}
	env, err := registry.Acquire(params.Directory, kvdb.Options{MapSize: params.MapSize})
	if err != nil {
		return nil, err
	}
	return &PersistentDB{
		env:      env,
		registry: registry,
		history:  archive.NewAccountHistory(params.HistorySize),
		fallback: params.HistoryFallback,
		codes:    codes,
		log:      log.New("module", "state", "dir", env.Directory()),
	}, nil
}

// Close releases the underlying environment.
func (db *PersistentDB) Close() error {
	return db.registry.Release(db.env)
}

func (db *PersistentDB) Env() *kvdb.Env {
	return db.env
}

func (db *PersistentDB) History() *archive.AccountHistory {
	return db.history
}

func (db *PersistentDB) SetGenesisInfo(info common.GenesisInfo) {
	db.genesis.Store(&info)
}

// GenesisInfo returns the genesis configuration or nil if none was set.
func (db *PersistentDB) GenesisInfo() *common.GenesisInfo {
	return db.genesis.Load()
}

// AccountInfo returns the committed info of an account. The genesis account
// holds the initial supply until it is first written.
func (db *PersistentDB) AccountInfo(address common.Address) (*common.AccountInfo, error) {
	var res *common.AccountInfo
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		res, err = readAccount(txn, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		if genesis := db.GenesisInfo(); genesis != nil && genesis.Account == address {
			info := common.EmptyAccountInfo()
			info.Balance = genesis.InitialSupply
			return &info, nil
		}
	}
	return res, nil
}

func readAccount(txn *kvdb.Txn, address common.Address) (*common.AccountInfo, error) {
	data, found, err := txn.Get(kvdb.Accounts, address[:])
	if err != nil || !found {
		return nil, err
	}
	res := new(common.AccountInfo)
	if err := rlp.DecodeBytes(data, res); err != nil {
		return nil, fmt.Errorf("failed to decode account %v: %w", address, err)
	}
	return res, nil
}

func (db *PersistentDB) Code(codeHash common.Hash) ([]byte, error) {
	if codeHash == common.EmptyCodeHash || codeHash == (common.Hash{}) {
		return nil, nil
	}
	if code, found := db.codes.Get(codeHash); found {
		return code, nil
	}
	var code []byte
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		code, _, err = txn.Get(kvdb.Contracts, codeHash[:])
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(code) > 0 {
		db.codes.Add(codeHash, code)
	}
	return code, nil
}

func (db *PersistentDB) Storage(address common.Address, slot uint256.Int) (uint256.Int, error) {
	var res uint256.Int
	err := db.env.View(func(txn *kvdb.Txn) error {
		value, found, err := txn.GetSlot(address[:], slot.Bytes32())
		if err != nil || !found {
			return err
		}
		res.SetBytes32(value[:])
		return nil
	})
	return res, err
}

// HistoricalAccountInfo returns the state of an account at the end of the
// given height. Accounts not covered by the retained history are handled
// according to the configured fallback.
func (db *PersistentDB) HistoricalAccountInfo(height uint64, address common.Address) (*common.AccountInfo, error) {
	var (
		data  archive.AccountData
		found bool
	)
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		data, found, err = db.history.Lookup(txn, height, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	if found {
		info := data.AccountInfo()
		return &info, nil
	}
	if db.fallback == FallbackLive {
		return db.AccountInfo(address)
	}
	return nil, nil
}

func (db *PersistentDB) LegacyAttributes(address common.Address) (*common.LegacyAccountAttributes, error) {
	var res *common.LegacyAccountAttributes
	err := db.env.View(func(txn *kvdb.Txn) error {
		data, found, err := txn.Get(kvdb.LegacyAttributes, address[:])
		if err != nil || !found {
			return err
		}
		res = new(common.LegacyAccountAttributes)
		return rlp.DecodeBytes(data, res)
	})
	return res, err
}

func (db *PersistentDB) LegacyColdWallet(address common.LegacyAddress) (*common.LegacyColdWallet, error) {
	var res *common.LegacyColdWallet
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		res, err = readColdWallet(txn, address)
		return err
	})
	return res, err
}

func readColdWallet(txn *kvdb.Txn, address common.LegacyAddress) (*common.LegacyColdWallet, error) {
	data, found, err := txn.Get(kvdb.LegacyColdWallets, address[:])
	if err != nil || !found {
		return nil, err
	}
	res := new(common.LegacyColdWallet)
	if err := rlp.DecodeBytes(data, res); err != nil {
		return nil, fmt.Errorf("failed to decode legacy cold wallet %v: %w", address, err)
	}
	return res, nil
}

func readCommit(txn *kvdb.Txn, height uint64) (*CommitReceipts, error) {
	key := kvdb.NewHeightKey(height)
	data, found, err := txn.Get(kvdb.Commits, key[:])
	if err != nil || !found {
		return nil, err
	}
	res := new(CommitReceipts)
	if err := rlp.DecodeBytes(data, res); err != nil {
		return nil, fmt.Errorf("failed to decode commit %d: %w", height, err)
	}
	return res, nil
}

func (db *PersistentDB) commit(height uint64) (*CommitReceipts, error) {
	var res *CommitReceipts
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		res, err = readCommit(txn, height)
		return err
	})
	return res, err
}

// IsCommitted reports whether the given height has been committed.
func (db *PersistentDB) IsCommitted(height uint64) (bool, error) {
	var res bool
	err := db.env.View(func(txn *kvdb.Txn) error {
		key := kvdb.NewHeightKey(height)
		var err error
		res, err = txn.Has(kvdb.Commits, key[:])
		return err
	})
	return res, err
}

// CommittedHashes returns the content hashes of a committed height.
func (db *PersistentDB) CommittedHashes(height uint64) (*ContentHashes, error) {
	commit, err := db.commit(height)
	if err != nil || commit == nil {
		return nil, err
	}
	return &ContentHashes{
		Accounts:  commit.AccountsHash,
		Contracts: commit.ContractsHash,
		Storage:   commit.StorageHash,
	}, nil
}

// Receipt returns the receipt of a transaction committed at the given height.
func (db *PersistentDB) Receipt(height uint64, txHash common.Hash) (*common.TxReceipt, error) {
	commit, err := db.commit(height)
	if err != nil || commit == nil {
		return nil, err
	}
	receipt, found := commit.Find(txHash)
	if !found {
		return nil, nil
	}
	return &receipt, nil
}

// page visits at most limit entries of a table after skipping offset
// entries. A limit of 0 visits all remaining entries. The returned next
// offset is set if the page is full.
func page(txn *kvdb.Txn, table kvdb.Table, offset, limit uint64, visit func(key, value []byte) error) (*uint64, error) {
	var index, taken uint64
	err := txn.ForEach(table, nil, func(key, value []byte) (bool, error) {
		if index < offset {
			index++
			return true, nil
		}
		if err := visit(key, value); err != nil {
			return false, err
		}
		taken++
		return limit == 0 || taken < limit, nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && taken == limit {
		next := offset + taken
		return &next, nil
	}
	return nil, nil
}

// Accounts lists committed accounts in address order. Only balance and nonce
// are reported, together with the legacy attributes of the account.
func (db *PersistentDB) Accounts(offset, limit uint64) (*uint64, []common.AccountInfoExtended, error) {
	var (
		res  []common.AccountInfoExtended
		next *uint64
	)
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		next, err = page(txn, kvdb.Accounts, offset, limit, func(key, value []byte) error {
			var info common.AccountInfo
			if err := rlp.DecodeBytes(value, &info); err != nil {
				return fmt.Errorf("failed to decode account %x: %w", key, err)
			}
			res = append(res, common.AccountInfoExtended{
				Address: common.Address(key),
				Info:    common.AccountInfo{Balance: info.Balance, Nonce: info.Nonce},
			})
			return nil
		})
		if err != nil {
			return err
		}
		for i := range res {
			data, found, err := txn.Get(kvdb.LegacyAttributes, res[i].Address[:])
			if err != nil {
				return err
			}
			if found {
				if err := rlp.DecodeBytes(data, &res[i].LegacyAttributes); err != nil {
					return fmt.Errorf("failed to decode legacy attributes of %v: %w", res[i].Address, err)
				}
			}
		}
		return nil
	})
	return next, res, err
}

// LegacyColdWallets lists cold wallets in legacy address order.
func (db *PersistentDB) LegacyColdWallets(offset, limit uint64) (*uint64, []common.LegacyColdWallet, error) {
	var (
		res  []common.LegacyColdWallet
		next *uint64
	)
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		next, err = page(txn, kvdb.LegacyColdWallets, offset, limit, func(key, value []byte) error {
			var wallet common.LegacyColdWallet
			if err := rlp.DecodeBytes(value, &wallet); err != nil {
				return fmt.Errorf("failed to decode legacy cold wallet %x: %w", key, err)
			}
			res = append(res, wallet)
			return nil
		})
		return err
	})
	return next, res, err
}

// Receipts lists the receipts of committed heights in ascending order.
func (db *PersistentDB) Receipts(offset, limit uint64) (*uint64, []HeightReceipts, error) {
	var (
		res  []HeightReceipts
		next *uint64
	)
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		next, err = page(txn, kvdb.Commits, offset, limit, func(key, value []byte) error {
			height, err := kvdb.DecodeHeight(key)
			if err != nil {
				return err
			}
			var commit CommitReceipts
			if err := rlp.DecodeBytes(value, &commit); err != nil {
				return fmt.Errorf("failed to decode commit %d: %w", height, err)
			}
			res = append(res, HeightReceipts{Height: height, Receipts: commit.Receipts})
			return nil
		})
		return err
	})
	return next, res, err
}

// IsEmpty is true as long as no block has been stored.
func (db *PersistentDB) IsEmpty() (bool, error) {
	var count uint64
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		count, err = txn.Count(kvdb.Blocks)
		return err
	})
	return count == 0, err
}

// State returns the height of the last stored block and the total number of
// consensus rounds.
func (db *PersistentDB) State() (height uint64, totalRound uint64, err error) {
	err = db.env.View(func(txn *kvdb.Txn) error {
		data, _, err := txn.Get(kvdb.State, []byte(kvdb.TotalRoundKey))
		if err != nil {
			return err
		}
		totalRound = kvdb.DecodeCounter(data)
		key, _, found, err := txn.Last(kvdb.Blocks)
		if err != nil || !found {
			return err
		}
		height, err = kvdb.DecodeHeight(key)
		return err
	})
	return height, totalRound, err
}

func (db *PersistentDB) getBytes(table kvdb.Table, key []byte) ([]byte, error) {
	var res []byte
	err := db.env.View(func(txn *kvdb.Txn) error {
		var err error
		res, _, err = txn.Get(table, key)
		return err
	})
	return res, err
}

// BlockHeaderBytes returns the serialized block stored at the given height.
func (db *PersistentDB) BlockHeaderBytes(height uint64) ([]byte, error) {
	key := kvdb.NewHeightKey(height)
	return db.getBytes(kvdb.Blocks, key[:])
}

// BlockHeightByID resolves a block hash to its height.
func (db *PersistentDB) BlockHeightByID(blockHash common.Hash) (uint64, bool, error) {
	data, err := db.getBytes(kvdb.BlocksHashNumber, blockHash[:])
	if err != nil || data == nil {
		return 0, false, err
	}
	height, err := kvdb.DecodeHeight(data)
	return height, err == nil, err
}

func (db *PersistentDB) ProofBytes(height uint64) ([]byte, error) {
	key := kvdb.NewHeightKey(height)
	return db.getBytes(kvdb.Proofs, key[:])
}

// TransactionBytes returns a transaction by its "{height}-{sequence}" key.
func (db *PersistentDB) TransactionBytes(key string) ([]byte, error) {
	return db.getBytes(kvdb.Transactions, []byte(key))
}

// TransactionKeyByID resolves a transaction hash to its transaction key.
func (db *PersistentDB) TransactionKeyByID(txHash common.Hash) (string, bool, error) {
	data, err := db.getBytes(kvdb.TransactionsHashKey, txHash[:])
	if err != nil || data == nil {
		return "", false, err
	}
	return string(data), true, nil
}
