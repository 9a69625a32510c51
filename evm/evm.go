// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package evm offers the ledger state to the node: transactions of a commit
// are executed against a pending commit which is hashed and finally persisted.
package evm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
	"github.com/sebastijankuzner/mainsail-custom/state"
)

const (
	ErrInvalidCommitKey = common.ConstError("invalid commit key")
	ErrNoGenesis        = common.ConstError("genesis info not initialized")
	ErrNoSnapshot       = common.ConstError("no snapshot for commit key")
)

// Evm serializes all modifications of the ledger state. Queries of committed
// data run concurrently on read transactions of the store.
type Evm struct {
	mu       sync.Mutex
	db       *state.PersistentDB
	executor state.Executor
	// pending collects the transactions of the commit in progress.
	pending   *state.PendingCommit
	snapshots map[common.CommitKey]*state.PendingCommit
	log       log.Logger
}

// Open creates an Evm on the state stored in the given directory.
func Open(directory string, properties Properties, executor state.Executor) (*Evm, error) {
	params, err := properties.Parameters(directory)
	if err != nil {
		return nil, err
	}
	return New(kvdb.DefaultRegistry, params, executor)
}

// New creates an Evm sharing environments through the given registry.
func New(registry *kvdb.Registry, params state.Parameters, executor state.Executor) (*Evm, error) {
	if executor == nil {
		return nil, fmt.Errorf("%w: no executor", state.UnsupportedConfiguration)
	}
	db, err := state.OpenPersistentDB(registry, params)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	return &Evm{
		db:        db,
		executor:  executor,
		snapshots: map[common.CommitKey]*state.PendingCommit{},
		log:       log.New("module", "evm"),
	}, nil
}

func (e *Evm) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
	e.snapshots = map[common.CommitKey]*state.PendingCommit{}
	return e.db.Close()
}

// DB provides access to the committed state.
func (e *Evm) DB() *state.PersistentDB {
	return e.db
}

func (e *Evm) InitializeGenesis(info common.GenesisInfo) {
	e.db.SetGenesisInfo(info)
}

func (e *Evm) genesisKey() common.CommitKey {
	return e.db.GenesisInfo().GenesisKey()
}

// PrepareNextCommit starts a new pending commit for the given key. A pending
// bootstrap commit of the genesis key is kept while it is prepared again.
func (e *Evm) PrepareNextCommit(key common.CommitKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		genesis := e.genesisKey()
		if e.pending.Key() == genesis && key == genesis {
			return
		}
		e.log.Debug("Discarding pending commit", "pending", e.pending.Key(), "next", key)
	}
	e.pending = state.NewPendingCommit(key)
}

// transact executes a transaction. Transactions of a block are applied to the
// pending commit, all others run against the committed state only.
func (e *Evm) transact(ctx *state.ExecutionContext) (*common.ExecutionResult, error) {
	if ctx.Block == nil {
		result, _, err := e.executor.Execute(ctx, e.db)
		return result, err
	}
	if e.pending == nil {
		e.pending = state.NewPendingCommit(ctx.Block.Commit)
	}
	if key := e.pending.Key(); key != ctx.Block.Commit {
		panic(fmt.Sprintf("pending commit key mismatch %v - %v", key, ctx.Block.Commit))
	}
	result, delta, err := e.executor.Execute(ctx, e.pending.Overlay(e.db))
	if err != nil {
		return nil, err
	}
	if err := e.pending.Apply(e.db, ctx.TxHash, result, delta); err != nil {
		return nil, fmt.Errorf("failed to apply transaction: %w", err)
	}
	return result, nil
}

// Process executes a transaction of the pending commit. Invalid transactions
// are reported through a *state.TransactionError.
func (e *Evm) Process(ctx *TxContext) (common.TxReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := ctx.Block.Commit
	committed, err := e.db.IsCommitted(key.Height)
	if err != nil {
		return common.TxReceipt{}, fmt.Errorf("commit lookup failed: %w", err)
	}
	if committed {
		panic(fmt.Sprintf("height %d is already committed", key.Height))
	}

	if e.pending != nil {
		if pending := e.pending.Key(); pending != key {
			panic(fmt.Sprintf("pending commit key mismatch %v - %v", pending, key))
		}
		if e.pending.IsBuilt() {
			panic(fmt.Sprintf("pending commit %v is already hashed", key))
		}
	} else {
		e.pending = state.NewPendingCommit(key)
	}
	if ctx.LegacyAddress != nil {
		if err := state.MergeLegacyColdWallet(e.db, e.pending, ctx.Caller, *ctx.LegacyAddress, ctx.TxHash); err != nil {
			return common.TxReceipt{}, err
		}
	}

	result, err := e.transact(ctx.executionContext())
	if err != nil {
		var txErr *state.TransactionError
		if errors.As(err, &txErr) {
			return common.TxReceipt{}, err
		}
		return common.TxReceipt{}, fmt.Errorf("execution failed: %w", err)
	}
	return result.Receipt(), nil
}

// View executes a call against the committed state without modifying it.
func (e *Evm) View(ctx *ViewContext) ViewResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.transact(ctx.executionContext())
	if err != nil {
		e.log.Warn("View call returned error", "err", err)
		return ViewResult{}
	}
	if !result.IsSuccess() {
		e.log.Warn("View call failed", "status", result.Status, "reason", result.HaltReason)
	}
	res := ViewResult{Success: result.IsSuccess()}
	if result.Status != common.ExecutionHalt {
		res.Output = result.Output
	}
	return res
}

// PreverifyTransaction validates a transaction against the committed state.
// The balance of an unmerged legacy cold wallet is counted as the caller's.
func (e *Evm) PreverifyTransaction(ctx *PreverifyContext) (PreverifyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending := state.NewPendingCommit(common.CommitKey{})
	if ctx.LegacyAddress != nil {
		balance, wallet, err := state.UnmergedLegacyBalance(e.db, *ctx.LegacyAddress)
		if err != nil {
			return PreverifyResult{}, err
		}
		if wallet != nil {
			rewards := map[common.Address]amount.Amount{ctx.Caller: balance}
			if err := state.ApplyRewards(e.db, pending, rewards); err != nil {
				return PreverifyResult{}, fmt.Errorf("failed to apply legacy balance: %w", err)
			}
		}
	}

	gas, err := e.executor.IntrinsicGas(ctx.executionContext(), ctx.BlockGasLimit, pending.Overlay(e.db))
	if err != nil {
		return PreverifyResult{Error: fmt.Sprintf("preverify failed: %v", err)}, nil
	}
	return PreverifyResult{Success: true, InitialGasUsed: gas}, nil
}

func (e *Evm) mustHavePending(operation string, key common.CommitKey) {
	if e.pending == nil || e.pending.Key() != key {
		var pending any
		if e.pending != nil {
			pending = e.pending.Key()
		}
		panic(fmt.Sprintf("%s pending commit key mismatch %v - %v", operation, pending, key))
	}
}

// UpdateRewardsAndVotes credits the block reward to the validator and
// refreshes the votes of all accounts touched by the pending commit.
func (e *Evm) UpdateRewardsAndVotes(ctx *RewardsContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustHavePending("update rewards and votes", ctx.Commit)

	rewards := map[common.Address]amount.Amount{ctx.Validator: ctx.BlockReward}
	if err := state.ApplyRewards(e.db, e.pending, rewards); err != nil {
		return err
	}
	voters := e.pending.CachedAddresses()
	result, err := e.systemCall(ctx.Commit, ctx.Timestamp, ctx.Validator, ctx.SpecID, "updateVoters", voters)
	if err != nil {
		return err
	}
	e.log.Info("Updated votes", "commit", ctx.Commit, "voters", len(voters), "gas", result.GasUsed)
	return nil
}

// CalculateActiveValidators selects the validator set of the next round.
func (e *Evm) CalculateActiveValidators(ctx *ActiveValidatorsContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustHavePending("calculate active validators", ctx.Commit)

	result, err := e.systemCall(ctx.Commit, ctx.Timestamp, ctx.Validator, ctx.SpecID, "calculateActiveValidators", ctx.ActiveValidators)
	if err != nil {
		return err
	}
	e.log.Info("Calculated active validators", "commit", ctx.Commit, "validators", ctx.ActiveValidators, "gas", result.GasUsed)
	return nil
}

// Commit persists the pending commit. Without a pending commit there is
// nothing to do and no account updates are reported.
func (e *Evm) Commit(key common.CommitKey, data *state.CommitData) ([]state.AccountUpdate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil && e.pending.Key() != key {
		return nil, fmt.Errorf("%w: pending %v, got %v", ErrInvalidCommitKey, e.pending.Key(), key)
	}
	pending := e.pending
	e.pending = nil
	if pending == nil {
		return []state.AccountUpdate{}, nil
	}
	for snapshot := range e.snapshots {
		if snapshot.Height <= key.Height {
			delete(e.snapshots, snapshot)
		}
	}
	updates, err := state.CommitToDB(e.db, pending, data)
	if err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	return updates, nil
}

// pendingFor returns the pending commit of the given key, replacing a pending
// commit of any other key.
func (e *Evm) pendingFor(key common.CommitKey) *state.PendingCommit {
	if e.pending != nil && e.pending.Key() != key {
		e.log.Debug("Dropping pending commit", "pending", e.pending.Key(), "requested", key)
		e.pending = nil
	}
	if e.pending == nil {
		e.pending = state.NewPendingCommit(key)
	}
	return e.pending
}

// StateHash computes the state hash of the given commit. The pending commit
// can no longer be modified afterwards.
func (e *Evm) StateHash(key common.CommitKey, previous common.Hash) (common.Hash, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := state.CalculateStateHash(e.db, e.pendingFor(key), previous)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state hash failed: %w", err)
	}
	return res, nil
}

func (e *Evm) LogsBloom(key common.CommitKey) types.Bloom {
	e.mu.Lock()
	defer e.mu.Unlock()
	return state.LogsBloom(e.pendingFor(key))
}

// Snapshot records a copy of the pending commit of the given key.
func (e *Evm) Snapshot(key common.CommitKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots[key] = e.pendingFor(key).Clone()
}

// Rollback restores the pending commit recorded by the last snapshot of the
// given key. The snapshot is retained for further rollbacks.
func (e *Evm) Rollback(key common.CommitKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot, found := e.snapshots[key]
	if !found {
		return fmt.Errorf("%w %v", ErrNoSnapshot, key)
	}
	e.pending = snapshot.Clone()
	return nil
}

// GetAccountInfo returns the committed state of an account, either the
// latest or the one at the end of the given height.
func (e *Evm) GetAccountInfo(address common.Address, height *uint64) (common.AccountInfo, error) {
	info, err := e.accountInfo(address, height)
	if err != nil || info == nil {
		return common.EmptyAccountInfo(), err
	}
	return *info, nil
}

func (e *Evm) accountInfo(address common.Address, height *uint64) (*common.AccountInfo, error) {
	var (
		info *common.AccountInfo
		err  error
	)
	if height == nil {
		info, err = e.db.AccountInfo(address)
	} else {
		info, err = e.db.HistoricalAccountInfo(*height, address)
	}
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	return info, nil
}

// GetAccountInfoExtended returns an account together with its legacy
// attributes. The balance of an unmerged cold wallet is included.
func (e *Evm) GetAccountInfoExtended(address common.Address, legacy *common.LegacyAddress) (common.AccountInfoExtended, error) {
	info, err := e.GetAccountInfo(address, nil)
	if err != nil {
		return common.AccountInfoExtended{}, err
	}
	res := common.AccountInfoExtended{Address: address, Info: info}
	if legacy != nil {
		wallet, err := e.db.LegacyColdWallet(*legacy)
		if err != nil {
			return common.AccountInfoExtended{}, fmt.Errorf("legacy cold wallet lookup failed: %w", err)
		}
		if wallet != nil && !wallet.IsMerged() {
			res.Info.Balance = amount.SaturatingAdd(res.Info.Balance, wallet.Balance)
			res.LegacyAttributes = wallet.LegacyAttributes
			return res, nil
		}
	}
	attributes, err := e.db.LegacyAttributes(address)
	if err != nil {
		return common.AccountInfoExtended{}, fmt.Errorf("legacy attributes lookup failed: %w", err)
	}
	if attributes != nil {
		res.LegacyAttributes = *attributes
	}
	return res, nil
}

// CodeAt returns the code of the account, either the latest or the one at
// the end of the given height.
func (e *Evm) CodeAt(address common.Address, height *uint64) ([]byte, error) {
	info, err := e.accountInfo(address, height)
	if err != nil || info == nil {
		return nil, err
	}
	code, err := e.db.Code(info.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("code lookup failed: %w", err)
	}
	return code, nil
}

func (e *Evm) StorageAt(address common.Address, slot uint256.Int) (uint256.Int, error) {
	res, err := e.db.Storage(address, slot)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("storage lookup failed: %w", err)
	}
	return res, nil
}

// GetReceipt returns the receipt of a committed transaction, nil if the
// height or the transaction is unknown.
func (e *Evm) GetReceipt(height uint64, txHash common.Hash) (*common.TxReceipt, error) {
	res, err := e.db.Receipt(height, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed reading receipt: %w", err)
	}
	return res, nil
}

// GetAccounts lists committed accounts. The returned offset of the next page
// is nil once the listing is exhausted.
func (e *Evm) GetAccounts(offset, limit uint64) (*uint64, []common.AccountInfoExtended, error) {
	next, res, err := e.db.Accounts(offset, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading accounts: %w", err)
	}
	return next, res, nil
}

func (e *Evm) GetLegacyColdWallets(offset, limit uint64) (*uint64, []common.LegacyColdWallet, error) {
	next, res, err := e.db.LegacyColdWallets(offset, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading legacy cold wallets: %w", err)
	}
	return next, res, nil
}

func (e *Evm) GetReceipts(offset, limit uint64) (*uint64, []state.HeightReceipts, error) {
	next, res, err := e.db.Receipts(offset, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading receipts: %w", err)
	}
	return next, res, nil
}

// IsEmpty is true as long as no block has been committed.
func (e *Evm) IsEmpty() (bool, error) {
	res, err := e.db.IsEmpty()
	if err != nil {
		return false, fmt.Errorf("is empty failed: %w", err)
	}
	return res, nil
}

// GetState returns the last committed height and the total number of rounds.
func (e *Evm) GetState() (height uint64, totalRound uint64, err error) {
	height, totalRound, err = e.db.State()
	if err != nil {
		return 0, 0, fmt.Errorf("get state failed: %w", err)
	}
	return height, totalRound, nil
}

func (e *Evm) GetBlockHeaderBytes(height uint64) ([]byte, error) {
	return e.db.BlockHeaderBytes(height)
}

func (e *Evm) GetBlockHeightByID(blockHash common.Hash) (uint64, bool, error) {
	return e.db.BlockHeightByID(blockHash)
}

func (e *Evm) GetProofBytes(height uint64) ([]byte, error) {
	return e.db.ProofBytes(height)
}

func (e *Evm) GetTransactionBytes(key string) ([]byte, error) {
	return e.db.TransactionBytes(key)
}

func (e *Evm) GetTransactionKeyByID(txHash common.Hash) (string, bool, error) {
	return e.db.TransactionKeyByID(txHash)
}

func (e *Evm) mustBeBootstrapping(operation string) {
	genesis := e.genesisKey()
	if e.pending == nil || e.pending.Key() != genesis {
		var pending any
		if e.pending != nil {
			pending = e.pending.Key()
		}
		panic(fmt.Sprintf("%s outside of genesis commit %v: %v", operation, genesis, pending))
	}
}

// ImportAccountInfo adds an account to the pending genesis commit.
func (e *Evm) ImportAccountInfo(info common.AccountInfoExtended) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustBeBootstrapping("account import")
	return e.pending.ImportAccount(info.Address, info.Info, &info.LegacyAttributes)
}

// ImportLegacyColdWallet adds a cold wallet to the pending genesis commit.
func (e *Evm) ImportLegacyColdWallet(wallet common.LegacyColdWallet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mustBeBootstrapping("legacy cold wallet import")
	e.pending.ImportLegacyColdWallet(wallet)
}
