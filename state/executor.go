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

//go:generate mockgen -source executor.go -destination executor_mocks.go -package state

import (
	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

// BlockContext describes the block a transaction is executed in.
type BlockContext struct {
	Commit    common.CommitKey
	GasLimit  uint64
	Timestamp uint64
	Validator common.Address
}

// ExecutionContext describes a transaction to be executed.
type ExecutionContext struct {
	Caller common.Address
	// Recipient is nil for contract creations.
	Recipient *common.Address
	GasLimit  uint64
	GasPrice  amount.Amount
	Value     amount.Amount
	// Nonce is nil for calls that skip the nonce check.
	Nonce *uint64
	Data  []byte
	// TxHash is nil for system calls, whose results are not recorded.
	TxHash *common.Hash
	// Block is nil for calls executed outside of a commit.
	Block  *BlockContext
	SpecID string
}

// AccountDelta is the effect of a transaction on one account.
type AccountDelta struct {
	// Info is the state of the account after the transaction; nil if the
	// account no longer exists. Deployed code is carried in Info.Code.
	Info *common.AccountInfo
	// Storage lists the written slots and their new values.
	Storage map[uint256.Int]uint256.Int
	// Destroyed is set if the account was self-destructed. Storage written
	// after the destruction is listed in Storage.
	Destroyed bool
}

// StateDelta is the set of accounts modified by a transaction.
type StateDelta map[common.Address]*AccountDelta

// Executor runs transactions on an EVM. Implementations must not modify the
// provided state; all effects are reported through the returned delta.
type Executor interface {
	// Execute runs the given transaction. Transactions that fail validation
	// are reported through a *TransactionError.
	Execute(ctx *ExecutionContext, state StateReader) (*common.ExecutionResult, StateDelta, error)

	// IntrinsicGas validates the transaction against the given block gas limit
	// and returns the gas charged before any code is run.
	IntrinsicGas(ctx *ExecutionContext, blockGasLimit uint64, state StateReader) (uint64, error)
}
