// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package evm

import (
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
	"github.com/sebastijankuzner/mainsail-custom/state"
)

// DefaultViewGasLimit is the gas limit of view calls not specifying one.
const DefaultViewGasLimit = 15_000_000

// TxContext describes a transaction processed as part of a commit.
type TxContext struct {
	Caller common.Address
	// LegacyAddress is the cold wallet the caller may inherit a balance from.
	LegacyAddress *common.LegacyAddress
	// Recipient is nil for contract creations.
	Recipient *common.Address
	GasLimit  uint64
	GasPrice  amount.Amount
	Value     amount.Amount
	Nonce     uint64
	Data      []byte
	TxHash    common.Hash
	Block     state.BlockContext
	SpecID    string
}

func (c *TxContext) executionContext() *state.ExecutionContext {
	nonce := c.Nonce
	txHash := c.TxHash
	block := c.Block
	return &state.ExecutionContext{
		Caller:    c.Caller,
		Recipient: c.Recipient,
		GasLimit:  c.GasLimit,
		GasPrice:  c.GasPrice,
		Value:     c.Value,
		Nonce:     &nonce,
		Data:      c.Data,
		TxHash:    &txHash,
		Block:     &block,
		SpecID:    c.SpecID,
	}
}

// ViewContext describes a read-only call against the committed state.
type ViewContext struct {
	Caller    common.Address
	Recipient common.Address
	Data      []byte
	SpecID    string
	// GasLimit defaults to DefaultViewGasLimit.
	GasLimit *uint64
}

func (c *ViewContext) executionContext() *state.ExecutionContext {
	gas := uint64(DefaultViewGasLimit)
	if c.GasLimit != nil {
		gas = *c.GasLimit
	}
	recipient := c.Recipient
	return &state.ExecutionContext{
		Caller:    c.Caller,
		Recipient: &recipient,
		GasLimit:  gas,
		Data:      c.Data,
		SpecID:    c.SpecID,
	}
}

// ViewResult is the outcome of a view call.
type ViewResult struct {
	Success bool
	Output  []byte
}

// PreverifyContext describes a transaction to be checked before it is
// admitted to a block.
type PreverifyContext struct {
	Caller        common.Address
	LegacyAddress *common.LegacyAddress
	Recipient     *common.Address
	GasLimit      uint64
	GasPrice      amount.Amount
	Value         amount.Amount
	Nonce         uint64
	Data          []byte
	TxHash        common.Hash
	SpecID        string
	BlockGasLimit uint64
}

func (c *PreverifyContext) executionContext() *state.ExecutionContext {
	nonce := c.Nonce
	txHash := c.TxHash
	return &state.ExecutionContext{
		Caller:    c.Caller,
		Recipient: c.Recipient,
		GasLimit:  c.GasLimit,
		GasPrice:  c.GasPrice,
		Value:     c.Value,
		Nonce:     &nonce,
		Data:      c.Data,
		TxHash:    &txHash,
		SpecID:    c.SpecID,
	}
}

// PreverifyResult is the outcome of a preverification. Error is set for
// rejected transactions.
type PreverifyResult struct {
	Success        bool
	InitialGasUsed uint64
	Error          string
}

// RewardsContext describes the end of block bookkeeping of a commit.
type RewardsContext struct {
	Commit      common.CommitKey
	Timestamp   uint64
	BlockReward amount.Amount
	Validator   common.Address
	SpecID      string
}

// ActiveValidatorsContext describes the selection of the active validator
// set at the end of a round.
type ActiveValidatorsContext struct {
	Commit           common.CommitKey
	Timestamp        uint64
	ActiveValidators uint8
	Validator        common.Address
	SpecID           string
}
