// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"github.com/ethereum/go-ethereum/core/types"
)

// ExecutionStatus is the outcome class of an executed transaction.
type ExecutionStatus byte

const (
	ExecutionSuccess ExecutionStatus = iota
	ExecutionRevert
	ExecutionHalt
)

func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionSuccess:
		return "success"
	case ExecutionRevert:
		return "revert"
	case ExecutionHalt:
		return "halt"
	}
	return "unknown"
}

// ExecutionResult is the result of executing a single transaction as reported
// by the EVM.
type ExecutionResult struct {
	Status      ExecutionStatus
	GasUsed     uint64
	GasRefunded uint64
	// Logs emitted by a successful transaction.
	Logs []*types.Log
	// Output of the call, the deployed code of a create or the revert data.
	Output []byte
	// ContractAddress is set by successful contract creations.
	ContractAddress *Address
	// HaltReason describes why a halted transaction stopped.
	HaltReason string
}

func (r *ExecutionResult) IsSuccess() bool {
	return r.Status == ExecutionSuccess
}

// Receipt converts the result into the receipt persisted with a commit.
func (r *ExecutionResult) Receipt() TxReceipt {
	switch r.Status {
	case ExecutionSuccess:
		logs := r.Logs
		if logs == nil {
			logs = []*types.Log{}
		}
		return TxReceipt{
			GasUsed:         r.GasUsed,
			GasRefunded:     r.GasRefunded,
			Success:         true,
			ContractAddress: r.ContractAddress,
			Logs:            logs,
			Output:          r.Output,
		}
	case ExecutionRevert:
		return TxReceipt{
			GasUsed: r.GasUsed,
			Output:  r.Output,
		}
	default:
		return TxReceipt{GasUsed: r.GasUsed}
	}
}

// TxReceipt is the persisted outcome of a transaction.
type TxReceipt struct {
	GasUsed         uint64
	GasRefunded     uint64
	Success         bool
	ContractAddress *Address `rlp:"nil"`
	Logs            []*types.Log
	Output          []byte
}

// ReceiptEntry associates a receipt with the hash of its transaction.
type ReceiptEntry struct {
	TxHash  Hash
	Receipt TxReceipt
}
