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

import "fmt"

// TransactionErrorKind classifies transactions rejected before execution.
type TransactionErrorKind byte

const (
	NonceTooHigh TransactionErrorKind = iota + 1
	NonceTooLow
	LackOfFunds
	GasCostExceedsLimit
)

func (k TransactionErrorKind) String() string {
	switch k {
	case NonceTooHigh:
		return "nonce too high"
	case NonceTooLow:
		return "nonce too low"
	case LackOfFunds:
		return "lack of funds for max fee"
	case GasCostExceedsLimit:
		return "gas cost exceeds gas limit"
	}
	return fmt.Sprintf("transaction error %d", byte(k))
}

// TransactionError is reported for transactions that are invalid against the
// current state. Use errors.As to detect it.
type TransactionError struct {
	Kind   TransactionErrorKind
	Detail string
}

func (e *TransactionError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}
