// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package state turns the outcome of transaction execution into committed
// ledger state. Transactions of one height are accumulated in a
// PendingCommit, which is reduced into a StateChangeset and written to the
// PersistentDB in a single atomic transaction.
package state

import (
	"github.com/holiman/uint256"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

// StateReader provides read access to the world state transactions are
// executed against.
type StateReader interface {
	// AccountInfo returns the info of the given account or nil if the account
	// does not exist.
	AccountInfo(address common.Address) (*common.AccountInfo, error)

	// Code returns the byte code with the given hash. Unknown hashes yield
	// empty code.
	Code(codeHash common.Hash) ([]byte, error)

	// Storage returns the value of a storage slot. Unset slots are zero.
	Storage(address common.Address, slot uint256.Int) (uint256.Int, error)
}

// emptyState is a StateReader without any accounts.
type emptyState struct{}

func (emptyState) AccountInfo(common.Address) (*common.AccountInfo, error) {
	return nil, nil
}

func (emptyState) Code(common.Hash) ([]byte, error) {
	return nil, nil
}

func (emptyState) Storage(common.Address, uint256.Int) (uint256.Int, error) {
	return uint256.Int{}, nil
}
