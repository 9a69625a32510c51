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
	"bytes"
	"fmt"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

// Address is the 20 byte identifier of an account.
type Address = gethcommon.Address

// Hash is a 32 byte keccak hash.
type Hash = gethcommon.Hash

// CommitKey identifies one committable unit: a height, the consensus round
// it was produced in and the hash of the block being committed.
type CommitKey struct {
	Height    uint64
	Round     uint64
	BlockHash Hash
}

func (k CommitKey) String() string {
	return fmt.Sprintf("%d/%d/%x", k.Height, k.Round, k.BlockHash[:4])
}

// AccountInfo is the state of a single account. The Code field is only used
// in memory and is never persisted together with the account; byte code is
// stored by hash in its own table.
type AccountInfo struct {
	Balance  amount.Amount
	Nonce    uint64
	CodeHash Hash
	Code     []byte `rlp:"-"`
}

// EmptyAccountInfo returns the info of an account that was never written.
func EmptyAccountInfo() AccountInfo {
	return AccountInfo{CodeHash: EmptyCodeHash}
}

// IsEmpty is true if the account has no balance, no nonce and no code.
func (a *AccountInfo) IsEmpty() bool {
	return a.Balance.IsZero() && a.Nonce == 0 && (a.CodeHash == EmptyCodeHash || a.CodeHash == Hash{})
}

// WithoutCode returns a copy of the info dropping the in-memory code.
func (a AccountInfo) WithoutCode() AccountInfo {
	a.Code = nil
	return a
}

// Equal compares the persisted fields of two infos.
func (a *AccountInfo) Equal(b *AccountInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Balance == b.Balance && a.Nonce == b.Nonce && a.CodeHash == b.CodeHash
}

func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	res := *a
	res.Code = bytes.Clone(a.Code)
	return &res
}

// GenesisInfo is the fixed configuration established before the first commit.
type GenesisInfo struct {
	Account           Address
	DeployerAccount   Address
	ValidatorContract Address
	UsernameContract  Address
	InitialHeight     uint64
	InitialSupply     amount.Amount
}

// GenesisKey is the commit key used while bootstrapping.
func (g *GenesisInfo) GenesisKey() CommitKey {
	if g == nil {
		return CommitKey{}
	}
	return CommitKey{Height: g.InitialHeight}
}

// AccountInfoExtended is an account together with the legacy attributes it
// inherited from a merged cold wallet.
type AccountInfoExtended struct {
	Address          Address
	Info             AccountInfo
	LegacyAttributes LegacyAccountAttributes
}
