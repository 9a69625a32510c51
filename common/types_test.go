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
	"testing"

	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

func TestEmptyCodeHash_IsKeccakOfNothing(t *testing.T) {
	want := Hash{
		0xc5, 0xd2, 0x46, 0x01, 0x86, 0xf7, 0x23, 0x3c, 0x92, 0x7e, 0x7d, 0xb2, 0xdc, 0xc7, 0x03, 0xc0,
		0xe5, 0x00, 0xb6, 0x53, 0xca, 0x82, 0x27, 0x3b, 0x7b, 0xfa, 0xd8, 0x04, 0x5d, 0x85, 0xa4, 0x70,
	}
	if EmptyCodeHash != want {
		t.Errorf("unexpected empty code hash %x", EmptyCodeHash)
	}
}

func TestKeccak256_HashesConcatenation(t *testing.T) {
	if Keccak256([]byte{1, 2}, []byte{3}) != Keccak256([]byte{1, 2, 3}) {
		t.Errorf("hash of parts should equal hash of concatenation")
	}
}

func TestAccountInfo_EqualIgnoresCode(t *testing.T) {
	a := &AccountInfo{Balance: amount.New(1), Nonce: 2, CodeHash: Hash{3}, Code: []byte{1}}
	b := &AccountInfo{Balance: amount.New(1), Nonce: 2, CodeHash: Hash{3}}
	if !a.Equal(b) {
		t.Errorf("infos should be equal")
	}
	b.Nonce++
	if a.Equal(b) {
		t.Errorf("infos should differ")
	}
	var missing *AccountInfo
	if missing.Equal(a) || !missing.Equal(nil) {
		t.Errorf("nil infos are only equal to nil")
	}
}

func TestAccountInfo_IsEmpty(t *testing.T) {
	empty := EmptyAccountInfo()
	if !empty.IsEmpty() {
		t.Errorf("empty account should be empty")
	}
	withBalance := AccountInfo{Balance: amount.New(1), CodeHash: EmptyCodeHash}
	if withBalance.IsEmpty() {
		t.Errorf("account with balance is not empty")
	}
}

func TestAccountInfo_CloneIsDeep(t *testing.T) {
	a := &AccountInfo{Code: []byte{1, 2}}
	b := a.Clone()
	b.Code[0] = 9
	if a.Code[0] != 1 {
		t.Errorf("clone shares code with original")
	}
}
