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
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

// LegacyAddressLength is the size of an address of the predecessor ledger.
const LegacyAddressLength = 21

// LegacyAddress is a 21 byte address of the predecessor ledger. Its text form
// is base58check encoded.
type LegacyAddress [LegacyAddressLength]byte

// ParseLegacyAddress decodes a base58check encoded legacy address.
func ParseLegacyAddress(encoded string) (LegacyAddress, error) {
	data, err := decodeBase58Check(encoded)
	if err != nil {
		return LegacyAddress{}, err
	}
	if len(data) != LegacyAddressLength {
		return LegacyAddress{}, fmt.Errorf("%w: got %d bytes", ErrInvalidBytes, len(data))
	}
	var res LegacyAddress
	copy(res[:], data)
	return res, nil
}

func (a LegacyAddress) String() string {
	return encodeBase58Check(a[:])
}

func (a LegacyAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *LegacyAddress) UnmarshalText(text []byte) error {
	res, err := ParseLegacyAddress(string(text))
	if err != nil {
		return err
	}
	*a = res
	return nil
}

func checksum(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func encodeBase58Check(data []byte) string {
	extended := make([]byte, 0, len(data)+4)
	extended = append(extended, data...)
	extended = append(extended, checksum(data)...)
	return base58.Encode(extended)
}

func decodeBase58Check(encoded string) ([]byte, error) {
	decoded, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase58, err)
	}
	if len(decoded) < 4 {
		return nil, ErrInvalidLegacyAddressSize
	}
	data, sum := decoded[:len(decoded)-4], decoded[len(decoded)-4:]
	if !bytes.Equal(checksum(data), sum) {
		return nil, ErrInvalidChecksum
	}
	return data, nil
}

// LegacyMultiSignature is the multi-signature configuration of a legacy wallet.
type LegacyMultiSignature struct {
	Min        uint64
	PublicKeys []string
}

// LegacyAccountAttributes are attributes of a legacy wallet that are carried
// over to the account it is merged into.
type LegacyAccountAttributes struct {
	SecondPublicKey *string               `rlp:"nil"`
	MultiSignature  *LegacyMultiSignature `rlp:"nil"`
}

func (a *LegacyAccountAttributes) IsEmpty() bool {
	return a.SecondPublicKey == nil && a.MultiSignature == nil
}

// LegacyMergeInfo records that the balance of a cold wallet has been moved
// into an account by the given transaction.
type LegacyMergeInfo struct {
	TransactionHash Hash
	Address         Address
}

// LegacyColdWallet is a balance bearing wallet of the predecessor ledger
// awaiting its one-time migration.
type LegacyColdWallet struct {
	Address          LegacyAddress
	Balance          amount.Amount
	LegacyAttributes LegacyAccountAttributes
	MergeInfo        *LegacyMergeInfo `rlp:"nil"`
}

func (w *LegacyColdWallet) IsMerged() bool {
	return w.MergeInfo != nil
}

// LegacyMerge is the pending merge of a cold wallet into the address of the
// caller of a transaction.
type LegacyMerge struct {
	TransactionHash Hash
	LegacyAddress   LegacyAddress
}
