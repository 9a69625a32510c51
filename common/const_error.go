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

// ConstError is a error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	// ErrInvalidLegacyAddressSize is reported for decoded legacy addresses
	// that are not 21 bytes long.
	ErrInvalidLegacyAddressSize = ConstError("invalid legacy address size")
	ErrInvalidBase58            = ConstError("invalid base58 encoding")
	ErrInvalidChecksum          = ConstError("invalid legacy address checksum")
	ErrInvalidBytes             = ConstError("invalid legacy address bytes")
)
