// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package kvdb

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// HeightKey is the big endian encoding of a height, making heights sort in
// ascending order in the key space.
type HeightKey [8]byte

func NewHeightKey(height uint64) HeightKey {
	var res HeightKey
	binary.BigEndian.PutUint64(res[:], height)
	return res
}

func (k HeightKey) Height() uint64 {
	return binary.BigEndian.Uint64(k[:])
}

// DecodeHeight decodes a big endian height key.
func DecodeHeight(data []byte) (uint64, error) {
	if len(data) != len(HeightKey{}) {
		return 0, fmt.Errorf("invalid height key length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// TransactionKey is the key of the transaction at the given position of the
// block committed at the given height.
func TransactionKey(height uint64, sequence int) string {
	return fmt.Sprintf("%d-%d", height, sequence)
}

// ParseTransactionKey splits a transaction key into height and sequence.
func ParseTransactionKey(key string) (height uint64, sequence int, err error) {
	h, s, found := strings.Cut(key, "-")
	if !found {
		return 0, 0, fmt.Errorf("invalid transaction key %q", key)
	}
	if height, err = strconv.ParseUint(h, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid height in transaction key %q: %w", key, err)
	}
	if sequence, err = strconv.Atoi(s); err != nil {
		return 0, 0, fmt.Errorf("invalid sequence in transaction key %q: %w", key, err)
	}
	return height, sequence, nil
}

// EncodeCounter encodes a state counter, stored in little endian order.
func EncodeCounter(value uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, value)
}

// DecodeCounter decodes a state counter; missing values read as zero.
func DecodeCounter(data []byte) uint64 {
	if len(data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(data)
}
