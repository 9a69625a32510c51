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
	"bytes"
	"fmt"

	"github.com/erigontech/mdbx-go/mdbx"
)

// Slot is a 32 byte big endian storage location or value.
type Slot [32]byte

// SlotRecord is the duplicate value stored per address in the Storage
// table: the slot followed by its value. Since slots are big endian,
// records of an address are sorted by slot.
type SlotRecord [64]byte

func NewSlotRecord(slot, value Slot) SlotRecord {
	var res SlotRecord
	copy(res[:32], slot[:])
	copy(res[32:], value[:])
	return res
}

func (r *SlotRecord) Slot() (res Slot) {
	copy(res[:], r[:32])
	return
}

func (r *SlotRecord) Value() (res Slot) {
	copy(res[:], r[32:])
	return
}

// GetSlot returns the value stored in the given slot of an address. Missing
// slots read as zero.
func (t *Txn) GetSlot(address []byte, slot Slot) (Slot, bool, error) {
	cursor, err := t.txn.OpenCursor(t.dbi(Storage))
	if err != nil {
		return Slot{}, false, fmt.Errorf("failed to open storage cursor: %w", err)
	}
	defer cursor.Close()

	_, v, err := cursor.Get(address, slot[:], mdbx.GetBothRange)
	if mdbx.IsNotFound(err) {
		return Slot{}, false, nil
	}
	if err != nil {
		return Slot{}, false, fmt.Errorf("failed to read storage: %w", err)
	}
	if len(v) != len(SlotRecord{}) || !bytes.Equal(v[:32], slot[:]) {
		return Slot{}, false, nil
	}
	var res Slot
	copy(res[:], v[32:])
	return res, true, nil
}

// PutSlot sets the value of a slot. Zero values remove the slot; unchanged
// values are not rewritten.
func (t *Txn) PutSlot(address []byte, slot, value Slot) error {
	cursor, err := t.txn.OpenCursor(t.dbi(Storage))
	if err != nil {
		return fmt.Errorf("failed to open storage cursor: %w", err)
	}
	defer cursor.Close()

	record := NewSlotRecord(slot, value)
	_, v, err := cursor.Get(address, slot[:], mdbx.GetBothRange)
	if err != nil && !mdbx.IsNotFound(err) {
		return fmt.Errorf("failed to read storage: %w", err)
	}
	if err == nil && len(v) == len(record) && bytes.Equal(v[:32], slot[:]) {
		switch {
		case value == (Slot{}):
			err = cursor.Del(0)
		case bytes.Equal(v[32:], value[:]):
			return nil
		default:
			// the record keeps its position in the sort order
			err = cursor.Put(address, record[:], mdbx.Current)
		}
		if err != nil {
			return fmt.Errorf("failed to update storage: %w", mapError(err))
		}
		return nil
	}
	if value == (Slot{}) {
		return nil
	}
	if err := cursor.Put(address, record[:], mdbx.NoDupData); err != nil {
		return fmt.Errorf("failed to insert storage: %w", mapError(err))
	}
	return nil
}

// WipeStorage removes all slots of an address.
func (t *Txn) WipeStorage(address []byte) error {
	err := t.txn.Del(t.dbi(Storage), address, nil)
	if err != nil && !mdbx.IsNotFound(err) {
		return fmt.Errorf("failed to wipe storage: %w", mapError(err))
	}
	return nil
}

// ForEachSlot visits the slots of an address in ascending slot order until
// visit returns false.
func (t *Txn) ForEachSlot(address []byte, visit func(slot, value Slot) bool) error {
	cursor, err := t.txn.OpenCursor(t.dbi(Storage))
	if err != nil {
		return fmt.Errorf("failed to open storage cursor: %w", err)
	}
	defer cursor.Close()

	_, v, err := cursor.Get(address, nil, mdbx.SetKey)
	for ; err == nil; _, v, err = cursor.Get(nil, nil, mdbx.NextDup) {
		if len(v) != len(SlotRecord{}) {
			return fmt.Errorf("invalid storage record of length %d", len(v))
		}
		var record SlotRecord
		copy(record[:], v)
		if !visit(record.Slot(), record.Value()) {
			return nil
		}
	}
	if !mdbx.IsNotFound(err) {
		return fmt.Errorf("failed to iterate storage: %w", err)
	}
	return nil
}
