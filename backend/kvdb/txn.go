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

// Txn is a transaction on an environment. It is only valid within the
// function passed to View or Update. Returned slices are copies and may be
// retained.
type Txn struct {
	txn *mdbx.Txn
	env *Env
}

func (t *Txn) dbi(table Table) mdbx.DBI {
	dbi, found := t.env.dbis[table]
	if !found {
		panic(fmt.Sprintf("unknown table %s", table))
	}
	return dbi
}

// Get returns the value stored for the given key.
func (t *Txn) Get(table Table, key []byte) ([]byte, bool, error) {
	value, err := t.txn.Get(t.dbi(table), key)
	if mdbx.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return bytes.Clone(value), true, nil
}

// Has reports whether the key is present.
func (t *Txn) Has(table Table, key []byte) (bool, error) {
	_, found, err := t.Get(table, key)
	return found, err
}

// Put stores the value for the given key, replacing any previous value.
func (t *Txn) Put(table Table, key, value []byte) error {
	if err := t.txn.Put(t.dbi(table), key, value, 0); err != nil {
		return fmt.Errorf("failed to write %s: %w", table, mapError(err))
	}
	return nil
}

// Delete removes the key and reports whether it was present.
func (t *Txn) Delete(table Table, key []byte) (bool, error) {
	err := t.txn.Del(t.dbi(table), key, nil)
	if mdbx.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, mapError(err))
	}
	return true, nil
}

// Count returns the number of entries in the table.
func (t *Txn) Count(table Table) (uint64, error) {
	stat, err := t.txn.StatDBI(t.dbi(table))
	if err != nil {
		return 0, fmt.Errorf("failed to get stats of %s: %w", table, err)
	}
	return stat.Entries, nil
}

// ForEach visits the entries of the table in ascending key order, starting
// at the first key not less than from. A nil from starts at the beginning.
// Iteration ends when visit returns false.
func (t *Txn) ForEach(table Table, from []byte, visit func(key, value []byte) (bool, error)) error {
	cursor, err := t.txn.OpenCursor(t.dbi(table))
	if err != nil {
		return fmt.Errorf("failed to open cursor on %s: %w", table, err)
	}
	defer cursor.Close()

	var k, v []byte
	if from == nil {
		k, v, err = cursor.Get(nil, nil, mdbx.First)
	} else {
		k, v, err = cursor.Get(from, nil, mdbx.SetRange)
	}
	for ; err == nil; k, v, err = cursor.Get(nil, nil, mdbx.Next) {
		next, err := visit(bytes.Clone(k), bytes.Clone(v))
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	if !mdbx.IsNotFound(err) {
		return fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return nil
}

// ForEachReverse visits the entries of the table in descending key order,
// starting at the last key not greater than from. A nil from starts at the
// end. Iteration ends when visit returns false.
func (t *Txn) ForEachReverse(table Table, from []byte, visit func(key, value []byte) (bool, error)) error {
	cursor, err := t.txn.OpenCursor(t.dbi(table))
	if err != nil {
		return fmt.Errorf("failed to open cursor on %s: %w", table, err)
	}
	defer cursor.Close()

	var k, v []byte
	if from == nil {
		k, v, err = cursor.Get(nil, nil, mdbx.Last)
	} else {
		k, v, err = cursor.Get(from, nil, mdbx.SetRange)
		switch {
		case mdbx.IsNotFound(err):
			// all keys are smaller than from
			k, v, err = cursor.Get(nil, nil, mdbx.Last)
		case err == nil && bytes.Compare(k, from) > 0:
			k, v, err = cursor.Get(nil, nil, mdbx.Prev)
		}
	}
	for ; err == nil; k, v, err = cursor.Get(nil, nil, mdbx.Prev) {
		next, err := visit(bytes.Clone(k), bytes.Clone(v))
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	if !mdbx.IsNotFound(err) {
		return fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return nil
}

// Last returns the entry with the largest key of the table.
func (t *Txn) Last(table Table) (key, value []byte, found bool, err error) {
	err = t.ForEachReverse(table, nil, func(k, v []byte) (bool, error) {
		key, value, found = k, v, true
		return false, nil
	})
	return key, value, found, err
}

// DeleteWhile removes entries from the front of the table as long as the
// predicate holds for their keys. It returns the number of removed entries.
func (t *Txn) DeleteWhile(table Table, predicate func(key []byte) bool) (int, error) {
	cursor, err := t.txn.OpenCursor(t.dbi(table))
	if err != nil {
		return 0, fmt.Errorf("failed to open cursor on %s: %w", table, err)
	}
	defer cursor.Close()

	removed := 0
	for {
		k, _, err := cursor.Get(nil, nil, mdbx.First)
		if mdbx.IsNotFound(err) {
			return removed, nil
		}
		if err != nil {
			return removed, fmt.Errorf("failed to iterate %s: %w", table, err)
		}
		if !predicate(k) {
			return removed, nil
		}
		if err := cursor.Del(0); err != nil {
			return removed, fmt.Errorf("failed to delete from %s: %w", table, mapError(err))
		}
		removed++
	}
}
