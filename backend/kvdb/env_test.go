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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
)

func openTestEnv(t *testing.T, opts Options) *Env {
	t.Helper()
	env, err := Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("failed to open environment: %v", err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func TestNextMapSize(t *testing.T) {
	tests := map[string]struct {
		size datasize.ByteSize
		want datasize.ByteSize
	}{
		"zero":          {0, Unit},
		"below unit":    {40 * datasize.KB, Unit},
		"exactly unit":  {Unit, 2 * Unit},
		"between units": {Unit + 1, 2 * Unit},
		"large":         {10*Unit + 5*datasize.MB, 11 * Unit},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := NextMapSize(test.size); got != test.want {
				t.Errorf("unexpected map size, wanted %v, got %v", test.want, got)
			}
		})
	}
}

func TestEnv_ValuesCanBeWrittenReadAndDeleted(t *testing.T) {
	env := openTestEnv(t, DefaultOptions)
	key := []byte("key")

	err := env.Update(func(txn *Txn) error {
		return txn.Put(Accounts, key, []byte{1, 2, 3})
	})
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	err = env.View(func(txn *Txn) error {
		value, found, err := txn.Get(Accounts, key)
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(value, []byte{1, 2, 3}) {
			t.Errorf("unexpected value %v, found %t", value, found)
		}
		count, err := txn.Count(Accounts)
		if err != nil {
			return err
		}
		if count != 1 {
			t.Errorf("unexpected count %d", count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}

	err = env.Update(func(txn *Txn) error {
		deleted, err := txn.Delete(Accounts, key)
		if err != nil {
			return err
		}
		if !deleted {
			t.Errorf("key should have been deleted")
		}
		deleted, err = txn.Delete(Accounts, key)
		if err != nil {
			return err
		}
		if deleted {
			t.Errorf("key should be gone")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
}

func TestEnv_FailingUpdateIsRolledBack(t *testing.T) {
	env := openTestEnv(t, DefaultOptions)
	injected := errors.New("injected")

	err := env.Update(func(txn *Txn) error {
		if err := txn.Put(Blocks, []byte{1}, []byte{1}); err != nil {
			return err
		}
		return injected
	})
	if !errors.Is(err, injected) {
		t.Fatalf("unexpected error %v", err)
	}

	err = env.View(func(txn *Txn) error {
		found, err := txn.Has(Blocks, []byte{1})
		if found {
			t.Errorf("aborted write is visible")
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
}

func TestEnv_IterationFollowsKeyOrder(t *testing.T) {
	env := openTestEnv(t, DefaultOptions)
	heights := []uint64{5, 1, 9, 3}
	err := env.Update(func(txn *Txn) error {
		for _, h := range heights {
			key := NewHeightKey(h)
			if err := txn.Put(Blocks, key[:], []byte{byte(h)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	collect := func(reverse bool, from []byte) []uint64 {
		var res []uint64
		visit := func(k, v []byte) (bool, error) {
			h, err := DecodeHeight(k)
			res = append(res, h)
			return true, err
		}
		err := env.View(func(txn *Txn) error {
			if reverse {
				return txn.ForEachReverse(Blocks, from, visit)
			}
			return txn.ForEach(Blocks, from, visit)
		})
		if err != nil {
			t.Fatalf("failed to iterate: %v", err)
		}
		return res
	}

	four, ten := NewHeightKey(4), NewHeightKey(10)
	tests := map[string]struct {
		reverse bool
		from    []byte
		want    []uint64
	}{
		"forward":                  {false, nil, []uint64{1, 3, 5, 9}},
		"forward from gap":         {false, four[:], []uint64{5, 9}},
		"forward past the end":     {false, ten[:], nil},
		"reverse":                  {true, nil, []uint64{9, 5, 3, 1}},
		"reverse from gap":         {true, four[:], []uint64{3, 1}},
		"reverse from past end":    {true, ten[:], []uint64{9, 5, 3, 1}},
		"reverse from exact key":   {true, func() []byte { k := NewHeightKey(5); return k[:] }(), []uint64{5, 3, 1}},
		"forward from exact key":   {false, func() []byte { k := NewHeightKey(3); return k[:] }(), []uint64{3, 5, 9}},
		"reverse before the first": {true, func() []byte { k := NewHeightKey(0); return k[:] }(), nil},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := collect(test.reverse, test.from)
			if len(got) != len(test.want) {
				t.Fatalf("unexpected keys, wanted %v, got %v", test.want, got)
			}
			for i := range got {
				if got[i] != test.want[i] {
					t.Errorf("unexpected keys, wanted %v, got %v", test.want, got)
				}
			}
		})
	}

	err = env.View(func(txn *Txn) error {
		k, v, found, err := txn.Last(Blocks)
		if !found || !bytes.Equal(v, []byte{9}) {
			t.Errorf("unexpected last entry %x=%x", k, v)
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to read last entry: %v", err)
	}
}

func TestEnv_DeleteWhileStopsAtFirstMismatch(t *testing.T) {
	env := openTestEnv(t, DefaultOptions)
	err := env.Update(func(txn *Txn) error {
		for h := uint64(0); h < 10; h++ {
			key := NewHeightKey(h)
			if err := txn.Put(AccountsHistory, key[:], nil); err != nil {
				return err
			}
		}
		removed, err := txn.DeleteWhile(AccountsHistory, func(k []byte) bool {
			h, _ := DecodeHeight(k)
			return h <= 4
		})
		if removed != 5 {
			t.Errorf("unexpected number of removed entries %d", removed)
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	err = env.View(func(txn *Txn) error {
		count, err := txn.Count(AccountsHistory)
		if count != 5 {
			t.Errorf("unexpected number of remaining entries %d", count)
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
}

func TestEnv_FullMapIsReportedAndCanBeGrown(t *testing.T) {
	env := openTestEnv(t, Options{MapSize: datasize.MB})
	value := make([]byte, 256*datasize.KB)

	write := func(txn *Txn) error {
		for i := 0; i < 16; i++ {
			if err := txn.Put(Contracts, []byte{byte(i)}, value); err != nil {
				return err
			}
		}
		return nil
	}

	if err := env.Update(write); !errors.Is(err, ErrMapFull) {
		t.Fatalf("expected map full error, got %v", err)
	}
	if err := env.Grow(); err != nil {
		t.Fatalf("failed to grow map: %v", err)
	}
	if got, want := env.MapSize(), Unit; got != want {
		t.Errorf("unexpected map size, wanted %v, got %v", want, got)
	}
	if err := env.Update(write); err != nil {
		t.Fatalf("write after grow failed: %v", err)
	}
}

func TestEnv_GrowKeepsContentAndTables(t *testing.T) {
	env := openTestEnv(t, Options{MapSize: datasize.MB})
	err := env.Update(func(txn *Txn) error {
		if err := txn.Put(Accounts, []byte{1}, []byte{2}); err != nil {
			return err
		}
		return txn.PutSlot([]byte{1}, Slot{3}, Slot{4})
	})
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	// repeated growth reopens the environment each time
	for i := 0; i < 2; i++ {
		if err := env.Grow(); err != nil {
			t.Fatalf("failed to grow map: %v", err)
		}
	}
	if got, want := env.MapSize(), 2*Unit; got != want {
		t.Errorf("unexpected map size, wanted %v, got %v", want, got)
	}

	err = env.View(func(txn *Txn) error {
		value, found, err := txn.Get(Accounts, []byte{1})
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(value, []byte{2}) {
			t.Errorf("unexpected account value %v, found %t", value, found)
		}
		slot, found, err := txn.GetSlot([]byte{1}, Slot{3})
		if err != nil {
			return err
		}
		if !found || slot != (Slot{4}) {
			t.Errorf("unexpected slot value %v, found %t", slot, found)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read after growth: %v", err)
	}

	large := make([]byte, 4*datasize.MB)
	if err := env.Update(func(txn *Txn) error { return txn.Put(Contracts, []byte{9}, large) }); err != nil {
		t.Fatalf("write exceeding the initial map failed: %v", err)
	}
}

func TestEnv_GrowOnClosedEnvironmentFails(t *testing.T) {
	env := openTestEnv(t, Options{MapSize: datasize.MB})
	if err := env.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := env.Grow(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestEnv_OpenGrowsMapForLargeDataFile(t *testing.T) {
	dir := t.TempDir()
	env, err := Open(dir, DefaultOptions)
	if err != nil {
		t.Fatalf("failed to open environment: %v", err)
	}
	value := make([]byte, 512*datasize.KB)
	err = env.Update(func(txn *Txn) error {
		for i := 0; i < 4; i++ {
			if err := txn.Put(Contracts, []byte{byte(i)}, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	stat, err := os.Stat(filepath.Join(dir, DataFileName))
	if err != nil {
		t.Fatalf("failed to stat data file: %v", err)
	}
	diskSize := datasize.ByteSize(stat.Size())
	if diskSize < datasize.MB {
		t.Fatalf("data file unexpectedly small: %v", diskSize)
	}

	env, err = Open(dir, Options{MapSize: datasize.MB})
	if err != nil {
		t.Fatalf("failed to reopen environment: %v", err)
	}
	defer env.Close()
	if got, want := env.MapSize(), NextMapSize(diskSize); got != want {
		t.Errorf("unexpected map size, wanted %v, got %v", want, got)
	}
	err = env.View(func(txn *Txn) error {
		count, err := txn.Count(Contracts)
		if count != 4 {
			t.Errorf("unexpected number of contracts %d", count)
		}
		return err
	})
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
}

func TestEnv_ClosedEnvironmentRejectsTransactions(t *testing.T) {
	env, err := Open(t.TempDir(), DefaultOptions)
	if err != nil {
		t.Fatalf("failed to open environment: %v", err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := env.View(func(*Txn) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("unexpected error %v", err)
	}
	if err := env.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestEnv_AllTablesAreCreated(t *testing.T) {
	env := openTestEnv(t, DefaultOptions)
	err := env.View(func(txn *Txn) error {
		for _, table := range tables {
			if _, err := txn.Count(table.name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to access tables: %v", err)
	}
}
