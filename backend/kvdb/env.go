// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package kvdb provides the embedded, memory mapped key/value environment
// all persistent state is kept in. It hides the MDBX specifics behind a small
// transaction API and takes care of growing the memory map.
package kvdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

const (
	// ErrMapFull is returned by write transactions running out of map space.
	ErrMapFull = common.ConstError("memory map is full")
	// ErrClosed is returned when using an environment after Close.
	ErrClosed = common.ConstError("environment is closed")
)

// Unit is the step the memory map grows by.
const Unit = datasize.GB

// DataFileName is the name of the data file MDBX maintains in the directory.
const DataFileName = "mdbx.dat"

// NextMapSize rounds the given size down to a multiple of Unit and adds one Unit.
func NextMapSize(size datasize.ByteSize) datasize.ByteSize {
	return size/Unit*Unit + Unit
}

// Options configures an environment.
type Options struct {
	// MapSize is the initial upper bound of the memory map.
	MapSize datasize.ByteSize
}

// DefaultOptions are used for a zero MapSize.
var DefaultOptions = Options{
	MapSize: Unit,
}

// Env is an opened MDBX environment holding all tables.
// It is safe for concurrent use.
type Env struct {
	env     *mdbx.Env
	dbis    map[Table]mdbx.DBI
	dir     string
	mapSize datasize.ByteSize
	// resize is held exclusively while the map is being grown and shared by
	// all transactions.
	resize sync.RWMutex
	closed bool
	log    log.Logger
}

// Open opens or creates the environment in the given directory. If the data
// file is already at least as large as the requested map size, the map is
// grown before any transaction is started.
func Open(dir string, opts Options) (*Env, error) {
	if opts.MapSize == 0 {
		opts.MapSize = DefaultOptions.MapSize
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	logger := log.New("module", "kvdb", "dir", dir)
	mapSize := opts.MapSize
	if stat, err := os.Stat(filepath.Join(dir, DataFileName)); err == nil {
		diskSize := datasize.ByteSize(stat.Size())
		if diskSize >= mapSize {
			next := NextMapSize(diskSize)
			logger.Info("Growing memory map on open", "disk", diskSize.HR(), "from", mapSize.HR(), "to", next.HR())
			mapSize = next
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat data file: %w", err)
	}

	env, err := openMdbx(dir, mapSize)
	if err != nil {
		return nil, err
	}
	res := &Env{
		env:     env,
		dbis:    make(map[Table]mdbx.DBI, len(tables)),
		dir:     dir,
		mapSize: mapSize,
		log:     logger,
	}
	if err := res.createTables(); err != nil {
		env.Close()
		return nil, err
	}
	metrics.mapSize.Set(float64(mapSize))
	return res, nil
}

// openMdbx opens the MDBX environment of the directory with the given upper
// bound of the memory map. The bound is raised only while the environment is
// closed; an open map cannot move.
func openMdbx(dir string, mapSize datasize.ByteSize) (*mdbx.Env, error) {
	env, err := mdbx.NewEnv(mdbx.Label("evm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(tables))); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set table limit: %w", err)
	}
	if err := env.SetGeometry(-1, -1, int(mapSize), -1, -1, -1); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set map size: %w", err)
	}
	if err := env.Open(dir, mdbx.Durable, 0o644); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to open environment in %s: %w", dir, err)
	}
	return env, nil
}

func (e *Env) createTables() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	for _, table := range tables {
		dbi, err := txn.OpenDBISimple(string(table.name), mdbx.Create|table.flags)
		if err != nil {
			txn.Abort()
			return fmt.Errorf("failed to open table %s: %w", table.name, err)
		}
		e.dbis[table.name] = dbi
	}
	if _, err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit table creation: %w", err)
	}
	return nil
}

// Directory returns the directory the environment lives in.
func (e *Env) Directory() string {
	return e.dir
}

// MapSize returns the current upper bound of the memory map.
func (e *Env) MapSize() datasize.ByteSize {
	e.resize.RLock()
	defer e.resize.RUnlock()
	return e.mapSize
}

// DiskSize returns the size of the data file.
func (e *Env) DiskSize() (datasize.ByteSize, error) {
	stat, err := os.Stat(filepath.Join(e.dir, DataFileName))
	if err != nil {
		return 0, err
	}
	return datasize.ByteSize(stat.Size()), nil
}

// Grow raises the map size to the next Unit boundary. It waits for all
// running transactions to complete and reopens the environment with the new
// bound. If reopening fails, the environment is reopened with the previous
// bound; if that fails too, it is closed.
func (e *Env) Grow() error {
	e.resize.Lock()
	defer e.resize.Unlock()
	if e.closed {
		return ErrClosed
	}
	next := NextMapSize(e.mapSize)
	e.env.Close()
	if err := e.reopen(next); err != nil {
		if restoreErr := e.reopen(e.mapSize); restoreErr != nil {
			e.closed = true
			return errors.Join(fmt.Errorf("failed to grow memory map to %v: %w", next.HR(), err), restoreErr)
		}
		return fmt.Errorf("failed to grow memory map to %v: %w", next.HR(), err)
	}
	e.log.Info("Grew memory map", "from", e.mapSize.HR(), "to", next.HR())
	e.mapSize = next
	metrics.mapSize.Set(float64(next))
	metrics.resizes.Inc()
	return nil
}

// reopen opens the closed MDBX environment again. Table handles are opened
// anew since they belong to the previous environment.
func (e *Env) reopen(mapSize datasize.ByteSize) error {
	env, err := openMdbx(e.dir, mapSize)
	if err != nil {
		return err
	}
	e.env = env
	e.dbis = make(map[Table]mdbx.DBI, len(tables))
	if err := e.createTables(); err != nil {
		env.Close()
		return err
	}
	return nil
}

// View runs the given function in a read-only transaction.
func (e *Env) View(fn func(*Txn) error) error {
	e.resize.RLock()
	defer e.resize.RUnlock()
	if e.closed {
		return ErrClosed
	}
	txn, err := e.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return fmt.Errorf("failed to start read transaction: %w", err)
	}
	defer txn.Abort()
	return fn(&Txn{txn: txn, env: e})
}

// Update runs the given function in a write transaction. The transaction is
// committed if the function returns no error and aborted otherwise. Running
// out of map space is reported as ErrMapFull; no changes are applied then.
func (e *Env) Update(fn func(*Txn) error) error {
	e.resize.RLock()
	defer e.resize.RUnlock()
	if e.closed {
		return ErrClosed
	}

	// Write transactions are bound to the OS thread they were started on.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := time.Now()
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		return fmt.Errorf("failed to start write transaction: %w", err)
	}
	done := false
	defer func() {
		if !done {
			txn.Abort()
		}
	}()
	if err := fn(&Txn{txn: txn, env: e}); err != nil {
		return mapError(err)
	}
	done = true
	latency, err := txn.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit: %w", mapError(err))
	}
	metrics.commits.Inc()
	metrics.commitTime.Observe(latency.Whole.Seconds())
	metrics.updateTime.Observe(time.Since(start).Seconds())
	return nil
}

// Close closes the environment. Further use fails with ErrClosed.
func (e *Env) Close() error {
	e.resize.Lock()
	defer e.resize.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.env.Close()
	return nil
}

// mapError converts MDBX map-full failures into ErrMapFull.
func mapError(err error) error {
	if err == nil || errors.Is(err, ErrMapFull) {
		return err
	}
	if mdbx.IsErrno(err, mdbx.MapFull) {
		return fmt.Errorf("%w: %v", ErrMapFull, err)
	}
	return err
}
