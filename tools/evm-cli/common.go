// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/log"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/evm"
	"github.com/sebastijankuzner/mainsail-custom/state"
	"github.com/urfave/cli/v2"
)

var (
	dbDirectoryFlag = cli.StringFlag{
		Name:     "dir",
		Usage:    "the targeted state directory",
		Required: true,
	}
	historySizeFlag = cli.IntFlag{
		Name:  "history-size",
		Usage: "the number of heights with retained account history",
	}
	mapSizeFlag = cli.StringFlag{
		Name:  "map-size",
		Usage: "the initial size of the memory map, e.g. 2GB",
	}
	cpuProfilingFlag = cli.StringFlag{
		Name:  "cpu-profile",
		Usage: "enable the recording of a CPU profile",
	}
)

// open opens the committed state in the directory given on the command line.
func open(ctx *cli.Context) (*state.PersistentDB, error) {
	dir := ctx.String(dbDirectoryFlag.Name)
	properties := evm.Properties{}
	properties.SetInteger(evm.HistorySize, ctx.Int(historySizeFlag.Name))
	if size := ctx.String(mapSizeFlag.Name); size != "" {
		mapSize, err := datasize.ParseString(size)
		if err != nil {
			return nil, fmt.Errorf("invalid map size %q: %w", size, err)
		}
		properties.SetSize(evm.MapSize, mapSize)
	}
	params, err := properties.Parameters(dir)
	if err != nil {
		return nil, err
	}
	log.Info("Opening state", "dir", dir)
	return state.OpenPersistentDB(kvdb.DefaultRegistry, params)
}

// withState runs the given function on the opened state and closes it
// afterwards.
func withState(ctx *cli.Context, run func(db *state.PersistentDB) error) (err error) {
	profileTarget := ctx.String(cpuProfilingFlag.Name)
	if len(profileTarget) != 0 {
		if err := StartCPUProfile(profileTarget); err != nil {
			return err
		}
		defer StopCPUProfile()
	}

	db, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Closing state", "dir", ctx.String(dbDirectoryFlag.Name))
		err = errors.Join(err, db.Close())
	}()
	return run(db)
}

func StartCPUProfile(profileName string) error {
	f, err := os.Create(profileName)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("could not start CPU profile: %w", err)
	}
	return nil
}

func StopCPUProfile() {
	pprof.StopCPUProfile()
}
