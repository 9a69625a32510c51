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
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sebastijankuzner/mainsail-custom/backend/archive/sqlite"
	"github.com/sebastijankuzner/mainsail-custom/state"
	"github.com/urfave/cli/v2"
)

const exportPageSize = 1000

var targetFileFlag = cli.StringFlag{
	Name:     "out",
	Usage:    "the SQLite file receiving the exported state",
	Required: true,
}

var exportCommand = cli.Command{
	Action: exportToSqlite,
	Name:   "export",
	Usage:  "exports accounts, receipts and legacy cold wallets into an SQLite file",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&mapSizeFlag,
		&targetFileFlag,
		&cpuProfilingFlag,
	},
}

func exportToSqlite(ctx *cli.Context) error {
	return withState(ctx, func(db *state.PersistentDB) (err error) {
		file := ctx.String(targetFileFlag.Name)
		target, err := sqlite.NewExport(file)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, target.Close())
		}()

		start := time.Now()
		if err := exportState(ctx.Context, db, target, exportPageSize); err != nil {
			return err
		}
		log.Info("Export complete", "file", file, "elapsed", time.Since(start))
		return nil
	})
}

// exportState copies the committed state page by page into the export.
func exportState(ctx context.Context, db *state.PersistentDB, target *sqlite.Export, pageSize uint64) error {
	for offset := uint64(0); ; {
		next, accounts, err := db.Accounts(offset, pageSize)
		if err != nil {
			return err
		}
		// listed accounts lack their code hash
		for i := range accounts {
			info, err := db.AccountInfo(accounts[i].Address)
			if err != nil {
				return err
			}
			if info != nil {
				accounts[i].Info.CodeHash = info.CodeHash
			}
		}
		if err := target.AddAccounts(ctx, accounts); err != nil {
			return err
		}
		log.Debug("Exported accounts", "offset", offset, "count", len(accounts))
		if next == nil {
			break
		}
		offset = *next
	}

	for offset := uint64(0); ; {
		next, heights, err := db.Receipts(offset, pageSize)
		if err != nil {
			return err
		}
		for _, height := range heights {
			if err := target.AddReceipts(ctx, height.Height, height.Receipts); err != nil {
				return err
			}
		}
		log.Debug("Exported receipts", "offset", offset, "heights", len(heights))
		if next == nil {
			break
		}
		offset = *next
	}

	for offset := uint64(0); ; {
		next, wallets, err := db.LegacyColdWallets(offset, pageSize)
		if err != nil {
			return err
		}
		if err := target.AddLegacyColdWallets(ctx, wallets); err != nil {
			return err
		}
		log.Debug("Exported legacy wallets", "offset", offset, "count", len(wallets))
		if next == nil {
			break
		}
		offset = *next
	}
	return nil
}
