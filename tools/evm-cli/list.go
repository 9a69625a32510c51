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
	"fmt"

	"github.com/sebastijankuzner/mainsail-custom/state"
	"github.com/urfave/cli/v2"
)

var (
	offsetFlag = cli.Uint64Flag{
		Name:  "offset",
		Usage: "the number of entries to skip",
	}
	limitFlag = cli.Uint64Flag{
		Name:  "limit",
		Usage: "the maximum number of entries to print, 0 for all",
		Value: 100,
	}
)

var listReceiptsCommand = cli.Command{
	Action: listReceipts,
	Name:   "receipts",
	Usage:  "lists the receipts of committed heights",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&offsetFlag,
		&limitFlag,
	},
}

var listWalletsCommand = cli.Command{
	Action: listWallets,
	Name:   "wallets",
	Usage:  "lists the imported legacy cold wallets",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&offsetFlag,
		&limitFlag,
	},
}

func listReceipts(ctx *cli.Context) error {
	return withState(ctx, func(db *state.PersistentDB) error {
		next, heights, err := db.Receipts(ctx.Uint64(offsetFlag.Name), ctx.Uint64(limitFlag.Name))
		if err != nil {
			return err
		}
		for _, height := range heights {
			fmt.Printf("Height %d: %d receipts\n", height.Height, len(height.Receipts))
			for _, entry := range height.Receipts {
				receipt := entry.Receipt
				fmt.Printf("  %v success=%t gas=%d refunded=%d logs=%d\n",
					entry.TxHash, receipt.Success, receipt.GasUsed, receipt.GasRefunded, len(receipt.Logs))
			}
		}
		printNext(next)
		return nil
	})
}

func listWallets(ctx *cli.Context) error {
	return withState(ctx, func(db *state.PersistentDB) error {
		next, wallets, err := db.LegacyColdWallets(ctx.Uint64(offsetFlag.Name), ctx.Uint64(limitFlag.Name))
		if err != nil {
			return err
		}
		for _, wallet := range wallets {
			printWallet(wallet)
		}
		printNext(next)
		return nil
	})
}

func printNext(next *uint64) {
	if next != nil {
		fmt.Printf("More entries available, continue with --%s %d\n", offsetFlag.Name, *next)
	}
}
