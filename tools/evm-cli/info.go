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

var getInfoCommand = cli.Command{
	Action: getInfo,
	Name:   "info",
	Usage:  "prints summary information about a state directory",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&mapSizeFlag,
	},
}

func getInfo(ctx *cli.Context) error {
	return withState(ctx, func(db *state.PersistentDB) error {
		empty, err := db.IsEmpty()
		if err != nil {
			return err
		}
		if empty {
			fmt.Println("State is empty")
			return nil
		}
		height, totalRound, err := db.State()
		if err != nil {
			return err
		}
		fmt.Printf("Height: %d\n", height)
		fmt.Printf("Total round: %d\n", totalRound)

		hashes, err := db.CommittedHashes(height)
		if err != nil {
			return err
		}
		if hashes == nil {
			fmt.Printf("No commit recorded for height %d\n", height)
			return nil
		}
		fmt.Printf("Accounts hash: %v\n", hashes.Accounts)
		fmt.Printf("Contracts hash: %v\n", hashes.Contracts)
		fmt.Printf("Storage hash: %v\n", hashes.Storage)
		return nil
	})
}
