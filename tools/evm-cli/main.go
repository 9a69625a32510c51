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
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

// Run with `go run ./tools/evm-cli`

var verbosityFlag = cli.IntFlag{
	Name:  "verbosity",
	Usage: "log level (0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace)",
	Value: 3,
}

func main() {
	app := &cli.App{
		Name:      "EVM State Toolbox",
		HelpName:  "evm",
		Usage:     "A set of utilities to inspect committed EVM state directories",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags:     []cli.Flag{&verbosityFlag},
		Before: func(ctx *cli.Context) error {
			level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
			log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, true)))
			return nil
		},
		Commands: []*cli.Command{
			&getInfoCommand,
			&getAccountCommand,
			&listReceiptsCommand,
			&listWalletsCommand,
			&exportCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
