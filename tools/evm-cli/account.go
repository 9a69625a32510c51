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

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/state"
	"github.com/urfave/cli/v2"
)

var (
	addressFlag = cli.StringFlag{
		Name:  "address",
		Usage: "the hex encoded address of the account",
	}
	heightFlag = cli.Uint64Flag{
		Name:  "height",
		Usage: "look up the account as of the given committed height",
	}
	legacyAddressFlag = cli.StringFlag{
		Name:  "legacy",
		Usage: "the base58 encoded address of a legacy cold wallet",
	}
)

var getAccountCommand = cli.Command{
	Action: getAccount,
	Name:   "account",
	Usage:  "prints an account and its legacy cold wallet",
	Flags: []cli.Flag{
		&dbDirectoryFlag,
		&historySizeFlag,
		&addressFlag,
		&heightFlag,
		&legacyAddressFlag,
	},
}

func getAccount(ctx *cli.Context) error {
	encoded := ctx.String(addressFlag.Name)
	legacy := ctx.String(legacyAddressFlag.Name)
	if encoded == "" && legacy == "" {
		return fmt.Errorf("one of --%s or --%s is required", addressFlag.Name, legacyAddressFlag.Name)
	}
	return withState(ctx, func(db *state.PersistentDB) error {
		if encoded != "" {
			if !gethcommon.IsHexAddress(encoded) {
				return fmt.Errorf("invalid address %q", encoded)
			}
			if err := printAccount(ctx, db, gethcommon.HexToAddress(encoded)); err != nil {
				return err
			}
		}
		if legacy != "" {
			address, err := common.ParseLegacyAddress(legacy)
			if err != nil {
				return err
			}
			wallet, err := db.LegacyColdWallet(address)
			if err != nil {
				return err
			}
			if wallet == nil {
				fmt.Printf("Legacy wallet %v: not found\n", address)
				return nil
			}
			printWallet(*wallet)
		}
		return nil
	})
}

func printAccount(ctx *cli.Context, db *state.PersistentDB, address common.Address) error {
	var (
		info *common.AccountInfo
		err  error
	)
	if ctx.IsSet(heightFlag.Name) {
		info, err = db.HistoricalAccountInfo(ctx.Uint64(heightFlag.Name), address)
	} else {
		info, err = db.AccountInfo(address)
	}
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Printf("Account %v: not found\n", address)
		return nil
	}
	fmt.Printf("Account %v\n", address)
	fmt.Printf("  balance:   %v\n", info.Balance)
	fmt.Printf("  nonce:     %d\n", info.Nonce)
	fmt.Printf("  code hash: %v\n", info.CodeHash)

	attributes, err := db.LegacyAttributes(address)
	if err != nil {
		return err
	}
	if attributes != nil {
		printAttributes(*attributes)
	}
	return nil
}

func printAttributes(attributes common.LegacyAccountAttributes) {
	if key := attributes.SecondPublicKey; key != nil {
		fmt.Printf("  second public key: %s\n", *key)
	}
	if multi := attributes.MultiSignature; multi != nil {
		fmt.Printf("  multi signature:   %d of %v\n", multi.Min, multi.PublicKeys)
	}
}

func printWallet(wallet common.LegacyColdWallet) {
	fmt.Printf("Legacy wallet %v\n", wallet.Address)
	fmt.Printf("  balance: %v\n", wallet.Balance)
	if merge := wallet.MergeInfo; merge != nil {
		fmt.Printf("  merged into %v by %v\n", merge.Address, merge.TransactionHash)
	}
	printAttributes(wallet.LegacyAttributes)
}
