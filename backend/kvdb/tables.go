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

import "github.com/erigontech/mdbx-go/mdbx"

// Table is the name of a sub-database of the environment.
type Table string

const (
	// Accounts maps addresses to RLP encoded account infos.
	Accounts Table = "accounts"
	// AccountsHistory maps big endian heights to the accounts touched at that height.
	AccountsHistory Table = "accounts_history"
	// Commits maps big endian heights to content hashes and receipts.
	Commits Table = "commits"
	// Contracts maps code hashes to byte code.
	Contracts Table = "contracts"
	// LegacyAttributes maps addresses to migrated legacy attributes.
	LegacyAttributes Table = "legacy_attributes"
	// LegacyColdWallets maps 21 byte legacy addresses to cold wallets.
	LegacyColdWallets Table = "legacy_cold_wallets"
	// Storage maps addresses to (slot, value) records, see SlotRecord.
	Storage Table = "storage"
	// State holds named scalar values like the total round counter.
	State Table = "state"
	// Proofs maps big endian heights to commit proofs.
	Proofs Table = "proofs"
	// Blocks maps big endian heights to serialized blocks.
	Blocks Table = "blocks"
	// BlocksHashNumber maps block hashes to big endian heights.
	BlocksHashNumber Table = "blocks_hash_number"
	// Transactions maps "{height}-{sequence}" keys to serialized transactions.
	Transactions Table = "transactions"
	// TransactionsHashKey maps transaction hashes to transaction keys.
	TransactionsHashKey Table = "transactions_hash_key"
)

type tableConfig struct {
	name  Table
	flags uint
}

var tables = []tableConfig{
	{Accounts, 0},
	{AccountsHistory, 0},
	{Commits, 0},
	{Contracts, 0},
	{LegacyAttributes, 0},
	{LegacyColdWallets, 0},
	{Storage, mdbx.DupSort},
	{State, 0},
	{Proofs, 0},
	{Blocks, 0},
	{BlocksHashNumber, 0},
	{Transactions, 0},
	{TransactionsHashKey, 0},
}

// TotalRoundKey is the key of the total round counter in the State table.
const TotalRoundKey = "total_round"
