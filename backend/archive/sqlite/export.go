// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package sqlite writes a flat, queryable copy of the committed ledger state
// into an SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

var (
	// See https://www.sqlite.org/pragma.html
	kConfigureConnection = []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = -262144", // abs(N*1024) = 256MB
		"PRAGMA locking_mode = EXCLUSIVE",
	}
)

const (
	kCreateAccountTable = "CREATE TABLE IF NOT EXISTS account (address BLOB PRIMARY KEY, balance TEXT, nonce INT, code_hash BLOB, second_public_key TEXT, multi_signature_min INT)"
	kAddAccountStmt     = "INSERT OR REPLACE INTO account(address, balance, nonce, code_hash, second_public_key, multi_signature_min) VALUES (?,?,?,?,?,?)"
	kGetAccountStmt     = "SELECT balance, nonce, code_hash FROM account WHERE address = ?"

	kCreateReceiptTable = "CREATE TABLE IF NOT EXISTS receipt (height INT, tx_hash BLOB, success INT, gas_used INT, gas_refunded INT, contract BLOB, logs INT, PRIMARY KEY (height, tx_hash))"
	kAddReceiptStmt     = "INSERT OR REPLACE INTO receipt(height, tx_hash, success, gas_used, gas_refunded, contract, logs) VALUES (?,?,?,?,?,?,?)"

	kCreateWalletTable = "CREATE TABLE IF NOT EXISTS legacy_wallet (address TEXT PRIMARY KEY, balance TEXT, merged_into BLOB, merge_tx BLOB)"
	kAddWalletStmt     = "INSERT OR REPLACE INTO legacy_wallet(address, balance, merged_into, merge_tx) VALUES (?,?,?,?)"

	kCountStmt = "SELECT COUNT(*) FROM "
)

// Table names accepted by Export.Count.
const (
	AccountTable      = "account"
	ReceiptTable      = "receipt"
	LegacyWalletTable = "legacy_wallet"
)

// Export is an SQLite file receiving committed accounts, receipts and legacy
// cold wallets. Each Add call is written in its own transaction.
type Export struct {
	db             *sql.DB
	addAccountStmt *sql.Stmt
	getAccountStmt *sql.Stmt
	addReceiptStmt *sql.Stmt
	addWalletStmt  *sql.Stmt
}

func NewExport(file string) (*Export, error) {
	db, err := sql.Open("sqlite3", "file:"+file)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite; %w", err)
	}
	export, err := setup(db)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return export, nil
}

func setup(db *sql.DB) (*Export, error) {
	for _, cmd := range kConfigureConnection {
		if _, err := db.Exec(cmd); err != nil {
			return nil, fmt.Errorf("failed to configure connection with %s; %w", cmd, err)
		}
	}
	for name, cmd := range map[string]string{
		AccountTable:      kCreateAccountTable,
		ReceiptTable:      kCreateReceiptTable,
		LegacyWalletTable: kCreateWalletTable,
	} {
		if _, err := db.Exec(cmd); err != nil {
			return nil, fmt.Errorf("failed to create %s table; %w", name, err)
		}
	}

	addAccount, err := db.Prepare(kAddAccountStmt)
	if err != nil {
		return nil, err
	}
	getAccount, err := db.Prepare(kGetAccountStmt)
	if err != nil {
		return nil, err
	}
	addReceipt, err := db.Prepare(kAddReceiptStmt)
	if err != nil {
		return nil, err
	}
	addWallet, err := db.Prepare(kAddWalletStmt)
	if err != nil {
		return nil, err
	}
	return &Export{
		db:             db,
		addAccountStmt: addAccount,
		getAccountStmt: getAccount,
		addReceiptStmt: addReceipt,
		addWalletStmt:  addWallet,
	}, nil
}

func (e *Export) Close() error {
	return e.db.Close()
}

// inTx runs the given function in a transaction, which is rolled back on
// any error.
func (e *Export) inTx(ctx context.Context, run func(tx *sql.Tx) error) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction; %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()
	if err := run(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Export) AddAccounts(ctx context.Context, accounts []common.AccountInfoExtended) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		stmt := tx.StmtContext(ctx, e.addAccountStmt)
		for _, account := range accounts {
			var secondPublicKey, multiSignatureMin any
			if key := account.LegacyAttributes.SecondPublicKey; key != nil {
				secondPublicKey = *key
			}
			if multi := account.LegacyAttributes.MultiSignature; multi != nil {
				multiSignatureMin = multi.Min
			}
			_, err := stmt.ExecContext(ctx,
				account.Address[:],
				account.Info.Balance.String(),
				account.Info.Nonce,
				account.Info.CodeHash[:],
				secondPublicKey,
				multiSignatureMin,
			)
			if err != nil {
				return fmt.Errorf("failed to add account %v; %w", account.Address, err)
			}
		}
		return nil
	})
}

func (e *Export) AddReceipts(ctx context.Context, height uint64, receipts []common.ReceiptEntry) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		stmt := tx.StmtContext(ctx, e.addReceiptStmt)
		for _, entry := range receipts {
			var contract any
			if address := entry.Receipt.ContractAddress; address != nil {
				contract = address[:]
			}
			_, err := stmt.ExecContext(ctx,
				height,
				entry.TxHash[:],
				entry.Receipt.Success,
				entry.Receipt.GasUsed,
				entry.Receipt.GasRefunded,
				contract,
				len(entry.Receipt.Logs),
			)
			if err != nil {
				return fmt.Errorf("failed to add receipt %v; %w", entry.TxHash, err)
			}
		}
		return nil
	})
}

func (e *Export) AddLegacyColdWallets(ctx context.Context, wallets []common.LegacyColdWallet) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		stmt := tx.StmtContext(ctx, e.addWalletStmt)
		for _, wallet := range wallets {
			var mergedInto, mergeTx any
			if merge := wallet.MergeInfo; merge != nil {
				mergedInto = merge.Address[:]
				mergeTx = merge.TransactionHash[:]
			}
			_, err := stmt.ExecContext(ctx,
				wallet.Address.String(),
				wallet.Balance.String(),
				mergedInto,
				mergeTx,
			)
			if err != nil {
				return fmt.Errorf("failed to add legacy wallet %v; %w", wallet.Address, err)
			}
		}
		return nil
	})
}

// Account reads back the balance, nonce and code hash of an exported account.
// The balance is kept in its decimal form.
func (e *Export) Account(address common.Address) (balance string, nonce uint64, codeHash common.Hash, found bool, err error) {
	var hash []byte
	err = e.getAccountStmt.QueryRow(address[:]).Scan(&balance, &nonce, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, common.Hash{}, false, nil
	}
	if err != nil {
		return "", 0, common.Hash{}, false, err
	}
	copy(codeHash[:], hash)
	return balance, nonce, codeHash, true, nil
}

// Count returns the number of rows of one of the exported tables.
func (e *Export) Count(table string) (uint64, error) {
	switch table {
	case AccountTable, ReceiptTable, LegacyWalletTable:
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var count uint64
	if err := e.db.QueryRow(kCountStmt + table).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
