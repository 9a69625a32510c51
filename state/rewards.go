// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"fmt"

	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
)

// ApplyRewards credits the given balances in the pending commit on top of
// everything applied to it before. Zero amounts leave no trace.
func ApplyRewards(backing StateReader, pending *PendingCommit, rewards map[common.Address]amount.Amount) error {
	pending.mustBeMutable()
	transitions, err := pending.Overlay(backing).IncrementBalances(rewards)
	if err != nil {
		return fmt.Errorf("failed to apply rewards: %w", err)
	}
	pending.addTransitions(transitions)
	return nil
}

// MergeLegacyColdWallet makes the balance of an unmerged legacy cold wallet
// available to the given caller. The lookup is performed once per caller and
// commit; the merge is recorded and persisted with the commit.
func MergeLegacyColdWallet(db *PersistentDB, pending *PendingCommit, caller common.Address, legacy common.LegacyAddress, txHash common.Hash) error {
	if _, checked := pending.LegacyMerge(caller); checked {
		return nil
	}
	balance, wallet, err := UnmergedLegacyBalance(db, legacy)
	if err != nil {
		return err
	}
	if wallet == nil {
		pending.setLegacyMerge(caller, nil)
		return nil
	}
	if err := ApplyRewards(db, pending, map[common.Address]amount.Amount{caller: balance}); err != nil {
		return fmt.Errorf("failed to apply legacy balance: %w", err)
	}
	pending.setLegacyMerge(caller, &common.LegacyMerge{TransactionHash: txHash, LegacyAddress: legacy})
	db.log.Debug("Merged legacy cold wallet", "caller", caller, "legacy", legacy, "balance", balance)
	return nil
}

// UnmergedLegacyBalance returns the balance of the given cold wallet if it
// exists and has not been merged yet.
func UnmergedLegacyBalance(db *PersistentDB, legacy common.LegacyAddress) (amount.Amount, *common.LegacyColdWallet, error) {
	wallet, err := db.LegacyColdWallet(legacy)
	if err != nil {
		return amount.Amount{}, nil, fmt.Errorf("failed reading legacy cold wallet: %w", err)
	}
	if wallet == nil || wallet.IsMerged() {
		return amount.Amount{}, nil, nil
	}
	return wallet.Balance, wallet, nil
}
