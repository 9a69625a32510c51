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
	"bytes"
	"fmt"

	"github.com/sebastijankuzner/mainsail-custom/common"
	"github.com/sebastijankuzner/mainsail-custom/common/amount"
	"golang.org/x/exp/slices"
)

// PendingCommit accumulates the effects of all transactions of one commit key
// until they are persisted. Once built into a StateCommit the pending commit
// is frozen and any further modification panics.
type PendingCommit struct {
	key         common.CommitKey
	cache       *Cache
	transitions *TransitionState

	results map[common.Hash]*common.ExecutionResult
	order   []common.Hash

	legacyAttributes  map[common.Address]common.LegacyAccountAttributes
	legacyColdWallets map[common.LegacyAddress]common.LegacyColdWallet
	// mergedLegacy records the legacy lookup of every caller; a nil entry
	// marks a caller without a mergeable cold wallet.
	mergedLegacy map[common.Address]*common.LegacyMerge

	built *StateCommit
}

func NewPendingCommit(key common.CommitKey) *PendingCommit {
	return &PendingCommit{
		key:               key,
		cache:             NewCache(),
		transitions:       NewTransitionState(),
		results:           map[common.Hash]*common.ExecutionResult{},
		legacyAttributes:  map[common.Address]common.LegacyAccountAttributes{},
		legacyColdWallets: map[common.LegacyAddress]common.LegacyColdWallet{},
		mergedLegacy:      map[common.Address]*common.LegacyMerge{},
	}
}

func (p *PendingCommit) Key() common.CommitKey {
	return p.key
}

// IsBuilt is true once the commit has been reduced into a StateCommit.
func (p *PendingCommit) IsBuilt() bool {
	return p.built != nil
}

func (p *PendingCommit) mustBeMutable() {
	if p.built != nil {
		panic(fmt.Sprintf("pending commit %v is frozen", p.key))
	}
}

// Clone creates an independent deep copy of the pending commit.
func (p *PendingCommit) Clone() *PendingCommit {
	res := &PendingCommit{
		key:               p.key,
		cache:             p.cache.Clone(),
		transitions:       p.transitions.Clone(),
		results:           make(map[common.Hash]*common.ExecutionResult, len(p.results)),
		order:             slices.Clone(p.order),
		legacyAttributes:  make(map[common.Address]common.LegacyAccountAttributes, len(p.legacyAttributes)),
		legacyColdWallets: make(map[common.LegacyAddress]common.LegacyColdWallet, len(p.legacyColdWallets)),
		mergedLegacy:      make(map[common.Address]*common.LegacyMerge, len(p.mergedLegacy)),
		built:             p.built,
	}
	for hash, result := range p.results {
		res.results[hash] = cloneResult(result)
	}
	for address, attributes := range p.legacyAttributes {
		res.legacyAttributes[address] = attributes
	}
	for address, wallet := range p.legacyColdWallets {
		res.legacyColdWallets[address] = wallet
	}
	for address, merge := range p.mergedLegacy {
		if merge != nil {
			copied := *merge
			merge = &copied
		}
		res.mergedLegacy[address] = merge
	}
	return res
}

func cloneResult(r *common.ExecutionResult) *common.ExecutionResult {
	if r == nil {
		return nil
	}
	res := *r
	res.Logs = slices.Clone(r.Logs)
	res.Output = bytes.Clone(r.Output)
	return &res
}

// Overlay provides a view of the commit's state on top of the given backing
// state. Data read through the overlay is retained in the commit's cache.
func (p *PendingCommit) Overlay(backing StateReader) *Overlay {
	return NewOverlay(backing, p.cache)
}

// Apply folds the effects of a transaction into the commit. The result is
// recorded if a transaction hash is given.
func (p *PendingCommit) Apply(backing StateReader, txHash *common.Hash, result *common.ExecutionResult, delta StateDelta) error {
	p.mustBeMutable()
	transitions, err := p.Overlay(backing).Apply(delta)
	if err != nil {
		return err
	}
	p.transitions.Add(transitions)
	if txHash != nil && result != nil {
		if _, found := p.results[*txHash]; !found {
			p.order = append(p.order, *txHash)
		}
		p.results[*txHash] = result
	}
	return nil
}

func (p *PendingCommit) addTransitions(transitions *TransitionState) {
	p.mustBeMutable()
	p.transitions.Add(transitions)
}

// Result returns the recorded result of the given transaction.
func (p *PendingCommit) Result(txHash common.Hash) (*common.ExecutionResult, bool) {
	res, found := p.results[txHash]
	return res, found
}

// TransactionHashes lists the recorded transactions in execution order.
func (p *PendingCommit) TransactionHashes() []common.Hash {
	return slices.Clone(p.order)
}

// CachedAddresses returns the addresses of all accounts in the cache in
// ascending order.
func (p *PendingCommit) CachedAddresses() []common.Address {
	res := make([]common.Address, 0, len(p.cache.Accounts))
	for address := range p.cache.Accounts {
		res = append(res, address)
	}
	slices.SortFunc(res, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return res
}

// Nonce returns the nonce of an account as seen by this commit.
func (p *PendingCommit) Nonce(backing StateReader, address common.Address) (uint64, error) {
	info, err := p.Overlay(backing).AccountInfo(address)
	if err != nil || info == nil {
		return 0, err
	}
	return info.Nonce, nil
}

// LegacyMerge reports the legacy lookup recorded for the given caller.
func (p *PendingCommit) LegacyMerge(caller common.Address) (merge *common.LegacyMerge, checked bool) {
	merge, checked = p.mergedLegacy[caller]
	return merge, checked
}

func (p *PendingCommit) setLegacyMerge(caller common.Address, merge *common.LegacyMerge) {
	p.mustBeMutable()
	p.mergedLegacy[caller] = merge
}

// ImportAccount adds a bootstrap account. The balance is credited on top of
// an empty state, the nonce is taken as is and the code is always empty.
func (p *PendingCommit) ImportAccount(address common.Address, info common.AccountInfo, attributes *common.LegacyAccountAttributes) error {
	p.mustBeMutable()
	if _, found := p.cache.Accounts[address]; found {
		panic(fmt.Sprintf("account %v imported twice", address))
	}
	overlay := p.Overlay(emptyState{})
	transitions, err := overlay.IncrementBalances(map[common.Address]amount.Amount{address: info.Balance})
	if err != nil {
		return err
	}
	p.transitions.Add(transitions)

	if info.Nonce != 0 {
		current, err := overlay.AccountInfo(address)
		if err != nil {
			return err
		}
		if current == nil {
			empty := common.EmptyAccountInfo()
			current = &empty
		}
		current.Nonce = info.Nonce
		transitions, err := overlay.Apply(StateDelta{address: {Info: current}})
		if err != nil {
			return err
		}
		p.transitions.Add(transitions)
	}
	if attributes != nil && !attributes.IsEmpty() {
		p.legacyAttributes[address] = *attributes
	}
	return nil
}

// ImportLegacyColdWallet adds a bootstrap cold wallet.
func (p *PendingCommit) ImportLegacyColdWallet(wallet common.LegacyColdWallet) {
	p.mustBeMutable()
	if _, found := p.legacyColdWallets[wallet.Address]; found {
		panic(fmt.Sprintf("legacy cold wallet %v imported twice", wallet.Address))
	}
	p.legacyColdWallets[wallet.Address] = wallet
}
