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
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

// LogsBloom accumulates the logs of all successful transactions of the
// pending commit into a single bloom filter.
func LogsBloom(pending *PendingCommit) types.Bloom {
	results := pending.results
	if pending.built != nil {
		results = pending.built.Results
	}
	return bloomOf(results)
}

func bloomOf(results map[common.Hash]*common.ExecutionResult) types.Bloom {
	var bloom types.Bloom
	for _, result := range results {
		if result == nil || !result.IsSuccess() {
			continue
		}
		for _, log := range result.Logs {
			bloom.Add(log.Address.Bytes())
			for _, topic := range log.Topics {
				bloom.Add(topic.Bytes())
			}
		}
	}
	return bloom
}
