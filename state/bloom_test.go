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
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

func logsOf(topics ...string) []*types.Log {
	res := make([]*types.Log, 0, len(topics))
	for _, topic := range topics {
		res = append(res, &types.Log{Topics: []common.Hash{gethcommon.HexToHash(topic)}})
	}
	return res
}

func TestLogsBloom_EmptyCommitHasEmptyBloom(t *testing.T) {
	if got := LogsBloom(NewPendingCommit(common.CommitKey{})); got != (types.Bloom{}) {
		t.Errorf("unexpected bloom %x", got)
	}
}

func TestLogsBloom_KnownVectors(t *testing.T) {
	tests := map[string]struct {
		topics []string
		bloom  string
	}{
		"single log": {
			topics: []string{"02c69be41d0b7e40352fc85be1cd65eb03d40ef8427a0ca4596b1ead9a00e9fc"},
			bloom:  "00000000000000000080000000000000000000000000000000000000000000000000000000000000000000000000000200000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000002020000000000000000000000000000000000000000000000000000001000000000000000000000000000000100000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000",
		},
		"five logs": {
			topics: []string{
				"aacbdb204397aa18116c7df276b4d889c1232392d9538b0472f7d6e966b93bdd",
				"c98570642b1c831b23513efccbd664243a6affe545e71afc30dc0b46670ecd49",
				"263bc8782e51b510ea0d299830554278f9b864316f5e15280d54a47df679f337",
				"a153068a03c13efdab230c32ca1b60220e723aa98077279e6c6a77df9b167951",
				"ecec3851f00a82cc0ec13e3580c9ce19dbc5d58f45ec6ae252d84d1e341af8cb",
			},
			bloom: "00040000000000000080000000000100000000000000040000000000000000000000000000000000000000000000000200000000000000040000000000000000000000000000000000000000000000000000000000000100000000000000000000000000002000000000000000000000000000000000000000010000000000000000000000000000000000000000000300000000000000000000000000010000000000000400000000000000000000000000000000000000000000000000000000010000000000000000000000000000000800000000000000008000000000000000000000000000000000000000000000000000000000000001000000008000",
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			pending := NewPendingCommit(common.CommitKey{Height: 1})
			hash := txHash(1)
			result := &common.ExecutionResult{Status: common.ExecutionSuccess, Logs: logsOf(test.topics...)}
			if err := pending.Apply(nil, &hash, result, nil); err != nil {
				t.Fatalf("failed to apply: %v", err)
			}
			want := types.BytesToBloom(gethcommon.FromHex(test.bloom))
			if got := LogsBloom(pending); got != want {
				t.Errorf("unexpected bloom\n got %x\nwant %x", got, want)
			}
			// the built commit yields the same bloom
			pending.Build()
			if got := LogsBloom(pending); got != want {
				t.Errorf("unexpected bloom of built commit %x", got)
			}
		})
	}
}

func TestLogsBloom_FailedTransactionsAreIgnored(t *testing.T) {
	pending := NewPendingCommit(common.CommitKey{Height: 1})
	for i, status := range []common.ExecutionStatus{common.ExecutionRevert, common.ExecutionHalt} {
		hash := txHash(byte(i))
		result := &common.ExecutionResult{Status: status, Logs: logsOf("02c69be41d0b7e40352fc85be1cd65eb03d40ef8427a0ca4596b1ead9a00e9fc")}
		if err := pending.Apply(nil, &hash, result, nil); err != nil {
			t.Fatalf("failed to apply: %v", err)
		}
	}
	if got := LogsBloom(pending); got != (types.Bloom{}) {
		t.Errorf("unexpected bloom %x", got)
	}
}
