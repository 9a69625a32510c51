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

import "github.com/prometheus/client_golang/prometheus"

var metrics = struct {
	commitTime      prometheus.Histogram
	committedHeight prometheus.Gauge
	retries         prometheus.Counter
	accounts        prometheus.Histogram
}{
	commitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evm",
		Subsystem: "state",
		Name:      "commit_seconds",
		Help:      "Duration of persisting a commit including hashing.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}),
	committedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "evm",
		Subsystem: "state",
		Name:      "committed_height",
		Help:      "Height of the last persisted commit.",
	}),
	retries: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "evm",
		Subsystem: "state",
		Name:      "commit_retries_total",
		Help:      "Number of commits retried after growing the memory map.",
	}),
	accounts: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evm",
		Subsystem: "state",
		Name:      "commit_accounts",
		Help:      "Number of accounts changed per commit.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	}),
}

// RegisterMetrics registers the collectors of this package.
func RegisterMetrics(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		metrics.commitTime,
		metrics.committedHeight,
		metrics.retries,
		metrics.accounts,
	} {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
