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

import "github.com/prometheus/client_golang/prometheus"

var metrics = struct {
	mapSize    prometheus.Gauge
	resizes    prometheus.Counter
	commits    prometheus.Counter
	commitTime prometheus.Histogram
	updateTime prometheus.Histogram
}{
	mapSize: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "evm",
		Subsystem: "kvdb",
		Name:      "map_size_bytes",
		Help:      "Upper bound of the memory map.",
	}),
	resizes: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "evm",
		Subsystem: "kvdb",
		Name:      "resizes_total",
		Help:      "Number of times the memory map was grown.",
	}),
	commits: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "evm",
		Subsystem: "kvdb",
		Name:      "commits_total",
		Help:      "Number of committed write transactions.",
	}),
	commitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evm",
		Subsystem: "kvdb",
		Name:      "commit_seconds",
		Help:      "Latency of committing write transactions as reported by MDBX.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}),
	updateTime: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evm",
		Subsystem: "kvdb",
		Name:      "update_seconds",
		Help:      "Duration of write transactions including the commit.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}),
}

// RegisterMetrics registers the collectors of this package.
func RegisterMetrics(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		metrics.mapSize,
		metrics.resizes,
		metrics.commits,
		metrics.commitTime,
		metrics.updateTime,
	} {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
