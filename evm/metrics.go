// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package evm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/state"
)

// RegisterMetrics registers the collectors of the storage and commit layers
// with the given registerer.
func RegisterMetrics(registerer prometheus.Registerer) error {
	if err := kvdb.RegisterMetrics(registerer); err != nil {
		return err
	}
	return state.RegisterMetrics(registerer)
}
