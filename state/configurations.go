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

	"github.com/c2h5oh/datasize"
	"github.com/sebastijankuzner/mainsail-custom/backend/kvdb"
	"github.com/sebastijankuzner/mainsail-custom/common"
)

// HistoryFallback defines how historical lookups treat accounts missing from
// the retained history.
type HistoryFallback byte

const (
	// FallbackNone reports accounts not found in the history as missing.
	FallbackNone HistoryFallback = iota
	// FallbackLive answers misses from the live account table.
	FallbackLive
)

func (f HistoryFallback) String() string {
	switch f {
	case FallbackNone:
		return "none"
	case FallbackLive:
		return "live"
	}
	return fmt.Sprintf("fallback(%d)", byte(f))
}

// ParseHistoryFallback converts the textual form of a fallback policy.
func ParseHistoryFallback(s string) (HistoryFallback, error) {
	switch s {
	case "", "none":
		return FallbackNone, nil
	case "live":
		return FallbackLive, nil
	}
	return 0, fmt.Errorf("%w: unknown history fallback %q", UnsupportedConfiguration, s)
}

// Parameters struct defining configuration parameters for state instances.
type Parameters struct {
	Directory string
	// MapSize is the initial upper bound of the memory map, grown on demand.
	MapSize datasize.ByteSize
	// HistorySize is the number of heights retained for historical account
	// queries; 0 disables the history.
	HistorySize     uint64
	HistoryFallback HistoryFallback
	// CodeCacheSize is the number of contracts kept in memory.
	CodeCacheSize int
}

// DefaultCodeCacheSize is used for a zero CodeCacheSize.
const DefaultCodeCacheSize = 1024

// UnsupportedConfiguration is the error returned if unsupported configuration
// parameters have been specified. The text may contain further details regarding the
// unsupported feature.
const UnsupportedConfiguration = common.ConstError("unsupported configuration")

func (p Parameters) withDefaults() Parameters {
	if p.MapSize == 0 {
		p.MapSize = kvdb.DefaultOptions.MapSize
	}
	if p.CodeCacheSize == 0 {
		p.CodeCacheSize = DefaultCodeCacheSize
	}
	return p
}

func (p Parameters) validate() error {
	if p.Directory == "" {
		return fmt.Errorf("%w: no directory", UnsupportedConfiguration)
	}
	if p.CodeCacheSize < 0 {
		return fmt.Errorf("%w: negative code cache size %d", UnsupportedConfiguration, p.CodeCacheSize)
	}
	if p.HistoryFallback > FallbackLive {
		return fmt.Errorf("%w: history fallback %v", UnsupportedConfiguration, p.HistoryFallback)
	}
	return nil
}

func (p Parameters) String() string {
	return fmt.Sprintf("dir=%s map=%v history=%d fallback=%v codes=%d", p.Directory, p.MapSize.HR(), p.HistorySize, p.HistoryFallback, p.CodeCacheSize)
}
