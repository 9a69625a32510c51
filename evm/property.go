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
	"fmt"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/sebastijankuzner/mainsail-custom/state"
)

// Property is an optional parameter for configuring an Evm instance.
type Property string

const (
	// HistorySize is the number of heights retained for historical account
	// queries. Zero disables the history.
	HistorySize = Property("HistorySize")
	// HistoryFallback selects how historical queries treat accounts missing
	// from the history, either "none" or "live".
	HistoryFallback = Property("HistoryFallback")
	// MapSize is the initial size of the database map, e.g. "1GB".
	MapSize = Property("MapSize")
	// CodeCacheSize is the number of contracts kept in memory.
	CodeCacheSize = Property("CodeCacheSize")
)

// Properties are optional settings which may influence the behavior of an
// Evm, but do not alter the persisted format.
type Properties map[Property]string

// GetInteger is a utility function for Properties to retrieve numeric values.
func (p *Properties) GetInteger(name Property, fallback int) (int, error) {
	if value, found := (*p)[name]; found {
		res, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid value for '%s' property: %v", name, value)
		}
		return res, nil
	}
	return fallback, nil
}

// SetInteger is a utility function for Properties to set numeric values.
func (p *Properties) SetInteger(name Property, value int) {
	p.set(name, strconv.Itoa(value))
}

// GetSize retrieves a byte size given in human readable form.
func (p *Properties) GetSize(name Property, fallback datasize.ByteSize) (datasize.ByteSize, error) {
	if value, found := (*p)[name]; found {
		res, err := datasize.ParseString(value)
		if err != nil {
			return 0, fmt.Errorf("invalid value for '%s' property: %v", name, value)
		}
		return res, nil
	}
	return fallback, nil
}

// SetSize is a utility function for Properties to set byte sizes.
func (p *Properties) SetSize(name Property, value datasize.ByteSize) {
	p.set(name, value.String())
}

func (p *Properties) set(name Property, value string) {
	if *p == nil {
		*p = map[Property]string{}
	}
	(*p)[name] = value
}

// Parameters converts the properties into the parameters of a state stored
// in the given directory.
func (p Properties) Parameters(directory string) (state.Parameters, error) {
	history, err := p.GetInteger(HistorySize, 0)
	if err != nil {
		return state.Parameters{}, err
	}
	if history < 0 {
		return state.Parameters{}, fmt.Errorf("invalid value for '%s' property: %d", HistorySize, history)
	}
	fallback, err := state.ParseHistoryFallback(p[HistoryFallback])
	if err != nil {
		return state.Parameters{}, err
	}
	mapSize, err := p.GetSize(MapSize, 0)
	if err != nil {
		return state.Parameters{}, err
	}
	codes, err := p.GetInteger(CodeCacheSize, 0)
	if err != nil {
		return state.Parameters{}, err
	}
	return state.Parameters{
		Directory:       directory,
		MapSize:         mapSize,
		HistorySize:     uint64(history),
		HistoryFallback: fallback,
		CodeCacheSize:   codes,
	}, nil
}
