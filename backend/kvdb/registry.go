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

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Registry shares environments between users opening the same directory.
// MDBX does not allow a process to open one data file twice.
type Registry struct {
	mu   sync.Mutex
	envs map[string]*shared
}

type shared struct {
	env  *Env
	refs int
}

// DefaultRegistry is the process wide registry.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{envs: map[string]*shared{}}
}

// Acquire returns the environment for the given directory, opening it on
// first use. Options are only applied when the environment is opened. Each
// successful call must be matched by a Release.
func (r *Registry) Acquire(dir string, opts Options) (*Env, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, found := r.envs[path]; found {
		entry.refs++
		return entry.env, nil
	}
	env, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	r.envs[path] = &shared{env: env, refs: 1}
	return env, nil
}

// Release drops one reference to the environment and closes it when the
// last one is gone.
func (r *Registry) Release(env *Env) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, found := r.envs[env.dir]
	if !found || entry.env != env {
		return fmt.Errorf("environment %s is not registered", env.dir)
	}
	entry.refs--
	if entry.refs > 0 {
		return nil
	}
	delete(r.envs, env.dir)
	return env.Close()
}

// Len returns the number of open environments.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}
