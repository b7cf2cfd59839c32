// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"sync/atomic"
	"time"
)

// Store holds the single process-wide RegistrySnapshot behind an atomic
// pointer. Readers call Current() and get a consistent bundle with no
// lock held during use; writers call Reload() to publish a new one,
// per spec.md §4.E / §9's copy-on-write discipline.
type Store struct {
	snapshot atomic.Pointer[Snapshot]
	paths    Paths
	version  atomic.Int64
}

// NewStore creates a Store for the registry documents at paths and
// performs the initial load. A load failure at construction time is
// fatal to startup (there is no "previous snapshot" to fall back to).
func NewStore(paths Paths) (*Store, error) {
	s := &Store{paths: paths}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the currently published snapshot.
func (s *Store) Current() *Snapshot {
	return s.snapshot.Load()
}

// Reload loads, validates, and — only on success — atomically publishes
// a new Snapshot. On failure the previous snapshot (if any) is retained
// and the error is returned for the caller to log, per spec.md §4.H.
func (s *Store) Reload() error {
	tools, prompts, server, err := Load(s.paths)
	if err != nil {
		return err
	}
	next := &Snapshot{
		Tools:    tools,
		Prompts:  prompts,
		Server:   server,
		LoadedAt: time.Now(),
		Version:  s.version.Add(1),
	}
	s.snapshot.Store(next)
	return nil
}

// Paths returns the resolved document paths this store was constructed with.
func (s *Store) Paths() Paths {
	return s.paths.Resolve()
}
