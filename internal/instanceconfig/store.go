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

package instanceconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
)

// Store holds the current instance-name -> Descriptor mapping behind an
// atomic pointer, so concurrent readers never see a half-updated map.
type Store struct {
	mapping atomic.Pointer[map[string]*Descriptor]
	path    string
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	empty := map[string]*Descriptor{}
	s.mapping.Store(&empty)
	return s
}

// Get returns the descriptor for name, or nil if unknown.
func (s *Store) Get(name string) *Descriptor {
	m := *s.mapping.Load()
	return m[name]
}

// List returns all known instance names, sorted.
func (s *Store) List() []string {
	m := *s.mapping.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a snapshot copy of the full mapping.
func (s *Store) All() map[string]*Descriptor {
	m := *s.mapping.Load()
	out := make(map[string]*Descriptor, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Replace atomically swaps in a new mapping, validating and normalizing
// every descriptor first. On validation failure the prior mapping is
// retained and an error is returned.
func (s *Store) Replace(raw map[string]*Descriptor) error {
	next := make(map[string]*Descriptor, len(raw))
	for name, d := range raw {
		d.Name = name
		if err := d.Normalize(); err != nil {
			return err
		}
		next[name] = d
	}
	s.mapping.Store(&next)
	return nil
}

// LoadFromJSON parses an instances.json document (object of name -> Descriptor).
func LoadFromJSON(data []byte) (map[string]*Descriptor, error) {
	var raw map[string]*Descriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing instances document: %w", err)
	}
	return raw, nil
}

// LoadFromFile reads and parses an instances.json file from disk.
func LoadFromFile(path string) (map[string]*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instances file %s: %w", path, err)
	}
	return LoadFromJSON(data)
}

// DiffChanged compares two instance mappings (typically Store.All()
// snapshots taken before and after a Replace) and reports which names
// are new-or-modified and which were removed, for callers that need to
// invalidate a client pool / metadata cache per spec.md §4.C/§4.D.
func DiffChanged(before, after map[string]*Descriptor) (changed, removed []string) {
	for name := range before {
		if _, ok := after[name]; !ok {
			removed = append(removed, name)
		}
	}
	for name, d := range after {
		if prev, ok := before[name]; !ok || *prev != *d {
			changed = append(changed, name)
		}
	}
	return changed, removed
}

// SingleFromScalars synthesizes a one-instance mapping from scalar
// environment-style values, per spec.md §4.A option (3).
func SingleFromScalars(name, url, db, apiKey, username, password, version string) (map[string]*Descriptor, error) {
	if url == "" {
		return nil, fmt.Errorf("ODOO_URL is required to synthesize a single-instance config")
	}
	d := &Descriptor{
		Name:     name,
		BaseURL:  url,
		Database: db,
		APIKey:   apiKey,
		Username: username,
		Password: password,
		Version:  version,
	}
	return map[string]*Descriptor{name: d}, nil
}
