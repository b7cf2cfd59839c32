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

// Package metadatacache fronts the Odoo fields_get primitive with a
// short-TTL, (instance, model)-keyed cache, per spec.md §4.D. It also
// carries a second bucket for list_models results, keyed by instance
// only — a supplement from original_source/ (see SPEC_FULL.md §4.D).
package metadatacache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fieldsKey identifies one cached fields_get result.
type fieldsKey struct {
	instance string
	model    string
}

type entry struct {
	value     map[string]any
	expiresAt time.Time
}

type modelsEntry struct {
	value     []map[string]any
	expiresAt time.Time
}

// Cache is a concurrent TTL map with short critical sections. Duplicate
// concurrent misses are acceptable (last writer wins) per spec.md §4.D.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	fields  map[fieldsKey]entry
	models  map[string]modelsEntry
	nowFunc func() time.Time
}

// New creates a Cache with the given TTL (spec.md default is 1 hour).
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		fields:  make(map[fieldsKey]entry),
		models:  make(map[string]modelsEntry),
		nowFunc: time.Now,
	}
}

func (c *Cache) now() time.Time {
	if c.nowFunc != nil {
		return c.nowFunc()
	}
	return time.Now()
}

// GetFields returns a cached fields_get result for (instance, model), or
// ok=false on a miss or expiry.
func (c *Cache) GetFields(instance, model string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fieldsKey{instance, model}
	e, found := c.fields[key]
	if !found {
		cacheMisses.WithLabelValues("fields_get").Inc()
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.fields, key)
		cacheMisses.WithLabelValues("fields_get").Inc()
		return nil, false
	}
	cacheHits.WithLabelValues("fields_get").Inc()
	return cloneMap(e.value), true
}

// PutFields stores a fresh fields_get result.
func (c *Cache) PutFields(instance, model string, value map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[fieldsKey{instance, model}] = entry{value: cloneMap(value), expiresAt: c.now().Add(c.ttl)}
}

// GetModels returns a cached list_models result for instance.
func (c *Cache) GetModels(instance string) ([]map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.models[instance]
	if !found {
		cacheMisses.WithLabelValues("list_models").Inc()
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.models, instance)
		cacheMisses.WithLabelValues("list_models").Inc()
		return nil, false
	}
	cacheHits.WithLabelValues("list_models").Inc()
	return cloneRecords(e.value), true
}

// PutModels stores a fresh list_models result for instance.
func (c *Cache) PutModels(instance string, value []map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[instance] = modelsEntry{value: cloneRecords(value), expiresAt: c.now().Add(c.ttl)}
}

// InvalidateInstance evicts every fields_get and list_models entry for
// instance, per spec.md §4.D's "clear on descriptor change" rule.
func (c *Cache) InvalidateInstance(instance string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.fields {
		if key.instance == instance {
			delete(c.fields, key)
		}
	}
	delete(c.models, instance)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRecords(records []map[string]any) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = cloneMap(r)
	}
	return out
}

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odoo_mcp",
		Subsystem: "metadatacache",
		Name:      "hits_total",
		Help:      "Metadata cache hits by bucket (fields_get, list_models).",
	}, []string{"bucket"})
	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odoo_mcp",
		Subsystem: "metadatacache",
		Name:      "misses_total",
		Help:      "Metadata cache misses by bucket (fields_get, list_models).",
	}, []string{"bucket"})
)
