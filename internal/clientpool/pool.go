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

// Package clientpool lazily constructs and shares one Odoo client per
// instance name, per spec.md §4.C.
package clientpool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/odooclient"
	"github.com/tombee/conductor/pkg/observability"
)

// entry serializes construction for one instance name: Get holds its
// mutex while checking and, on first use, building the handle.
type entry struct {
	mu     sync.Mutex
	client odooclient.Client
	built  bool
}

// Pool is the concurrent name -> ClientHandle map. Different instance
// names construct in parallel; the same name is constructed once.
type Pool struct {
	store  *instanceconfig.Store
	log    *slog.Logger
	tracer observability.Tracer

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a Pool backed by store for descriptor lookups. Every client
// built by the pool is instrumented with tracer, which may be a no-op
// tracer when tracing is disabled.
func New(store *instanceconfig.Store, log *slog.Logger, tracer observability.Tracer) *Pool {
	return &Pool{
		store:   store,
		log:     log,
		tracer:  tracer,
		entries: make(map[string]*entry),
	}
}

// Get returns the shared client for name, constructing it on first use.
func (p *Pool) Get(name string) (odooclient.Client, error) {
	descriptor := p.store.Get(name)
	if descriptor == nil {
		return nil, fmt.Errorf("unknown instance %q", name)
	}

	p.mu.Lock()
	e, ok := p.entries[name]
	if !ok {
		e = &entry{}
		p.entries[name] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.built {
		return e.client, nil
	}

	start := time.Now()
	client, err := odooclient.New(descriptor, p.log, p.tracer)
	constructionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	e.client = client
	e.built = true
	poolSize.Inc()
	return client, nil
}

// Invalidate drops the entry for name, closing its client if any. The
// next Get(name) builds a fresh handle from the current descriptor,
// per spec.md §4.C's descriptor-change semantics.
func (p *Pool) Invalidate(name string) {
	p.mu.Lock()
	e, ok := p.entries[name]
	delete(p.entries, name)
	p.mu.Unlock()

	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.built && e.client != nil {
		e.client.Close()
		poolSize.Dec()
	}
}

// Reconcile invalidates every entry whose name is no longer present in
// the current instance store, and every entry whose descriptor has
// changed since construction is left for the caller to invalidate
// explicitly (the store only exposes the latest descriptor, not a diff).
func (p *Pool) Reconcile() {
	known := map[string]bool{}
	for _, name := range p.store.List() {
		known[name] = true
	}

	p.mu.RLock()
	stale := make([]string, 0)
	for name := range p.entries {
		if !known[name] {
			stale = append(stale, name)
		}
	}
	p.mu.RUnlock()

	for _, name := range stale {
		p.Invalidate(name)
	}
}

var (
	poolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "odoo_mcp",
		Subsystem: "clientpool",
		Name:      "size",
		Help:      "Number of live Odoo client handles held by the pool.",
	})
	constructionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "odoo_mcp",
		Subsystem: "clientpool",
		Name:      "construction_seconds",
		Help:      "Time to construct a client handle for an instance.",
	}, []string{"instance"})
)
