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

// Package hotreload wires internal/filewatcher's generic file-event
// primitives onto the registry and instance stores, per spec.md §4.H.
// It watches the registry's config directory plus the instances.json
// file, debounces bursts of writes (an editor save fires create+write+
// chmod in quick succession) for ~150ms, and republishes the affected
// snapshot only on successful validation.
package hotreload

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tombee/conductor/internal/filewatcher"
	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/registry"
)

const debounceWindow = 150 * time.Millisecond

// Pool is the subset of *clientpool.Pool needed to react to an instance
// descriptor change.
type Pool interface {
	Reconcile()
	Invalidate(name string)
}

// MetadataCache is the subset of *metadatacache.Cache needed to react to
// an instance descriptor change.
type MetadataCache interface {
	InvalidateInstance(name string)
}

// Watcher debounces filesystem events on the registry's config directory
// and the instances file, reloading the corresponding store on settle.
type Watcher struct {
	registryWatcher  *filewatcher.Watcher
	instancesWatcher *filewatcher.Watcher
	registryDeb      *filewatcher.Debouncer
	instancesDeb     *filewatcher.Debouncer

	registryStore  *registry.Store
	instanceStore  *instanceconfig.Store
	instancesPath  string
	pool           Pool
	cache          MetadataCache
	log            *slog.Logger
}

// New creates a Watcher observing regStore's config directory and
// instancesPath, without starting it. Call Start to begin watching.
func New(regStore *registry.Store, instStore *instanceconfig.Store, instancesPath string, pool Pool, cache MetadataCache, log *slog.Logger) (*Watcher, error) {
	paths := regStore.Paths()
	regDir := filepath.Dir(paths.ToolsPath)

	regFSW, err := filewatcher.NewWatcher(regDir, nil)
	if err != nil {
		return nil, err
	}

	instDir := filepath.Dir(instancesPath)
	instFSW, err := filewatcher.NewWatcher(instDir, nil)
	if err != nil {
		regFSW.Stop()
		return nil, err
	}

	w := &Watcher{
		registryWatcher:  regFSW,
		instancesWatcher: instFSW,
		registryStore:    regStore,
		instanceStore:    instStore,
		instancesPath:    instancesPath,
		pool:             pool,
		cache:            cache,
		log:              log,
	}

	w.registryDeb = filewatcher.NewDebouncer(debounceWindow, true, w.onRegistryEvents)
	w.instancesDeb = filewatcher.NewDebouncer(debounceWindow, true, w.onInstancesEvents)
	return w, nil
}

// Start launches the two watch loops. It returns immediately; reloads
// happen on background goroutines as events settle.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.registryWatcher.Start(ctx); err != nil {
		return err
	}
	if err := w.instancesWatcher.Start(ctx); err != nil {
		return err
	}
	go w.pump(w.registryWatcher.Events(), w.registryDeb)
	go w.pump(w.instancesWatcher.Events(), w.instancesDeb)
	return nil
}

// Stop halts both watch loops.
func (w *Watcher) Stop() {
	w.registryWatcher.Stop()
	w.instancesWatcher.Stop()
	w.registryDeb.Stop()
	w.instancesDeb.Stop()
}

func (w *Watcher) pump(events <-chan *filewatcher.Context, deb *filewatcher.Debouncer) {
	for evt := range events {
		deb.Add(evt)
	}
}

// onRegistryEvents fires after a debounce window of quiet on the config
// directory. It reloads the registry; a validation failure leaves the
// previous snapshot in place and is logged, per spec.md §4.H.
func (w *Watcher) onRegistryEvents(events []*filewatcher.Context) {
	if err := w.registryStore.Reload(); err != nil {
		w.log.Error("registry hot-reload failed, keeping previous snapshot", "error", err)
		return
	}
	w.log.Info("registry hot-reload applied", "events", len(events))
}

// onInstancesEvents fires after a debounce window of quiet on the
// instances file. A successful reload reconciles the client pool and
// invalidates the metadata cache for every affected instance.
func (w *Watcher) onInstancesEvents(events []*filewatcher.Context) {
	before := w.instanceStore.All()

	raw, err := instanceconfig.LoadFromFile(w.instancesPath)
	if err != nil {
		w.log.Error("instances hot-reload failed to read file, keeping previous mapping", "error", err)
		return
	}
	if err := w.instanceStore.Replace(raw); err != nil {
		w.log.Error("instances hot-reload failed validation, keeping previous mapping", "error", err)
		return
	}

	after := w.instanceStore.All()
	changed, removed := instanceconfig.DiffChanged(before, after)
	for _, name := range removed {
		w.pool.Invalidate(name)
		w.cache.InvalidateInstance(name)
	}
	for _, name := range changed {
		w.pool.Invalidate(name)
		w.cache.InvalidateInstance(name)
	}
	w.pool.Reconcile()
	w.log.Info("instances hot-reload applied", "events", len(events), "instance_count", len(after))
}
