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

// Package dispatcher routes a resolved tools/call invocation to one of
// the ~22 operation handlers, per spec.md §4.F. Each handler obtains its
// Odoo client via the pool, invokes the appropriate primitive(s), and
// returns a handler-specific result shape marshaled as compact JSON.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/conductor/internal/jsonpointer"
	"github.com/tombee/conductor/internal/metadatacache"
	"github.com/tombee/conductor/internal/odooclient"
	"github.com/tombee/conductor/internal/registry"
	"github.com/tombee/conductor/pkg/mcperrors"
)

// EnvLookup abstracts environment-variable lookup so guard checks and
// tests can run against a deterministic map instead of the process env.
type EnvLookup func(string) string

// ClientPool is the subset of *clientpool.Pool the dispatcher depends
// on, narrowed to an interface so tests can substitute a stub Odoo
// client without constructing real HTTP transports.
type ClientPool interface {
	Get(instance string) (odooclient.Client, error)
}

// Dispatcher implements call_tool(name, args) against the current
// registry snapshot, the client pool, and the metadata cache.
type Dispatcher struct {
	registry *registry.Store
	pool     ClientPool
	cache    *metadatacache.Cache
	log      *slog.Logger
	env      EnvLookup
}

// New creates a Dispatcher wired to the process singletons.
func New(reg *registry.Store, pool ClientPool, cache *metadatacache.Cache, log *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, pool: pool, cache: cache, log: log, env: os.Getenv}
}

// WithEnvLookup overrides the environment lookup function, for tests.
func (d *Dispatcher) WithEnvLookup(lookup EnvLookup) *Dispatcher {
	d.env = lookup
	return d
}

// CallTool resolves name against the current snapshot, extracts its
// arguments by JSON pointer, routes to the handler for its op.type, and
// returns the handler's result encoded as compact JSON text — the sole
// MCP content block for a tools/call response.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	start := time.Now()
	snapshot := d.registry.Current()

	tool, ok := snapshot.FindVisibleTool(name, d.env)
	if !ok {
		dispatchTotal.WithLabelValues(name, "tool_not_found").Inc()
		return "", mcperrors.ToolNotFound(name)
	}

	values, err := d.extract(tool, args)
	if err != nil {
		dispatchTotal.WithLabelValues(name, "invalid_arguments").Inc()
		return "", err
	}

	result, err := d.route(ctx, tool.Op.Type, values)
	dispatchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		dispatchTotal.WithLabelValues(name, "error").Inc()
		return "", err
	}
	dispatchTotal.WithLabelValues(name, "ok").Inc()

	encoded, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return "", mcperrors.InternalError("encoding result", marshalErr)
	}
	return string(encoded), nil
}

// extract evaluates every JSON pointer in tool.Op.Map against args.
func (d *Dispatcher) extract(tool registry.ToolDefinition, args map[string]any) (extracted, error) {
	out := make(extracted, len(tool.Op.Map))
	for name, pointer := range tool.Op.Map {
		v, ok, err := jsonpointer.Eval(args, pointer)
		if err != nil {
			return nil, mcperrors.InvalidArguments(fmt.Sprintf("argument %q: %v", name, err))
		}
		if ok {
			out[name] = v
		}
	}
	return out, nil
}

// route dispatches to the handler for opType. The set of handlers is
// closed — opType was already validated against the known set when the
// registry loaded tools.json, so an unmatched case here is internal.
func (d *Dispatcher) route(ctx context.Context, opType registry.OperationType, e extracted) (any, error) {
	switch opType {
	case registry.OpSearch:
		return d.handleSearch(ctx, e)
	case registry.OpSearchRead:
		return d.handleSearchRead(ctx, e)
	case registry.OpRead:
		return d.handleRead(ctx, e)
	case registry.OpCreate:
		return d.handleCreate(ctx, e)
	case registry.OpWrite:
		return d.handleWrite(ctx, e)
	case registry.OpUnlink:
		return d.handleUnlink(ctx, e)
	case registry.OpSearchCount:
		return d.handleSearchCount(ctx, e)
	case registry.OpExecute:
		return d.handleExecute(ctx, e)
	case registry.OpWorkflowAction:
		return d.handleWorkflowAction(ctx, e)
	case registry.OpGenerateReport:
		return d.handleGenerateReport(ctx, e)
	case registry.OpGetModelMetadata:
		return d.handleGetModelMetadata(ctx, e)
	case registry.OpListModels:
		return d.handleListModels(ctx, e)
	case registry.OpCheckAccess:
		return d.handleCheckAccess(ctx, e)
	case registry.OpCreateBatch:
		return d.handleCreateBatch(ctx, e)
	case registry.OpReadGroup:
		return d.handleReadGroup(ctx, e)
	case registry.OpNameSearch:
		return d.handleNameSearch(ctx, e)
	case registry.OpNameGet:
		return d.handleNameGet(ctx, e)
	case registry.OpDefaultGet:
		return d.handleDefaultGet(ctx, e)
	case registry.OpCopy:
		return d.handleCopy(ctx, e)
	case registry.OpOnchange:
		return d.handleOnchange(ctx, e)
	case registry.OpDatabaseCleanup:
		return d.handleDatabaseCleanup(ctx, e)
	case registry.OpDeepCleanup:
		return d.handleDeepCleanup(ctx, e)
	default:
		return nil, mcperrors.InternalError(fmt.Sprintf("no handler registered for op.type %q", opType), nil)
	}
}

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odoo_mcp",
		Subsystem: "dispatcher",
		Name:      "calls_total",
		Help:      "Tool calls by tool name and outcome.",
	}, []string{"tool", "outcome"})
	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "odoo_mcp",
		Subsystem: "dispatcher",
		Name:      "call_seconds",
		Help:      "Tool call latency by tool name.",
	}, []string{"tool"})
)
