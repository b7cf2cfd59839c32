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

package dispatcher

import (
	"context"
	"strings"

	"github.com/tombee/conductor/internal/odooclient"
	"github.com/tombee/conductor/pkg/mcperrors"
)

// cleanupGuardEnv is the guard both cleanup operations require to be
// "true", independent of whatever tools.json declares on the tool
// itself — defense in depth for a destructive operation family, per
// spec.md §4.F.1.
const cleanupGuardEnv = "ODOO_ENABLE_CLEANUP_TOOLS"

// cleanupTarget names one model + domain this cleanup sweep considers
// for removal.
type cleanupTarget struct {
	model  string
	domain []any
	reason string
}

func (d *Dispatcher) requireCleanupGuard() error {
	if !strings.EqualFold(d.env(cleanupGuardEnv), "true") {
		return mcperrors.OperationDisabled("cleanup operations require " + cleanupGuardEnv + "=true")
	}
	return nil
}

// conservativeTargets is the non-destructive subset shared by
// database_cleanup: orphaned attachments and expired session tokens.
// Resolved Open Question, see DESIGN.md.
func conservativeTargets() []cleanupTarget {
	return []cleanupTarget{
		{
			model:  "ir.attachment",
			domain: []any{[]any{"res_model", "=", false}, []any{"res_id", "=", 0}},
			reason: "orphaned attachment with no owning record",
		},
		{
			model:  "ir.sessions",
			domain: []any{[]any{"expires_at", "<", "now"}},
			reason: "expired login session",
		},
	}
}

// deepTargets extends conservativeTargets with the destructive set:
// notification messages with no subtype and records whose external ID
// is in the __import__ module. Resolved Open Question, see DESIGN.md.
func deepTargets() []cleanupTarget {
	targets := conservativeTargets()
	return append(targets,
		cleanupTarget{
			model:  "mail.message",
			domain: []any{[]any{"message_type", "=", "notification"}, []any{"subtype_id", "=", false}},
			reason: "notification message with no subtype",
		},
		cleanupTarget{
			model:  "ir.model.data",
			domain: []any{[]any{"module", "=", "__import__"}},
			reason: "demo-data record under the __import__ namespace",
		},
	)
}

// runCleanup searches each target and, unless dryRun, unlinks the
// matches. Per-target failures are tolerated (a model may be absent on
// a given instance) and simply contribute zero removals.
func (d *Dispatcher) runCleanup(ctx context.Context, c odooclient.Client, targets []cleanupTarget, dryRun bool) map[string]any {
	removed := make(map[string]int, len(targets))
	for _, t := range targets {
		ids, err := c.Search(ctx, t.model, t.domain, 0, 0, "", nil)
		if err != nil {
			continue
		}
		if len(ids) == 0 {
			continue
		}
		if !dryRun {
			if _, unlinkErr := c.Unlink(ctx, t.model, ids, nil); unlinkErr != nil {
				continue
			}
		}
		removed[t.model] = len(ids)
	}
	return map[string]any{"removed": removed, "dry_run": dryRun}
}

func (d *Dispatcher) handleDatabaseCleanup(ctx context.Context, e extracted) (any, error) {
	if err := d.requireCleanupGuard(); err != nil {
		return nil, err
	}
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	dryRun := optBool(e, "dryRun", true)
	return d.runCleanup(ctx, c, conservativeTargets(), dryRun), nil
}

func (d *Dispatcher) handleDeepCleanup(ctx context.Context, e extracted) (any, error) {
	if err := d.requireCleanupGuard(); err != nil {
		return nil, err
	}
	c, _, err := d.client(e)
	if err != nil {
		return nil, err
	}
	dryRun := optBool(e, "dryRun", true)
	return d.runCleanup(ctx, c, deepTargets(), dryRun), nil
}
