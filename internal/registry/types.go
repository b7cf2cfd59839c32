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

// Package registry loads, validates, and serves the hot-reloadable
// declarative bundle of tools.json, prompts.json, and server.json, per
// spec.md §4.E.
package registry

import (
	"os"
	"strings"
	"time"
)

// OperationType is one of the closed set of ~22 discriminators the
// Dispatcher understands. Unknown values are rejected at load time.
type OperationType string

const (
	OpSearch           OperationType = "search"
	OpSearchRead       OperationType = "search_read"
	OpRead             OperationType = "read"
	OpCreate           OperationType = "create"
	OpWrite            OperationType = "write"
	OpUnlink           OperationType = "unlink"
	OpSearchCount      OperationType = "search_count"
	OpExecute          OperationType = "execute"
	OpWorkflowAction   OperationType = "workflow_action"
	OpGenerateReport   OperationType = "generate_report"
	OpGetModelMetadata OperationType = "get_model_metadata"
	OpListModels       OperationType = "list_models"
	OpCheckAccess      OperationType = "check_access"
	OpCreateBatch      OperationType = "create_batch"
	OpReadGroup        OperationType = "read_group"
	OpNameSearch       OperationType = "name_search"
	OpNameGet          OperationType = "name_get"
	OpDefaultGet       OperationType = "default_get"
	OpCopy             OperationType = "copy"
	OpOnchange         OperationType = "onchange"
	OpDatabaseCleanup  OperationType = "database_cleanup"
	OpDeepCleanup      OperationType = "deep_cleanup"
)

// knownOperationTypes is the closed set validated against at load time.
var knownOperationTypes = map[OperationType]bool{
	OpSearch: true, OpSearchRead: true, OpRead: true, OpCreate: true,
	OpWrite: true, OpUnlink: true, OpSearchCount: true, OpExecute: true,
	OpWorkflowAction: true, OpGenerateReport: true, OpGetModelMetadata: true,
	OpListModels: true, OpCheckAccess: true, OpCreateBatch: true,
	OpReadGroup: true, OpNameSearch: true, OpNameGet: true, OpDefaultGet: true,
	OpCopy: true, OpOnchange: true, OpDatabaseCleanup: true, OpDeepCleanup: true,
}

// OpSpec selects a dispatcher handler and maps its argument names to
// JSON pointers into the incoming tools/call arguments object.
type OpSpec struct {
	Type OperationType     `json:"type"`
	Map  map[string]string `json:"map"`
}

// Guards is a boolean predicate over environment variables that hides a
// tool from tools/list and rejects tools/call with ToolNotFound.
type Guards struct {
	// RequiresEnv names an env var that must be non-empty.
	RequiresEnv string `json:"requiresEnv,omitempty"`
	// RequiresEnvTrue names an env var that must equal "true" (case-insensitive).
	RequiresEnvTrue string `json:"requiresEnvTrue,omitempty"`
}

// Satisfied evaluates g against the process environment. A nil Guards
// (or a zero-value one) is always satisfied.
func (g *Guards) Satisfied(lookup func(string) string) bool {
	if g == nil {
		return true
	}
	if g.RequiresEnv != "" && lookup(g.RequiresEnv) == "" {
		return false
	}
	if g.RequiresEnvTrue != "" && !strings.EqualFold(lookup(g.RequiresEnvTrue), "true") {
		return false
	}
	return true
}

// ToolDefinition is one entry of tools.json.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Op          OpSpec         `json:"op"`
	Guards      *Guards        `json:"guards,omitempty"`
}

// PromptDefinition is one entry of prompts.json.
type PromptDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// ServerMetadata is the contents of server.json.
type ServerMetadata struct {
	ServerName             string `json:"serverName,omitempty"`
	Instructions           string `json:"instructions,omitempty"`
	ProtocolVersionDefault string `json:"protocolVersionDefault,omitempty"`
}

// Snapshot is an immutable bundle of the registry's three documents,
// swapped atomically on reload per spec.md §4.E / §9.
type Snapshot struct {
	Tools    []ToolDefinition
	Prompts  []PromptDefinition
	Server   ServerMetadata
	LoadedAt time.Time
	// Version is a monotonic counter used by tests to assert that no
	// reader ever observes a mixed snapshot (Testable Property 3).
	Version int64
}

// VisibleTools returns the subset of s.Tools whose guards are satisfied
// against the current environment.
func (s *Snapshot) VisibleTools() []ToolDefinition {
	return s.VisibleToolsEnv(os.Getenv)
}

// VisibleToolsEnv is VisibleTools parameterized over the env lookup, for
// deterministic testing.
func (s *Snapshot) VisibleToolsEnv(lookup func(string) string) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(s.Tools))
	for _, t := range s.Tools {
		if t.Guards.Satisfied(lookup) {
			out = append(out, t)
		}
	}
	return out
}

// FindTool returns the tool named name from the full (unfiltered) set,
// along with whether it exists at all.
func (s *Snapshot) FindTool(name string) (ToolDefinition, bool) {
	for _, t := range s.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

// FindVisibleTool returns the tool named name only if it exists and its
// guards are currently satisfied; this is the lookup tools/call uses.
func (s *Snapshot) FindVisibleTool(name string, lookup func(string) string) (ToolDefinition, bool) {
	t, ok := s.FindTool(name)
	if !ok || !t.Guards.Satisfied(lookup) {
		return ToolDefinition{}, false
	}
	return t, true
}

// FindPrompt returns the prompt named name.
func (s *Snapshot) FindPrompt(name string) (PromptDefinition, bool) {
	for _, p := range s.Prompts {
		if p.Name == name {
			return p, true
		}
	}
	return PromptDefinition{}, false
}
