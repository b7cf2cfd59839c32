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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadSeedsDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{ConfigDir: dir}

	tools, prompts, server, err := Load(paths)
	require.NoError(t, err)
	assert.NotEmpty(t, tools)
	assert.NotEmpty(t, prompts)
	assert.Equal(t, "odoo-mcp-server", server.ServerName)

	assert.FileExists(t, filepath.Join(dir, "tools.json"))
	assert.FileExists(t, filepath.Join(dir, "prompts.json"))
	assert.FileExists(t, filepath.Join(dir, "server.json"))
}

func TestValidateToolsRejectsDuplicateNames(t *testing.T) {
	tools := []ToolDefinition{
		{Name: "a", Op: OpSpec{Type: OpSearch}},
		{Name: "a", Op: OpSpec{Type: OpRead}},
	}
	err := ValidateTools(tools)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestValidateToolsRejectsUnknownOpType(t *testing.T) {
	tools := []ToolDefinition{{Name: "a", Op: OpSpec{Type: "bogus"}}}
	err := ValidateTools(tools)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown op.type")
}

func TestValidateToolsRejectsForbiddenSchemaConstructs(t *testing.T) {
	tools := []ToolDefinition{{
		Name: "odoo_bad",
		Op:   OpSpec{Type: OpSearch},
		InputSchema: map[string]any{
			"anyOf": []any{map[string]any{"type": "string"}},
		},
	}}
	err := ValidateTools(tools)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odoo_bad")
	assert.Contains(t, err.Error(), "anyOf")
}

func TestValidateToolsRejectsArrayTypedType(t *testing.T) {
	tools := []ToolDefinition{{
		Name: "odoo_bad",
		Op:   OpSpec{Type: OpSearch},
		InputSchema: map[string]any{
			"properties": map[string]any{
				"x": map[string]any{"type": []any{"string", "integer"}},
			},
		},
	}}
	err := ValidateTools(tools)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array-typed")
}

func TestValidateToolsRejectsMalformedPointer(t *testing.T) {
	tools := []ToolDefinition{{
		Name: "a",
		Op:   OpSpec{Type: OpSearch, Map: map[string]string{"instance": "instance"}},
	}}
	err := ValidateTools(tools)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid RFC-6901 pointer")
}

func TestGuardsSatisfied(t *testing.T) {
	env := map[string]string{"ODOO_ENABLE_WRITE_TOOLS": "true", "SOME_VAR": "x"}
	lookup := func(k string) string { return env[k] }

	g := &Guards{RequiresEnvTrue: "ODOO_ENABLE_WRITE_TOOLS"}
	assert.True(t, g.Satisfied(lookup))

	g = &Guards{RequiresEnvTrue: "ODOO_ENABLE_CLEANUP_TOOLS"}
	assert.False(t, g.Satisfied(lookup))

	g = &Guards{RequiresEnv: "SOME_VAR"}
	assert.True(t, g.Satisfied(lookup))

	g = &Guards{RequiresEnv: "MISSING"}
	assert.False(t, g.Satisfied(lookup))

	assert.True(t, (*Guards)(nil).Satisfied(lookup))
}

func TestSnapshotVisibleToolsFiltersByGuard(t *testing.T) {
	snap := &Snapshot{
		Tools: []ToolDefinition{
			{Name: "open", Op: OpSpec{Type: OpSearch}},
			{Name: "guarded", Op: OpSpec{Type: OpCreate}, Guards: &Guards{RequiresEnvTrue: "ODOO_ENABLE_WRITE_TOOLS"}},
		},
	}
	lookup := func(string) string { return "" }
	visible := snap.VisibleToolsEnv(lookup)
	require.Len(t, visible, 1)
	assert.Equal(t, "open", visible[0].Name)

	_, ok := snap.FindVisibleTool("guarded", lookup)
	assert.False(t, ok)

	lookup = func(k string) string {
		if k == "ODOO_ENABLE_WRITE_TOOLS" {
			return "true"
		}
		return ""
	}
	_, ok = snap.FindVisibleTool("guarded", lookup)
	assert.True(t, ok)
}

func TestStoreReloadAtomicSwap(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tools.json"), `{"tools":[{"name":"a","op":{"type":"search","map":{}}}]}`)
	writeFile(t, filepath.Join(dir, "prompts.json"), `{"prompts":[]}`)
	writeFile(t, filepath.Join(dir, "server.json"), `{"serverName":"s1"}`)

	store, err := NewStore(Paths{ConfigDir: dir})
	require.NoError(t, err)
	first := store.Current()
	assert.Equal(t, int64(1), first.Version)

	writeFile(t, filepath.Join(dir, "server.json"), `{"serverName":"s2"}`)
	require.NoError(t, store.Reload())
	second := store.Current()
	assert.Equal(t, int64(2), second.Version)
	assert.Equal(t, "s2", second.Server.ServerName)
	assert.Equal(t, "s1", first.Server.ServerName) // previously taken reference is unaffected
}

func TestStoreReloadKeepsPreviousSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tools.json"), `{"tools":[{"name":"a","op":{"type":"search","map":{}}}]}`)
	writeFile(t, filepath.Join(dir, "prompts.json"), `{"prompts":[]}`)
	writeFile(t, filepath.Join(dir, "server.json"), `{"serverName":"s1"}`)

	store, err := NewStore(Paths{ConfigDir: dir})
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "tools.json"), `{"tools":[{"name":"a","op":{"type":"search","map":{}}},{"name":"a","op":{"type":"read","map":{}}}]}`)
	err = store.Reload()
	require.Error(t, err)

	assert.Equal(t, "s1", store.Current().Server.ServerName)
	assert.Equal(t, int64(1), store.Current().Version)
}
