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

package mcpsession

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/registry"
	"github.com/tombee/conductor/pkg/mcperrors"
)

type stubDispatcher struct {
	result string
	err    error
	calls  []string
}

func (d *stubDispatcher) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	d.calls = append(d.calls, name)
	return d.result, d.err
}

func newTestSession(t *testing.T, toolsJSON, promptsJSON string, disp Dispatcher) *Session {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.json"), []byte(toolsJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.json"), []byte(promptsJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.json"), []byte(`{"serverName":"odoo-mcp-server"}`), 0o644))
	store, err := registry.NewStore(registry.Paths{ConfigDir: dir})
	require.NoError(t, err)

	instances := instanceconfig.New()
	require.NoError(t, instances.Replace(map[string]*instanceconfig.Descriptor{
		"default": {BaseURL: "https://example.odoo.com", APIKey: "k"},
	}))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, disp, instances, log).WithEnvLookup(func(string) string { return "" })
}

func rawRequest(t *testing.T, method string, params any, id int) []byte {
	t.Helper()
	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		rawParams = b
	}
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(itoa(id)), Method: method, Params: rawParams}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func itoa(id int) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func decodeResponse(t *testing.T, raw []byte) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHandleInitializeReturnsServerInfo(t *testing.T) {
	s := newTestSession(t, `{"tools":[]}`, `{"prompts":[]}`, &stubDispatcher{})

	raw := s.Handle(context.Background(), rawRequest(t, "initialize", map[string]any{"protocolVersion": "2024-11-05"}, 1))
	require.NotNil(t, raw)
	resp := decodeResponse(t, raw)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestHandleNotificationReturnsNoResponse(t *testing.T) {
	s := newTestSession(t, `{"tools":[]}`, `{"prompts":[]}`, &stubDispatcher{})

	req := Request{JSONRPC: "2.0", Method: "notifications/initialized"}
	b, err := json.Marshal(req)
	require.NoError(t, err)

	raw := s.Handle(context.Background(), b)
	assert.Nil(t, raw)
	assert.True(t, s.initialized.Load())
}

func TestToolsListFiltersGuardedTools(t *testing.T) {
	toolsJSON := `{"tools":[
		{"name":"odoo_search","description":"search","op":{"type":"search","map":{"instance":"/instance","model":"/model"}}},
		{"name":"odoo_create","description":"create","op":{"type":"create","map":{"instance":"/instance","model":"/model","values":"/values"}},"guards":{"requiresEnvTrue":"ODOO_ENABLE_WRITE_TOOLS"}}
	]}`
	s := newTestSession(t, toolsJSON, `{"prompts":[]}`, &stubDispatcher{})

	raw := s.Handle(context.Background(), rawRequest(t, "tools/list", nil, 1))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var decoded struct {
		Tools []map[string]any `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded.Tools, 1)
	assert.Equal(t, "odoo_search", decoded.Tools[0]["name"])
}

func TestToolsCallDelegatesToDispatcher(t *testing.T) {
	disp := &stubDispatcher{result: `{"count":3}`}
	toolsJSON := `{"tools":[{"name":"odoo_count","op":{"type":"search_count","map":{"instance":"/instance","model":"/model"}}}]}`
	s := newTestSession(t, toolsJSON, `{"prompts":[]}`, disp)

	raw := s.Handle(context.Background(), rawRequest(t, "tools/call", map[string]any{
		"name": "odoo_count", "arguments": map[string]any{"instance": "default", "model": "res.partner"},
	}, 1))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)
	assert.Equal(t, []string{"odoo_count"}, disp.calls)
}

func TestToolsCallPropagatesDispatcherError(t *testing.T) {
	disp := &stubDispatcher{err: mcperrors.ToolNotFound("odoo_ghost")}
	s := newTestSession(t, `{"tools":[]}`, `{"prompts":[]}`, disp)

	raw := s.Handle(context.Background(), rawRequest(t, "tools/call", map[string]any{
		"name": "odoo_ghost", "arguments": map[string]any{},
	}, 1))
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcperrors.CodeOf(mcperrors.ToolNotFound("x")), resp.Error.Code)
}

func TestPromptsGetSubstitutesArguments(t *testing.T) {
	promptsJSON := `{"prompts":[{"name":"greet","description":"greets","content":"Hello, {{who}}!"}]}`
	s := newTestSession(t, `{"tools":[]}`, promptsJSON, &stubDispatcher{})

	raw := s.Handle(context.Background(), rawRequest(t, "prompts/get", map[string]any{
		"name": "greet", "arguments": map[string]string{"who": "world"},
	}, 1))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(raw), "Hello, world!")
}

func TestResourcesListReflectsInstanceStore(t *testing.T) {
	s := newTestSession(t, `{"tools":[]}`, `{"prompts":[]}`, &stubDispatcher{})

	raw := s.Handle(context.Background(), rawRequest(t, "resources/list", nil, 1))
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var decoded struct {
		Resources []map[string]any `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded.Resources, 1)
	assert.Equal(t, "odoo://default/", decoded.Resources[0]["uri"])
}

func TestResourcesReadUnknownInstanceIsNotFound(t *testing.T) {
	s := newTestSession(t, `{"tools":[]}`, `{"prompts":[]}`, &stubDispatcher{})

	raw := s.Handle(context.Background(), rawRequest(t, "resources/read", map[string]any{"uri": "odoo://missing/"}, 1))
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
}

func TestUnknownMethodIsInvalidRequest(t *testing.T) {
	s := newTestSession(t, `{"tools":[]}`, `{"prompts":[]}`, &stubDispatcher{})

	raw := s.Handle(context.Background(), rawRequest(t, "nonexistent/method", nil, 1))
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
}
