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
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conductor/internal/metadatacache"
	"github.com/tombee/conductor/internal/odooclient"
	"github.com/tombee/conductor/internal/registry"
	"github.com/tombee/conductor/pkg/mcperrors"
)

// stubClient is a scripted odooclient.Client used to exercise dispatcher
// handlers without any network I/O.
type stubClient struct {
	searchCountResult  int64
	searchCountErr     error
	searchCountCalls   int
	fieldsGetResult    map[string]any
	fieldsGetErr       error
	fieldsGetCalls     int
	createResult       int64
	createErr          error
	writeResult        bool
	unlinkResult       bool
	unlinkCalls        int
	searchIDs          []int64
	searchReadRecords  []map[string]any
	readRecords        []map[string]any
	checkAccessAllowed bool
	checkAccessErr     error
}

func (s *stubClient) Search(ctx context.Context, model string, domain []any, limit, offset int, order string, ctxParams map[string]any) ([]int64, error) {
	return s.searchIDs, nil
}
func (s *stubClient) SearchRead(ctx context.Context, model string, domain []any, fields []string, limit, offset int, order string, ctxParams map[string]any) ([]map[string]any, error) {
	return s.searchReadRecords, nil
}
func (s *stubClient) Read(ctx context.Context, model string, ids []int64, fields []string, ctxParams map[string]any) ([]map[string]any, error) {
	return s.readRecords, nil
}
func (s *stubClient) Create(ctx context.Context, model string, values map[string]any, ctxParams map[string]any) (int64, error) {
	return s.createResult, s.createErr
}
func (s *stubClient) Write(ctx context.Context, model string, ids []int64, values map[string]any, ctxParams map[string]any) (bool, error) {
	return s.writeResult, nil
}
func (s *stubClient) Unlink(ctx context.Context, model string, ids []int64, ctxParams map[string]any) (bool, error) {
	s.unlinkCalls++
	return s.unlinkResult, nil
}
func (s *stubClient) SearchCount(ctx context.Context, model string, domain []any, ctxParams map[string]any) (int64, error) {
	s.searchCountCalls++
	return s.searchCountResult, s.searchCountErr
}
func (s *stubClient) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}
func (s *stubClient) FieldsGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error) {
	s.fieldsGetCalls++
	return s.fieldsGetResult, s.fieldsGetErr
}
func (s *stubClient) NameSearch(ctx context.Context, model, name string, domain []any, operator string, limit int, ctxParams map[string]any) ([]map[string]any, error) {
	return nil, nil
}
func (s *stubClient) NameGet(ctx context.Context, model string, ids []int64, ctxParams map[string]any) ([]map[string]any, error) {
	return nil, nil
}
func (s *stubClient) DefaultGet(ctx context.Context, model string, fields []string, ctxParams map[string]any) (map[string]any, error) {
	return nil, nil
}
func (s *stubClient) ReadGroup(ctx context.Context, model string, domain []any, fields, groupBy []string, limit, offset int, ctxParams map[string]any) ([]map[string]any, error) {
	return nil, nil
}
func (s *stubClient) Copy(ctx context.Context, model string, id int64, defaults map[string]any, ctxParams map[string]any) (int64, error) {
	return 0, nil
}
func (s *stubClient) Onchange(ctx context.Context, model string, values map[string]any, fieldName []string, fieldOnchange map[string]any, ctxParams map[string]any) (map[string]any, error) {
	return map[string]any{"value": map[string]any{}}, nil
}
func (s *stubClient) ListModels(ctx context.Context, domain []any, limit, offset int, ctxParams map[string]any) ([]map[string]any, error) {
	return s.searchReadRecords, nil
}
func (s *stubClient) CheckAccess(ctx context.Context, model, operation string, ctxParams map[string]any) (bool, error) {
	return s.checkAccessAllowed, s.checkAccessErr
}
func (s *stubClient) GenerateReport(ctx context.Context, reportName string, ids []int64, ctxParams map[string]any) ([]byte, error) {
	return []byte("pdf-bytes"), nil
}
func (s *stubClient) Close() {}

// stubPool hands out one fixed client per instance, counting Get calls.
type stubPool struct {
	client *stubClient
	getErr error
	gets   int
}

func (p *stubPool) Get(instance string) (odooclient.Client, error) {
	p.gets++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.client, nil
}

func newTestStore(t *testing.T, toolsJSON string) *registry.Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.json"), []byte(toolsJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts.json"), []byte(`{"prompts":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.json"), []byte(`{}`), 0o644))
	store, err := registry.NewStore(registry.Paths{ConfigDir: dir})
	require.NoError(t, err)
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const countToolJSON = `{"tools":[{"name":"odoo_count","op":{"type":"search_count","map":{"instance":"/instance","model":"/model","domain":"/domain"}}}]}`

func TestCallToolUnknownToolReturnsToolNotFound(t *testing.T) {
	store := newTestStore(t, `{"tools":[]}`)
	pool := &stubPool{client: &stubClient{}}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger())

	_, err := d.CallTool(context.Background(), "nope", map[string]any{})
	require.Error(t, err)
	var mErr *mcperrors.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcperrors.KindToolNotFound, mErr.Kind)
}

func TestCallToolGuardedOutReturnsToolNotFound(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"odoo_create","op":{"type":"create","map":{"instance":"/instance","model":"/model","values":"/values"}},"guards":{"requiresEnvTrue":"ODOO_ENABLE_WRITE_TOOLS"}}]}`
	store := newTestStore(t, toolsJSON)
	pool := &stubPool{client: &stubClient{}}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger()).WithEnvLookup(func(string) string { return "" })

	_, err := d.CallTool(context.Background(), "odoo_create", map[string]any{"instance": "default"})
	require.Error(t, err)
	var mErr *mcperrors.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcperrors.KindToolNotFound, mErr.Kind)
}

func TestCallToolSearchCountS1(t *testing.T) {
	store := newTestStore(t, countToolJSON)
	pool := &stubPool{client: &stubClient{searchCountResult: 42}}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger())

	out, err := d.CallTool(context.Background(), "odoo_count", map[string]any{
		"instance": "default", "model": "res.partner", "domain": []any{[]any{"id", ">", float64(0)}},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, float64(42), decoded["count"])
	assert.Equal(t, 1, pool.client.searchCountCalls)
}

func TestCallToolMissingRequiredArgumentIsInvalidArguments(t *testing.T) {
	store := newTestStore(t, countToolJSON)
	pool := &stubPool{client: &stubClient{}}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger())

	_, err := d.CallTool(context.Background(), "odoo_count", map[string]any{"instance": "default"})
	require.Error(t, err)
	var mErr *mcperrors.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcperrors.KindInvalidArguments, mErr.Kind)
}

func TestGetModelMetadataUsesCacheOnSecondCall(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"odoo_meta","op":{"type":"get_model_metadata","map":{"instance":"/instance","model":"/model"}}}]}`
	store := newTestStore(t, toolsJSON)
	client := &stubClient{fieldsGetResult: map[string]any{"name": "char"}}
	pool := &stubPool{client: client}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger())

	args := map[string]any{"instance": "default", "model": "res.partner"}
	_, err := d.CallTool(context.Background(), "odoo_meta", args)
	require.NoError(t, err)
	_, err = d.CallTool(context.Background(), "odoo_meta", args)
	require.NoError(t, err)

	assert.Equal(t, 1, client.fieldsGetCalls)
}

func TestDatabaseCleanupRequiresGuardEvenIfToolUnguarded(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"odoo_cleanup","op":{"type":"database_cleanup","map":{"instance":"/instance","dryRun":"/dryRun"}}}]}`
	store := newTestStore(t, toolsJSON)
	pool := &stubPool{client: &stubClient{}}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger()).WithEnvLookup(func(string) string { return "" })

	_, err := d.CallTool(context.Background(), "odoo_cleanup", map[string]any{"instance": "default"})
	require.Error(t, err)
	var mErr *mcperrors.Error
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, mcperrors.KindOperationDisabled, mErr.Kind)
}

func TestDatabaseCleanupDryRunDoesNotUnlink(t *testing.T) {
	toolsJSON := `{"tools":[{"name":"odoo_cleanup","op":{"type":"database_cleanup","map":{"instance":"/instance","dryRun":"/dryRun"}}}]}`
	store := newTestStore(t, toolsJSON)
	client := &stubClient{searchIDs: []int64{1, 2, 3}}
	pool := &stubPool{client: client}
	d := New(store, pool, metadatacache.New(time.Hour), testLogger()).WithEnvLookup(func(k string) string {
		if k == "ODOO_ENABLE_CLEANUP_TOOLS" {
			return "true"
		}
		return ""
	})

	out, err := d.CallTool(context.Background(), "odoo_cleanup", map[string]any{"instance": "default", "dryRun": true})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, true, decoded["dry_run"])
	assert.Equal(t, 0, client.unlinkCalls)
}
