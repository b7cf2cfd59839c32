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

package odooclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/tracing"
	"github.com/tombee/conductor/pkg/secrets"
)

func newTestModernClient(t *testing.T, handler http.HandlerFunc) (*modernClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	d := &instanceconfig.Descriptor{
		Name: "default", BaseURL: srv.URL, Database: "d", APIKey: "k",
	}
	require.NoError(t, d.Normalize())
	provider, err := tracing.NewProvider(context.Background(), tracing.Config{ServiceName: "test"})
	require.NoError(t, err)
	c := newModernClient(d, srv.Client(), slog.Default(), provider.Tracer("test"), secrets.NewMasker())
	return c, srv
}

func TestModernClient_SearchCount(t *testing.T) {
	var gotAuth, gotPath string
	c, srv := newTestModernClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Args []any `json:"args"`
		}
		_ = json.Unmarshal(body, &req)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": 42})
	})
	defer srv.Close()

	n, err := c.SearchCount(context.Background(), "res.partner", []any{[]any{"id", ">", 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "/json/2/d/res.partner/search_count", gotPath)
}

func TestModernClient_OdooErrorEnvelope(t *testing.T) {
	c, srv := newTestModernClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "boom"},
		})
	})
	defer srv.Close()

	_, err := c.SearchCount(context.Background(), "res.partner", []any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestModernClient_Unauthorized(t *testing.T) {
	c, srv := newTestModernClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	defer srv.Close()

	_, err := c.SearchCount(context.Background(), "res.partner", []any{}, nil)
	require.Error(t, err)
}
