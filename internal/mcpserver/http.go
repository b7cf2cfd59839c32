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

package mcpserver

import (
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/tombee/conductor/internal/httputil"
)

const sessionHeader = "Mcp-Session-Id"

// streamableTransport implements the MCP "streamable HTTP" transport:
// POST delivers one JSON-RPC message and returns its response inline;
// GET is reserved for a future server-push stream and currently returns
// 405 since this server has no unsolicited server-to-client notifications;
// DELETE ends a session, releasing its rate-limit buckets.
type streamableTransport struct {
	handler MessageHandler
	limiter *RateLimiter
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]bool
}

func newStreamableTransport(handler MessageHandler, limiter *RateLimiter, log *slog.Logger) *streamableTransport {
	return &streamableTransport{handler: handler, limiter: limiter, log: log, sessions: make(map[string]bool)}
}

func (t *streamableTransport) sessionIDFor(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func (t *streamableTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed on the streamable transport")
	}
}

func (t *streamableTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := t.sessionIDFor(r)

	t.mu.Lock()
	t.sessions[sessionID] = true
	t.mu.Unlock()

	if t.limiter != nil && !t.limiter.AllowCall(sessionID) {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLineSize))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	resp := t.handler.Handle(r.Context(), body)
	w.Header().Set(sessionHeader, sessionID)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (t *streamableTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
	if t.limiter != nil {
		t.limiter.Forget(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}
