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
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/tombee/conductor/internal/httputil"
)

// sseTransport implements the legacy (pre-streamable-HTTP) MCP
// transport: a client opens GET /sse and receives an "endpoint" event
// naming the POST /messages?sessionId=... URL it must use to send
// requests; every response is delivered asynchronously as a "message"
// event on the original SSE stream.
type sseTransport struct {
	handler MessageHandler
	limiter *RateLimiter
	log     *slog.Logger

	mu    sync.Mutex
	sinks map[string]chan []byte
}

func newSSETransport(handler MessageHandler, limiter *RateLimiter, log *slog.Logger) *sseTransport {
	return &sseTransport{handler: handler, limiter: limiter, log: log, sinks: make(map[string]chan []byte)}
}

// ServeSSE handles GET /sse.
func (t *sseTransport) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := uuid.NewString()
	sink := make(chan []byte, 32)
	t.mu.Lock()
	t.sinks[sessionID] = sink
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.sinks, sessionID)
		t.mu.Unlock()
		if t.limiter != nil {
			t.limiter.Forget(sessionID)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", sessionID)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sink:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ServeMessages handles POST /messages?sessionId=...: the client sends
// one JSON-RPC request, the server answers 202 Accepted immediately and
// delivers the real response asynchronously via the matching SSE sink.
func (t *sseTransport) ServeMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing sessionId query parameter")
		return
	}

	t.mu.Lock()
	sink, ok := t.sinks[sessionID]
	t.mu.Unlock()
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "unknown sse session")
		return
	}

	if t.limiter != nil && !t.limiter.AllowCall(sessionID) {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLineSize))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	payload := body

	w.WriteHeader(http.StatusAccepted)

	go func() {
		resp := t.handler.Handle(context.WithoutCancel(r.Context()), payload)
		if resp == nil {
			return
		}
		select {
		case sink <- resp:
		default:
			t.log.Warn("sse sink full, dropping response", "session", sessionID)
		}
	}()
}
