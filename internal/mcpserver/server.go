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

// Package mcpserver adapts *mcpsession.Session onto the four transports
// spec.md §4.G names: stdio, streamable HTTP, legacy SSE, and
// WebSocket. Method semantics live in mcpsession; this package owns
// framing, sessions, auth, CORS, and rate limiting.
package mcpserver

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/conductor/internal/auth"
	httpmiddleware "github.com/tombee/conductor/internal/httpmiddleware"
	"github.com/tombee/conductor/internal/httputil"
)

// Config selects which transports are exposed and how they're guarded.
type Config struct {
	// EnableStreamableHTTP exposes POST/DELETE /mcp.
	EnableStreamableHTTP bool
	// EnableLegacySSE exposes GET /sse and POST /messages.
	EnableLegacySSE bool
	// EnableWebSocket exposes GET /ws.
	EnableWebSocket bool
	// EnableMetrics exposes GET /metrics (Prometheus).
	EnableMetrics bool

	// AuthToken, if non-empty, gates every transport endpoint behind a
	// shared Bearer token. Empty disables the gate. Ignored if
	// AuthTokenFunc is set.
	AuthToken string

	// AuthTokenFunc, if set, is evaluated on every request instead of
	// AuthToken — used when the gate's enabled/token state is owned by
	// the config-manager surface and can change at runtime.
	AuthTokenFunc func() string

	// CORS configures cross-origin access for browser-based clients.
	CORS httpmiddleware.CORSConfig

	// AllowedWSOrigins restricts WebSocket upgrades; empty allows any.
	AllowedWSOrigins []string

	// CallsPerMinute and CleanupPerMinute size the per-session rate
	// limiter's two buckets.
	CallsPerMinute   int
	CleanupPerMinute int
}

// DefaultConfig returns a Config with every transport enabled and a
// permissive, auth-disabled posture — callers harden it from env/flags.
func DefaultConfig() Config {
	return Config{
		EnableStreamableHTTP: true,
		EnableLegacySSE:      true,
		EnableWebSocket:      true,
		EnableMetrics:        true,
		CORS:                 httpmiddleware.DefaultCORSConfig(),
		CallsPerMinute:       120,
		CleanupPerMinute:     5,
	}
}

// Server wires a MessageHandler onto HTTP routes for the enabled
// transports, plus /health and /openapi.json.
type Server struct {
	cfg     Config
	handler MessageHandler
	limiter *RateLimiter
	log     *slog.Logger
}

// NewServer creates a Server. handler is typically *mcpsession.Session.
func NewServer(cfg Config, handler MessageHandler, log *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		limiter: NewRateLimiter(cfg.CallsPerMinute, cfg.CleanupPerMinute),
		log:     log,
	}
}

// Handler builds the http.Handler exposing every enabled transport,
// wrapped in CORS and (if configured) the Bearer-token gate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)

	if s.cfg.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	if s.cfg.EnableStreamableHTTP {
		mux.Handle("/mcp", newStreamableTransport(s.handler, s.limiter, s.log))
	}

	if s.cfg.EnableLegacySSE {
		sse := newSSETransport(s.handler, s.limiter, s.log)
		mux.HandleFunc("/sse", sse.ServeSSE)
		mux.HandleFunc("/messages", sse.ServeMessages)
	}

	if s.cfg.EnableWebSocket {
		ws := newWSTransport(s.handler, s.cfg.AllowedWSOrigins, s.log)
		mux.Handle("/ws", ws)
	}

	var handler http.Handler = mux
	handler = httpmiddleware.CORS(s.cfg.CORS)(handler)
	if s.cfg.AuthTokenFunc != nil {
		handler = auth.DynamicMiddleware(s.cfg.AuthTokenFunc)(handler)
	} else {
		handler = auth.Middleware(s.cfg.AuthToken)(handler)
	}
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"service": "odoo-mcp-server",
		"status":  "ok",
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, openAPIDocument(s.cfg))
}

func openAPIDocument(cfg Config) map[string]any {
	paths := map[string]any{
		"/health": map[string]any{
			"get": map[string]any{"summary": "Liveness probe", "responses": map[string]any{"200": map[string]any{"description": "ok"}}},
		},
	}
	if cfg.EnableStreamableHTTP {
		paths["/mcp"] = map[string]any{
			"post":   map[string]any{"summary": "Send one JSON-RPC message"},
			"delete": map[string]any{"summary": "Terminate a streamable-HTTP session"},
		}
	}
	if cfg.EnableLegacySSE {
		paths["/sse"] = map[string]any{"get": map[string]any{"summary": "Open a legacy SSE event stream"}}
		paths["/messages"] = map[string]any{"post": map[string]any{"summary": "Send one JSON-RPC message over the legacy transport"}}
	}
	return map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": "odoo-mcp-server", "version": "1.0.0"},
		"paths":   paths,
	}
}
