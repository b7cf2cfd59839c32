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

// Package configapi implements the config-manager HTTP surface spec.md
// §6.2 describes: the React configuration UI's backend. It shares the
// process's registry and instance store with the MCP transports and
// persists every successful write with a write-temp-then-rename-then-
// validate-or-rollback discipline, per spec.md §4.H / §9.
package configapi

import (
	"crypto/rand"
	"log/slog"
	"net/http"

	"github.com/tombee/conductor/internal/configstore"
	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/registry"
)

// Pool is the subset of *clientpool.Pool the instances endpoint needs
// to react to a replace.
type Pool interface {
	Reconcile()
	Invalidate(name string)
}

// MetadataCache is the subset of *metadatacache.Cache the instances
// endpoint needs to react to a replace.
type MetadataCache interface {
	InvalidateInstance(name string)
}

// Server implements the handlers backing /api/auth/* and /api/config/*.
type Server struct {
	registry      *registry.Store
	instances     *instanceconfig.Store
	credentials   *configstore.Store
	pool          Pool
	cache         MetadataCache
	instancesPath string
	jwtSecret     []byte
	log           *slog.Logger
}

// NewServer creates a Server wired to the process singletons.
// instancesPath is where instances.json lives (see
// internal/config.Config.InstancesFilePath).
func NewServer(reg *registry.Store, instances *instanceconfig.Store, credentials *configstore.Store, pool Pool, cache MetadataCache, instancesPath string, log *slog.Logger) (*Server, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	return &Server{
		registry:      reg,
		instances:     instances,
		credentials:   credentials,
		pool:          pool,
		cache:         cache,
		instancesPath: instancesPath,
		jwtSecret:     secret,
		log:           log,
	}, nil
}

// Handler builds the http.Handler exposing the full /api/auth and
// /api/config surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/status", s.handleAuthStatus)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.Handle("/api/auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout)))
	mux.Handle("/api/auth/change-password", s.requireAuth(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("/api/auth/mcp-auth-status", s.requireAuth(http.HandlerFunc(s.handleMCPAuthStatus)))
	mux.Handle("/api/auth/mcp-auth-enabled", s.requireAuth(http.HandlerFunc(s.handleSetMCPAuthEnabled)))
	mux.Handle("/api/auth/generate-mcp-token", s.requireAuth(http.HandlerFunc(s.handleGenerateMCPToken)))

	mux.Handle("/api/config/instances", s.requireAuth(http.HandlerFunc(s.handleInstances)))
	mux.Handle("/api/config/tools", s.requireAuth(http.HandlerFunc(s.handleTools)))
	mux.Handle("/api/config/prompts", s.requireAuth(http.HandlerFunc(s.handlePrompts)))
	mux.Handle("/api/config/server", s.requireAuth(http.HandlerFunc(s.handleServerMetadata)))

	return mux
}

// MCPAuthTokenFunc returns the live-lookup function for mcpserver.Config
// .AuthTokenFunc: the MCP transports' Bearer gate is enabled or disabled
// through this surface's /api/auth/mcp-auth-enabled endpoint.
func (s *Server) MCPAuthTokenFunc() func() string {
	return func() string {
		if !s.credentials.MCPAuthEnabled() {
			return ""
		}
		return s.credentials.MCPAuthToken()
	}
}
