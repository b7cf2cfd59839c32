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

package configapi

import (
	"io"
	"net/http"

	"github.com/tombee/conductor/internal/httputil"
	"github.com/tombee/conductor/internal/instanceconfig"
)

// handleInstances implements GET/POST /api/config/instances. GET masks
// apiKey/password in the response; POST replaces the full mapping with
// write-validate-or-rollback semantics and reconciles the client pool
// and metadata cache for every changed or removed instance, per
// spec.md §4.C/§4.D's descriptor-change rules.
func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getInstances(w, r)
	case http.MethodPost:
		s.postInstances(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) getInstances(w http.ResponseWriter, r *http.Request) {
	all := s.instances.All()

	out := make(map[string]*instanceconfig.Descriptor, len(all))
	for name, d := range all {
		copied := *d
		if copied.APIKey != "" {
			copied.APIKey = "***"
		}
		if copied.Password != "" {
			copied.Password = "***"
		}
		out[name] = &copied
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) postInstances(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if _, jsonErr := instanceconfig.LoadFromJSON(body); jsonErr != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":    jsonErr.Error(),
			"rollback": false,
		})
		return
	}

	before := s.instances.All()

	applyErr := writeThenApply(s.instancesPath, body, func() error {
		raw, err := instanceconfig.LoadFromFile(s.instancesPath)
		if err != nil {
			return err
		}
		return s.instances.Replace(raw)
	})
	if applyErr != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":    applyErr.Error(),
			"rollback": true,
		})
		return
	}

	after := s.instances.All()
	changed, removed := instanceconfig.DiffChanged(before, after)
	for _, name := range removed {
		s.pool.Invalidate(name)
		s.cache.InvalidateInstance(name)
	}
	for _, name := range changed {
		s.pool.Invalidate(name)
		s.cache.InvalidateInstance(name)
	}
	s.pool.Reconcile()

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
