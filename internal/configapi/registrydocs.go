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
	"os"
	"strings"

	"github.com/tombee/conductor/internal/httputil"
)

// atomicWrite writes data to path via a temp file + rename, so a reader
// (or the hot-reload watcher) never observes a half-written file, per
// spec.md §9.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// writeThenApply writes newBytes to path, then calls apply to
// reload/validate the in-memory state from disk. On apply failure, the
// previous file contents (or its absence) are restored before the
// error is returned, per spec.md §6.2's rollback contract.
func writeThenApply(path string, newBytes []byte, apply func() error) error {
	backup, hadBackup, err := readIfExists(path)
	if err != nil {
		return err
	}
	if err := atomicWrite(path, newBytes); err != nil {
		return err
	}
	if err := apply(); err != nil {
		if hadBackup {
			_ = atomicWrite(path, backup)
		} else {
			_ = os.Remove(path)
		}
		return err
	}
	return nil
}

func readIfExists(path string) (data []byte, existed bool, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// handleDocument implements the common GET (serve raw file)/POST
// (write-validate-or-rollback) shape shared by tools/prompts/server.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request, path string) {
	switch r.Method {
	case http.MethodGet:
		data, _, err := readIfExists(path)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "reading "+path+": "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if err := writeThenApply(path, body, s.registry.Reload); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":    err.Error(),
				"rollback": true,
			})
			return
		}
		resp := map[string]any{"success": true}
		if warning := s.guardWarning(); warning != "" {
			resp["warning"] = warning
		}
		httputil.WriteJSON(w, http.StatusOK, resp)

	default:
		w.Header().Set("Allow", "GET, POST")
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, s.registry.Paths().ToolsPath)
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, s.registry.Paths().PromptsPath)
}

func (s *Server) handleServerMetadata(w http.ResponseWriter, r *http.Request) {
	s.handleDocument(w, r, s.registry.Paths().ServerPath)
}

// guardWarning scans the freshly reloaded snapshot for guards that
// reference an env var currently unset in the process environment —
// surfaced as a non-fatal warning per spec.md §6.2, since the tool will
// simply stay hidden rather than error.
func (s *Server) guardWarning() string {
	var undefined []string
	seen := map[string]bool{}
	for _, t := range s.registry.Current().Tools {
		if t.Guards == nil {
			continue
		}
		for _, name := range []string{t.Guards.RequiresEnv, t.Guards.RequiresEnvTrue} {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			if os.Getenv(name) == "" {
				undefined = append(undefined, name)
			}
		}
	}
	if len(undefined) == 0 {
		return ""
	}
	return "guard references undefined environment variable(s): " + strings.Join(undefined, ", ")
}
