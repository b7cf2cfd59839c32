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
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tombee/conductor/internal/auth"
	"github.com/tombee/conductor/internal/httputil"
)

const sessionTTL = 12 * time.Hour

func (s *Server) jwtConfig() auth.JWTConfig {
	return auth.JWTConfig{Secret: s.jwtSecret, Issuer: "odoo-mcp-configmanager"}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// requireAuth gates a handler behind a valid, non-revoked session JWT.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := auth.ValidateJWT(token, s.jwtConfig())
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired session token")
			return
		}
		if s.credentials.IsRevoked(claims.ID) {
			httputil.WriteError(w, http.StatusUnauthorized, "session token has been revoked")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	username := ""
	if token := bearerToken(r); token != "" {
		if claims, err := auth.ValidateJWT(token, s.jwtConfig()); err == nil && !s.credentials.IsRevoked(claims.ID) {
			authenticated = true
			username = claims.Subject
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"auth_enabled":  true,
		"authenticated": authenticated,
		"username":      username,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "login requires POST")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "malformed login request")
		return
	}
	if !s.credentials.VerifyPassword(req.Username, req.Password) {
		httputil.WriteError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	claims := auth.Claims{UserID: req.Username}
	claims.Subject = req.Username
	claims.ID = uuid.NewString()
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(sessionTTL))

	token, err := auth.GenerateJWT(claims, s.jwtConfig())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to issue session token")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "logout requires POST")
		return
	}
	token := bearerToken(r)
	if claims, err := auth.ValidateJWT(token, s.jwtConfig()); err == nil {
		s.credentials.RevokeToken(claims.ID)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type changePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "change-password requires POST")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "malformed change-password request")
		return
	}
	if err := s.credentials.SetPassword(req.NewPassword); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleMCPAuthStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"enabled":         s.credentials.MCPAuthEnabled(),
		"token_configured": s.credentials.MCPAuthToken() != "",
	})
}

type setMCPAuthEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetMCPAuthEnabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "mcp-auth-enabled requires POST")
		return
	}
	var req setMCPAuthEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if err := s.credentials.SetMCPAuthEnabled(req.Enabled); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGenerateMCPToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "generate-mcp-token requires POST")
		return
	}
	token, err := s.credentials.GenerateMCPToken()
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"token": token})
}
