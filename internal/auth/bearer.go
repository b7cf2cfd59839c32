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

package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/tombee/conductor/internal/httputil"
)

// BearerAuthenticator gates MCP transport endpoints behind a single
// shared secret, per spec.md §6's optional auth toggle. It is
// deliberately simpler than the JWT session flow used by the
// config-manager surface: MCP clients hold one static token, not a
// per-user session.
type BearerAuthenticator struct{}

// NewBearerAuthenticator creates a new Bearer token authenticator.
func NewBearerAuthenticator() *BearerAuthenticator {
	return &BearerAuthenticator{}
}

// ExtractBearerToken extracts the Bearer token from the Authorization header.
func (a *BearerAuthenticator) ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(header, bearerPrefix) && !strings.HasPrefix(header, "bearer ") {
		return "", fmt.Errorf("invalid Authorization header format, expected 'Bearer <token>'")
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", fmt.Errorf("empty Bearer token")
	}
	return token, nil
}

// VerifyToken compares token against secret in constant time.
func (a *BearerAuthenticator) VerifyToken(token, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// Authenticate verifies the request's Bearer token against secret.
func (a *BearerAuthenticator) Authenticate(r *http.Request, secret string) error {
	token, err := a.ExtractBearerToken(r)
	if err != nil {
		return err
	}
	if !a.VerifyToken(token, secret) {
		return fmt.Errorf("invalid Bearer token")
	}
	return nil
}

// Middleware wraps next with a Bearer-token gate. If secret is empty,
// auth is disabled and every request passes through — the empty-secret
// case is the "no auth configured" default, not a wildcard credential.
func Middleware(secret string) func(http.Handler) http.Handler {
	return DynamicMiddleware(func() string { return secret })
}

// DynamicMiddleware is Middleware parameterized over a secret lookup
// evaluated on every request, so the config-manager surface's "enable
// MCP auth" / "generate token" endpoints take effect without a process
// restart. secretFn returning "" disables the gate for that request.
func DynamicMiddleware(secretFn func() string) func(http.Handler) http.Handler {
	authenticator := NewBearerAuthenticator()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := secretFn()
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			if err := authenticator.Authenticate(r, secret); err != nil {
				httputil.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
