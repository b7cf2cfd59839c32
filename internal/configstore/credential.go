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

// Package configstore holds the single-admin credential record and the
// MCP-transport auth toggle backing the config-manager HTTP surface
// (spec.md §6.2). Passwords are hashed with Argon2id.
package configstore

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
)

const minPasswordLength = 4

// Argon2id parameters used to hash the admin password.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024 // 64MB in KB
	argon2Parallelism = 4
	argon2KeyLength   = 32
)

// record is the on-disk shape persisted to the admin credential file.
type record struct {
	Username       string `json:"username"`
	Salt           string `json:"salt"`
	PasswordHash   string `json:"passwordHash"`
	MCPAuthEnabled bool   `json:"mcpAuthEnabled"`
	MCPAuthToken   string `json:"mcpAuthToken,omitempty"`
}

// Store holds the current admin credential and MCP-auth toggle behind a
// mutex, persisted to path on every mutation.
type Store struct {
	mu   sync.RWMutex
	path string
	rec  record

	revokedMu sync.Mutex
	revoked   map[string]bool
}

// New creates a Store backed by path, seeding it with username/password
// if the file does not yet exist.
func New(path, seedUsername, seedPassword string) (*Store, error) {
	s := &Store{path: path, revoked: make(map[string]bool)}

	if data, err := os.ReadFile(path); err == nil {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing credential file %s: %w", path, err)
		}
		s.rec = rec
		return s, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading credential file %s: %w", path, err)
	}

	if seedUsername == "" {
		seedUsername = "admin"
	}
	salt, err := newSalt()
	if err != nil {
		return nil, err
	}
	s.rec = record{Username: seedUsername, Salt: salt, PasswordHash: hashPassword(seedPassword, salt)}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(password, salt string) string {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		// salt is always generated by newSalt, so this never happens in practice.
		saltBytes = []byte(salt)
	}
	key := argon2.IDKey([]byte(password), saltBytes, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLength)
	return hex.EncodeToString(key)
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential record: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Username returns the current admin username.
func (s *Store) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Username
}

// VerifyPassword reports whether password matches the stored hash,
// compared in constant time.
func (s *Store) VerifyPassword(username, password string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.rec.Username)) != 1 {
		return false
	}
	candidate := hashPassword(password, s.rec.Salt)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.rec.PasswordHash)) == 1
}

// SetPassword replaces the stored password, per spec.md §6.2's
// change-password endpoint (minimum length 4).
func (s *Store) SetPassword(newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	salt, err := newSalt()
	if err != nil {
		return err
	}
	s.rec.Salt = salt
	s.rec.PasswordHash = hashPassword(newPassword, salt)
	return s.persist()
}

// MCPAuthEnabled reports whether the MCP transports require a bearer
// token.
func (s *Store) MCPAuthEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.MCPAuthEnabled
}

// MCPAuthToken returns the configured shared secret for MCP transports,
// empty if none has been generated.
func (s *Store) MCPAuthToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.MCPAuthToken
}

// SetMCPAuthEnabled toggles whether MCP transports enforce the bearer
// token gate.
func (s *Store) SetMCPAuthEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.MCPAuthEnabled = enabled
	return s.persist()
}

// GenerateMCPToken generates and persists a fresh random MCP bearer
// token, returning it once — the caller is responsible for displaying
// it to the operator immediately, since it is never returned again.
func (s *Store) GenerateMCPToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating mcp token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.MCPAuthToken = token
	if err := s.persist(); err != nil {
		return "", err
	}
	return token, nil
}

// RevokeToken marks jti as invalidated, e.g. on logout. Session tokens
// expire 12 hours after issue (internal/configapi's sessionTTL), so the revocation
// list only needs to cover the remaining lifetime of a token.
func (s *Store) RevokeToken(jti string) {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	s.revoked[jti] = true
}

// IsRevoked reports whether jti has been revoked.
func (s *Store) IsRevoked(jti string) bool {
	s.revokedMu.Lock()
	defer s.revokedMu.Unlock()
	return s.revoked[jti]
}
