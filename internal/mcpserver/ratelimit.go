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
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles inbound JSON-RPC messages per session, and holds
// a second, tighter bucket for the destructive cleanup operation family.
type RateLimiter struct {
	mu       sync.Mutex
	sessions map[string]*sessionLimiters
	callRPM  int
	cleanRPM int
}

type sessionLimiters struct {
	call    *rate.Limiter
	cleanup *rate.Limiter
}

// NewRateLimiter creates a limiter allowing callsPerMinute messages
// and cleanupPerMinute database_cleanup/deep_cleanup
// invocations, per session.
func NewRateLimiter(callsPerMinute, cleanupPerMinute int) *RateLimiter {
	return &RateLimiter{
		sessions: make(map[string]*sessionLimiters),
		callRPM:  callsPerMinute,
		cleanRPM: cleanupPerMinute,
	}
}

func (rl *RateLimiter) limitersFor(sessionID string) *sessionLimiters {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	sl, ok := rl.sessions[sessionID]
	if !ok {
		sl = &sessionLimiters{
			call:    rate.NewLimiter(rate.Limit(float64(rl.callRPM)/60.0), rl.callRPM),
			cleanup: rate.NewLimiter(rate.Limit(float64(rl.cleanRPM)/60.0), rl.cleanRPM),
		}
		rl.sessions[sessionID] = sl
	}
	return sl
}

// AllowCall reports whether sessionID may send one more message. The
// streamable-HTTP and SSE transports call it once per POSTed JSON-RPC
// message, whatever its method.
func (rl *RateLimiter) AllowCall(sessionID string) bool {
	return rl.limitersFor(sessionID).call.Allow()
}

// AllowCleanup reports whether sessionID may issue one more cleanup-family
// tool call, independent of and in addition to AllowCall. No transport
// in this package calls it.
func (rl *RateLimiter) AllowCleanup(sessionID string) bool {
	return rl.limitersFor(sessionID).cleanup.Allow()
}

// Forget discards sessionID's buckets, e.g. when its session closes.
func (rl *RateLimiter) Forget(sessionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.sessions, sessionID)
}
