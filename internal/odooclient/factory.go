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

package odooclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/pkg/httpclient"
	"github.com/tombee/conductor/pkg/observability"
	"github.com/tombee/conductor/pkg/secrets"
)

// New builds the Client implementation appropriate for d's credentials
// and protocol hint, per spec.md §4.B's protocol-selection rule. tracer
// wraps every outbound call in a client-kind span; when tracing is not
// configured, pass the Tracer of a tracing.NewProvider whose Exporter is
// "none".
func New(d *instanceconfig.Descriptor, log *slog.Logger, tracer observability.Tracer) (Client, error) {
	hc, err := buildHTTPClient(d)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", d.Name, err)
	}

	masker := secrets.NewMasker()
	masker.AddSecret(d.APIKey)
	masker.AddSecret(d.Password)

	instanceLog := log.With("instance", d.Name)
	if d.Insecure {
		instanceLog.Warn("TLS certificate verification is disabled for this instance")
	}
	if d.UseLegacy() {
		return newLegacyClient(d, hc, instanceLog, tracer, masker), nil
	}
	return newModernClient(d, hc, instanceLog, tracer, masker), nil
}

// buildHTTPClient constructs the shared *http.Client for an instance,
// applying the retry/backoff policy of spec.md §4.B: base 100ms,
// doubling, cap 2s, jitter, up to MaxRetries attempts beyond the first.
func buildHTTPClient(d *instanceconfig.Descriptor) (*http.Client, error) {
	cfg := httpclient.Config{
		Timeout:                 d.Timeout(),
		RetryAttempts:           d.MaxRetries,
		RetryBackoff:            100 * time.Millisecond,
		MaxBackoff:              2 * time.Second,
		UserAgent:               "odoo-mcp-server/1.0",
		AllowNonIdempotentRetry: true,
		InsecureSkipVerify:      d.Insecure,
	}
	return httpclient.New(cfg)
}
