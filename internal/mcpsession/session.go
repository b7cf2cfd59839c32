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

package mcpsession

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/tombee/conductor/internal/dispatcher"
	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/registry"
	"github.com/tombee/conductor/pkg/mcperrors"
)

// Dispatcher is the subset of *dispatcher.Dispatcher a Session depends
// on, narrowed to an interface so tests can substitute a stub.
type Dispatcher interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Session implements the MCP JSON-RPC method set against one registry
// snapshot source, one dispatcher, and one instance store. A Session is
// safe for concurrent use: callers may invoke Handle from multiple
// goroutines, one per inbound message, and each Handle call is
// independent (no request-to-request state beyond initialize tracking).
type Session struct {
	registry    *registry.Store
	dispatcher  Dispatcher
	instances   *instanceconfig.Store
	log         *slog.Logger
	env         dispatcher.EnvLookup
	initialized atomic.Bool
}

// New creates a Session wired to the process singletons.
func New(reg *registry.Store, disp Dispatcher, instances *instanceconfig.Store, log *slog.Logger) *Session {
	return &Session{registry: reg, dispatcher: disp, instances: instances, log: log, env: os.Getenv}
}

// WithEnvLookup overrides the environment lookup function, for tests.
func (s *Session) WithEnvLookup(lookup dispatcher.EnvLookup) *Session {
	s.env = lookup
	return s
}

// Handle decodes one JSON-RPC message, dispatches it to the matching
// method, and returns the encoded response. It returns nil for
// notifications (no id), per JSON-RPC 2.0 semantics — transports must
// not write anything back for a nil result.
func (s *Session) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(newErrorResponse(nil, mcperrors.CodeOf(mcperrors.ParseError(err.Error())), "parse error"))
	}

	resp := s.dispatch(ctx, &req)
	if resp == nil {
		return nil
	}
	return encode(resp)
}

// HandleRequest is Handle's in-process form, for transports (HTTP) that
// already decoded the envelope and want the Response value directly
// rather than re-encoded bytes.
func (s *Session) HandleRequest(ctx context.Context, req *Request) *Response {
	return s.dispatch(ctx, req)
}

func (s *Session) dispatch(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return newErrorResponse(req.ID, mcperrors.CodeOf(mcperrors.InvalidRequest("unsupported jsonrpc version")), "unsupported jsonrpc version")
	}

	var (
		result any
		err    error
	)

	switch req.Method {
	case "initialize":
		result, err = s.initialize(req.Params)
	case "notifications/initialized":
		s.initialized.Store(true)
		return nil
	case "ping":
		result, err = s.ping()
	case "tools/list":
		result, err = s.toolsList()
	case "tools/call":
		result, err = s.toolsCall(ctx, req.Params)
	case "prompts/list":
		result, err = s.promptsList()
	case "prompts/get":
		result, err = s.promptsGet(req.Params)
	case "resources/list":
		result, err = s.resourcesList()
	case "resources/read":
		result, err = s.resourcesRead(req.Params)
	default:
		err = mcperrors.New(mcperrors.KindInvalidRequest, "unknown method: "+req.Method)
	}

	if req.IsNotification() {
		// Notifications never receive a response, even on error.
		if err != nil {
			s.log.Warn("error handling notification", "method", req.Method, "error", err)
		}
		return nil
	}

	if err != nil {
		return newErrorResponse(req.ID, mcperrors.CodeOf(err), mcperrors.MessageOf(err))
	}
	return newResponse(req.ID, result)
}

func encode(resp *Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Marshaling our own response struct cannot realistically fail;
		// fall back to a minimal static error rather than panic.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error encoding response"}}`)
	}
	return b
}
