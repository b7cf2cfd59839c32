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
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsTransport delegates origin checking for WebSocket upgrades to
// allowedOrigins (empty allows any origin), not the browser's
// same-origin policy.
type wsTransport struct {
	handler        MessageHandler
	log            *slog.Logger
	allowedOrigins []string
}

func newWSTransport(handler MessageHandler, allowedOrigins []string, log *slog.Logger) *wsTransport {
	return &wsTransport{handler: handler, allowedOrigins: allowedOrigins, log: log}
}

func (t *wsTransport) checkOrigin(r *http.Request) bool {
	if len(t.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range t.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades to a WebSocket connection and runs a read loop:
// every inbound text message is one JSON-RPC request, dispatched
// concurrently; responses are serialized back over a single writer
// goroutine, since *websocket.Conn forbids concurrent writers.
func (t *wsTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     t.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan []byte, 32)
	var writeWG sync.WaitGroup
	writeWG.Add(1)
	go func() {
		defer writeWG.Done()
		for {
			select {
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					t.log.Warn("websocket write failed", "session", sessionID, "error", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var pending sync.WaitGroup
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		payload := append([]byte(nil), data...)
		pending.Add(1)
		go func() {
			defer pending.Done()
			resp := t.handler.Handle(ctx, payload)
			if resp == nil {
				return
			}
			select {
			case outbound <- resp:
			case <-ctx.Done():
			}
		}()
	}

	cancel()
	pending.Wait()
	close(outbound)
	writeWG.Wait()
}
