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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
)

const maxLineSize = 16 * 1024 * 1024

// ServeStdio runs the newline-delimited JSON-RPC loop over in/out, per
// spec.md §4.G's stdio transport. Each line is one JSON-RPC message;
// responses are written back one per line, in the order requests were
// received — stdio has exactly one connection, so requests are handled
// synchronously rather than fanned out to goroutines. ServeStdio blocks
// until in is closed; a canceled ctx is noticed when the next line arrives.
func ServeStdio(ctx context.Context, handler MessageHandler, in io.Reader, out io.Writer, log *slog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	write := func(b []byte) error {
		if _, err := out.Write(b); err != nil {
			return err
		}
		_, err := out.Write([]byte("\n"))
		return err
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := append([]byte(nil), line...)
		resp := handler.Handle(ctx, msg)
		if resp == nil {
			continue
		}
		if err := write(resp); err != nil {
			log.Error("stdio write failed", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio input: %w", err)
	}
	return nil
}

// MessageHandler is the transport-agnostic seam onto *mcpsession.Session.
type MessageHandler interface {
	Handle(ctx context.Context, raw []byte) []byte
}
