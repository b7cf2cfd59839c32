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

// Package jsonpointer evaluates RFC 6901 JSON Pointers against decoded
// JSON values (map[string]any / []any), as used by the dispatcher to
// extract tool-call arguments named by a ToolDefinition's op.map.
package jsonpointer

import (
	"fmt"
	"strconv"
	"strings"
)

// Valid reports whether s is a syntactically valid RFC-6901 pointer:
// either the empty string (the whole document) or a sequence of
// "/"-prefixed reference tokens.
func Valid(s string) bool {
	if s == "" {
		return true
	}
	if !strings.HasPrefix(s, "/") {
		return false
	}
	return true
}

// Eval resolves pointer against doc and returns the referenced value.
// ok is false if any path segment is absent (a genuine miss, not an
// error); err is non-nil only for a malformed pointer or a type
// mismatch (e.g. indexing into a non-array with a numeric token).
func Eval(doc any, pointer string) (value any, ok bool, err error) {
	if !Valid(pointer) {
		return nil, false, fmt.Errorf("invalid json pointer %q", pointer)
	}
	if pointer == "" {
		return doc, true, nil
	}

	tokens := strings.Split(pointer[1:], "/")
	cur := doc
	for _, raw := range tokens {
		tok := unescape(raw)
		switch node := cur.(type) {
		case map[string]any:
			v, present := node[tok]
			if !present {
				return nil, false, nil
			}
			cur = v
		case []any:
			if tok == "-" {
				return nil, false, fmt.Errorf("pointer %q: %q is not a valid array index for extraction", pointer, tok)
			}
			idx, convErr := strconv.Atoi(tok)
			if convErr != nil || idx < 0 || idx >= len(node) {
				return nil, false, nil
			}
			cur = node[idx]
		default:
			return nil, false, fmt.Errorf("pointer %q: cannot descend into %T at token %q", pointer, cur, tok)
		}
	}
	return cur, true, nil
}

// unescape reverses RFC-6901's "~1" -> "/" and "~0" -> "~" encoding.
func unescape(tok string) string {
	if !strings.Contains(tok, "~") {
		return tok
	}
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}
