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

package dispatcher

import (
	"fmt"

	"github.com/tombee/conductor/pkg/mcperrors"
)

// extracted holds the JSON-pointer-extracted argument values for one
// tool call, keyed by the argument name declared in op.map.
type extracted map[string]any

func requireString(e extracted, key string) (string, error) {
	v, ok := e[key]
	if !ok {
		return "", mcperrors.InvalidArguments(fmt.Sprintf("missing required argument %q", key))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", mcperrors.InvalidArguments(fmt.Sprintf("argument %q must be a non-empty string", key))
	}
	return s, nil
}

func optString(e extracted, key string) string {
	s, _ := e[key].(string)
	return s
}

func optBool(e extracted, key string, def bool) bool {
	v, ok := e[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func optInt(e extracted, key string) int {
	v, ok := e[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func requireInt64(e extracted, key string) (int64, error) {
	v, ok := e[key]
	if !ok {
		return 0, mcperrors.InvalidArguments(fmt.Sprintf("missing required argument %q", key))
	}
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, mcperrors.InvalidArguments(fmt.Sprintf("argument %q must be a number", key))
	}
}

func optStringSlice(e extracted, key string) []string {
	arr, ok := e[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func requireInt64Slice(e extracted, key string) ([]int64, error) {
	arr, ok := e[key].([]any)
	if !ok {
		return nil, mcperrors.InvalidArguments(fmt.Sprintf("missing required argument %q (expected array of ids)", key))
	}
	out := make([]int64, 0, len(arr))
	for _, v := range arr {
		switch n := v.(type) {
		case float64:
			out = append(out, int64(n))
		case int64:
			out = append(out, n)
		case int:
			out = append(out, int64(n))
		default:
			return nil, mcperrors.InvalidArguments(fmt.Sprintf("argument %q contains a non-numeric id", key))
		}
	}
	return out, nil
}

func optAnySlice(e extracted, key string) []any {
	arr, _ := e[key].([]any)
	return arr
}

func requireMap(e extracted, key string) (map[string]any, error) {
	v, ok := e[key]
	if !ok {
		return nil, mcperrors.InvalidArguments(fmt.Sprintf("missing required argument %q", key))
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, mcperrors.InvalidArguments(fmt.Sprintf("argument %q must be an object", key))
	}
	return m, nil
}

func optMap(e extracted, key string) map[string]any {
	m, _ := e[key].(map[string]any)
	return m
}

func optMapsSlice(e extracted, key string) []map[string]any {
	arr, ok := e[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
