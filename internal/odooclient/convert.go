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
	"errors"
	"net"
	"net/url"

	"github.com/tombee/conductor/pkg/mcperrors"
)

// toInt64 best-effort converts a decoded JSON number to int64.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func toInt64Slice(v any) []int64 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(arr))
	for _, item := range arr {
		out = append(out, toInt64(item))
	}
	return out
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// toRecordSlice converts a decoded JSON array of objects to []map[string]any.
func toRecordSlice(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// toNameTupleSlice converts Odoo's [id, display_name] tuple arrays (from
// name_search/name_get) into {"id":..., "name":...} records.
func toNameTupleSlice(v any) []map[string]any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		tuple, ok := item.([]any)
		if !ok || len(tuple) < 2 {
			continue
		}
		out = append(out, map[string]any{"id": toInt64(tuple[0]), "name": tuple[1]})
	}
	return out
}

// classifyNetError maps a low-level network error into the mcperrors
// taxonomy, distinguishing timeouts from generic transport faults.
func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return mcperrors.Timeout(err.Error())
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return mcperrors.Timeout(err.Error())
	}
	return mcperrors.TransportError("odoo request failed", err)
}
