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

package jsonpointer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalObjectAndArray(t *testing.T) {
	doc := map[string]any{
		"instance": "default",
		"model":    "res.partner",
		"domain":   []any{[]any{"id", ">", float64(0)}},
		"nested":   map[string]any{"limit": float64(10)},
	}

	v, ok, err := Eval(doc, "/instance")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "default", v)

	v, ok, err = Eval(doc, "/domain/0/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ">", v)

	v, ok, err = Eval(doc, "/nested/limit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(10), v)
}

func TestEvalMissing(t *testing.T) {
	doc := map[string]any{"a": 1}
	_, ok, err := Eval(doc, "/b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = Eval(doc, "/a/0")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestEvalWholeDocument(t *testing.T) {
	doc := map[string]any{"a": 1}
	v, ok, err := Eval(doc, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, v)
}

func TestEvalEscaping(t *testing.T) {
	doc := map[string]any{"a/b": "slash", "c~d": "tilde"}
	v, ok, err := Eval(doc, "/a~1b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "slash", v)

	v, ok, err = Eval(doc, "/c~0d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tilde", v)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(""))
	assert.True(t, Valid("/a/b"))
	assert.False(t, Valid("a/b"))
}
