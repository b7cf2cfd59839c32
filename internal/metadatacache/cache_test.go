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

package metadatacache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetFieldsMissThenHit(t *testing.T) {
	c := New(time.Hour)
	_, ok := c.GetFields("default", "res.partner")
	assert.False(t, ok)

	c.PutFields("default", "res.partner", map[string]any{"name": "char"})
	v, ok := c.GetFields("default", "res.partner")
	assert.True(t, ok)
	assert.Equal(t, "char", v["name"])
}

func TestFieldsExpiresAfterTTL(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.nowFunc = func() time.Time { return now }

	c.PutFields("default", "res.partner", map[string]any{"name": "char"})
	_, ok := c.GetFields("default", "res.partner")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.GetFields("default", "res.partner")
	assert.False(t, ok)
}

func TestInvalidateInstanceClearsBothBuckets(t *testing.T) {
	c := New(time.Hour)
	c.PutFields("a", "res.partner", map[string]any{"x": 1})
	c.PutFields("b", "res.partner", map[string]any{"x": 1})
	c.PutModels("a", []map[string]any{{"model": "res.partner"}})

	c.InvalidateInstance("a")

	_, ok := c.GetFields("a", "res.partner")
	assert.False(t, ok)
	_, ok = c.GetModels("a")
	assert.False(t, ok)
	_, ok = c.GetFields("b", "res.partner")
	assert.True(t, ok)
}

func TestGetFieldsReturnsIndependentClone(t *testing.T) {
	c := New(time.Hour)
	c.PutFields("a", "res.partner", map[string]any{"x": 1})
	v1, _ := c.GetFields("a", "res.partner")
	v1["x"] = 999
	v2, _ := c.GetFields("a", "res.partner")
	assert.Equal(t, 1, v2["x"])
}
