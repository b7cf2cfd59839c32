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

package configstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SeedsAndVerifiesPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")

	s, err := New(path, "admin", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "admin", s.Username())

	assert.True(t, s.VerifyPassword("admin", "hunter22"))
	assert.False(t, s.VerifyPassword("admin", "wrong"))
	assert.False(t, s.VerifyPassword("someone-else", "hunter22"))
}

func TestStore_ReloadsPersistedCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")

	_, err := New(path, "admin", "hunter22")
	require.NoError(t, err)

	reloaded, err := New(path, "ignored", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "admin", reloaded.Username())
	assert.True(t, reloaded.VerifyPassword("admin", "hunter22"))
}

func TestStore_SetPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")

	s, err := New(path, "admin", "hunter22")
	require.NoError(t, err)

	require.NoError(t, s.SetPassword("newpassword"))
	assert.False(t, s.VerifyPassword("admin", "hunter22"))
	assert.True(t, s.VerifyPassword("admin", "newpassword"))

	err = s.SetPassword("abc")
	assert.Error(t, err)
}

func TestHashPassword_DifferentSaltsDifferentHashes(t *testing.T) {
	h1 := hashPassword("samepassword", "aa")
	h2 := hashPassword("samepassword", "bb")
	assert.NotEqual(t, h1, h2)
}
