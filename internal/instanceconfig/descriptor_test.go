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

package instanceconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_APIKeyOnly(t *testing.T) {
	d := &Descriptor{Name: "default", BaseURL: "odoo.example.com", APIKey: "k"}
	require.NoError(t, d.Normalize())
	assert.Equal(t, "https://odoo.example.com", d.BaseURL)
	assert.Equal(t, ProtocolAuto, d.Protocol)
	assert.False(t, d.UseLegacy())
}

func TestNormalize_LegacyCreds(t *testing.T) {
	d := &Descriptor{
		Name: "default", BaseURL: "http://odoo:8069",
		Username: "admin", Password: "admin", Version: "18",
	}
	require.NoError(t, d.Normalize())
	assert.Equal(t, "http://odoo:8069", d.BaseURL)
	assert.True(t, d.UseLegacy())
}

func TestNormalize_MissingCredentials(t *testing.T) {
	d := &Descriptor{Name: "bad", BaseURL: "http://odoo:8069"}
	err := d.Normalize()
	require.Error(t, err)
}

func TestUseLegacy_HintOverridesAuto(t *testing.T) {
	d := &Descriptor{
		Name: "x", BaseURL: "http://odoo", APIKey: "k",
		Username: "u", Password: "p", Protocol: ProtocolLegacy,
	}
	require.NoError(t, d.Normalize())
	assert.True(t, d.UseLegacy())
}

func TestNormalize_Defaults(t *testing.T) {
	d := &Descriptor{Name: "x", BaseURL: "http://odoo", APIKey: "k"}
	require.NoError(t, d.Normalize())
	assert.Equal(t, int(DefaultTimeout/time.Millisecond), d.TimeoutMS)
	assert.Equal(t, DefaultMaxRetries, d.MaxRetries)
	assert.Equal(t, AuthStyleBearer, d.AuthStyle)
}
