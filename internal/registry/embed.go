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

package registry

import _ "embed"

// Embedded default documents, written to disk on first run when the
// corresponding config file is absent, per spec.md §4.E's seeding rule.

//go:embed defaults/tools.json
var defaultToolsJSON []byte

//go:embed defaults/prompts.json
var defaultPromptsJSON []byte

//go:embed defaults/server.json
var defaultServerJSON []byte
