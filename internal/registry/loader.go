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

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Paths names the three JSON documents backing the registry. ConfigDir
// supplies defaults for any path left empty, per spec.md §6.3/§6.4.
type Paths struct {
	ToolsPath   string
	PromptsPath string
	ServerPath  string
	ConfigDir   string
}

// Resolve fills in any empty path from ConfigDir, defaulting ConfigDir
// itself to "./config" when also empty.
func (p Paths) Resolve() Paths {
	if p.ConfigDir == "" {
		p.ConfigDir = "./config"
	}
	if p.ToolsPath == "" {
		p.ToolsPath = filepath.Join(p.ConfigDir, "tools.json")
	}
	if p.PromptsPath == "" {
		p.PromptsPath = filepath.Join(p.ConfigDir, "prompts.json")
	}
	if p.ServerPath == "" {
		p.ServerPath = filepath.Join(p.ConfigDir, "server.json")
	}
	return p
}

// toolsDocument accepts either a bare array or {"tools": [...]}.
type toolsDocument struct {
	Tools []ToolDefinition `json:"tools"`
}

// promptsDocument accepts either a bare array or {"prompts": [...]}.
type promptsDocument struct {
	Prompts []PromptDefinition `json:"prompts"`
}

func decodeTools(data []byte) ([]ToolDefinition, error) {
	var arr []ToolDefinition
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}
	var doc toolsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tools.json: %w", err)
	}
	return doc.Tools, nil
}

func decodePrompts(data []byte) ([]PromptDefinition, error) {
	var arr []PromptDefinition
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}
	var doc promptsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing prompts.json: %w", err)
	}
	return doc.Prompts, nil
}

func decodeServer(data []byte) (ServerMetadata, error) {
	var s ServerMetadata
	if err := json.Unmarshal(data, &s); err != nil {
		return ServerMetadata{}, fmt.Errorf("parsing server.json: %w", err)
	}
	return s, nil
}

// seedIfMissing writes defaultContent to path if no file exists there yet,
// per spec.md §4.E's seeding rule. Directories are created as needed.
func seedIfMissing(path string, defaultContent []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, defaultContent, 0o644); err != nil {
		return fmt.Errorf("seeding %s: %w", path, err)
	}
	return nil
}

// Load reads, seeds if absent, decodes, and validates the three registry
// documents at paths, returning the assembled (unvalidated-against-
// previous-version) document set. version is stamped onto the resulting
// Snapshot by the caller.
func Load(paths Paths) (tools []ToolDefinition, prompts []PromptDefinition, server ServerMetadata, err error) {
	paths = paths.Resolve()

	if err = seedIfMissing(paths.ToolsPath, defaultToolsJSON); err != nil {
		return nil, nil, ServerMetadata{}, err
	}
	if err = seedIfMissing(paths.PromptsPath, defaultPromptsJSON); err != nil {
		return nil, nil, ServerMetadata{}, err
	}
	if err = seedIfMissing(paths.ServerPath, defaultServerJSON); err != nil {
		return nil, nil, ServerMetadata{}, err
	}

	toolsData, err := os.ReadFile(paths.ToolsPath)
	if err != nil {
		return nil, nil, ServerMetadata{}, fmt.Errorf("reading %s: %w", paths.ToolsPath, err)
	}
	tools, err = decodeTools(toolsData)
	if err != nil {
		return nil, nil, ServerMetadata{}, err
	}
	if err = ValidateTools(tools); err != nil {
		return nil, nil, ServerMetadata{}, fmt.Errorf("validating tools.json: %w", err)
	}

	promptsData, err := os.ReadFile(paths.PromptsPath)
	if err != nil {
		return nil, nil, ServerMetadata{}, fmt.Errorf("reading %s: %w", paths.PromptsPath, err)
	}
	prompts, err = decodePrompts(promptsData)
	if err != nil {
		return nil, nil, ServerMetadata{}, err
	}
	if err = ValidatePrompts(prompts); err != nil {
		return nil, nil, ServerMetadata{}, fmt.Errorf("validating prompts.json: %w", err)
	}

	serverData, err := os.ReadFile(paths.ServerPath)
	if err != nil {
		return nil, nil, ServerMetadata{}, fmt.Errorf("reading %s: %w", paths.ServerPath, err)
	}
	server, err = decodeServer(serverData)
	if err != nil {
		return nil, nil, ServerMetadata{}, err
	}

	return tools, prompts, server, nil
}
