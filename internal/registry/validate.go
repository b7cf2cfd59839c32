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
	"fmt"

	"github.com/tombee/conductor/internal/jsonpointer"
)

// forbiddenSchemaKeys are JSON-Schema union constructs that downstream
// assistant clients cannot consume; tools.json entries using them are
// rejected wholesale, per spec.md §4.E.
var forbiddenSchemaKeys = []string{"anyOf", "oneOf", "allOf", "$ref", "definitions"}

// ValidateTools checks tools for duplicate names, unknown op.type values,
// malformed JSON pointers, and forbidden schema constructs. It returns a
// single error identifying the first offending tool by name.
func ValidateTools(tools []ToolDefinition) error {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			return fmt.Errorf("tool with empty name is not permitted")
		}
		if seen[t.Name] {
			return fmt.Errorf("tool %q: duplicate name", t.Name)
		}
		seen[t.Name] = true

		if !knownOperationTypes[t.Op.Type] {
			return fmt.Errorf("tool %q: unknown op.type %q", t.Name, t.Op.Type)
		}
		for argName, pointer := range t.Op.Map {
			if !jsonpointer.Valid(pointer) {
				return fmt.Errorf("tool %q: op.map[%q] is not a valid RFC-6901 pointer: %q", t.Name, argName, pointer)
			}
		}
		if err := validateSchema(t.InputSchema); err != nil {
			return fmt.Errorf("tool %q: %w", t.Name, err)
		}
	}
	return nil
}

// validateSchema walks schema recursively and rejects anyOf/oneOf/allOf/
// $ref/definitions and array-typed "type" fields anywhere in the tree.
func validateSchema(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, key := range forbiddenSchemaKeys {
		if _, present := schema[key]; present {
			return fmt.Errorf("inputSchema uses forbidden construct %q", key)
		}
	}
	if typ, present := schema["type"]; present {
		if _, isArray := typ.([]any); isArray {
			return fmt.Errorf("inputSchema uses array-typed \"type\" (union types are not permitted)")
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		for name, raw := range props {
			sub, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if err := validateSchema(sub); err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		if err := validateSchema(items); err != nil {
			return fmt.Errorf("items: %w", err)
		}
	}
	return nil
}

// ValidatePrompts checks prompts for duplicate names.
func ValidatePrompts(prompts []PromptDefinition) error {
	seen := make(map[string]bool, len(prompts))
	for _, p := range prompts {
		if p.Name == "" {
			return fmt.Errorf("prompt with empty name is not permitted")
		}
		if seen[p.Name] {
			return fmt.Errorf("prompt %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
