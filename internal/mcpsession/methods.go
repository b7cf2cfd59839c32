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

package mcpsession

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/conductor/internal/registry"
	"github.com/tombee/conductor/pkg/mcperrors"
)

const protocolVersionFallback = "2024-11-05"

func (s *Session) serverInfo() (string, string, string) {
	snap := s.registry.Current()
	name := snap.Server.ServerName
	if name == "" {
		name = "odoo-mcp-server"
	}
	version := snap.Server.ProtocolVersionDefault
	if version == "" {
		version = protocolVersionFallback
	}
	return name, version, snap.Server.Instructions
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

func (s *Session) initialize(raw json.RawMessage) (any, error) {
	var params initializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, mcperrors.InvalidRequest("malformed initialize params: " + err.Error())
		}
	}

	name, protoVersion, instructions := s.serverInfo()
	negotiated := params.ProtocolVersion
	if negotiated == "" {
		negotiated = protoVersion
	}

	result := mcp.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &struct {
				ListChanged bool `json:"listChanged,omitempty"`
			}{ListChanged: true},
			Prompts: &struct {
				ListChanged bool `json:"listChanged,omitempty"`
			}{ListChanged: true},
			Resources: &struct {
				Subscribe   bool `json:"subscribe,omitempty"`
				ListChanged bool `json:"listChanged,omitempty"`
			}{ListChanged: false},
		},
		ServerInfo: mcp.Implementation{
			Name:    name,
			Version: "1.0.0",
		},
		Instructions: instructions,
	}
	return result, nil
}

func (s *Session) ping() (any, error) {
	return map[string]any{}, nil
}

func toMCPTool(t registry.ToolDefinition) mcp.Tool {
	schema := mcp.ToolInputSchema{Type: "object"}
	if props, ok := t.InputSchema["properties"].(map[string]any); ok {
		schema.Properties = props
	} else {
		schema.Properties = map[string]any{}
	}
	if required, ok := t.InputSchema["required"].([]any); ok {
		for _, r := range required {
			if name, ok := r.(string); ok {
				schema.Required = append(schema.Required, name)
			}
		}
	}
	return mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

func (s *Session) toolsList() (any, error) {
	snap := s.registry.Current()
	visible := snap.VisibleToolsEnv(s.env)
	tools := make([]mcp.Tool, 0, len(visible))
	for _, t := range visible {
		tools = append(tools, toMCPTool(t))
	}
	return map[string]any{"tools": tools}, nil
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Session) toolsCall(ctx context.Context, raw json.RawMessage) (any, error) {
	var params callToolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mcperrors.InvalidRequest("malformed tools/call params: " + err.Error())
	}
	if params.Name == "" {
		return nil, mcperrors.InvalidRequest("tools/call requires a name")
	}

	text, err := s.dispatcher.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Session) promptsList() (any, error) {
	snap := s.registry.Current()
	prompts := make([]mcp.Prompt, 0, len(snap.Prompts))
	for _, p := range snap.Prompts {
		prompts = append(prompts, mcp.Prompt{Name: p.Name, Description: p.Description})
	}
	return map[string]any{"prompts": prompts}, nil
}

type getPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Session) promptsGet(raw json.RawMessage) (any, error) {
	var params getPromptParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mcperrors.InvalidRequest("malformed prompts/get params: " + err.Error())
	}

	snap := s.registry.Current()
	prompt, ok := snap.FindPrompt(params.Name)
	if !ok {
		return nil, mcperrors.New(mcperrors.KindToolNotFound, fmt.Sprintf("prompt not found: %s", params.Name))
	}

	return mcp.GetPromptResult{
		Description: prompt.Description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(substitutePromptArgs(prompt.Content, params.Arguments)),
			},
		},
	}, nil
}

// substitutePromptArgs replaces {{name}} placeholders in a prompt's
// stored content with caller-supplied argument values. Missing
// arguments are left as the literal placeholder.
func substitutePromptArgs(content string, args map[string]string) string {
	if len(args) == 0 {
		return content
	}
	out := content
	for name, value := range args {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}

func (s *Session) resourcesList() (any, error) {
	names := s.instances.List()
	resources := make([]mcp.Resource, 0, len(names))
	for _, name := range names {
		resources = append(resources, mcp.Resource{
			URI:         fmt.Sprintf("odoo://%s/", name),
			Name:        name,
			Description: fmt.Sprintf("Odoo instance %q", name),
			MIMEType:    "application/json",
		})
	}
	return map[string]any{"resources": resources}, nil
}

type readResourceParams struct {
	URI string `json:"uri"`
}

func (s *Session) resourcesRead(raw json.RawMessage) (any, error) {
	var params readResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mcperrors.InvalidRequest("malformed resources/read params: " + err.Error())
	}

	instance, err := parseOdooResourceURI(params.URI)
	if err != nil {
		return nil, err
	}

	desc := s.instances.Get(instance)
	if desc == nil {
		return nil, mcperrors.New(mcperrors.KindToolNotFound, fmt.Sprintf("unknown instance resource: %s", params.URI))
	}

	body, marshalErr := json.Marshal(map[string]any{
		"name":     instance,
		"url":      desc.BaseURL,
		"database": desc.Database,
		"protocol": desc.Protocol,
	})
	if marshalErr != nil {
		return nil, mcperrors.InternalError("encoding resource body", marshalErr)
	}

	return mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      params.URI,
				MIMEType: "application/json",
				Text:     string(body),
			},
		},
	}, nil
}

// parseOdooResourceURI extracts the instance name from an odoo://{instance}/...
// resource URI.
func parseOdooResourceURI(uri string) (string, error) {
	const prefix = "odoo://"
	if !strings.HasPrefix(uri, prefix) {
		return "", mcperrors.InvalidArguments("resource uri must start with odoo://")
	}
	rest := strings.TrimPrefix(uri, prefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx], nil
	}
	return rest, nil
}
