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

// Package config assembles process-wide settings from the environment
// variables spec.md §6.4 names, in the same single-FromEnv-function
// style as internal/log.FromEnv.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/conductor/internal/instanceconfig"
)

// Config is the complete set of options recognized at process startup.
type Config struct {
	// Instance sources, tried in the order spec.md §4.A lists them.
	InstancesInline string // ODOO_MCP_INSTANCES_JSON
	InstancesFile   string // ODOO_MCP_INSTANCES_FILE
	ScalarURL       string // ODOO_URL
	ScalarDB        string // ODOO_DB
	ScalarAPIKey    string // ODOO_API_KEY
	ScalarUsername  string // ODOO_USERNAME
	ScalarPassword  string // ODOO_PASSWORD
	ScalarVersion   string // ODOO_VERSION

	// Feature flags. Read from the environment but not consulted by the
	// tool guards, which check ODOO_ENABLE_WRITE_TOOLS and
	// ODOO_ENABLE_CLEANUP_TOOLS directly.
	EnableWriteTools   bool // ODOO_MCP_ENABLE_WRITE_TOOLS
	EnableCleanupTools bool // ODOO_MCP_ENABLE_CLEANUP_TOOLS

	// Client tuning.
	ClientTimeoutMS  int           // ODOO_MCP_CLIENT_TIMEOUT_MS
	ClientMaxRetries int           // ODOO_MCP_CLIENT_MAX_RETRIES
	MetadataCacheTTL time.Duration // ODOO_MCP_METADATA_CACHE_TTL_SECONDS

	// Registry document paths.
	ToolsPath   string // ODOO_MCP_TOOLS_PATH
	PromptsPath string // ODOO_MCP_PROMPTS_PATH
	ServerPath  string // ODOO_MCP_SERVER_PATH
	ConfigDir   string // ODOO_MCP_CONFIG_DIR

	// Transport.
	MCPHTTPAuthEnabled bool     // ODOO_MCP_HTTP_AUTH_ENABLED
	MCPHTTPAuthToken   string   // ODOO_MCP_HTTP_AUTH_TOKEN
	AllowedCORSOrigins []string // ODOO_MCP_CORS_ORIGINS (comma separated)
	ConfigUIPort       int      // ODOO_MCP_CONFIG_UI_PORT
	ConfigUIUsername   string   // ODOO_MCP_CONFIG_UI_USERNAME
	ConfigUIPassword   string   // ODOO_MCP_CONFIG_UI_PASSWORD

	// Listen address for the MCP HTTP/WebSocket/SSE surface.
	ListenAddr string // ODOO_MCP_LISTEN

	// Logging.
	LogLevel string // ODOO_MCP_LOG_LEVEL

	// Tracing.
	TracingExporter     string // ODOO_MCP_TRACING_EXPORTER ("otlp", "stdout", or "" for none)
	TracingServiceName  string // ODOO_MCP_TRACING_SERVICE_NAME
	TracingOTLPEndpoint string // ODOO_MCP_TRACING_OTLP_ENDPOINT
	TracingOTLPInsecure bool   // ODOO_MCP_TRACING_OTLP_INSECURE
}

const (
	defaultClientTimeoutMS  = 30_000
	defaultClientMaxRetries = 2
	defaultCacheTTLSeconds  = 3600
	defaultConfigUIPort     = 3008
)

// FromEnv reads every recognized variable from the process environment,
// applying the same defaults spec.md §4 states.
func FromEnv() Config {
	return Config{
		InstancesInline: os.Getenv("ODOO_MCP_INSTANCES_JSON"),
		InstancesFile:   os.Getenv("ODOO_MCP_INSTANCES_FILE"),
		ScalarURL:       os.Getenv("ODOO_URL"),
		ScalarDB:        os.Getenv("ODOO_DB"),
		ScalarAPIKey:    os.Getenv("ODOO_API_KEY"),
		ScalarUsername:  os.Getenv("ODOO_USERNAME"),
		ScalarPassword:  os.Getenv("ODOO_PASSWORD"),
		ScalarVersion:   os.Getenv("ODOO_VERSION"),

		EnableWriteTools:   envBool("ODOO_MCP_ENABLE_WRITE_TOOLS"),
		EnableCleanupTools: envBool("ODOO_MCP_ENABLE_CLEANUP_TOOLS"),

		ClientTimeoutMS:  envInt("ODOO_MCP_CLIENT_TIMEOUT_MS", defaultClientTimeoutMS),
		ClientMaxRetries: envInt("ODOO_MCP_CLIENT_MAX_RETRIES", defaultClientMaxRetries),
		MetadataCacheTTL: time.Duration(envInt("ODOO_MCP_METADATA_CACHE_TTL_SECONDS", defaultCacheTTLSeconds)) * time.Second,

		ToolsPath:   os.Getenv("ODOO_MCP_TOOLS_PATH"),
		PromptsPath: os.Getenv("ODOO_MCP_PROMPTS_PATH"),
		ServerPath:  os.Getenv("ODOO_MCP_SERVER_PATH"),
		ConfigDir:   os.Getenv("ODOO_MCP_CONFIG_DIR"),

		MCPHTTPAuthEnabled: envBool("ODOO_MCP_HTTP_AUTH_ENABLED"),
		MCPHTTPAuthToken:   os.Getenv("ODOO_MCP_HTTP_AUTH_TOKEN"),
		AllowedCORSOrigins: envList("ODOO_MCP_CORS_ORIGINS"),
		ConfigUIPort:       envInt("ODOO_MCP_CONFIG_UI_PORT", defaultConfigUIPort),
		ConfigUIUsername:   os.Getenv("ODOO_MCP_CONFIG_UI_USERNAME"),
		ConfigUIPassword:   os.Getenv("ODOO_MCP_CONFIG_UI_PASSWORD"),

		ListenAddr: os.Getenv("ODOO_MCP_LISTEN"),

		LogLevel: os.Getenv("ODOO_MCP_LOG_LEVEL"),

		TracingExporter:     os.Getenv("ODOO_MCP_TRACING_EXPORTER"),
		TracingServiceName:  defaultString(os.Getenv("ODOO_MCP_TRACING_SERVICE_NAME"), "odoo-mcp-server"),
		TracingOTLPEndpoint: os.Getenv("ODOO_MCP_TRACING_OTLP_ENDPOINT"),
		TracingOTLPInsecure: envBool("ODOO_MCP_TRACING_OTLP_INSECURE"),
	}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func envBool(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true")
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envList(name string) []string {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadInstances resolves the instance mapping per spec.md §4.A: inline
// JSON env var, then a JSON file, then scalar env vars synthesizing a
// single instance named "default".
func (c Config) LoadInstances() (map[string]*instanceconfig.Descriptor, error) {
	if c.InstancesInline != "" {
		return instanceconfig.LoadFromJSON([]byte(c.InstancesInline))
	}
	if c.InstancesFile != "" {
		return instanceconfig.LoadFromFile(c.InstancesFile)
	}
	if c.ScalarURL != "" {
		return instanceconfig.SingleFromScalars(
			"default", c.ScalarURL, c.ScalarDB, c.ScalarAPIKey,
			c.ScalarUsername, c.ScalarPassword, c.ScalarVersion,
		)
	}
	return map[string]*instanceconfig.Descriptor{}, nil
}

// InstancesFilePath returns the on-disk path the config-manager surface
// should persist instances.json to: the configured file, or ConfigDir/
// instances.json when only scalar/inline sources were used at startup.
func (c Config) InstancesFilePath() string {
	if c.InstancesFile != "" {
		return c.InstancesFile
	}
	dir := c.ConfigDir
	if dir == "" {
		dir = "./config"
	}
	return dir + "/instances.json"
}
