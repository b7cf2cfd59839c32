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

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/conductor/internal/clientpool"
	"github.com/tombee/conductor/internal/config"
	"github.com/tombee/conductor/internal/configapi"
	"github.com/tombee/conductor/internal/configstore"
	"github.com/tombee/conductor/internal/dispatcher"
	"github.com/tombee/conductor/internal/hotreload"
	httpmiddleware "github.com/tombee/conductor/internal/httpmiddleware"
	"github.com/tombee/conductor/internal/instanceconfig"
	"github.com/tombee/conductor/internal/listener"
	"github.com/tombee/conductor/internal/log"
	"github.com/tombee/conductor/internal/mcpserver"
	"github.com/tombee/conductor/internal/mcpsession"
	"github.com/tombee/conductor/internal/metadatacache"
	"github.com/tombee/conductor/internal/registry"
	"github.com/tombee/conductor/internal/tracing"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	flagListen       string
	flagConfigUIAddr string
	flagStdio        bool
	flagAllowRemote  bool
)

func main() {
	root := &cobra.Command{
		Use:     "odoo-mcp-server",
		Short:   "MCP bridge server exposing Odoo operations as tools, prompts, and resources",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		RunE: func(cmd *cobra.Command, args []string) error {
			run()
			return nil
		},
	}
	root.Flags().StringVar(&flagListen, "listen", "", "MCP transport listen address (tcp://host:port, unix:///path); defaults to ODOO_MCP_LISTEN or 127.0.0.1:3000")
	root.Flags().StringVar(&flagConfigUIAddr, "config-ui-listen", "", "Config-manager HTTP listen address; defaults to 127.0.0.1:<ODOO_MCP_CONFIG_UI_PORT>")
	root.Flags().BoolVar(&flagStdio, "stdio", false, "Serve the MCP protocol over stdio instead of HTTP, skipping the MCP HTTP listener")
	root.Flags().BoolVar(&flagAllowRemote, "allow-remote", false, "Allow binding the MCP/config-UI listeners to non-localhost addresses (SECURITY WARNING)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg := config.FromEnv()
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}
	if flagAllowRemote {
		logger.Warn("--allow-remote is enabled: the MCP and config-manager listeners may accept connections from any network address. Ensure authentication and TLS are configured for production use.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracerProvider, err := tracing.NewProvider(ctx, tracing.Config{
		ServiceName:    cfg.TracingServiceName,
		ServiceVersion: version,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingOTLPEndpoint,
		OTLPInsecure:   cfg.TracingOTLPInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()
	tracer := tracerProvider.Tracer("odoo-mcp-server/odooclient")

	regPaths := registry.Paths{
		ToolsPath:   cfg.ToolsPath,
		PromptsPath: cfg.PromptsPath,
		ServerPath:  cfg.ServerPath,
		ConfigDir:   cfg.ConfigDir,
	}
	regStore, err := registry.NewStore(regPaths)
	if err != nil {
		logger.Error("failed to load tool/prompt/server registry", "error", err)
		os.Exit(1)
	}

	initialInstances, err := cfg.LoadInstances()
	if err != nil {
		logger.Error("failed to resolve instance configuration", "error", err)
		os.Exit(1)
	}
	instanceStore := instanceconfig.New()
	if err := instanceStore.Replace(initialInstances); err != nil {
		logger.Error("failed to normalize instance configuration", "error", err)
		os.Exit(1)
	}

	instancesPath := cfg.InstancesFilePath()
	if err := seedInstancesFile(instancesPath, initialInstances); err != nil {
		logger.Error("failed to seed instances file", "error", err, "path", instancesPath)
		os.Exit(1)
	}

	cache := metadatacache.New(cfg.MetadataCacheTTL)
	pool := clientpool.New(instanceStore, logger, tracer)
	disp := dispatcher.New(regStore, pool, cache, logger)
	session := mcpsession.New(regStore, disp, instanceStore, logger)

	credentialsPath := filepath.Join(regStore.Paths().ConfigDir, "credentials.json")
	seedUsername := cfg.ConfigUIUsername
	if seedUsername == "" {
		seedUsername = "admin"
	}
	seedPassword := cfg.ConfigUIPassword
	generatedPassword := false
	if seedPassword == "" {
		if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
			seedPassword, err = generateRandomPassword()
			if err != nil {
				logger.Error("failed to generate initial config-manager password", "error", err)
				os.Exit(1)
			}
			generatedPassword = true
		}
	}
	credentials, err := configstore.New(credentialsPath, seedUsername, seedPassword)
	if err != nil {
		logger.Error("failed to load config-manager credential store", "error", err)
		os.Exit(1)
	}
	if generatedPassword {
		logger.Warn("ODOO_MCP_CONFIG_UI_PASSWORD was not set; generated a one-time password for the config-manager account, change it after first login", "username", seedUsername, "password", seedPassword)
	}

	configServer, err := configapi.NewServer(regStore, instanceStore, credentials, pool, cache, instancesPath, logger)
	if err != nil {
		logger.Error("failed to create config-manager server", "error", err)
		os.Exit(1)
	}

	if cfg.MCPHTTPAuthEnabled && credentials.MCPAuthToken() == "" {
		if _, err := credentials.GenerateMCPToken(); err != nil {
			logger.Error("failed to generate initial MCP auth token", "error", err)
		} else if err := credentials.SetMCPAuthEnabled(true); err != nil {
			logger.Error("failed to enable MCP auth", "error", err)
		}
	}

	mcpCfg := mcpserver.DefaultConfig()
	mcpCfg.AuthTokenFunc = configServer.MCPAuthTokenFunc()
	if len(cfg.AllowedCORSOrigins) > 0 {
		mcpCfg.CORS.AllowedOrigins = cfg.AllowedCORSOrigins
	}
	mcpSrv := mcpserver.NewServer(mcpCfg, session, logger)

	watcher, err := hotreload.New(regStore, instanceStore, instancesPath, pool, cache, logger)
	if err != nil {
		logger.Error("failed to create hot-reload watcher", "error", err)
		os.Exit(1)
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Error("failed to start hot-reload watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 3)

	if flagStdio {
		logger.Info("serving MCP protocol over stdio")
		go func() {
			errCh <- mcpserver.ServeStdio(ctx, session, os.Stdin, os.Stdout, logger)
		}()
	} else {
		mcpListenCfg, err := resolveListenConfig(cfg.ListenAddr, "127.0.0.1:3000", flagAllowRemote)
		if err != nil {
			logger.Error("invalid MCP listen address", "error", err)
			os.Exit(1)
		}
		ln, err := listener.New(*mcpListenCfg)
		if err != nil {
			logger.Error("failed to bind MCP transport listener", "error", err)
			os.Exit(1)
		}
		httpSrv := &http.Server{Handler: mcpSrv.Handler()}
		logger.Info("MCP transport listening", "addr", ln.Addr().String())
		go func() { errCh <- httpSrv.Serve(ln) }()
		go shutdownOnDone(ctx, httpSrv)
	}

	uiAddr := flagConfigUIAddr
	if uiAddr == "" {
		uiAddr = fmt.Sprintf("127.0.0.1:%d", cfg.ConfigUIPort)
	}
	uiListenCfg, err := resolveListenConfig(uiAddr, fmt.Sprintf("127.0.0.1:%d", cfg.ConfigUIPort), flagAllowRemote)
	if err != nil {
		logger.Error("invalid config-manager listen address", "error", err)
		os.Exit(1)
	}
	uiLn, err := listener.New(*uiListenCfg)
	if err != nil {
		logger.Error("failed to bind config-manager listener", "error", err)
		os.Exit(1)
	}
	uiHandler := httpmiddleware.CORS(httpmiddleware.DefaultCORSConfig())(configServer.Handler())
	uiSrv := &http.Server{Handler: uiHandler}
	logger.Info("config-manager surface listening", "addr", uiLn.Addr().String())
	go func() { errCh <- uiSrv.Serve(uiLn) }()
	go shutdownOnDone(ctx, uiSrv)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
			os.Exit(1)
		}
	}
}

func shutdownOnDone(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// resolveListenConfig turns an ODOO_MCP_LISTEN-style address (or an
// empty string, falling back to fallbackTCPAddr) into a listener.Config.
func resolveListenConfig(addr, fallbackTCPAddr string, allowRemote bool) (*listener.ListenConfig, error) {
	if addr == "" {
		return &listener.ListenConfig{TCPAddr: fallbackTCPAddr, AllowRemote: allowRemote}, nil
	}
	cfg, err := listener.ParseListenAddr(addr)
	if err != nil {
		return nil, err
	}
	cfg.AllowRemote = allowRemote
	return cfg, nil
}

// generateRandomPassword returns a random hex string suitable as a
// one-time config-manager admin password when the operator hasn't set
// ODOO_MCP_CONFIG_UI_PASSWORD.
func generateRandomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// seedInstancesFile writes the initially resolved instance mapping to
// path if nothing exists there yet, so the config-manager surface and
// the hot-reload watcher both have a file to read, edit, and watch even
// when the process started from scalar env vars or no instances at all.
func seedInstancesFile(path string, initial map[string]*instanceconfig.Descriptor) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding initial instances: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("seeding %s: %w", path, err)
	}
	return nil
}
