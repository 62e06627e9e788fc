// ABOUTME: Server orchestrator wiring the tool packs behind the MCP endpoint.
// ABOUTME: Manages listeners, health endpoints and graceful shutdown.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tailscale.com/tsnet"

	"github.com/FndMG/mcp-api-wrapper/internal/apicall"
	"github.com/FndMG/mcp-api-wrapper/internal/apitools"
	"github.com/FndMG/mcp-api-wrapper/internal/auth"
	"github.com/FndMG/mcp-api-wrapper/internal/config"
	"github.com/FndMG/mcp-api-wrapper/internal/endpoints"
	"github.com/FndMG/mcp-api-wrapper/internal/mcp"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
)

// Version is reported in the MCP serverInfo. Set at build time.
var Version = "dev"

// Server owns every long-lived component of the process.
type Server struct {
	config      *config.Config
	logger      *slog.Logger
	endpoints   *endpoints.Table
	client      *apicall.Client
	registry    *packs.Registry
	router      *packs.Router
	mcpServer   *mcp.Server
	tokenCount  int
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	// mcpEndpoint is the advertised MCP URL (e.g., "http://localhost:8080/mcp")
	mcpEndpoint string
}

// New builds a Server from cfg. Tool name collisions and bad credentials
// configuration are startup errors.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("configuring outbound auth: %w", err)
	}

	table := endpoints.New(cfg.Backends)
	client := apicall.NewClient(apicall.ClientConfig{
		Timeout:       cfg.HTTP.Timeout,
		Authenticator: authenticator,
		Logger:        logger.With("component", "apicall"),
	})

	registry := packs.NewRegistry(logger.With("component", "pack-registry"))
	if err := registerPacks(registry, client, table, logger); err != nil {
		return nil, err
	}
	router := packs.NewRouter(packs.RouterConfig{
		Registry: registry,
		Logger:   logger.With("component", "pack-router"),
	})

	mcpCfg := mcpConfig(cfg, registry, router, logger)
	mcpServer, err := mcp.NewServer(mcpCfg)
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	tokenCount := 0
	if mcpCfg.TokenStore != nil {
		tokenCount = mcpCfg.TokenStore.TokenCount()
	}

	s := &Server{
		config:      cfg,
		logger:      logger.With("component", "server"),
		endpoints:   table,
		client:      client,
		registry:    registry,
		router:      router,
		mcpServer:   mcpServer,
		tokenCount:  tokenCount,
		mcpEndpoint: "http://" + cfg.Server.HTTPAddr + "/mcp",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mcpServer.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// registerPacks registers the templates pack and, when a system2 host is
// configured, the users pack.
func registerPacks(registry *packs.Registry, client *apicall.Client, table *endpoints.Table, logger *slog.Logger) error {
	toolLogger := logger.With("component", "tools")

	if err := registry.RegisterPack(apitools.TemplatesPack(client, table.Templates, toolLogger)); err != nil {
		return fmt.Errorf("registering templates pack: %w", err)
	}

	if table.Users.ListURL == "" {
		logger.Warn("no system2 host configured, user tools disabled")
		return nil
	}
	if err := registry.RegisterPack(apitools.UsersPack(client, table.Users, toolLogger)); err != nil {
		return fmt.Errorf("registering users pack: %w", err)
	}
	return nil
}

func mcpConfig(cfg *config.Config, registry *packs.Registry, router *packs.Router, logger *slog.Logger) mcp.Config {
	c := mcp.Config{
		Registry:     registry,
		Router:       router,
		Logger:       logger.With("component", "mcp"),
		RequireAuth:  cfg.MCP.RequireAuth,
		Name:         cfg.MCP.Name,
		Version:      Version,
		Instructions: cfg.MCP.Instructions,
	}
	if len(cfg.MCP.Tokens) > 0 {
		c.TokenStore = mcp.NewTokenStore(cfg.MCP.Tokens...)
	}
	if cfg.MCP.JWTSecret != "" {
		c.TokenVerifier = auth.NewJWTVerifier([]byte(cfg.MCP.JWTSecret))
	}
	return c
}

// Handler returns the HTTP handler serving /mcp and the health endpoints.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Tools returns the registered tool definitions sorted by name.
func (s *Server) Tools() []*packs.Definition {
	return s.registry.Definitions()
}

// Packs returns the registered packs sorted by ID.
func (s *Server) Packs() []*packs.PackInfo {
	return s.registry.ListPacks()
}

// HasTool reports whether a tool named name is registered.
func (s *Server) HasTool(name string) bool {
	return s.router.HasTool(name)
}

// Call runs a tool in-process, exactly as tools/call would.
func (s *Server) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	return s.router.RouteToolCall(ctx, name, args, "")
}

// MCPEndpoint returns the advertised MCP URL.
func (s *Server) MCPEndpoint() string {
	return s.mcpEndpoint
}

// setupTCPListener creates the plain TCP listener.
func (s *Server) setupTCPListener() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr,
			)
		}
		return s.setupTailscaleListener(ctx)
	}
	return s.setupTCPListener()
}

// Run serves until ctx is canceled or the HTTP server fails.
// Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("MCP endpoint ready",
		"addr", ln.Addr().String(),
		"endpoint", s.mcpEndpoint,
		"tools", s.registry.ToolCount(),
		"backend_timeout", s.client.Timeout(),
		"access_tokens", s.tokenCount,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// The run context is already canceled, so shutdown gets its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, cancels in-flight tool calls and releases
// the tailnet node.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	// Cancel in-flight calls first so Shutdown does not wait on slow backends
	s.router.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	s.registry.Close()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK while tools are registered.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	tools := s.registry.ToolCount()
	if tools == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no tools registered"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d tools, %d sessions, %d in flight)",
		tools, s.mcpServer.SessionCount(), s.router.PendingCount())
}
