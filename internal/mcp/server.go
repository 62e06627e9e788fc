// ABOUTME: MCP-compatible HTTP server exposing the registered tools to AI clients.
// ABOUTME: Implements Streamable HTTP transport with session management.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/FndMG/mcp-api-wrapper/internal/apicall"
	"github.com/FndMG/mcp-api-wrapper/internal/auth"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is advertised when the client asks for a version we don't speak
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Defaults for the initialize serverInfo.
const (
	DefaultName    = "mcp-api-wrapper"
	DefaultVersion = "dev"
)

// Config holds configuration for the MCP server.
type Config struct {
	Registry      *packs.Registry
	Router        *packs.Router
	Logger        *slog.Logger
	TokenVerifier auth.TokenVerifier // Bearer JWTs
	TokenStore    *TokenStore        // static tokens (path, query param or Bearer)
	RequireAuth   bool               // If true, reject initialize without valid auth
	Name          string
	Version       string
	Instructions  string
}

// Server implements MCP-compatible HTTP endpoints for AI clients.
type Server struct {
	registry     *packs.Registry
	router       *packs.Router
	logger       *slog.Logger
	verifier     auth.TokenVerifier
	tokenStore   *TokenStore
	requireAuth  bool
	info         ServerInfo
	instructions string
	sessions     *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("router is required")
	}
	if cfg.RequireAuth && cfg.TokenVerifier == nil && cfg.TokenStore == nil {
		return nil, errors.New("token verifier or token store required when auth is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info := ServerInfo{Name: cfg.Name, Version: cfg.Version}
	if info.Name == "" {
		info.Name = DefaultName
	}
	if info.Version == "" {
		info.Version = DefaultVersion
	}

	return &Server{
		registry:     cfg.Registry,
		router:       cfg.Router,
		logger:       logger,
		verifier:     cfg.TokenVerifier,
		tokenStore:   cfg.TokenStore,
		requireAuth:  cfg.RequireAuth,
		info:         info,
		instructions: cfg.Instructions,
		sessions:     newSessionStore(),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
// Supports both /mcp (bare) and /mcp/<token> (token-in-path) access patterns.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/", s.handleMCP)
}

// SessionCount returns the number of live sessions (for monitoring).
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE per the
// Streamable HTTP transport.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		// No server-initiated SSE streams, so GET is not allowed either
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleDelete terminates a session.
// Verifies the caller owns the session to prevent unauthorized termination.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	// The DELETE request must carry the same credential as initialize
	if sess.ownerToken != "" && extractOwnerToken(r) != sess.ownerToken {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.sessions.delete(sessionID)
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	rw := newResponseWriter(w, r, s.logger)
	sessionID := r.Header.Get("Mcp-Session-Id")
	protoVersion := r.Header.Get("Mcp-Protocol-Version")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		rw.sendError(http.StatusBadRequest, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		rw.sendError(http.StatusRequestEntityTooLarge, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		rw.sendError(http.StatusBadRequest, nil, JSONRPCInvalidRequest, "batch requests are not supported", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		rw.sendError(http.StatusBadRequest, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		rw.sendError(http.StatusBadRequest, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}
	if req.Method == "" {
		rw.sendError(http.StatusBadRequest, req.ID, JSONRPCInvalidRequest, "method is required", nil)
		return
	}

	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	// The protocol version header is not required on initialize
	if !isInitialize && protoVersion != "" && !supportedProtocolVersions[protoVersion] {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}

	var principal string
	if isInitialize {
		principal, err = s.authenticate(r)
		if err != nil {
			s.logger.Warn("MCP authentication failed", "error", err, "remote_addr", r.RemoteAddr)
			rw.sendError(http.StatusUnauthorized, req.ID, JSONRPCInvalidRequest, err.Error(), nil)
			return
		}
	} else {
		// Everything after initialize requires a live session
		if sessionID == "" {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		sess, ok := s.sessions.get(sessionID)
		if !ok {
			// Session expired or invalid - client must re-initialize
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		principal = sess.principal
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sessionID,
		"principal", principal,
	)

	// Notifications are accepted with HTTP 202 and no body
	if isNotification {
		if strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Debug("accepted MCP notification", "method", req.Method)
		} else {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, r, rw, req, principal)
	case "ping":
		rw.sendResult(req.ID, struct{}{})
	case "tools/list":
		s.handleToolsList(rw, req)
	case "tools/call":
		ctx := auth.WithCaller(r.Context(), auth.Caller{Principal: principal, SessionID: sessionID})
		s.handleToolsCall(ctx, rw, req, sessionID)
	default:
		rw.sendError(http.StatusOK, req.ID, JSONRPCMethodNotFound, "method not found: "+req.Method, nil)
	}
}

// handleInitialize handles the MCP initialize handshake and creates a session.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, rw *responseWriter, req JSONRPCRequest, principal string) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			rw.sendError(http.StatusOK, req.ID, JSONRPCInvalidParams, "invalid initialize params", nil)
			return
		}
	}

	version := negotiateVersion(params.ProtocolVersion)
	sess := s.sessions.create(version, principal, extractOwnerToken(r), params.ClientInfo.Name)

	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"protocol_version", sess.protocolVersion,
		"client", sess.clientName,
		"principal", principal,
	)

	// Clients send this on every subsequent request
	w.Header().Set("Mcp-Session-Id", sess.id)

	rw.sendResult(req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	})
}

// negotiateVersion echoes the client's version when supported, else offers the latest.
func negotiateVersion(requested string) string {
	if supportedProtocolVersions[requested] {
		return requested
	}
	return latestProtocolVersion
}

// handleToolsList handles tools/list requests.
func (s *Server) handleToolsList(rw *responseWriter, req JSONRPCRequest) {
	defs := s.registry.Definitions()

	result := ListToolsResult{Tools: make([]ToolInfo, len(defs))}
	for i, def := range defs {
		result.Tools[i] = ToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema(),
		}
	}

	s.logger.Debug("tools/list", "count", len(defs))
	rw.sendResult(req.ID, result)
}

// handleToolsCall handles tools/call requests. The request context flows into
// the tool so a client disconnect aborts the backend call.
func (s *Server) handleToolsCall(ctx context.Context, rw *responseWriter, req JSONRPCRequest, sessionID string) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			rw.sendError(http.StatusOK, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}

	if params.Name == "" {
		rw.sendError(http.StatusOK, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	// Generate request ID for correlation
	requestID := uuid.New().String()

	s.logger.Debug("tools/call",
		"tool_name", params.Name,
		"request_id", requestID,
		"session_id", sessionID,
	)

	output, err := s.router.RouteToolCall(ctx, params.Name, params.Arguments, requestID)
	if err != nil {
		s.handleToolError(rw, req.ID, params.Name, requestID, err)
		return
	}

	result := buildCallResult(output)

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"request_id", requestID,
		"is_error", result.IsError,
	)

	rw.sendResult(req.ID, result)
}

// buildCallResult wraps tool output as MCP content. Object payloads are also
// returned as structuredContent; the failure shape sets isError.
func buildCallResult(output json.RawMessage) CallToolResult {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		trimmed = []byte("null")
	}

	result := CallToolResult{
		Content: []Content{{Type: "text", Text: string(trimmed)}},
		IsError: apicall.IsFailure(trimmed),
	}
	if trimmed[0] == '{' {
		result.StructuredContent = json.RawMessage(trimmed)
	}
	return result
}

// handleToolError maps router errors to JSON-RPC errors.
func (s *Server) handleToolError(rw *responseWriter, id json.RawMessage, toolName, requestID string, err error) {
	s.logger.Warn("tool execution failed",
		"tool_name", toolName,
		"request_id", requestID,
		"error", err,
	)

	code := JSONRPCInternalError
	message := "tool execution failed"

	switch {
	case errors.Is(err, packs.ErrToolNotFound):
		code = JSONRPCInvalidParams
		message = "tool not found: " + toolName
	case errors.Is(err, packs.ErrInvalidArguments):
		code = JSONRPCInvalidParams
		message = err.Error()
	case errors.Is(err, packs.ErrRouterClosed):
		message = "server is shutting down"
	case errors.Is(err, packs.ErrDuplicateRequestID):
		message = "duplicate request ID"
	case errors.Is(err, context.DeadlineExceeded):
		message = "tool execution timed out"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}

	rw.sendError(http.StatusOK, id, code, message, nil)
}

// errInvalidToken is returned when a token is provided but invalid/expired.
// A presented credential is always checked, even when auth is optional.
var errInvalidToken = errors.New("invalid or expired token")

// errAuthRequired is returned when auth is required and none was presented.
var errAuthRequired = errors.New("authentication required")

// authenticate resolves the caller's principal. Credentials are taken from the
// path (/mcp/<token>), the token query parameter, or a Bearer header, in that order.
func (s *Server) authenticate(r *http.Request) (string, error) {
	if pathToken := strings.TrimPrefix(r.URL.Path, "/mcp/"); pathToken != "" && pathToken != r.URL.Path {
		// Normalize: trim trailing slashes and reject extra path segments
		pathToken = strings.TrimRight(pathToken, "/")
		if strings.Contains(pathToken, "/") {
			return "", errInvalidToken
		}
		return s.lookupStatic(pathToken)
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return s.lookupStatic(token)
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if s.requireAuth {
			return "", errAuthRequired
		}
		return "", nil
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", errInvalidToken
	}

	if principal, err := s.lookupStatic(token); err == nil {
		return principal, nil
	}
	if s.verifier == nil {
		return "", errInvalidToken
	}
	principal, err := s.verifier.Verify(token)
	if err != nil {
		return "", errInvalidToken
	}
	return principal, nil
}

func (s *Server) lookupStatic(token string) (string, error) {
	if s.tokenStore != nil {
		if principal, ok := s.tokenStore.Principal(token); ok {
			return principal, nil
		}
	}
	return "", errInvalidToken
}

// extractOwnerToken derives a stable identity string from the request's auth
// credentials. Used to bind sessions to their creator for ownership verification.
func extractOwnerToken(r *http.Request) string {
	if pathToken := strings.TrimPrefix(r.URL.Path, "/mcp/"); pathToken != "" && pathToken != r.URL.Path {
		return strings.TrimRight(pathToken, "/")
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}
