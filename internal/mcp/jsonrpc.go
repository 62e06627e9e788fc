// ABOUTME: JSON-RPC 2.0 and MCP wire types plus response framing.
// ABOUTME: Responses are plain JSON or a single SSE "message" event depending on Accept.

package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCP-specific types

// InitializeParams are the params for initialize.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

// ServerInfo identifies the server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result for initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
}

// ToolInfo represents an MCP tool definition.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content           []Content       `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// Content represents content in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// responseWriter frames JSON-RPC responses for one HTTP request.
type responseWriter struct {
	w      http.ResponseWriter
	sse    bool
	logger *slog.Logger
}

// newResponseWriter picks SSE framing when the client accepts an event stream but not JSON.
func newResponseWriter(w http.ResponseWriter, r *http.Request, logger *slog.Logger) *responseWriter {
	accept := strings.ToLower(r.Header.Get("Accept"))
	sse := strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "application/json")
	return &responseWriter{w: w, sse: sse, logger: logger}
}

func (rw *responseWriter) sendResult(id json.RawMessage, result any) {
	rw.write(http.StatusOK, JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (rw *responseWriter) sendError(status int, id json.RawMessage, code int, message string, data any) {
	rw.write(status, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	})
}

func (rw *responseWriter) write(status int, resp JSONRPCResponse) {
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	data, err := json.Marshal(resp)
	if err != nil {
		rw.logger.Warn("failed to encode JSON-RPC response", "error", err)
		http.Error(rw.w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if rw.sse {
		rw.w.Header().Set("Content-Type", "text/event-stream")
		rw.w.Header().Set("Cache-Control", "no-cache")
		rw.w.WriteHeader(status)
		fmt.Fprintf(rw.w, "event: message\ndata: %s\n\n", data)
		if f, ok := rw.w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	rw.w.Header().Set("Content-Type", "application/json")
	rw.w.WriteHeader(status)
	_, _ = rw.w.Write(append(data, '\n'))
}
