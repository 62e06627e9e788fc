// ABOUTME: Tests for the MCP HTTP server including the handshake, tool listing and execution.
// ABOUTME: Validates sessions, auth handling, response framing and error mapping.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FndMG/mcp-api-wrapper/internal/auth"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rawTool returns a tool that always answers with output.
func rawTool(name, output string) *packs.Tool {
	return &packs.Tool{
		Definition: &packs.Definition{Name: name, Description: name + " description"},
		Handler: func(context.Context, json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(output), nil
		},
	}
}

// setupTestRegistry creates a registry with test tools.
func setupTestRegistry(t *testing.T, extra ...*packs.Tool) *packs.Registry {
	t.Helper()
	registry := packs.NewRegistry(testLogger())

	tools := []*packs.Tool{
		rawTool("get_thing_list", `{"thing_list":[{"id":1}]}`),
		rawTool("get_array", `[1,2,3]`),
		rawTool("get_failure", `{"status":"error","message":"API response error (http://x/things): 503 Service Unavailable: busy"}`),
		{
			Definition: &packs.Definition{
				Name:        "get_thing_detail",
				Description: "detail",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"thing_id":{"type":"string"}},"required":["thing_id"]}`),
			},
			Handler: func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
				return input, nil
			},
		},
		{
			Definition: &packs.Definition{Name: "broken"},
			Handler: func(context.Context, json.RawMessage) (json.RawMessage, error) {
				return nil, errors.New("kaput")
			},
		},
	}
	tools = append(tools, extra...)

	if err := registry.RegisterPack(&packs.Pack{ID: "test-pack", Version: "1.0.0", Tools: tools}); err != nil {
		t.Fatalf("failed to register test pack: %v", err)
	}
	return registry
}

type testServer struct {
	mcp *Server
	url string
}

func newTestServer(t *testing.T, cfg Config, extra ...*packs.Tool) *testServer {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = setupTestRegistry(t, extra...)
	}
	if cfg.Router == nil {
		cfg.Router = packs.NewRouter(packs.RouterConfig{Registry: cfg.Registry, Logger: testLogger()})
	}
	cfg.Logger = testLogger()

	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testServer{mcp: server, url: ts.URL + "/mcp"}
}

type rpcResult struct {
	status  int
	header  http.Header
	body    string
	decoded JSONRPCResponse
	result  json.RawMessage
}

// post sends one JSON-RPC message and decodes the JSON response, if any.
func post(t *testing.T, url, sessionID, body string, headers map[string]string) rpcResult {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	out := rpcResult{status: resp.StatusCode, header: resp.Header, body: string(data)}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw struct {
			JSONRPCResponse
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("decoding response %q: %v", data, err)
		}
		out.decoded = raw.JSONRPCResponse
		out.result = raw.Result
	}
	return out
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`

// initialize performs the handshake and returns the session ID.
func initialize(t *testing.T, url string, headers map[string]string) string {
	t.Helper()
	res := post(t, url, "", initializeBody, headers)
	if res.status != http.StatusOK {
		t.Fatalf("initialize status = %d, body %s", res.status, res.body)
	}
	sessionID := res.header.Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("initialize returned no Mcp-Session-Id")
	}
	return sessionID
}

func callTool(t *testing.T, url, sessionID, name, args string) rpcResult {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"` + name + `","arguments":` + args + `}}`
	return post(t, url, sessionID, body, nil)
}

func TestInitialize(t *testing.T) {
	t.Run("creates session and echoes supported version", func(t *testing.T) {
		ts := newTestServer(t, Config{Name: "wrapper", Version: "1.2.3", Instructions: "Use these APIs to support users."})

		res := post(t, ts.url, "", initializeBody, nil)
		if res.status != http.StatusOK {
			t.Fatalf("expected 200, got %d", res.status)
		}
		if res.header.Get("Mcp-Session-Id") == "" {
			t.Error("expected Mcp-Session-Id header")
		}

		var result InitializeResult
		if err := json.Unmarshal(res.result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if result.ProtocolVersion != "2025-06-18" {
			t.Errorf("expected echoed version, got %s", result.ProtocolVersion)
		}
		if result.ServerInfo.Name != "wrapper" || result.ServerInfo.Version != "1.2.3" {
			t.Errorf("unexpected serverInfo: %+v", result.ServerInfo)
		}
		if result.Instructions != "Use these APIs to support users." {
			t.Errorf("unexpected instructions: %q", result.Instructions)
		}
		if _, ok := result.Capabilities["tools"]; !ok {
			t.Error("expected tools capability")
		}
		if ts.mcp.SessionCount() != 1 {
			t.Errorf("expected 1 session, got %d", ts.mcp.SessionCount())
		}
	})

	t.Run("offers latest version for unknown request", func(t *testing.T) {
		ts := newTestServer(t, Config{})

		res := post(t, ts.url, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`, nil)

		var result InitializeResult
		if err := json.Unmarshal(res.result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if result.ProtocolVersion != latestProtocolVersion {
			t.Errorf("expected %s, got %s", latestProtocolVersion, result.ProtocolVersion)
		}
		if result.ServerInfo.Name != DefaultName {
			t.Errorf("expected default name, got %s", result.ServerInfo.Name)
		}
	})
}

func TestSessionHandling(t *testing.T) {
	ts := newTestServer(t, Config{})

	t.Run("notification is accepted with 202", func(t *testing.T) {
		sessionID := initialize(t, ts.url, nil)
		res := post(t, ts.url, sessionID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, nil)
		if res.status != http.StatusAccepted {
			t.Errorf("expected 202, got %d", res.status)
		}
		if res.body != "" {
			t.Errorf("expected empty body, got %q", res.body)
		}
	})

	t.Run("missing session is rejected", func(t *testing.T) {
		res := post(t, ts.url, "", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil)
		if res.status != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", res.status)
		}
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		res := post(t, ts.url, "no-such-session", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil)
		if res.status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", res.status)
		}
	})

	t.Run("delete ends the session", func(t *testing.T) {
		sessionID := initialize(t, ts.url, nil)

		req, _ := http.NewRequest(http.MethodDelete, ts.url, nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}

		res := post(t, ts.url, sessionID, `{"jsonrpc":"2.0","id":3,"method":"ping"}`, nil)
		if res.status != http.StatusNotFound {
			t.Errorf("expected 404 after delete, got %d", res.status)
		}
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.url)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})

	t.Run("unsupported protocol version header is rejected", func(t *testing.T) {
		sessionID := initialize(t, ts.url, nil)
		res := post(t, ts.url, sessionID, `{"jsonrpc":"2.0","id":4,"method":"ping"}`,
			map[string]string{"Mcp-Protocol-Version": "1999-01-01"})
		if res.status != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", res.status)
		}
	})
}

func TestMalformedRequests(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name   string
		body   string
		status int
		code   int
	}{
		{"invalid JSON", `{"jsonrpc":`, http.StatusBadRequest, JSONRPCParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, http.StatusBadRequest, JSONRPCInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, http.StatusBadRequest, JSONRPCInvalidRequest},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, http.StatusBadRequest, JSONRPCInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := post(t, ts.url, "", tt.body, nil)
			if res.status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, res.status)
			}
			if res.decoded.Error == nil || res.decoded.Error.Code != tt.code {
				t.Errorf("expected error code %d, got %+v", tt.code, res.decoded.Error)
			}
		})
	}
}

func TestOversizedBody(t *testing.T) {
	registry := setupTestRegistry(t)
	server, err := NewServer(Config{
		Registry: registry,
		Router:   packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: testLogger()}),
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"pad":"` + strings.Repeat("x", MaxRequestBodySize) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleMCP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if server.SessionCount() != 0 {
		t.Error("oversized initialize must not create a session")
	}
}

func TestPingAndUnknownMethod(t *testing.T) {
	ts := newTestServer(t, Config{})
	sessionID := initialize(t, ts.url, nil)

	res := post(t, ts.url, sessionID, `{"jsonrpc":"2.0","id":"p1","method":"ping"}`, nil)
	if string(res.result) != "{}" {
		t.Errorf("expected empty ping result, got %s", res.result)
	}
	if string(res.decoded.ID) != `"p1"` {
		t.Errorf("expected id echoed, got %s", res.decoded.ID)
	}

	res = post(t, ts.url, sessionID, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`, nil)
	if res.decoded.Error == nil || res.decoded.Error.Code != JSONRPCMethodNotFound {
		t.Errorf("expected method not found, got %+v", res.decoded.Error)
	}
}

func TestToolsList(t *testing.T) {
	ts := newTestServer(t, Config{})
	sessionID := initialize(t, ts.url, nil)

	res := post(t, ts.url, sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, nil)

	var result ListToolsResult
	if err := json.Unmarshal(res.result, &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		if len(tool.InputSchema) == 0 {
			t.Errorf("tool %s has no inputSchema", tool.Name)
		}
	}
	want := "broken,get_array,get_failure,get_thing_detail,get_thing_list"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("expected tools %s, got %s", want, got)
	}
}

func TestToolsCall(t *testing.T) {
	ts := newTestServer(t, Config{})
	sessionID := initialize(t, ts.url, nil)

	decode := func(t *testing.T, res rpcResult) CallToolResult {
		t.Helper()
		if res.decoded.Error != nil {
			t.Fatalf("unexpected error: %+v", res.decoded.Error)
		}
		var result CallToolResult
		if err := json.Unmarshal(res.result, &result); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		return result
	}

	t.Run("object payload", func(t *testing.T) {
		result := decode(t, callTool(t, ts.url, sessionID, "get_thing_list", `{}`))
		if result.IsError {
			t.Error("expected isError false")
		}
		if len(result.Content) != 1 || result.Content[0].Type != "text" {
			t.Fatalf("unexpected content: %+v", result.Content)
		}
		if result.Content[0].Text != `{"thing_list":[{"id":1}]}` {
			t.Errorf("unexpected text: %s", result.Content[0].Text)
		}
		if string(result.StructuredContent) != `{"thing_list":[{"id":1}]}` {
			t.Errorf("unexpected structuredContent: %s", result.StructuredContent)
		}
	})

	t.Run("array payload has no structured content", func(t *testing.T) {
		result := decode(t, callTool(t, ts.url, sessionID, "get_array", `{}`))
		if result.StructuredContent != nil {
			t.Errorf("expected no structuredContent, got %s", result.StructuredContent)
		}
		if result.Content[0].Text != `[1,2,3]` {
			t.Errorf("unexpected text: %s", result.Content[0].Text)
		}
	})

	t.Run("failure shape sets isError", func(t *testing.T) {
		result := decode(t, callTool(t, ts.url, sessionID, "get_failure", `{}`))
		if !result.IsError {
			t.Error("expected isError true")
		}
		if !strings.Contains(result.Content[0].Text, "503") {
			t.Errorf("unexpected text: %s", result.Content[0].Text)
		}
	})

	t.Run("arguments reach the handler", func(t *testing.T) {
		result := decode(t, callTool(t, ts.url, sessionID, "get_thing_detail", `{"thing_id":"42"}`))
		if result.Content[0].Text != `{"thing_id":"42"}` {
			t.Errorf("unexpected text: %s", result.Content[0].Text)
		}
	})

	errorCases := []struct {
		name string
		tool string
		args string
		code int
	}{
		{"unknown tool", "nope", `{}`, JSONRPCInvalidParams},
		{"invalid arguments", "get_thing_detail", `{"thing_id": 5}`, JSONRPCInvalidParams},
		{"handler error", "broken", `{}`, JSONRPCInternalError},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, ts.url, sessionID, tt.tool, tt.args)
			if res.status != http.StatusOK {
				t.Errorf("expected HTTP 200, got %d", res.status)
			}
			if res.decoded.Error == nil || res.decoded.Error.Code != tt.code {
				t.Errorf("expected error code %d, got %+v", tt.code, res.decoded.Error)
			}
		})
	}

	t.Run("missing tool name", func(t *testing.T) {
		res := post(t, ts.url, sessionID, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{}}`, nil)
		if res.decoded.Error == nil || res.decoded.Error.Code != JSONRPCInvalidParams {
			t.Errorf("expected invalid params, got %+v", res.decoded.Error)
		}
	})
}

func TestSSEFraming(t *testing.T) {
	ts := newTestServer(t, Config{})

	res := post(t, ts.url, "", initializeBody, map[string]string{"Accept": "text/event-stream"})
	if ct := res.header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	var event, data string
	scanner := bufio.NewScanner(strings.NewReader(res.body))
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
		}
	}
	if event != "message" {
		t.Errorf("expected message event, got %q", event)
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		t.Fatalf("decoding SSE data %q: %v", data, err)
	}
	if resp.Error != nil || resp.Result == nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestToolCallCancelledWithClient(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	blocking := &packs.Tool{
		Definition: &packs.Definition{Name: "slow"},
		Handler: func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		},
	}
	ts := newTestServer(t, Config{}, blocking)
	sessionID := initialize(t, ts.url, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.url,
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"slow"}}`))
	req.Header.Set("Mcp-Session-Id", sessionID)

	go func() {
		<-started
		cancel()
	}()
	if resp, err := http.DefaultClient.Do(req); err == nil {
		resp.Body.Close()
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("tool context was not cancelled when the client went away")
	}
}

func TestAuthentication(t *testing.T) {
	secret := []byte("test-secret-key-at-least-32-bytes!")
	verifier := auth.NewJWTVerifier(secret)
	jwtToken, err := auth.NewSigner(secret).Sign("agent-1", time.Hour)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	cfg := func() Config {
		return Config{
			TokenStore:    NewTokenStore("static-token"),
			TokenVerifier: verifier,
			RequireAuth:   true,
		}
	}

	t.Run("rejects initialize without credentials", func(t *testing.T) {
		ts := newTestServer(t, cfg())
		res := post(t, ts.url, "", initializeBody, nil)
		if res.status != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", res.status)
		}
		if res.decoded.Error == nil || !strings.Contains(res.decoded.Error.Message, "authentication required") {
			t.Errorf("unexpected error: %+v", res.decoded.Error)
		}
	})

	t.Run("accepts static token in each position", func(t *testing.T) {
		ts := newTestServer(t, cfg())
		initialize(t, ts.url, map[string]string{"Authorization": "Bearer static-token"})
		initialize(t, ts.url+"/static-token", nil)
		initialize(t, ts.url+"?token=static-token", nil)
	})

	t.Run("accepts JWT bearer", func(t *testing.T) {
		ts := newTestServer(t, cfg())
		initialize(t, ts.url, map[string]string{"Authorization": "Bearer " + jwtToken})
	})

	t.Run("rejects bad credentials even when auth is optional", func(t *testing.T) {
		c := cfg()
		c.RequireAuth = false
		ts := newTestServer(t, c)

		for _, tc := range []struct {
			url     string
			headers map[string]string
		}{
			{ts.url, map[string]string{"Authorization": "Bearer wrong"}},
			{ts.url, map[string]string{"Authorization": "Basic abc"}},
			{ts.url + "/wrong", nil},
			{ts.url + "/a/b", nil},
			{ts.url + "?token=wrong", nil},
		} {
			res := post(t, tc.url, "", initializeBody, tc.headers)
			if res.status != http.StatusUnauthorized {
				t.Errorf("%s %v: expected 401, got %d", tc.url, tc.headers, res.status)
			}
		}

		initialize(t, ts.url, nil)
	})

	t.Run("delete requires the owning credential", func(t *testing.T) {
		ts := newTestServer(t, cfg())
		sessionID := initialize(t, ts.url, map[string]string{"Authorization": "Bearer static-token"})

		req, _ := http.NewRequest(http.MethodDelete, ts.url, nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", resp.StatusCode)
		}
	})
}

func TestNewServerValidation(t *testing.T) {
	registry := setupTestRegistry(t)
	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: testLogger()})

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Registry: registry, Router: router}, false},
		{"missing registry", Config{Router: router}, true},
		{"missing router", Config{Registry: registry}, true},
		{"auth without verifier", Config{Registry: registry, Router: router, RequireAuth: true}, true},
		{"auth with token store", Config{Registry: registry, Router: router, RequireAuth: true, TokenStore: NewTokenStore("t")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildCallResult(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantText   string
		structured bool
		isError    bool
	}{
		{"object", `{"a":1}`, `{"a":1}`, true, false},
		{"array", `[{"a":1}]`, `[{"a":1}]`, false, false},
		{"empty", ``, `null`, false, false},
		{"failure", `{"status":"error","message":"boom"}`, `{"status":"error","message":"boom"}`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := buildCallResult(json.RawMessage(tt.output))
			if result.Content[0].Text != tt.wantText {
				t.Errorf("text = %s, want %s", result.Content[0].Text, tt.wantText)
			}
			if (result.StructuredContent != nil) != tt.structured {
				t.Errorf("structuredContent = %s", result.StructuredContent)
			}
			if result.IsError != tt.isError {
				t.Errorf("isError = %v, want %v", result.IsError, tt.isError)
			}
		})
	}
}
