// ABOUTME: Tests for the template and user tool packs.
// ABOUTME: Runs the tools through the router against the stub backend.

package apitools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FndMG/mcp-api-wrapper/internal/apicall"
	"github.com/FndMG/mcp-api-wrapper/internal/config"
	"github.com/FndMG/mcp-api-wrapper/internal/endpoints"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
	"github.com/FndMG/mcp-api-wrapper/internal/stub"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCaller records the requests a tool would send.
type fakeCaller struct {
	mu      sync.Mutex
	urls    []string
	methods []string
	result  apicall.Result
}

func (f *fakeCaller) Call(_ context.Context, apiURL string, _ map[string]any, method string) apicall.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, apiURL)
	f.methods = append(f.methods, method)
	return f.result
}

type harness struct {
	stub   *stub.Server
	table  *endpoints.Table
	router *packs.Router
}

// newHarness wires both packs to a stub backend through a real call wrapper.
func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	backend := stub.New(discardLogger())
	ts := httptest.NewServer(backend)
	t.Cleanup(ts.Close)

	table := endpoints.New(config.BackendsConfig{
		API:     config.BackendConfig{HostName: ts.URL},
		System2: config.BackendConfig{HostName: ts.URL},
	})
	client := apicall.NewClient(apicall.ClientConfig{Timeout: timeout, Logger: discardLogger()})

	registry := packs.NewRegistry(discardLogger())
	require.NoError(t, registry.RegisterPack(TemplatesPack(client, table.Templates, discardLogger())))
	require.NoError(t, registry.RegisterPack(UsersPack(client, table.Users, discardLogger())))

	return &harness{
		stub:   backend,
		table:  table,
		router: packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: discardLogger()}),
	}
}

func (h *harness) call(t *testing.T, tool, args string) map[string]any {
	t.Helper()
	raw, err := h.router.RouteToolCall(context.Background(), tool, json.RawMessage(args), "")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func toolNames(p *packs.Pack) []string {
	names := make([]string, 0, len(p.Tools))
	for _, tool := range p.Tools {
		names = append(names, tool.Name())
	}
	sort.Strings(names)
	return names
}

func TestPacksExposeOnlyListedTools(t *testing.T) {
	caller := &fakeCaller{}

	templates := TemplatesPack(caller, endpoints.Templates{}, nil)
	assert.Equal(t, TemplatesPackID, templates.ID)
	assert.Equal(t, []string{"get_template_detail", "get_template_list"}, toolNames(templates))

	users := UsersPack(caller, endpoints.Users{}, nil)
	assert.Equal(t, UsersPackID, users.ID)
	assert.Equal(t, []string{"get_user_detail", "get_user_list"}, toolNames(users))

	registry := packs.NewRegistry(discardLogger())
	require.NoError(t, registry.RegisterPack(templates))
	require.NoError(t, registry.RegisterPack(users))
	assert.Equal(t, 4, registry.ToolCount())
	for _, helper := range []string{"detail", "get", "listTool", "decodeArgs"} {
		assert.Nil(t, registry.GetTool(helper), "helper %s must not be exposed", helper)
	}
}

func TestGetTemplateList(t *testing.T) {
	h := newHarness(t, 10*time.Second)

	out := h.call(t, "get_template_list", `{}`)

	list, ok := out["template_list"].([]any)
	require.True(t, ok, "unexpected payload: %v", out)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, float64(1), first["template_id"])
	assert.Equal(t, "Subject A", first["subject"])
	assert.Equal(t, int64(1), h.stub.Requests(), "exactly one backend request")
}

func TestGetTemplateListIsIdempotent(t *testing.T) {
	h := newHarness(t, 10*time.Second)

	first := h.call(t, "get_template_list", `{}`)
	second := h.call(t, "get_template_list", `{}`)

	assert.Equal(t, first, second)
}

func TestGetTemplateListBusyBackend(t *testing.T) {
	h := newHarness(t, 10*time.Second)
	h.stub.SetBusy(true)

	out := h.call(t, "get_template_list", `{}`)

	assert.Equal(t, "error", out["status"])
	message, _ := out["message"].(string)
	assert.Contains(t, message, h.table.Templates.ListURL)
	assert.Contains(t, message, "503")
	assert.Equal(t, int64(1), h.stub.Requests(), "failures are not retried")
}

func TestGetTemplateListDelayedBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("waits two seconds on the backend")
	}
	h := newHarness(t, 10*time.Second)
	h.stub.SetDelay(2 * time.Second)

	start := time.Now()
	out := h.call(t, "get_template_list", `{}`)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 10*time.Second)
	list, ok := out["template_list"].([]any)
	require.True(t, ok, "unexpected payload: %v", out)
	assert.Len(t, list, 2)
}

func TestGetTemplateListTimeout(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	h.stub.SetDelay(time.Minute)

	start := time.Now()
	out := h.call(t, "get_template_list", `{}`)

	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], "API request error ("+h.table.Templates.ListURL+")")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGetTemplateDetail(t *testing.T) {
	h := newHarness(t, 10*time.Second)

	for _, args := range []string{`{"template_id": "1"}`, `{"template_id": 1}`} {
		out := h.call(t, "get_template_detail", args)
		assert.Equal(t, float64(1), out["template_id"])
		assert.Equal(t, "This is the body of Template A.", out["body"])
	}
}

func TestGetTemplateDetailNotFound(t *testing.T) {
	h := newHarness(t, 10*time.Second)

	out := h.call(t, "get_template_detail", `{"template_id": "99"}`)

	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], h.table.Templates.DetailURL+"/99")
	assert.Contains(t, out["message"], "404")
	assert.Contains(t, out["message"], "Template not found")
}

func TestGetTemplateDetailRejectsBadArguments(t *testing.T) {
	h := newHarness(t, 10*time.Second)

	for _, args := range []string{`{}`, `{"template_id": ""}`, `{"template_id": 1.5}`, `{"template_id": "1", "extra": true}`} {
		_, err := h.router.RouteToolCall(context.Background(), "get_template_detail", json.RawMessage(args), "")
		assert.ErrorIs(t, err, packs.ErrInvalidArguments, "args %s", args)
	}
	assert.Equal(t, int64(0), h.stub.Requests())
}

func TestUserTools(t *testing.T) {
	h := newHarness(t, 10*time.Second)

	list := h.call(t, "get_user_list", `{}`)
	users, ok := list["user_list"].([]any)
	require.True(t, ok, "unexpected payload: %v", list)
	assert.Len(t, users, 2)

	user := h.call(t, "get_user_detail", `{"user_id": "2"}`)
	assert.Equal(t, "Bob", user["name"])
	assert.Equal(t, "member", user["role"])
}

func TestDetailEscapesID(t *testing.T) {
	caller := &fakeCaller{result: apicall.Succeeded(map[string]any{})}
	pack := TemplatesPack(caller, endpoints.Templates{DetailURL: "http://api/templates"}, discardLogger())

	var detail *packs.Tool
	for _, tool := range pack.Tools {
		if tool.Name() == "get_template_detail" {
			detail = tool
		}
	}
	require.NotNil(t, detail)

	_, err := detail.Handler(context.Background(), json.RawMessage(`{"template_id": "a/b c"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://api/templates/a%2Fb%20c"}, caller.urls)
	assert.Equal(t, []string{"GET"}, caller.methods)
}

func TestDetailRejectsDotSegmentIDs(t *testing.T) {
	t.Run("schema rejects before dispatch", func(t *testing.T) {
		h := newHarness(t, 10*time.Second)
		for _, tool := range []string{"get_template_detail", "get_user_detail"} {
			arg := "template_id"
			if tool == "get_user_detail" {
				arg = "user_id"
			}
			for _, id := range []string{".", ".."} {
				args := fmt.Sprintf(`{%q: %q}`, arg, id)
				_, err := h.router.RouteToolCall(context.Background(), tool, json.RawMessage(args), "")
				assert.ErrorIs(t, err, packs.ErrInvalidArguments, "%s %s", tool, args)
			}
		}
		assert.Equal(t, int64(0), h.stub.Requests())
	})

	t.Run("handler rejects without the schema", func(t *testing.T) {
		caller := &fakeCaller{result: apicall.Succeeded(map[string]any{})}
		pack := UsersPack(caller, endpoints.Users{DetailURL: "http://api/users"}, discardLogger())

		for _, id := range []string{".", ".."} {
			_, err := pack.Tools[1].Handler(context.Background(), json.RawMessage(fmt.Sprintf(`{"user_id": %q}`, id)))
			assert.ErrorIs(t, err, packs.ErrInvalidArguments, "id %q", id)
		}
		assert.Empty(t, caller.urls)
	})

	t.Run("dots inside an id are allowed", func(t *testing.T) {
		caller := &fakeCaller{result: apicall.Succeeded(map[string]any{})}
		pack := UsersPack(caller, endpoints.Users{DetailURL: "http://api/users"}, discardLogger())

		_, err := pack.Tools[1].Handler(context.Background(), json.RawMessage(`{"user_id": "..a"}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"http://api/users/..a"}, caller.urls)
	})
}

func TestHandlerReturnsFailureVerbatim(t *testing.T) {
	caller := &fakeCaller{result: apicall.Failed("API request error (%s): %s", "http://api/users", "refused")}
	pack := UsersPack(caller, endpoints.Users{ListURL: "http://api/users"}, discardLogger())

	raw, err := pack.Tools[0].Handler(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"API request error (http://api/users): refused"}`, string(raw))
	assert.True(t, apicall.IsFailure(raw))
}

func TestHandlerUndecodableArguments(t *testing.T) {
	pack := UsersPack(&fakeCaller{}, endpoints.Users{}, discardLogger())

	_, err := pack.Tools[1].Handler(context.Background(), json.RawMessage(`{"user_id": {}}`))
	assert.True(t, errors.Is(err, packs.ErrInvalidArguments), "got %v", err)
}

func TestToolCallsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	caller := &fakeCaller{result: apicall.Succeeded(nil)}
	pack := TemplatesPack(caller, endpoints.Templates{DetailURL: "http://api/templates"}, logger)

	_, err := pack.Tools[1].Handler(context.Background(), json.RawMessage(`{"template_id":"7"}`))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `Request received: get_template_detail(template_id=\"7\")`)
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{`"42"`, "42"},
		{`42`, "42"},
		{`9007199254740993`, "9007199254740993"},
		{`"a b"`, "a b"},
	}
	for _, tt := range tests {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(tt.in), &id), tt.in)
		assert.Equal(t, tt.want, id)
	}

	var id ID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
	assert.ErrorIs(t, json.Unmarshal([]byte(`"."`), &id), ErrDotSegmentID)
	assert.ErrorIs(t, json.Unmarshal([]byte(`".."`), &id), ErrDotSegmentID)
}
