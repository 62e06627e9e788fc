// ABOUTME: Routes tool calls to registered tool handlers.
// ABOUTME: Validates arguments against each tool's schema and tracks in-flight calls.

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrInvalidArguments indicates the arguments do not satisfy the tool's input schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// ErrDuplicateRequestID indicates the request ID is already in use.
var ErrDuplicateRequestID = errors.New("duplicate request ID")

// ErrRouterClosed indicates the router no longer accepts calls.
var ErrRouterClosed = errors.New("router closed")

// Router dispatches tool calls to the handlers in a Registry.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration

	// pending tracks in-flight calls so Close can cancel them
	mu      sync.Mutex
	pending map[string]context.CancelFunc
	closed  bool
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	// Timeout bounds a whole tool call. Zero leaves the bound to the handler.
	Timeout time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: cfg.Registry,
		logger:   logger,
		timeout:  cfg.Timeout,
		pending:  make(map[string]context.CancelFunc),
	}
}

// RouteToolCall validates input against the tool's schema and runs its handler.
// Returns ErrToolNotFound for an unknown tool and ErrInvalidArguments when
// validation fails. Handler errors are returned wrapped.
func (r *Router) RouteToolCall(ctx context.Context, toolName string, input json.RawMessage, requestID string) (json.RawMessage, error) {
	e, ok := r.registry.lookup(toolName)
	if !ok {
		r.logger.Debug("tool not found in registry",
			"tool_name", toolName,
			"request_id", requestID,
		)
		return nil, ErrToolNotFound
	}

	input = normalizeInput(input)
	if err := validate(e.schema, input); err != nil {
		r.logger.Warn("tool arguments rejected",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
		return nil, err
	}

	ctx, done, err := r.track(ctx, requestID)
	if err != nil {
		return nil, err
	}
	defer done()

	r.logger.Info("→ dispatching tool call",
		"tool_name", toolName,
		"pack_id", e.packID,
		"request_id", requestID,
	)

	start := time.Now()
	result, err := e.tool.Handler(ctx, input)
	if err != nil {
		r.logger.Warn("tool handler error",
			"tool_name", toolName,
			"request_id", requestID,
			"error", err,
		)
		return nil, fmt.Errorf("tool '%s': %w", toolName, err)
	}

	r.logger.Info("← tool responded",
		"tool_name", toolName,
		"request_id", requestID,
		"duration", time.Since(start),
	)
	return result, nil
}

// HasTool checks if a tool with the given name is registered.
func (r *Router) HasTool(toolName string) bool {
	return r.registry.GetTool(toolName) != nil
}

// track registers an in-flight call and derives its cancellable context.
func (r *Router) track(ctx context.Context, requestID string) (context.Context, func(), error) {
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		cancel()
		return nil, nil, ErrRouterClosed
	}
	if requestID != "" {
		if _, exists := r.pending[requestID]; exists {
			cancel()
			return nil, nil, ErrDuplicateRequestID
		}
		r.pending[requestID] = cancel
	}

	done := func() {
		cancel()
		if requestID == "" {
			return
		}
		r.mu.Lock()
		delete(r.pending, requestID)
		r.mu.Unlock()
	}
	return ctx, done, nil
}

// PendingCount returns the number of in-flight tool calls (for testing/monitoring).
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close cancels all in-flight calls and rejects new ones.
// This should be called during graceful shutdown to unblock any waiting callers.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cancelled := len(r.pending)
	for requestID, cancel := range r.pending {
		cancel()
		delete(r.pending, requestID)
	}
	r.closed = true

	r.logger.Info("router closed", "pending_cancelled", cancelled)
}

// normalizeInput treats absent or null arguments as an empty object.
func normalizeInput(input json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	return trimmed
}

func validate(schema *gojsonschema.Schema, input json.RawMessage) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(input))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}
