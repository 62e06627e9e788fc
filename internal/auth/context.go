// ABOUTME: Caller identity carried through tool execution via context.
// ABOUTME: Set by the MCP endpoint, read by call logging.

package auth

import "context"

// Caller identifies who issued a tool call.
type Caller struct {
	Principal string // authenticated principal, empty when auth is off
	SessionID string // MCP session the call arrived on
}

type callerKey struct{}

// WithCaller returns a new context carrying c.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the Caller stored in ctx, if any.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
