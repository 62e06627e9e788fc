// ABOUTME: Call logging wrapper applied to every tool handler.
// ABOUTME: Logs the tool name and its named arguments before the handler runs.

package packs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/FndMG/mcp-api-wrapper/internal/auth"
)

// Logged wraps h so every invocation logs
//
//	Request received: get_template_detail(template_id="42")
//
// at info level before h runs, tagged with the caller when the context carries one. argNames lists the arguments to render, in
// order; arguments missing from the call are skipped. The wrapper never
// changes the input or the result.
func Logged(logger *slog.Logger, name string, argNames []string, h Handler) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		attrs := []any{"tool", name}
		if c, ok := auth.CallerFromContext(ctx); ok {
			if c.Principal != "" {
				attrs = append(attrs, "principal", c.Principal)
			}
			attrs = append(attrs, "session_id", c.SessionID)
		}
		logger.Info(FormatCall(name, argNames, input), attrs...)
		return h(ctx, input)
	}
}

// FormatCall renders a call as "Request received: name(a=1, b="x")".
// Values are rendered as compact JSON.
func FormatCall(name string, argNames []string, input json.RawMessage) string {
	var args map[string]json.RawMessage
	_ = json.Unmarshal(input, &args)

	parts := make([]string, 0, len(argNames))
	for _, arg := range argNames {
		raw, ok := args[arg]
		if !ok {
			continue
		}
		parts = append(parts, arg+"="+compact(raw))
	}
	return "Request received: " + name + "(" + strings.Join(parts, ", ") + ")"
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
