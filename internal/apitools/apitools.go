// ABOUTME: Shared plumbing for the backend tool packs.
// ABOUTME: Argument decoding, id handling and result encoding used by every tool.

package apitools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/FndMG/mcp-api-wrapper/internal/apicall"
	"github.com/FndMG/mcp-api-wrapper/internal/packs"
)

// PackVersion is reported for every pack in this package.
const PackVersion = "1.0.0"

// Caller issues one backend request. *apicall.Client implements it.
type Caller interface {
	Call(ctx context.Context, apiURL string, params map[string]any, method string) apicall.Result
}

// ID is a path identifier accepted from clients as a JSON string or number.
type ID string

// ErrDotSegmentID rejects ids that would resolve to a parent or the
// collection itself once joined onto a detail URL.
var ErrDotSegmentID = errors.New(`id must not be "." or ".."`)

// UnmarshalJSON accepts "42" and 42 alike.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "." || s == ".." {
			return ErrDotSegmentID
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// idSchema builds the input schema for a tool taking one required id argument.
func idSchema(name, description string) json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{
				"type":        []string{"string", "integer"},
				"minLength":   1,
				"not":         map[string]any{"enum": []string{".", ".."}},
				"description": description,
			},
		},
		"required":             []string{name},
		"additionalProperties": false,
	}
	data, _ := json.Marshal(schema)
	return data
}

// noArgsSchema is the input schema for tools that take no arguments.
var noArgsSchema = json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)

// decodeArgs decodes the tool input into v. Failures wrap packs.ErrInvalidArguments.
func decodeArgs(input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("%w: %v", packs.ErrInvalidArguments, err)
	}
	return nil
}

// get issues a GET and encodes the result, success or failure, as the tool output.
func get(ctx context.Context, caller Caller, apiURL string) (json.RawMessage, error) {
	result := caller.Call(ctx, apiURL, nil, http.MethodGet)
	return json.Marshal(result)
}

// listTool builds a tool that fetches a fixed collection URL.
func listTool(caller Caller, logger *slog.Logger, name, description, listURL string) *packs.Tool {
	handler := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return get(ctx, caller, listURL)
	}
	return &packs.Tool{
		Definition: &packs.Definition{
			Name:        name,
			Description: description,
			InputSchema: noArgsSchema,
		},
		Handler: packs.Logged(logger, name, nil, handler),
	}
}
