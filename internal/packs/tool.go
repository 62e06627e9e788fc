// ABOUTME: Tool and pack types registered with the Registry.
// ABOUTME: A pack is an explicit list of tools; nothing is discovered by reflection.

package packs

import (
	"context"
	"encoding/json"
)

// Handler executes a tool. It receives the tool arguments as a JSON object
// and returns the result as JSON or an error.
type Handler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Definition describes a tool as it is advertised to clients.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Tool pairs a definition with the handler that executes it.
type Tool struct {
	Definition *Definition
	Handler    Handler
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.Definition.Name }

// Pack is a collection of tools owned by one module. Only the tools listed
// here are exposed; helpers of the owning module are never listed.
type Pack struct {
	ID      string
	Version string
	Tools   []*Tool
}

// PackInfo contains public information about a registered pack.
type PackInfo struct {
	ID        string
	Version   string
	ToolNames []string
}

// emptyObjectSchema is used when a tool does not declare a schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Schema returns the tool input schema, defaulting to an empty object schema.
func (d *Definition) Schema() json.RawMessage {
	if len(d.InputSchema) == 0 {
		return emptyObjectSchema
	}
	return d.InputSchema
}
