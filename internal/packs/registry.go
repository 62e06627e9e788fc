// ABOUTME: Thread-safe registry for tool packs and their tools.
// ABOUTME: Manages pack registration, collision detection and tool lookup.

package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrPackAlreadyRegistered indicates a pack with the same ID is already registered.
var ErrPackAlreadyRegistered = errors.New("pack already registered")

// ErrToolCollision indicates a tool name already exists, in another pack or the same one.
var ErrToolCollision = errors.New("tool name collision")

// ErrInvalidTool indicates a tool without a name, handler or a usable input schema.
var ErrInvalidTool = errors.New("invalid tool")

// entry stores a registered tool with its pack ID and compiled input schema.
type entry struct {
	tool   *Tool
	packID string
	schema *gojsonschema.Schema
}

// Registry maintains the registered packs and their tools.
type Registry struct {
	mu     sync.RWMutex
	packs  map[string]*Pack
	tools  map[string]*entry // global tool name -> entry (for collision detection)
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		packs:  make(map[string]*Pack),
		tools:  make(map[string]*entry),
		logger: logger,
	}
}

// RegisterPack validates and stores a pack and its tools.
// Returns ErrPackAlreadyRegistered if a pack with the same ID exists.
// Returns ErrToolCollision if any tool name is already registered or repeated within the pack.
// Returns ErrInvalidTool for a tool with no name, no handler or an uncompilable schema.
// Nothing is registered when an error is returned.
func (r *Registry) RegisterPack(pack *Pack) error {
	if pack == nil || pack.ID == "" {
		return fmt.Errorf("%w: pack must have an ID", ErrInvalidTool)
	}

	// Compile schemas before taking the lock.
	entries := make(map[string]*entry, len(pack.Tools))
	for _, tool := range pack.Tools {
		if tool == nil || tool.Definition == nil || tool.Definition.Name == "" {
			return fmt.Errorf("%w: pack '%s' lists a tool without a name", ErrInvalidTool, pack.ID)
		}
		name := tool.Definition.Name
		if tool.Handler == nil {
			return fmt.Errorf("%w: tool '%s' has no handler", ErrInvalidTool, name)
		}
		if _, dup := entries[name]; dup {
			return fmt.Errorf("%w: tool '%s' listed twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.Definition.Schema()))
		if err != nil {
			return fmt.Errorf("%w: tool '%s' input schema: %v", ErrInvalidTool, name, err)
		}
		entries[name] = &entry{tool: tool, packID: pack.ID, schema: schema}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.packs[pack.ID]; exists {
		return ErrPackAlreadyRegistered
	}

	for name := range entries {
		if existing, exists := r.tools[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'",
				ErrToolCollision, name, existing.packID)
		}
	}

	for name, e := range entries {
		r.tools[name] = e
	}
	r.packs[pack.ID] = pack

	r.logger.Info("=== PACK REGISTERED ===",
		"pack_id", pack.ID,
		"version", pack.Version,
		"tool_count", len(pack.Tools),
		"total_packs", len(r.packs),
		"total_tools", len(r.tools),
	)

	return nil
}

// MustRegisterPack registers pack and panics on error.
func (r *Registry) MustRegisterPack(pack *Pack) {
	if err := r.RegisterPack(pack); err != nil {
		panic(err)
	}
}

// GetTool returns a tool by name, or nil if not found.
func (r *Registry) GetTool(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.tools[name]; ok {
		return e.tool
	}
	return nil
}

// lookup returns the full entry for a tool.
func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	return e, ok
}

// AllTools returns all registered tools sorted by name.
func (r *Registry) AllTools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, e := range r.tools {
		tools = append(tools, e.tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Definitions returns the definitions of all registered tools sorted by name.
func (r *Registry) Definitions() []*Definition {
	tools := r.AllTools()
	defs := make([]*Definition, len(tools))
	for i, tool := range tools {
		defs[i] = tool.Definition
	}
	return defs
}

// ToolCount returns the number of registered tools.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ListPacks returns information about all registered packs sorted by ID.
func (r *Registry) ListPacks() []*PackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packs := make([]*PackInfo, 0, len(r.packs))
	for _, pack := range r.packs {
		toolNames := make([]string, 0, len(pack.Tools))
		for _, tool := range pack.Tools {
			toolNames = append(toolNames, tool.Name())
		}
		sort.Strings(toolNames)
		packs = append(packs, &PackInfo{
			ID:        pack.ID,
			Version:   pack.Version,
			ToolNames: toolNames,
		})
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].ID < packs[j].ID })
	return packs
}

// Close clears the registry.
// This should be called during graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	packCount := len(r.packs)
	r.packs = make(map[string]*Pack)
	r.tools = make(map[string]*entry)

	r.logger.Info("registry closed", "packs_cleared", packCount)
}
