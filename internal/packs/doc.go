// Package packs provides the tool registry and router behind the MCP endpoint.
//
// # Overview
//
// A tool pack is the explicit list of tools one module exposes. Packs are
// registered once at startup; a module's helper functions are never listed
// and so are never reachable by clients.
//
// # Architecture
//
//   - Registry: tracks packs and tools, rejects name collisions
//   - Router: validates arguments and dispatches calls to handlers
//   - Logged: wraps a handler with the "Request received" call line
//
// # Registration
//
// Tool names are globally unique. Registering a pack whose tool name is
// already taken, by another pack or within the same pack, fails with
// ErrToolCollision and leaves the registry unchanged:
//
//	registry := packs.NewRegistry(logger)
//	if err := registry.RegisterPack(apitools.TemplatesPack(client, table.Templates, logger)); err != nil {
//		return err
//	}
//
// # Tool Routing
//
// When a client calls a tool, the router:
//
//  1. Looks up the tool by name in the registry
//  2. Validates the arguments against the tool's JSON Schema
//  3. Runs the handler with a cancellable context
//  4. Returns the handler's JSON result
//
// Router.Close cancels every in-flight call during shutdown.
package packs
