// Package server assembles the process: outbound call client, tool packs,
// registry, router and MCP endpoint, served over TCP or a Tailscale node.
//
// Endpoints:
//
//   - /mcp     MCP Streamable HTTP (see package mcp)
//   - /health  liveness, always 200
//   - /ready   200 while at least one tool is registered
package server
