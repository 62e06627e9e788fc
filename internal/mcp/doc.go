// Package mcp implements the Model Context Protocol endpoint over Streamable HTTP.
//
// # Protocol
//
// Clients POST one JSON-RPC 2.0 message per request to /mcp. Supported methods:
//
//   - initialize: negotiates the protocol version and opens a session; the
//     session ID is returned in the Mcp-Session-Id header
//   - ping
//   - tools/list: every registered tool with its JSON Schema
//   - tools/call: runs a tool and returns its JSON output as text content
//
// Notifications are accepted with 202 and no body. DELETE /mcp with the
// Mcp-Session-Id header ends a session. Responses are plain JSON unless the
// client only accepts text/event-stream, in which case the response is a
// single SSE "message" event.
//
// A tool that reports a backend failure ({"status":"error","message":...})
// yields a successful tools/call response with isError set. Unknown tools and
// arguments that fail schema validation yield JSON-RPC error -32602.
//
// # Authentication
//
// Credentials are checked on initialize only and the session inherits the
// principal. Static tokens from the TokenStore are accepted as a path segment
// (/mcp/<token>), a token query parameter or a Bearer header; Bearer values
// that are not static tokens are verified as JWTs when a TokenVerifier is set.
//
// Example client configuration:
//
//	{
//	  "mcpServers": {
//	    "api-wrapper": {
//	      "url": "http://localhost:8080/mcp",
//	      "headers": {"Authorization": "Bearer <token>"}
//	    }
//	  }
//	}
package mcp
