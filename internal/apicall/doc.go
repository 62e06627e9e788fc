// ABOUTME: Package apicall wraps single outbound requests to the backend REST APIs.
// ABOUTME: Every failure mode comes back as data in the {status, message} shape.

// Package apicall is the only place the service talks to a backend.
//
// A Client is built once with the configured timeout and Authenticator and is
// shared by every tool. Call never returns a Go error: status codes of 400 and
// above, transport errors (DNS, refused connections, timeouts, cancellation)
// and undecodable bodies all become a Result carrying a Failure:
//
//	{"status": "error", "message": "API request error (http://host/templates): ..."}
//
// Successful bodies are decoded with json.Number so numeric ids survive the
// round trip back to the MCP client unchanged.
//
// Request and response details are logged at debug level with credential
// headers redacted.
package apicall
