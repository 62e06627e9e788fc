// Package auth holds credential handling on both sides of the wrapper.
//
// Outbound, an Authenticator attaches credentials to every backend request.
// NewAuthenticator selects one from configuration:
//
//   - none:   no credentials
//   - bearer: Authorization: Bearer <access_token>
//   - header: access token and secret key in configurable headers
//   - jwt:    a short-lived HS256 token signed with the secret key
//
// Inbound, JWTVerifier checks Bearer JWTs presented to the MCP endpoint, and
// Caller carries the authenticated principal through tool execution.
package auth
