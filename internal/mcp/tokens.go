// ABOUTME: MCP token store mapping static access tokens to principals.
// ABOUTME: Tokens come from configuration and are checked on initialize.

package mcp

import "strconv"

// TokenStore maps configured MCP access tokens to the principal each one
// identifies. It is immutable after construction.
type TokenStore struct {
	tokens map[string]string // token -> principal
}

// NewTokenStore creates a token store seeded with static tokens. Each seeded
// token identifies itself by position ("token-1", "token-2", ...) so logs never
// carry the secret. Empty tokens are skipped.
func NewTokenStore(static ...string) *TokenStore {
	s := &TokenStore{tokens: make(map[string]string, len(static))}
	for i, token := range static {
		if token == "" {
			continue
		}
		s.tokens[token] = "token-" + strconv.Itoa(i+1)
	}
	return s
}

// Principal returns the principal for a token.
func (s *TokenStore) Principal(token string) (string, bool) {
	principal, ok := s.tokens[token]
	return principal, ok
}

// TokenCount returns the number of accepted tokens.
func (s *TokenStore) TokenCount() int {
	return len(s.tokens)
}
