// ABOUTME: Pluggable credential injection for outbound backend requests.
// ABOUTME: The scheme is chosen by auth.mode; "none" attaches nothing.

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FndMG/mcp-api-wrapper/internal/config"
)

// ErrMissingCredentials indicates the selected mode needs credentials that are not configured.
var ErrMissingCredentials = errors.New("missing credentials")

// Authenticator decorates an outbound request with credentials.
type Authenticator interface {
	Apply(req *http.Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(req *http.Request) error

// Apply calls f(req).
func (f AuthenticatorFunc) Apply(req *http.Request) error { return f(req) }

// CredentialHeaderer is implemented by authenticators that can name the
// request headers carrying their secrets, so diagnostics can redact them.
type CredentialHeaderer interface {
	CredentialHeaders() []string
}

// CredentialHeaders returns the header names a carries secrets in, or nil
// when a does not say.
func CredentialHeaders(a Authenticator) []string {
	if h, ok := a.(CredentialHeaderer); ok {
		return h.CredentialHeaders()
	}
	return nil
}

// None attaches no credentials.
type None struct{}

// Apply is a no-op.
func (None) Apply(*http.Request) error { return nil }

// Bearer sends the access token as "Authorization: Bearer <token>".
type Bearer struct {
	Token string
}

// Apply sets the Authorization header.
func (b Bearer) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// CredentialHeaders names the Authorization header.
func (Bearer) CredentialHeaders() []string { return []string{"Authorization"} }

// StaticHeaders sends the access token and secret key in named headers.
type StaticHeaders struct {
	TokenHeader  string
	Token        string
	SecretHeader string
	Secret       string
}

// Apply sets the configured headers, skipping any with an empty name or value.
func (h StaticHeaders) Apply(req *http.Request) error {
	if h.TokenHeader != "" && h.Token != "" {
		req.Header.Set(h.TokenHeader, h.Token)
	}
	if h.SecretHeader != "" && h.Secret != "" {
		req.Header.Set(h.SecretHeader, h.Secret)
	}
	return nil
}

// CredentialHeaders names the configured token and secret headers.
func (h StaticHeaders) CredentialHeaders() []string {
	var names []string
	for _, name := range []string{h.TokenHeader, h.SecretHeader} {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// SignedJWT mints a short-lived HS256 token per request with the access token as subject.
type SignedJWT struct {
	Subject string
	TTL     time.Duration
	signer  *Signer
}

// NewSignedJWT creates a SignedJWT that signs with secret.
func NewSignedJWT(subject string, secret []byte, ttl time.Duration) *SignedJWT {
	return &SignedJWT{Subject: subject, TTL: ttl, signer: NewSigner(secret)}
}

// Apply signs a fresh token and sets it as a Bearer credential.
func (s *SignedJWT) Apply(req *http.Request) error {
	token, err := s.signer.Sign(s.Subject, s.TTL)
	if err != nil {
		return fmt.Errorf("signing jwt: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// CredentialHeaders names the Authorization header.
func (*SignedJWT) CredentialHeaders() []string { return []string{"Authorization"} }

// NewAuthenticator returns the Authenticator for cfg.Mode.
func NewAuthenticator(cfg config.AuthConfig) (Authenticator, error) {
	switch cfg.Mode {
	case "", config.AuthModeNone:
		return None{}, nil
	case config.AuthModeBearer:
		if cfg.AccessToken == "" {
			return nil, fmt.Errorf("%w: bearer mode needs auth.access_token", ErrMissingCredentials)
		}
		return Bearer{Token: cfg.AccessToken}, nil
	case config.AuthModeHeader:
		if cfg.AccessToken == "" && cfg.SecretKey == "" {
			return nil, fmt.Errorf("%w: header mode needs auth.access_token or auth.secret_key", ErrMissingCredentials)
		}
		return StaticHeaders{
			TokenHeader:  cfg.TokenHeader,
			Token:        cfg.AccessToken,
			SecretHeader: cfg.SecretHeader,
			Secret:       cfg.SecretKey,
		}, nil
	case config.AuthModeJWT:
		if cfg.AccessToken == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("%w: jwt mode needs auth.access_token and auth.secret_key", ErrMissingCredentials)
		}
		ttl := cfg.JWTTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		return NewSignedJWT(cfg.AccessToken, []byte(cfg.SecretKey), ttl), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
