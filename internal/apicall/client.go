// ABOUTME: Generic outbound HTTP call wrapper used by every tool.
// ABOUTME: Normalizes transport, status and decode failures into a Failure result.

package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FndMG/mcp-api-wrapper/internal/auth"
)

// DefaultTimeout is used when ClientConfig.Timeout is zero.
const DefaultTimeout = 600 * time.Second

// maxErrorBody bounds how much of an error response body goes into a failure message.
const maxErrorBody = 512

// maxResponseBody bounds how much of a response body is read.
const maxResponseBody = 32 << 20

// ClientConfig contains configuration options for the Client.
type ClientConfig struct {
	Timeout       time.Duration
	Authenticator auth.Authenticator
	Logger        *slog.Logger
	HTTPClient    *http.Client
	// RedactHeaders are logged as [REDACTED] in addition to the defaults and
	// the headers the Authenticator names.
	RedactHeaders []string
}

// Client issues single backend requests. Safe for concurrent use; it holds no
// per-call state.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	auth     auth.Authenticator
	logger   *slog.Logger
	redacted map[string]bool // canonical header names
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = auth.None{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:     httpClient,
		timeout:  timeout,
		auth:     authenticator,
		logger:   logger,
		redacted: redactionSet(auth.CredentialHeaders(authenticator), cfg.RedactHeaders),
	}
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Get is shorthand for Call with GET and no params.
func (c *Client) Get(ctx context.Context, apiURL string) Result {
	return c.Call(ctx, apiURL, nil, http.MethodGet)
}

// Call issues one request and returns the decoded JSON body or a Failure.
//
// GET and DELETE send params as query parameters; POST, PUT and PATCH send
// them as a JSON body. Other methods send neither. The call is bounded by the
// configured timeout and by ctx. It never retries.
func (c *Client) Call(ctx context.Context, apiURL string, params map[string]any, method string) Result {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(ctx, apiURL, params, method)
	if err != nil {
		return c.fail("API request error (%s): %v", apiURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail("API request error (%s): %v", apiURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return c.fail("API request error (%s): reading response: %v", apiURL, err)
	}

	c.logExchange(req, resp, body)

	if resp.StatusCode >= http.StatusBadRequest {
		return c.fail("API response error (%s): %s: %s", apiURL, resp.Status, excerpt(body))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return Succeeded(nil)
	}

	data, err := decodeJSON(body)
	if err != nil {
		return c.fail("API decode error (%s): %v", apiURL, err)
	}
	return Succeeded(data)
}

func (c *Client) buildRequest(ctx context.Context, apiURL string, params map[string]any, method string) (*http.Request, error) {
	var body io.Reader
	var jsonBody bool

	switch method {
	case http.MethodGet, http.MethodDelete:
		if len(params) > 0 {
			u, err := url.Parse(apiURL)
			if err != nil {
				return nil, err
			}
			q := u.Query()
			addQuery(q, params)
			u.RawQuery = q.Encode()
			apiURL = u.String()
		}
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if params != nil {
			data, err := json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("encoding body: %w", err)
			}
			body = bytes.NewReader(data)
			jsonBody = true
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying credentials: %w", err)
	}
	return req, nil
}

// addQuery flattens params into query values. Slices become repeated keys;
// nil values are dropped.
func addQuery(q url.Values, params map[string]any) {
	for key, value := range params {
		switch v := value.(type) {
		case nil:
		case []string:
			for _, s := range v {
				q.Add(key, s)
			}
		case []any:
			for _, item := range v {
				q.Add(key, fmt.Sprint(item))
			}
		default:
			q.Add(key, fmt.Sprint(v))
		}
	}
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON value")
	}
	return data, nil
}

func (c *Client) fail(format string, args ...any) Result {
	r := Failed(format, args...)
	c.logger.Error(r.Failure.Message)
	return r
}

// excerpt trims an error body for inclusion in a failure message.
func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "(empty body)"
	}
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
