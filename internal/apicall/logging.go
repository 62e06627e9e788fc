// ABOUTME: Debug logging of outbound requests and responses.
// ABOUTME: Credential-bearing headers are redacted before they are logged.

package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// defaultRedactedHeaders are redacted whatever the authenticator reports.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"Proxy-Authorization",
	"X-Api-Access-Token",
	"X-Api-Secret-Key",
}

// redactionSet returns the canonical header names to redact: the defaults
// plus extra.
func redactionSet(extra ...[]string) map[string]bool {
	set := make(map[string]bool, len(defaultRedactedHeaders))
	for _, name := range defaultRedactedHeaders {
		set[http.CanonicalHeaderKey(name)] = true
	}
	for _, names := range extra {
		for _, name := range names {
			set[http.CanonicalHeaderKey(name)] = true
		}
	}
	return set
}

// logExchange writes request and response details at debug level.
func (c *Client) logExchange(req *http.Request, resp *http.Response, body []byte) {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	c.logger.Debug("--- HTTP Request Details ---",
		"url", req.URL.String(),
		"method", req.Method,
		"headers", c.redact(req.Header),
		"body", requestBody(req),
	)

	c.logger.Debug("--- HTTP Response Details ---",
		"status", resp.StatusCode,
		"reason", reason(resp),
		"headers", c.redact(resp.Header),
		"content", renderBody(body),
	)
}

// requestBody re-reads the request body via GetBody, which NewRequest sets for
// in-memory readers.
func requestBody(req *http.Request) string {
	if req.GetBody == nil || req.ContentLength == 0 {
		return "None"
	}
	rc, err := req.GetBody()
	if err != nil {
		return "(unavailable)"
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "(unavailable)"
	}
	return string(data)
}

// renderBody pretty-prints JSON and falls back to raw text.
func renderBody(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err == nil {
		return buf.String()
	}
	return string(body)
}

// reason returns the reason phrase from a status line such as "503 Service Unavailable".
func reason(resp *http.Response) string {
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

func (c *Client) redact(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if c.redacted[http.CanonicalHeaderKey(key)] {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
