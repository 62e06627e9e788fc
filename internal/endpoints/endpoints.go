// ABOUTME: Static URL tables for the backends that tools call.
// ABOUTME: Built once from config at startup and read-only afterwards.

package endpoints

import (
	"net/url"
	"strings"

	"github.com/FndMG/mcp-api-wrapper/internal/config"
)

// API holds the primary backend URLs.
type API struct {
	BaseURL   string
	RootURL   string
	LoginURL  string
	LogoutURL string
}

// Templates holds the template resource URLs on the primary backend.
type Templates struct {
	ListURL   string
	DetailURL string
}

// Users holds the user resource URLs on the system2 backend.
type Users struct {
	ListURL   string
	DetailURL string
}

// Table is the full set of backend URLs.
type Table struct {
	API       API
	Templates Templates
	Users     Users
}

// New builds the URL table from backend configuration.
// Users is left empty when no system2 host is configured.
func New(cfg config.BackendsConfig) *Table {
	apiBase := BaseURL(cfg.API.Protocol, cfg.API.HostName)
	usersBase := BaseURL(cfg.System2.Protocol, cfg.System2.HostName)

	t := &Table{
		API: API{
			BaseURL:   apiBase,
			RootURL:   join(apiBase, cfg.API.Path),
			LoginURL:  join(apiBase, "login"),
			LogoutURL: join(apiBase, "logout"),
		},
		Templates: Templates{
			ListURL:   join(apiBase, "templates"),
			DetailURL: join(apiBase, "templates"),
		},
	}

	if usersBase != "" {
		t.Users = Users{
			ListURL:   join(usersBase, "users"),
			DetailURL: join(usersBase, "users"),
		}
	}

	return t
}

// BaseURL returns the scheme-qualified base for a host. A host that already starts
// with "http" is used as is; otherwise protocol (default http) is prepended.
func BaseURL(protocol, host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http") {
		if protocol == "" {
			protocol = "http"
		}
		host = protocol + "://" + host
	}
	return strings.TrimRight(host, "/")
}

// Detail appends an escaped id segment to a collection URL.
func Detail(collectionURL, id string) string {
	return collectionURL + "/" + url.PathEscape(id)
}

func join(base, segment string) string {
	if base == "" {
		return ""
	}
	segment = strings.Trim(segment, "/")
	if segment == "" {
		return base
	}
	return base + "/" + segment
}
