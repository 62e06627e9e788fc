// ABOUTME: Configuration loading and parsing for mcp-api-wrapper
// ABOUTME: Supports YAML/TOML files with env var expansion, .env files and legacy env overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout mirrors the backend call timeout used when TIME_OUT_SECONDS is unset.
const DefaultTimeout = 600 * time.Second

// Config represents the complete mcp-api-wrapper configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Backends  BackendsConfig  `yaml:"backends" toml:"backends"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	MCP       MCPConfig       `yaml:"mcp" toml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the MCP listener address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// BackendsConfig holds the downstream REST hosts the tools call
type BackendsConfig struct {
	API     BackendConfig `yaml:"api" toml:"api"`
	System2 BackendConfig `yaml:"system2" toml:"system2"`
}

// BackendConfig describes one backend host. HostName may already carry a scheme.
type BackendConfig struct {
	Protocol string `yaml:"protocol" toml:"protocol"`
	HostName string `yaml:"host_name" toml:"host_name"`
	Path     string `yaml:"path" toml:"path"`
}

// HTTPConfig holds outbound call settings
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// AuthConfig holds outbound credentials and how they are attached to requests
type AuthConfig struct {
	Mode         string        `yaml:"mode" toml:"mode"` // none, bearer, header, jwt
	AccessToken  string        `yaml:"access_token" toml:"access_token"`
	SecretKey    string        `yaml:"secret_key" toml:"secret_key"`
	TokenHeader  string        `yaml:"token_header" toml:"token_header"`
	SecretHeader string        `yaml:"secret_header" toml:"secret_header"`
	JWTTTL       time.Duration `yaml:"-" toml:"-"`
	JWTTTLRaw    string        `yaml:"jwt_ttl" toml:"jwt_ttl"`
}

// MCPConfig holds the inbound MCP endpoint settings
type MCPConfig struct {
	Name         string   `yaml:"name" toml:"name"`
	Instructions string   `yaml:"instructions" toml:"instructions"`
	RequireAuth  bool     `yaml:"require_auth" toml:"require_auth"`
	Tokens       []string `yaml:"tokens" toml:"tokens"`         // static tokens (path, query or Bearer)
	JWTSecret    string   `yaml:"jwt_secret" toml:"jwt_secret"` // HS256 secret for Bearer JWTs
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level" toml:"level"`
	Format string        `yaml:"format" toml:"format"`
	File   LogFileConfig `yaml:"file" toml:"file"`
}

// LogFileConfig holds rotating log file settings. An empty Path disables the file.
type LogFileConfig struct {
	Path        string `yaml:"path" toml:"path"`
	Level       string `yaml:"level" toml:"level"`
	MaxBytes    int64  `yaml:"max_bytes" toml:"max_bytes"`
	BackupCount int    `yaml:"backup_count" toml:"backup_count"`
}

// Auth modes
const (
	AuthModeNone   = "none"
	AuthModeBearer = "bearer"
	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
)

// Default returns a configuration with the same defaults the service has always used.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "0.0.0.0:8080"},
		Backends: BackendsConfig{
			API:     BackendConfig{Protocol: "http"},
			System2: BackendConfig{Protocol: "http"},
		},
		HTTP: HTTPConfig{Timeout: DefaultTimeout},
		Auth: AuthConfig{
			Mode:         AuthModeNone,
			TokenHeader:  "X-Api-Access-Token",
			SecretHeader: "X-Api-Secret-Key",
			JWTTTL:       5 * time.Minute,
		},
		MCP: MCPConfig{
			Name:         "mcp-api-wrapper",
			Instructions: "Use these APIs to support users.",
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "text",
			File: LogFileConfig{
				Path:        "logs/mcp-api-wrapper.log",
				Level:       "info",
				MaxBytes:    10 << 20,
				BackupCount: 5,
			},
		},
	}
}

// Load builds the configuration in layers: defaults, then the optional file at path,
// then a .env file in the working directory, then environment variable overrides.
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already present in the environment.
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFile decodes a YAML or TOML file (chosen by extension) on top of cfg.
// Environment variables in the format ${VAR_NAME} are expanded first.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the flat environment variables the service has always honored.
// Only variables that are set take effect.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("MCP_HTTP_ADDR", &cfg.Server.HTTPAddr)
	str("PROTOCOL", &cfg.Backends.API.Protocol)
	str("API_HOST_NAME", &cfg.Backends.API.HostName)
	str("API_PATH", &cfg.Backends.API.Path)
	str("SYSTEM2_PROTOCOL", &cfg.Backends.System2.Protocol)
	str("SYSTEM2_HOST_NAME", &cfg.Backends.System2.HostName)
	str("API_ACCESS_TOKEN", &cfg.Auth.AccessToken)
	str("API_SECRET_KEY", &cfg.Auth.SecretKey)
	str("API_AUTH_MODE", &cfg.Auth.Mode)
	str("LOG_FILE_PATH", &cfg.Logging.File.Path)
	str("LOG_LEVEL", &cfg.Logging.Level)

	if v, ok := lookup("TIME_OUT_SECONDS"); ok && v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TIME_OUT_SECONDS %q: %w", v, err)
		}
		cfg.HTTP.TimeoutRaw = ""
		cfg.HTTP.Timeout = time.Duration(secs * float64(time.Second))
	}
	if v, ok := lookup("LOG_MAX_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LOG_MAX_BYTES %q: %w", v, err)
		}
		cfg.Logging.File.MaxBytes = n
	}
	if v, ok := lookup("LOG_BACKUP_COUNT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOG_BACKUP_COUNT %q: %w", v, err)
		}
		cfg.Logging.File.BackupCount = n
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Backends.API.HostName == "" {
		return fmt.Errorf("backends.api.host_name is required (or set API_HOST_NAME)")
	}

	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}

	switch c.Auth.Mode {
	case "", AuthModeNone, AuthModeBearer, AuthModeHeader, AuthModeJWT:
	default:
		return fmt.Errorf("auth.mode %q is not one of none, bearer, header, jwt", c.Auth.Mode)
	}

	if c.MCP.RequireAuth && len(c.MCP.Tokens) == 0 && c.MCP.JWTSecret == "" {
		return fmt.Errorf("mcp.tokens or mcp.jwt_secret is required when mcp.require_auth is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.HTTP.TimeoutRaw != "" {
		cfg.HTTP.Timeout, err = time.ParseDuration(cfg.HTTP.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing http.timeout %q: %w", cfg.HTTP.TimeoutRaw, err)
		}
	}

	if cfg.Auth.JWTTTLRaw != "" {
		cfg.Auth.JWTTTL, err = time.ParseDuration(cfg.Auth.JWTTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.jwt_ttl %q: %w", cfg.Auth.JWTTTLRaw, err)
		}
	}

	return nil
}
