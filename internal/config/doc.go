// Package config handles configuration loading for mcp-api-wrapper.
//
// # Overview
//
// Configuration is resolved once at startup and handed to every component by
// pointer. It is never mutated afterwards. Values are layered:
//
//  1. Built-in defaults (Default)
//  2. An optional YAML or TOML file (chosen by extension)
//  3. A .env file in the working directory (does not override the environment)
//  4. Flat environment variables
//
// # Configuration File
//
// Path resolution happens in the CLI: --config flag, then MCP_API_WRAPPER_CONFIG.
// Without either, the service runs from environment variables alone.
//
// # Environment Variable Expansion
//
// File values can reference environment variables:
//
//	auth:
//	  secret_key: "${API_SECRET_KEY}"
//
// # Environment Overrides
//
//	MCP_HTTP_ADDR       server.http_addr
//	PROTOCOL            backends.api.protocol (default http)
//	API_HOST_NAME       backends.api.host_name (required)
//	API_PATH            backends.api.path
//	SYSTEM2_PROTOCOL    backends.system2.protocol (default http)
//	SYSTEM2_HOST_NAME   backends.system2.host_name
//	TIME_OUT_SECONDS    http.timeout (default 600)
//	API_ACCESS_TOKEN    auth.access_token
//	API_SECRET_KEY      auth.secret_key
//	API_AUTH_MODE       auth.mode (none, bearer, header, jwt)
//	LOG_LEVEL           logging.level
//	LOG_FILE_PATH       logging.file.path
//	LOG_MAX_BYTES       logging.file.max_bytes
//	LOG_BACKUP_COUNT    logging.file.backup_count
//
// # Example
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	backends:
//	  api:
//	    host_name: "api.internal:8081"
//	  system2:
//	    protocol: "https"
//	    host_name: "users.internal"
//
//	http:
//	  timeout: "30s"
//
//	auth:
//	  mode: "none"
//
//	logging:
//	  level: "debug"
//	  format: "text"
//	  file:
//	    path: "logs/mcp-api-wrapper.log"
//	    max_bytes: 10485760
//	    backup_count: 5
package config
