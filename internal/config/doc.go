// Package config handles configuration loading for the devto agent.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	platform:
//	  api_key: "${DEVTO_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	transport:
//	  call_timeout: "30s"
//	  drain_grace: "10s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Content platform credentials:
//
//	platform:
//	  api_key: "${DEVTO_API_KEY}"
//	  base_url: "https://dev.to/api"   # optional, defaults to dev.to
//
// Transport selection:
//
//	transport:
//	  mode: "stdio"                    # stdio or stream
//	  command: "devto-toolserver"      # stdio mode: subprocess to spawn
//	  args: ["stdio"]
//	  server_url: "http://localhost:8737"  # stream mode
//	  call_timeout: "30s"
//	  drain_grace: "10s"
//
// Skills:
//
//	skills:
//	  catalog_path: "./skills.toml"    # optional composite skills
//	  publish_window: "10m"            # duplicate-publish guard window
//
// Publish ledger:
//
//	ledger:
//	  path: "/var/lib/devto-agent/ledger.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("./config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
