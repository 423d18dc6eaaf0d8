// ABOUTME: Configuration loading and parsing for the devto agent
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration
type Config struct {
	Platform  PlatformConfig  `yaml:"platform"`
	Transport TransportConfig `yaml:"transport"`
	Skills    SkillsConfig    `yaml:"skills"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PlatformConfig holds content platform API configuration
type PlatformConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// TransportConfig selects how the agent reaches its tool server
type TransportConfig struct {
	// Mode is "stdio" (spawn a subprocess) or "stream" (connect over SSE)
	Mode string `yaml:"mode"`

	// ServerURL is the tool server base URL for stream mode
	ServerURL string `yaml:"server_url"`

	// Command and Args spawn the tool server subprocess in stdio mode
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	CallTimeout time.Duration `yaml:"-"`
	DrainGrace  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CallTimeoutRaw string `yaml:"call_timeout"`
	DrainGraceRaw  string `yaml:"drain_grace"`
}

// SkillsConfig holds the optional composite-skill catalog
type SkillsConfig struct {
	CatalogPath string `yaml:"catalog_path"`

	PublishWindow time.Duration `yaml:"-"`

	PublishWindowRaw string `yaml:"publish_window"`
}

// LedgerConfig holds publish ledger configuration
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio":
		if c.Transport.Command == "" {
			return fmt.Errorf("transport.command is required in stdio mode")
		}
	case "stream":
		if c.Transport.ServerURL == "" {
			return fmt.Errorf("transport.server_url is required in stream mode")
		}
	case "":
		return fmt.Errorf("transport.mode is required (stdio or stream)")
	default:
		return fmt.Errorf("transport.mode %q is not supported (stdio or stream)", c.Transport.Mode)
	}

	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Transport.CallTimeoutRaw != "" {
		cfg.Transport.CallTimeout, err = time.ParseDuration(cfg.Transport.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing call_timeout %q: %w", cfg.Transport.CallTimeoutRaw, err)
		}
	}

	if cfg.Transport.DrainGraceRaw != "" {
		cfg.Transport.DrainGrace, err = time.ParseDuration(cfg.Transport.DrainGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing drain_grace %q: %w", cfg.Transport.DrainGraceRaw, err)
		}
	}

	if cfg.Skills.PublishWindowRaw != "" {
		cfg.Skills.PublishWindow, err = time.ParseDuration(cfg.Skills.PublishWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing publish_window %q: %w", cfg.Skills.PublishWindowRaw, err)
		}
	}

	return nil
}
