package operator

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the server-wide defaults every tool call falls back to when
// its own overrides are unset. Loaded from YAML, then adjusted from env by
// the entry point.
type Config struct {
	// Transport selects how tools are exposed: "stdio" or "http".
	Transport string `yaml:"transport"`
	// Addr is the HTTP listen address, used only with the http transport.
	Addr string `yaml:"addr"`

	// Profile names the default saved session.
	Profile string `yaml:"profile"`
	// CookiesDir is the base directory for per-profile session files.
	CookiesDir string `yaml:"cookies_dir"`
	// CookiesPath overrides the profile with one explicit session file.
	CookiesPath string `yaml:"cookies_path"`

	// ChromeBin points at the browser binary; empty auto-detects.
	ChromeBin string `yaml:"chrome_bin"`

	// DebugDir receives per-invocation diagnostics when set.
	DebugDir string `yaml:"debug_dir"`
	// Trace additionally records a trace.zip per invocation.
	Trace bool `yaml:"trace"`

	// DBPath is the sqlite invocation log location.
	DBPath string `yaml:"db_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = "stdio"
	}
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.CookiesDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.CookiesDir = filepath.Join(home, ".redfeed", "cookies")
	}
	if c.DBPath == "" {
		c.DBPath = "db/redfeed.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ApplyEnv layers environment overrides on top of c. Every config knob has
// an env counterpart so a container deployment needs no config file.
func (c *Config) ApplyEnv() {
	c.Transport = envOr("MCP_TRANSPORT", c.Transport)
	c.Addr = envOr("ADDR", c.Addr)
	c.Profile = envOr("REDFEED_PROFILE", c.Profile)
	c.CookiesDir = envOr("COOKIES_DIR", c.CookiesDir)
	c.CookiesPath = envOr("COOKIES_PATH", c.CookiesPath)
	c.ChromeBin = envOr("CHROME_BIN", c.ChromeBin)
	c.DebugDir = envOr("DEBUG_DIR", c.DebugDir)
	if v := os.Getenv("TRACE"); v != "" {
		c.Trace = v == "1" || v == "true"
	}
	c.DBPath = envOr("REDFEED_DB", c.DBPath)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// LoadConfig reads a YAML config file and applies defaults. An empty path
// yields the pure defaults.
func LoadConfig(path string) (*Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("operator: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("operator: parse config %s: %w", path, err)
		}
	}
	c.applyDefaults()
	return &c, nil
}
