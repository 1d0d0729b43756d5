// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the system prompt given to sessions created
// without one.
const DefaultSystemPrompt = "You are a highly knowledgeable and tech-savvy assistant, " +
	"specializing in programming, Linux, AI, and open-source software. " +
	"You provide clear, concise, and accurate responses while adapting " +
	"to the user's level of expertise."

// Config is the master configuration for vern.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Network configures the server's listening address.
	Network NetworkConfig `yaml:"network"`

	// Session configures session defaults and query behavior.
	Session SessionConfig `yaml:"session"`

	// Server configures daemon capacity and provider selection.
	Server ServerConfig `yaml:"server"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Data is where session directories live
	// (<data>/session-<sid>/...).
	Data string `yaml:"data"`

	// State is where runtime state is stored: the server discovery
	// file and the per-process trash directory.
	State string `yaml:"state"`
}

// NetworkConfig configures the listening address.
type NetworkConfig struct {
	// Host is the interface to bind. The server is unauthenticated,
	// so anything other than a loopback address is a configuration
	// mistake.
	Host string `yaml:"host"`

	// Port is the TCP port to bind. 0 lets the OS choose; clients
	// find the actual port through the discovery file.
	Port int `yaml:"port"`
}

// SessionConfig configures session defaults and query behavior.
type SessionConfig struct {
	// DefaultModel is used by sessions whose model file is missing.
	DefaultModel string `yaml:"default_model"`

	// DefaultSystemPrompt seeds sessions created without one.
	DefaultSystemPrompt string `yaml:"default_system_prompt"`

	// TokenBudget is the estimated-token ceiling for a query's
	// context (system prompt + history + new message). A query over
	// budget fails before anything is persisted or sent upstream.
	TokenBudget int `yaml:"token_budget"`

	// AutoCreateOnQuery makes a query against a never-seen sid create
	// the session instead of failing. Off by default: failing closed
	// catches typos before they become stray sessions.
	AutoCreateOnQuery bool `yaml:"auto_create_on_query"`
}

// ServerConfig configures daemon capacity and provider selection.
type ServerConfig struct {
	// MaxConnections bounds concurrently handled connections. Extra
	// connections wait in the accept backlog rather than spawning
	// unbounded handler goroutines.
	MaxConnections int `yaml:"max_connections"`

	// ProviderBaseURL overrides the OpenAI-compatible API base URL.
	// Empty means the provider's public endpoint.
	ProviderBaseURL string `yaml:"provider_base_url"`

	// APIKeyEnv is the environment variable holding the provider API
	// key. The key itself never appears in the config file.
	APIKeyEnv string `yaml:"api_key_env"`
}

// Default returns the default configuration. These defaults make a
// config file optional for the common single-user setup.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataRoot := filepath.Join(homeDir, ".local", "share", "vern")

	return &Config{
		Paths: PathsConfig{
			Data:  dataRoot,
			State: filepath.Join(dataRoot, "state"),
		},
		Network: NetworkConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
		Session: SessionConfig{
			DefaultModel:        "gpt-4o-mini",
			DefaultSystemPrompt: DefaultSystemPrompt,
			TokenBudget:         30000,
			AutoCreateOnQuery:   false,
		},
		Server: ServerConfig{
			MaxConnections: 16,
			APIKeyEnv:      "OPENAI_API_KEY",
		},
	}
}

// Load loads configuration from the path in the VERN_CONFIG
// environment variable. Fails if the variable is not set; use
// [LoadOrDefault] when an absent file should mean defaults.
func Load() (*Config, error) {
	configPath := os.Getenv("VERN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("VERN_CONFIG environment variable not set; " +
			"set it to the path of your vern.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadOrDefault loads configuration from VERN_CONFIG when set, and
// returns [Default] (with variable expansion applied) otherwise.
func LoadOrDefault() (*Config, error) {
	if os.Getenv("VERN_CONFIG") == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return Load()
}

// LoadFile loads configuration from a specific file path, merged over
// [Default].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// DiscoveryFile returns the path of the server discovery file, the
// well-known location where the server publishes its bound host/port.
func (c *Config) DiscoveryFile() string {
	return filepath.Join(c.Paths.State, "server.json")
}

// SystemsFile returns the path of the optional JSONC system-prompt
// library the CLI resolves --system names against.
func (c *Config) SystemsFile() string {
	return filepath.Join(c.Paths.Data, "systems.jsonc")
}

// HistoryFile returns the path of the client-side REPL history file
// for a session.
func (c *Config) HistoryFile(sid string) string {
	return filepath.Join(c.Paths.State, "history-"+sid)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"VERN_DATA": c.Paths.Data,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.Data = expandVars(c.Paths.Data, vars)
	vars["VERN_DATA"] = c.Paths.Data // Update for dependent paths.
	c.Paths.State = expandVars(c.Paths.State, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Paths.Data == "" {
		return fmt.Errorf("paths.data is required")
	}
	if c.Paths.State == "" {
		return fmt.Errorf("paths.state is required")
	}
	if c.Network.Host == "" {
		return fmt.Errorf("network.host is required")
	}
	if c.Network.Port < 0 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port %d out of range", c.Network.Port)
	}
	if c.Session.DefaultModel == "" {
		return fmt.Errorf("session.default_model is required")
	}
	if c.Session.TokenBudget <= 0 {
		return fmt.Errorf("session.token_budget must be positive")
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive")
	}
	return nil
}
