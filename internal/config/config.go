// Package config loads the workspace configuration for Blockforge from a
// blockforge.toml file at the workspace root, falling back to defaults
// tuned for Minecraft modding projects.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is the config file looked up at the workspace root.
const DefaultFileName = "blockforge.toml"

// Config is the root workspace configuration.
type Config struct {
	LogLevel string                  `toml:"log_level"`
	Servers  map[string]ServerConfig `toml:"servers"`
	Tasks    TasksConfig             `toml:"tasks"`
}

// ServerConfig describes how to start one language server.
type ServerConfig struct {
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`

	// InitTimeoutSeconds bounds the initialize handshake. An unresponsive
	// server resolves readiness with an error instead of hanging sessions
	// forever.
	InitTimeoutSeconds int `toml:"init_timeout_seconds"`
}

// InitTimeout returns the handshake timeout as a duration.
func (s ServerConfig) InitTimeout() time.Duration {
	if s.InitTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.InitTimeoutSeconds) * time.Second
}

// TasksConfig configures the background task queue.
type TasksConfig struct {
	Capacity   int `toml:"capacity"`
	Workers    int `toml:"workers"`
	ThrottleMS int `toml:"throttle_ms"`
}

// Throttle returns the per-worker inter-task delay.
func (t TasksConfig) Throttle() time.Duration {
	return time.Duration(t.ThrottleMS) * time.Millisecond
}

// Default returns the built-in configuration. The server table covers the
// file types a modding workspace actually edits.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Servers: map[string]ServerConfig{
			"java": {
				Command: "jdtls",
			},
			"json": {
				Command: "vscode-json-language-server",
				Args:    []string{"--stdio"},
			},
			"mcfunction": {
				Command: "spyglassmc-language-server",
				Args:    []string{"--stdio"},
			},
			"toml": {
				Command: "taplo",
				Args:    []string{"lsp", "stdio"},
			},
			"kotlin": {
				Command: "kotlin-language-server",
			},
		},
		Tasks: TasksConfig{
			Capacity:   32,
			Workers:    2,
			ThrottleMS: 250,
		},
	}
}

// Load reads a TOML config file. A missing file yields the defaults; a
// present file is parsed on top of them, so partial configs only override
// what they name.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for values that would misbehave at runtime.
func (c *Config) Validate() error {
	for lang, sc := range c.Servers {
		if sc.Command == "" {
			return fmt.Errorf("server %q: command must not be empty", lang)
		}
	}
	if c.Tasks.Capacity < 0 {
		return fmt.Errorf("tasks.capacity must not be negative")
	}
	if c.Tasks.Workers < 0 {
		return fmt.Errorf("tasks.workers must not be negative")
	}
	return nil
}
