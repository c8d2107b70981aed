// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the assistant configuration.
type Config struct {
	Assistant AssistantConfig `toml:"assistant"`
	LLM       LLMConfig       `toml:"llm"`
	Models    []ModelConfig   `toml:"models"`    // Billing catalog
	Transport TransportConfig `toml:"transport"` // Operator chat channel
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Watch     WatchConfig     `toml:"watch"`    // Self-modification detection
	Timeouts  TimeoutsConfig  `toml:"timeouts"` // Long-latency operation timeouts
}

// AssistantConfig contains identity and prompt settings.
type AssistantConfig struct {
	ID             string `toml:"id"`
	Workspace      string `toml:"workspace"`
	SystemPrompt   string `toml:"system_prompt"`
	DirectivesPath string `toml:"directives_path"` // Prompt directive directory
}

// LLMConfig contains provider-level settings shared by all sessions.
type LLMConfig struct {
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint
}

// ModelConfig is one catalog entry: model id, display name, billing multiplier.
type ModelConfig struct {
	ID         string  `toml:"id"`
	Name       string  `toml:"name"`
	Multiplier float64 `toml:"multiplier"`
}

// TransportConfig selects and configures the chat channel.
type TransportConfig struct {
	Kind          string `toml:"kind"`           // "console" (default) or "nats"
	URL           string `toml:"url"`            // NATS broker URL
	SubjectPrefix string `toml:"subject_prefix"` // NATS subject prefix
	Operator      string `toml:"operator"`       // Accepted sender identity
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path string `toml:"path"` // Base directory for all persistent data
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// WatchConfig lists the glob patterns snapshotted for restart detection.
type WatchConfig struct {
	Paths []string `toml:"paths"`
}

// TimeoutsConfig contains timeout settings, in seconds.
type TimeoutsConfig struct {
	Request       int `toml:"request"`        // send-and-await timeout (default 120)
	Choose        int `toml:"choose"`         // model selection prompt (default 120)
	Idle          int `toml:"idle"`           // quiet period before a conversation closes (default 60)
	ShutdownGrace int `toml:"shutdown_grace"` // primary session teardown (default 10)
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Assistant: AssistantConfig{
			ID:             "aide",
			SystemPrompt:   "You are a personal assistant for a single operator.",
			DirectivesPath: "directives",
		},
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Models: []ModelConfig{
			{ID: "claude-sonnet-4", Name: "Claude Sonnet 4", Multiplier: 1},
			{ID: "claude-opus-4.5", Name: "Claude Opus 4.5", Multiplier: 3},
		},
		Transport: TransportConfig{
			Kind:          "console",
			URL:           "nats://localhost:4222",
			SubjectPrefix: "aide.chat",
		},
		Storage: StorageConfig{
			Path: "~/.local/aide",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Watch: WatchConfig{
			Paths: []string{"*.go", "cmd/aide/*.go", "internal/*/*.go"},
		},
		Timeouts: TimeoutsConfig{
			Request:       120,
			Choose:        120,
			Idle:          60,
			ShutdownGrace: 10,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from aide.toml in the current directory,
// falling back to defaults if the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "aide.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// StorageDir returns the expanded base storage directory.
func (c *Config) StorageDir() string {
	return ExpandPath(c.Storage.Path)
}

// AgentsDir is where delegated session configs live.
func (c *Config) AgentsDir() string {
	return filepath.Join(c.StorageDir(), "agents")
}

// NotesDir is where assistant notes live.
func (c *Config) NotesDir() string {
	return filepath.Join(c.StorageDir(), "notes")
}

// UsageLogPath is the append-only billing audit log.
func (c *Config) UsageLogPath() string {
	return filepath.Join(c.StorageDir(), "usage.jsonl")
}
