package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := New()
	if cfg.Transport.Kind != "console" {
		t.Errorf("default transport = %q, want console", cfg.Transport.Kind)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("default max_tokens = %d, want 4096", cfg.LLM.MaxTokens)
	}
	if cfg.Timeouts.Request != 120 {
		t.Errorf("default request timeout = %d, want 120", cfg.Timeouts.Request)
	}
	if len(cfg.Models) == 0 {
		t.Error("default config has no model catalog")
	}
}

func TestLoadFile(t *testing.T) {
	content := `
[assistant]
id = "my-aide"
system_prompt = "Be terse."

[transport]
kind = "nats"
url = "nats://broker:4222"
subject_prefix = "home.chat"
operator = "vinay"

[[models]]
id = "claude-sonnet-4"
name = "Claude Sonnet 4"
multiplier = 1.0

[[models]]
id = "claude-opus-4.5"
name = "Claude Opus 4.5"
multiplier = 3.0

[timeouts]
request = 300
`
	path := filepath.Join(t.TempDir(), "aide.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Assistant.ID != "my-aide" {
		t.Errorf("id = %q", cfg.Assistant.ID)
	}
	if cfg.Transport.Kind != "nats" || cfg.Transport.Operator != "vinay" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if len(cfg.Models) != 2 || cfg.Models[1].Multiplier != 3.0 {
		t.Errorf("models = %+v", cfg.Models)
	}
	if cfg.Timeouts.Request != 300 {
		t.Errorf("request timeout = %d, want 300", cfg.Timeouts.Request)
	}
	// Unset sections keep defaults.
	if cfg.Timeouts.ShutdownGrace != 10 {
		t.Errorf("shutdown grace = %d, want default 10", cfg.Timeouts.ShutdownGrace)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want default 4096", cfg.LLM.MaxTokens)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aide.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() on invalid TOML should fail")
	}
}

func TestStoragePaths(t *testing.T) {
	cfg := New()
	cfg.Storage.Path = "/var/lib/aide"
	if got := cfg.AgentsDir(); got != "/var/lib/aide/agents" {
		t.Errorf("AgentsDir() = %q", got)
	}
	if got := cfg.NotesDir(); got != "/var/lib/aide/notes" {
		t.Errorf("NotesDir() = %q", got)
	}
	if got := cfg.UsageLogPath(); got != "/var/lib/aide/usage.jsonl" {
		t.Errorf("UsageLogPath() = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/aide"); got != filepath.Join(home, "aide") {
		t.Errorf("ExpandPath(~/aide) = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(abs) = %q", got)
	}
}
