// Package subagent manages delegated sessions: durable per-session config
// records plus an in-memory registry of live runtime handles.
package subagent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

// SessionConfig is the durable record for one delegated session. Records are
// immutable after creation; only ResetAll removes them.
type SessionConfig struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists SessionConfig records, one JSON file per identifier.
type Store struct {
	dir    string
	logger *logging.Logger
}

// NewStore creates the storage directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating agent store directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logging.New().WithComponent("agent-store"),
	}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the record for cfg.ID, overwriting any existing one.
func (s *Store) Save(cfg SessionConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session config %s: %w", cfg.ID, err)
	}
	if err := os.WriteFile(s.path(cfg.ID), data, 0600); err != nil {
		return fmt.Errorf("writing session config %s: %w", cfg.ID, err)
	}
	return nil
}

// Load returns the record for id, or nil if no record exists.
func (s *Store) Load(id string) (*SessionConfig, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session config %s: %w", id, err)
	}
	var cfg SessionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing session config %s: %w", id, err)
	}
	return &cfg, nil
}

// LoadAll enumerates every record in creation order. Identifiers are
// time-ordered, so lexical filename order matches insertion order.
// Records that fail to parse are skipped with a warning.
func (s *Store) LoadAll() ([]SessionConfig, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing agent store: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var configs []SessionConfig
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable session config", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
			continue
		}
		var cfg SessionConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			s.logger.Warn("skipping malformed session config", map[string]interface{}{
				"file":  name,
				"error": err.Error(),
			})
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// ClearAll removes every record.
func (s *Store) ClearAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing agent store: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("removing session config %s: %w", e.Name(), err)
		}
	}
	return nil
}
