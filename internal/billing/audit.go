package billing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEntry is one line of the append-only usage log, written per recorded
// request. Requests and Units are the open conversation's running totals so
// billing can be reconstructed after the process restarts.
type AuditEntry struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Excerpt    string                     `json:"excerpt,omitempty"`
	Model      string                     `json:"model"`
	Multiplier float64                    `json:"multiplier"`
	Requests   int                        `json:"requests"`
	Units      float64                    `json:"units"`
	Delegated  map[string]*DelegatedUsage `json:"delegated,omitempty"`
	Duration   string                     `json:"duration"`
}

// AuditLog appends usage entries to a JSONL file, one entry per line.
type AuditLog struct {
	mu      sync.Mutex
	path    string
	excerpt string
}

// NewAuditLog creates the log directory if needed and returns a writer for
// the given path.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating usage log directory: %w", err)
	}
	return &AuditLog{path: path}, nil
}

// SetExcerpt records a short excerpt of the triggering message to include
// in the next appended entry.
func (a *AuditLog) SetExcerpt(text string) {
	const maxRunes = 120
	if runes := []rune(text); len(runes) > maxRunes {
		text = string(runes[:maxRunes]) + "..."
	}
	a.mu.Lock()
	a.excerpt = text
	a.mu.Unlock()
}

// Append writes one entry as a JSONL line. A pending excerpt set via
// SetExcerpt is attached to the entry and cleared.
func (a *AuditLog) Append(entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry.Excerpt = a.excerpt
	a.excerpt = ""

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling usage entry: %w", err)
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening usage log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing usage entry: %w", err)
	}
	return nil
}

// ReadAll parses every entry in the log. Malformed lines are skipped.
func (a *AuditLog) ReadAll() ([]AuditEntry, error) {
	f, err := os.Open(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []AuditEntry
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var entry AuditEntry
			if jsonErr := json.Unmarshal(line, &entry); jsonErr == nil {
				entries = append(entries, entry)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("reading usage log: %w", err)
		}
	}
	return entries, nil
}
