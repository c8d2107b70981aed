package billing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func appendRaw(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAuditLog_ExcerptTruncatesOnRuneBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	audit, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	audit.SetExcerpt(strings.Repeat("日", 130))
	l := NewLedger(testCatalog(), audit)
	l.RecordRequest("claude-sonnet-4")

	entries, err := audit.ReadAll()
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0].Excerpt
	if !utf8.ValidString(got) {
		t.Errorf("excerpt is not valid UTF-8: %q", got)
	}
	if want := strings.Repeat("日", 120) + "..."; got != want {
		t.Errorf("excerpt = %q, want 120 runes plus ellipsis", got)
	}
}

func TestAuditLog_ReadMissingFile(t *testing.T) {
	audit, err := NewAuditLog(t.TempDir() + "/never-written.jsonl")
	if err != nil {
		t.Fatalf("create audit log: %v", err)
	}
	entries, err := audit.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll on missing file: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries, got %v", entries)
	}
}
