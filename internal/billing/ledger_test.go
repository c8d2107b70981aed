package billing

import (
	"path/filepath"
	"strings"
	"testing"
)

func testCatalog() *Catalog {
	return NewCatalog([]ModelInfo{
		{ID: "claude-sonnet-4", DisplayName: "Sonnet", Multiplier: 1},
		{ID: "claude-opus-4.5", DisplayName: "Opus", Multiplier: 3},
	})
}

func TestCatalog_ResolveExact(t *testing.T) {
	c := testCatalog()
	if got := c.Resolve("claude-sonnet-4"); got != 1 {
		t.Errorf("expected multiplier 1, got %g", got)
	}
	if got := c.Resolve("claude-opus-4.5"); got != 3 {
		t.Errorf("expected multiplier 3, got %g", got)
	}
}

func TestCatalog_ResolveSubstring(t *testing.T) {
	c := testCatalog()
	// Versioned variant contains the catalog id.
	if got := c.Resolve("claude-opus-4.5-20260115"); got != 3 {
		t.Errorf("expected multiplier 3 for versioned variant, got %g", got)
	}
	// Catalog id contains the query.
	if got := c.Resolve("OPUS-4.5"); got != 3 {
		t.Errorf("expected case-insensitive match, got %g", got)
	}
}

func TestCatalog_ResolveUnknownFailsOpen(t *testing.T) {
	c := testCatalog()
	for _, id := range []string{"gpt-9", "", "totally-unknown"} {
		if got := c.Resolve(id); got != DefaultMultiplier {
			t.Errorf("Resolve(%q) = %g, want default %g", id, got, DefaultMultiplier)
		}
	}
}

func TestLedger_RecordRequestAdditive(t *testing.T) {
	l := NewLedger(testCatalog(), nil)

	const n = 5
	for i := 0; i < n; i++ {
		l.RecordRequest("claude-opus-4.5")
	}

	conv := l.EndConversation()
	if conv == nil {
		t.Fatal("expected open conversation")
	}
	if conv.Requests != n {
		t.Errorf("expected %d requests, got %d", n, conv.Requests)
	}
	if conv.Units != n*3 {
		t.Errorf("expected %d units, got %g", n*3, conv.Units)
	}

	lifetime := l.Lifetime()
	if lifetime.TotalRequests != n || lifetime.TotalUnits != n*3 {
		t.Errorf("lifetime = %d req / %g units, want %d / %d",
			lifetime.TotalRequests, lifetime.TotalUnits, n, n*3)
	}
}

func TestLedger_EndConversationIdempotent(t *testing.T) {
	l := NewLedger(testCatalog(), nil)

	l.RecordRequest("claude-sonnet-4")
	if conv := l.EndConversation(); conv == nil {
		t.Fatal("first EndConversation should return the conversation")
	}
	if conv := l.EndConversation(); conv != nil {
		t.Errorf("second EndConversation should return nil, got %+v", conv)
	}
}

func TestLedger_NewConversationAfterClose(t *testing.T) {
	l := NewLedger(testCatalog(), nil)

	l.RecordRequest("claude-sonnet-4")
	l.EndConversation()
	l.RecordRequest("claude-sonnet-4")

	conv := l.EndConversation()
	if conv == nil || conv.Requests != 1 {
		t.Fatalf("expected fresh conversation with 1 request, got %+v", conv)
	}
	if len(l.Lifetime().History) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(l.Lifetime().History))
	}
}

func TestLedger_DelegatedUsageSeparate(t *testing.T) {
	l := NewLedger(testCatalog(), nil)

	l.RecordRequest("claude-sonnet-4")
	l.RecordDelegated("agent-1", "claude-sonnet-4")

	conv := l.EndConversation()
	if conv.Requests != 1 {
		t.Errorf("delegated request leaked into primary tally: %d", conv.Requests)
	}
	du := conv.Delegated["agent-1"]
	if du == nil || du.Requests != 1 || du.Units != 1 {
		t.Fatalf("expected delegated sub-entry with 1 request / 1 unit, got %+v", du)
	}

	// Lifetime totals include both, additively.
	lifetime := l.Lifetime()
	if lifetime.TotalRequests != 2 || lifetime.TotalUnits != 2 {
		t.Errorf("lifetime = %d req / %g units, want 2 / 2",
			lifetime.TotalRequests, lifetime.TotalUnits)
	}
}

func TestLedger_Summary(t *testing.T) {
	l := NewLedger(testCatalog(), nil)

	l.RecordRequest("claude-opus-4.5")
	l.RecordDelegated("agent-1", "claude-sonnet-4")
	conv := l.EndConversation()

	s := l.Summary(conv)
	for _, want := range []string{"claude-opus-4.5", "x3", "1 request", "agent-1"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}

	if got := l.Summary(nil); got != "" {
		t.Errorf("Summary(nil) = %q, want empty", got)
	}
}

func TestLedger_SummaryIncludesLifetimeWhenGreater(t *testing.T) {
	l := NewLedger(testCatalog(), nil)

	l.RecordRequest("claude-sonnet-4")
	first := l.EndConversation()
	if strings.Contains(l.Summary(first), "Lifetime") {
		// Lifetime equals the single conversation; line is suppressed until
		// the running total exceeds it.
		t.Error("summary should not include lifetime line for the only conversation")
	}

	l.RecordRequest("claude-sonnet-4")
	second := l.EndConversation()
	if !strings.Contains(l.Summary(second), "Lifetime") {
		t.Error("summary should include lifetime line once totals exceed the conversation")
	}
}

func TestAuditLog_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	audit, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	l := NewLedger(testCatalog(), audit)
	audit.SetExcerpt("hello world")
	for i := 0; i < 3; i++ {
		l.RecordRequest("claude-sonnet-4")
		l.EndConversation()
	}

	entries, err := audit.ReadAll()
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Excerpt != "hello world" {
		t.Errorf("first entry excerpt = %q", entries[0].Excerpt)
	}
	if entries[1].Excerpt != "" {
		t.Errorf("excerpt should be cleared after first append, got %q", entries[1].Excerpt)
	}
	for i, e := range entries {
		if e.Model != "claude-sonnet-4" || e.Requests != 1 {
			t.Errorf("entry %d = %+v", i, e)
		}
	}
}

func TestAuditLog_EntryPerRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	audit, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	l := NewLedger(testCatalog(), audit)
	for i := 0; i < 3; i++ {
		l.RecordRequest("claude-opus-4.5")
	}
	l.EndConversation()

	entries, err := audit.ReadAll()
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected one entry per request, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Requests != i+1 {
			t.Errorf("entry %d requests = %d, want running total %d", i, e.Requests, i+1)
		}
		if e.Units != float64(i+1)*3 {
			t.Errorf("entry %d units = %g, want %g", i, e.Units, float64(i+1)*3)
		}
		if e.Multiplier != 3 {
			t.Errorf("entry %d multiplier = %g, want 3", i, e.Multiplier)
		}
	}
}

func TestAuditLog_DelegatedBreakdownRidesAlong(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	audit, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	l := NewLedger(testCatalog(), audit)
	l.RecordRequest("claude-sonnet-4")
	l.RecordDelegated("agent-1", "claude-opus-4.5")
	l.RecordRequest("claude-sonnet-4")

	entries, err := audit.ReadAll()
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Delegated != nil {
		t.Errorf("first entry should have no delegated breakdown, got %v", entries[0].Delegated)
	}
	du := entries[1].Delegated["agent-1"]
	if du == nil || du.Requests != 1 || du.Units != 3 {
		t.Fatalf("second entry delegated sub-entry = %+v, want 1 request / 3 units", du)
	}
}

func TestAuditLog_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	audit, err := NewAuditLog(path)
	if err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	l := NewLedger(testCatalog(), audit)
	l.RecordRequest("claude-sonnet-4")
	l.EndConversation()

	appendRaw(t, path, "{not json\n")

	l.RecordRequest("claude-sonnet-4")
	l.EndConversation()

	entries, err := audit.ReadAll()
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 parseable entries, got %d", len(entries))
	}
}
