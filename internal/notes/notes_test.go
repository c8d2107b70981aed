package notes

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "notes"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGet(t *testing.T) {
	store := newTestStore(t)

	slug, err := store.Save("Grocery List", "milk, eggs, coffee")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if slug != "grocery-list" {
		t.Errorf("Save() slug = %q, want grocery-list", slug)
	}

	note, ok := store.Get("Grocery List")
	if !ok {
		t.Fatal("Get() did not find the saved note")
	}
	if note.Content != "milk, eggs, coffee" {
		t.Errorf("note content = %q", note.Content)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Save("plan", "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save("plan", "v2"); err != nil {
		t.Fatal(err)
	}
	note, _ := store.Get("plan")
	if note.Content != "v2" {
		t.Errorf("content = %q, want v2", note.Content)
	}
	if names := store.List(); len(names) != 1 {
		t.Errorf("List() = %v, want single note", names)
	}
}

func TestSearch(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Save("travel ideas", "visit Kyoto in autumn"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save("work", "ship the quarterly report"); err != nil {
		t.Fatal(err)
	}

	matches := store.Search("KYOTO")
	if len(matches) != 1 || matches[0].Name != "travel-ideas" {
		t.Errorf("Search(KYOTO) = %v, want the travel note", matches)
	}
	if got := store.Search("report"); len(got) != 1 || got[0].Name != "work" {
		t.Errorf("Search(report) = %v, want the work note", got)
	}
	if got := store.Search("nothing-matches"); len(got) != 0 {
		t.Errorf("Search(miss) = %v, want empty", got)
	}
	if got := store.Search("  "); got != nil {
		t.Errorf("Search(blank) = %v, want nil", got)
	}
}

func TestLoadsExistingNotes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notes")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "existing.md"), []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	note, ok := store.Get("existing")
	if !ok || note.Content != "hello" {
		t.Errorf("Get(existing) = (%+v, %v), want preloaded note", note, ok)
	}
}

func TestExternalEditIsPickedUp(t *testing.T) {
	store := newTestStore(t)
	path := filepath.Join(store.dir, "dropped.md")
	if err := os.WriteFile(path, []byte("dropped in"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if note, ok := store.Get("dropped"); ok && note.Content == "dropped in" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("externally created note never appeared in the index")
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Grocery List", "grocery-list"},
		{"  Already-Slugged  ", "already-slugged"},
		{"weird!@#chars", "weirdchars"},
		{"///", "note"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
