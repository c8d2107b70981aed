package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiffDetectsModification(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "main.go")
	util := filepath.Join(dir, "util.go")
	writeFile(t, main, "package main")
	writeFile(t, util, "package main")

	w := NewWatcher([]string{filepath.Join(dir, "*.go")})
	before := w.Take()
	if len(before) != 2 {
		t.Fatalf("snapshot captured %d files, want 2", len(before))
	}

	// Bump the mtime past filesystem timestamp granularity.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(main, future, future); err != nil {
		t.Fatal(err)
	}

	changed := Diff(before, w.Take())
	if len(changed) != 1 || changed[0] != main {
		t.Errorf("Diff() = %v, want [%s]", changed, main)
	}
}

func TestDiffNoChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.go"), "package a")

	w := NewWatcher([]string{filepath.Join(dir, "*.go")})
	before := w.Take()
	if changed := Diff(before, w.Take()); len(changed) != 0 {
		t.Errorf("Diff() on unchanged tree = %v, want empty", changed)
	}
}

func TestDiffDetectsNewAndRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.go")
	writeFile(t, old, "package a")

	w := NewWatcher([]string{filepath.Join(dir, "*.go")})
	before := w.Take()

	if err := os.Remove(old); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(dir, "new.go")
	writeFile(t, fresh, "package a")

	changed := Diff(before, w.Take())
	if len(changed) != 2 {
		t.Fatalf("Diff() = %v, want removed and added files", changed)
	}
	if changed[0] != fresh || changed[1] != old {
		t.Errorf("Diff() = %v, want sorted [%s %s]", changed, fresh, old)
	}
}

func TestBadPatternIsSkipped(t *testing.T) {
	w := NewWatcher([]string{"[unclosed"})
	if snap := w.Take(); len(snap) != 0 {
		t.Errorf("Take() with bad pattern = %v, want empty snapshot", snap)
	}
}
