// Package notes is a small file-backed note store the assistant uses for
// durable free-text memory. Notes are plain markdown files; external edits
// are picked up live through a filesystem watcher.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"
)

// Note is one stored note.
type Note struct {
	Name     string
	Content  string
	Modified time.Time
}

// Store keeps notes as .md files under a single directory with an in-memory
// index kept fresh by fsnotify.
type Store struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *logging.Logger

	mu    sync.RWMutex
	notes map[string]Note
}

// NewStore opens (creating if needed) the notes directory, loads existing
// notes, and starts watching for external changes.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating notes directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating notes watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching notes directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		watcher: watcher,
		logger:  logging.New().WithComponent("notes"),
		notes:   make(map[string]Note),
	}
	if err := s.loadAll(); err != nil {
		watcher.Close()
		return nil, err
	}
	go s.watch()
	return s, nil
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing notes: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		s.loadFile(filepath.Join(s.dir, e.Name()))
	}
	return nil
}

// loadFile reads one note into the index. Unreadable files are dropped from
// the index rather than failing the caller.
func (s *Store) loadFile(path string) {
	name := strings.TrimSuffix(filepath.Base(path), ".md")
	data, err := os.ReadFile(path)
	if err != nil {
		s.mu.Lock()
		delete(s.notes, name)
		s.mu.Unlock()
		return
	}
	info, err := os.Stat(path)
	modified := time.Now()
	if err == nil {
		modified = info.ModTime()
	}
	s.mu.Lock()
	s.notes[name] = Note{Name: name, Content: string(data), Modified: modified}
	s.mu.Unlock()
}

// watch mirrors external file changes into the index.
func (s *Store) watch() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				name := strings.TrimSuffix(filepath.Base(ev.Name), ".md")
				s.mu.Lock()
				delete(s.notes, name)
				s.mu.Unlock()
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				s.loadFile(ev.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("notes watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// slugify makes a note name filesystem-safe.
func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "note"
	}
	return slug
}

// Save writes a note, overwriting any existing note with the same name.
// Returns the stored (slugified) name.
func (s *Store) Save(name, content string) (string, error) {
	slug := slugify(name)
	path := filepath.Join(s.dir, slug+".md")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("writing note %s: %w", slug, err)
	}
	s.mu.Lock()
	s.notes[slug] = Note{Name: slug, Content: content, Modified: time.Now()}
	s.mu.Unlock()
	return slug, nil
}

// Get returns a note by stored name.
func (s *Store) Get(name string) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[slugify(name)]
	return note, ok
}

// Search returns notes whose name or content contains the query,
// case-insensitive, sorted by name.
func (s *Store) Search(query string) []Note {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []Note
	for _, note := range s.notes {
		if strings.Contains(strings.ToLower(note.Name), query) ||
			strings.Contains(strings.ToLower(note.Content), query) {
			matches = append(matches, note)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches
}

// List returns all note names, sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.notes))
	for name := range s.notes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops the watcher.
func (s *Store) Close() error {
	return s.watcher.Close()
}
