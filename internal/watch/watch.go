// Package watch takes modification-time snapshots of source files so the
// orchestrator can detect self-modification between a request and its reply.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

// Snapshot maps file paths to their modification times at capture time.
type Snapshot map[string]time.Time

// Watcher captures snapshots of the files matched by a fixed set of globs.
type Watcher struct {
	globs  []string
	logger *logging.Logger
}

// NewWatcher creates a watcher over the given glob patterns.
func NewWatcher(globs []string) *Watcher {
	return &Watcher{
		globs:  globs,
		logger: logging.New().WithComponent("watch"),
	}
}

// Take captures the current snapshot. Unreadable files are skipped; a file
// that disappears between Glob and Stat simply won't appear in the snapshot.
func (w *Watcher) Take() Snapshot {
	snap := make(Snapshot)
	for _, pattern := range w.globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			w.logger.Warn("bad watch pattern", map[string]interface{}{
				"pattern": pattern,
				"error":   err.Error(),
			})
			continue
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			snap[path] = info.ModTime()
		}
	}
	return snap
}

// Diff returns the paths whose modification time changed between the two
// snapshots, plus paths that appeared or disappeared. Sorted for stable
// reporting.
func Diff(before, after Snapshot) []string {
	changed := make(map[string]struct{})
	for path, mtime := range before {
		got, ok := after[path]
		if !ok || !got.Equal(mtime) {
			changed[path] = struct{}{}
		}
	}
	for path := range after {
		if _, ok := before[path]; !ok {
			changed[path] = struct{}{}
		}
	}

	out := make([]string, 0, len(changed))
	for path := range changed {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
