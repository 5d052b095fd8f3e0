package htmlform

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange after the content of the file at path changes. It
// blocks until ctx is done.
//
// Changes are picked up from file system events on the file's directory, so
// editors that save by renaming a temporary file are seen too. The file is
// also checked every interval, which covers file systems without event
// support. A touch that leaves the content identical is ignored.
func Watch(ctx context.Context, path string, interval time.Duration, onChange func()) {
	w := fileWatch{path: path}
	w.check()

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("form watcher: falling back to polling", "path", path, "err", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			slog.Warn("form watcher: falling back to polling", "path", path, "err", err)
		} else {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	changed := func() {
		if w.check() {
			slog.Debug("form changed", "path", path)
			onChange()
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				changed()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("form watcher: event error", "path", path, "err", err)
		}
	}
}

type fileWatch struct {
	path  string
	mtime time.Time
	hash  [sha256.Size]byte
	seen  bool
}

// check reports whether the content differs from the previous check. The
// first check only records the state.
func (w *fileWatch) check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("form watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	if w.seen && info.ModTime().Equal(w.mtime) {
		return false
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("form watcher: cannot read file", "path", w.path, "err", err)
		return false
	}
	hash := sha256.Sum256(data)
	changed := w.seen && hash != w.hash
	w.mtime, w.hash, w.seen = info.ModTime(), hash, true
	return changed
}
