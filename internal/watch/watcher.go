package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher feeds create and write events on .md files under Dir into a Debouncer.
type Watcher struct {
	Dir       string
	Debouncer *Debouncer
}

// Run scans Dir once, then watches it recursively until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.Dir); err != nil {
		return err
	}
	w.Scan(w.Dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "dir", w.Dir, "err", err)
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.addTree(fw, ev.Name); err != nil {
				slog.Warn("watch add failed", "dir", ev.Name, "err", err)
			}
			// files may have landed before the watch was added
			w.Scan(ev.Name)
			return
		}
	}
	if !IsInput(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create):
		w.Debouncer.Add(ev.Name, "created")
	case ev.Has(fsnotify.Write):
		w.Debouncer.Add(ev.Name, "modified")
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
		}
		return nil
	})
}

// Scan queues every .md file under dir.
func (w *Watcher) Scan(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && IsInput(p) {
			w.Debouncer.Add(p, "scan")
		}
		return nil
	})
}

// IsInput reports whether p names a markdown input.
func IsInput(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".md")
}
