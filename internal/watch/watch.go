// Package watch keeps a store in step with its working directory: it
// rebuilds the snapshot after filesystem events settle, reports the
// structural differences and saves the new snapshot.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"freesync/internal/merkle"
	"freesync/internal/store"
)

const DefaultDebounce = 200 * time.Millisecond

// Callback receives the previous and new snapshot with the differences
// between them. Neither tree is modified afterwards.
type Callback func(prev, next *merkle.Tree, diffs []merkle.Diff)

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExclude skips entries with these names both when watching and when
// building snapshots.
func WithExclude(names ...string) Option {
	return func(w *Watcher) {
		for _, name := range names {
			w.ignore[name] = true
		}
	}
}

type Watcher struct {
	store    *store.Store
	logger   *zap.Logger
	onChange Callback
	debounce time.Duration
	ignore   map[string]bool
	watcher  *fsnotify.Watcher
	last     *merkle.Tree
}

func New(st *store.Store, logger *zap.Logger, onChange Callback, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		store:    st,
		logger:   logger,
		onChange: onChange,
		debounce: DefaultDebounce,
		ignore:   map[string]bool{store.MetaDir: true},
		watcher:  fw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run saves an initial snapshot and then processes events until ctx is
// done. The underlying watcher is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	tree, err := w.build()
	if err != nil {
		return err
	}
	if err := w.store.SaveTree(tree); err != nil {
		return fmt.Errorf("saving initial snapshot: %w", err)
	}
	w.last = tree
	w.logger.Info("watching",
		zap.String("root", w.store.Root()),
		zap.String("hash", tree.Hash().String()),
	)

	if err := w.addRecursive(w.store.Root()); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			if err := w.rescan(); err != nil {
				w.logger.Error("rescanning", zap.Error(err))
			}
		}
	}
}

// handleEvent reports whether the event should trigger a rescan.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.store.Root(), event.Name)
	if err != nil || w.shouldIgnore(rel) {
		return false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.Error(err))
			}
		}
	}
	w.logger.Debug("fs event", zap.String("path", rel), zap.String("op", event.Op.String()))
	return true
}

func (w *Watcher) rescan() error {
	next, err := w.build()
	if err != nil {
		return err
	}
	diffs, err := merkle.FindDifferences(w.last, next)
	if err != nil {
		return fmt.Errorf("comparing snapshots: %w", err)
	}
	if len(diffs) == 0 {
		return nil
	}

	if err := w.store.SaveTree(next); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	prev := w.last
	w.last = next
	w.logger.Info("snapshot saved",
		zap.String("hash", next.Hash().String()),
		zap.Int("changes", len(diffs)),
	)
	if w.onChange != nil {
		w.onChange(prev, next, diffs)
	}
	return nil
}

func (w *Watcher) build() (*merkle.Tree, error) {
	names := make([]string, 0, len(w.ignore))
	for name := range w.ignore {
		names = append(names, name)
	}
	return merkle.Build(w.store.Root(), merkle.WithExclude(names...))
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.store.Root() && w.ignore[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

func (w *Watcher) shouldIgnore(rel string) bool {
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignore[part] {
			return true
		}
	}
	return false
}
