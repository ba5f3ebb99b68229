// Package watch invalidates discovery sessions when a project's
// dependency-declaration files change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/macropower/loadout/pkg/log"
	"github.com/macropower/loadout/pkg/manifest"
	"github.com/macropower/loadout/pkg/session"
)

var ErrClosed = errors.New("watcher closed")

// Invalidator discards cached state. [session.Session] implements it.
type Invalidator interface {
	InvalidateContext(ctx context.Context, reason session.Trigger)
}

// Event describes a change to a watched declaration file.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches the declaration files at a project root.
type Watcher struct {
	fsw          *fsnotify.Watcher
	names        map[string]struct{}
	root         string
	invalidators []Invalidator
	listeners    []chan<- Event
	mu           sync.Mutex
}

// Opt configures a [Watcher].
type Opt func(*Watcher)

// WithInvalidator invalidates inv on every relevant change.
func WithInvalidator(inv Invalidator) Opt {
	return func(w *Watcher) {
		w.invalidators = append(w.invalidators, inv)
	}
}

// WithFileNames overrides the watched base names. By default every supported
// declaration file name is watched.
func WithFileNames(names ...string) Opt {
	return func(w *Watcher) {
		w.names = make(map[string]struct{}, len(names))
		for _, n := range names {
			w.names[n] = struct{}{}
		}
	}
}

// New creates a [Watcher] for the directory root.
func New(root string, opts ...Opt) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:  fsw,
		root: absRoot,
	}

	WithFileNames(manifest.Names()...)(w)

	for _, opt := range opts {
		opt(w)
	}

	// Watch the directory so files created after start are seen.
	err = fsw.Add(absRoot)
	if err != nil {
		_ = fsw.Close()

		return nil, fmt.Errorf("add path to watcher: %w", err)
	}

	return w, nil
}

// Subscribe sends every relevant [Event] to ch.
func (w *Watcher) Subscribe(ch chan<- Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.listeners = append(w.listeners, ch)
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Run handles file system events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}

			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) {
				continue
			}

			if !w.isWatched(evt.Name) {
				continue
			}

			logger.DebugContext(ctx, "declaration file changed",
				slog.String("path", evt.Name),
				slog.String("op", evt.Op.String()),
			)

			w.dispatch(ctx, Event{Path: evt.Name, Op: evt.Op})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}

			logger.ErrorContext(ctx, "watch files", slog.Any("err", err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}

	return nil
}

func (w *Watcher) isWatched(path string) bool {
	if filepath.Dir(path) != w.root {
		return false
	}

	_, ok := w.names[filepath.Base(path)]

	return ok
}

func (w *Watcher) dispatch(ctx context.Context, evt Event) {
	for _, inv := range w.invalidators {
		inv.InvalidateContext(ctx, session.TriggerManifestChanged)
	}

	w.mu.Lock()
	listeners := w.listeners
	w.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- evt:
		case <-ctx.Done():
			return
		}
	}
}
