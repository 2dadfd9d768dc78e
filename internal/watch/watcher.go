// Package watch reports settled changes to a build output directory.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Config contains configuration for the watcher.
type Config struct {
	// Dir is the root directory to watch.
	Dir string

	// IgnorePatterns match path components that never trigger a change.
	IgnorePatterns []string

	// Debounce is how long the tree must stay quiet before a change is reported.
	Debounce time.Duration
}

// DefaultConfig returns the default configuration for dir. Files written
// by build normalization are ignored.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir: dir,
		IgnorePatterns: []string{
			".git",
			"node_modules",
			".open-next",
			".open-dash",
			".venv-open-dash",
			".npmrc",
			"index.mjs",
			"open-dash.config.json",
			"*.swp",
			"*~",
		},
		Debounce: 500 * time.Millisecond,
	}
}

// Change is a settled batch of modified paths.
type Change struct {
	Paths []string
}

// Watcher coalesces file system events below a directory into Changes.
type Watcher struct {
	config  *Config
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	changes chan Change
}

// New creates a watcher. Call Close when done.
func New(config *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:  config,
		watcher: fsWatcher,
		logger:  logger,
		pending: make(map[string]struct{}),
		changes: make(chan Change, 1),
	}

	if err := w.addRecursive(config.Dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// Run calls handle for every settled change until ctx is done. Handlers
// run one at a time; events raised while a handler runs, including the
// handler's own writes, are discarded. A handler error is logged and does
// not stop the loop.
func (w *Watcher) Run(ctx context.Context, handle func(context.Context, Change) error) error {
	errs := make(chan error, 1)
	go w.processEvents(ctx, errs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case change := <-w.changes:
			if err := handle(ctx, change); err != nil {
				w.logger.Warn("change handler failed", zap.Error(err))
			}
			w.discard()
		}
	}
}

func (w *Watcher) processEvents(ctx context.Context, errs chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("file events dropped", zap.Error(err))
				continue
			}
			errs <- err
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.shouldIgnore(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	// New directories are not watched until added.
	if event.Has(fsnotify.Create) {
		if err := w.addRecursive(event.Name); err != nil {
			w.logger.Debug("failed to watch new path", zap.String("path", event.Name), zap.Error(err))
		}
	}

	w.debounce(event.Name)
}

// debounce restarts the settle timer on every event.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	select {
	case w.changes <- Change{Paths: paths}:
	default:
		// A change is already queued.
	}
}

// discard drops pending events and any queued change.
func (w *Watcher) discard() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	select {
	case <-w.changes:
	default:
	}
}

// addRecursive adds path, and every directory below it, to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// shouldIgnore checks every path component below the root against the
// ignore patterns.
func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.config.Dir, path)
	if err != nil {
		rel = path
	}

	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		for _, pattern := range w.config.IgnorePatterns {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
