// Package watch polls files and directories for modification.
//
// It backs the watch command: a change to the package map or an extra
// search root triggers a fresh reconciliation pass.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Op is the kind of change seen.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
)

// String returns the op name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// Event is one change of a watched path.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Watcher polls a fixed set of paths.
type Watcher struct {
	mu       sync.Mutex
	paths    []string
	modTimes map[string]time.Time

	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce sets how long changes must settle before the callback runs.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Watcher and records the current state of paths. Paths
// that do not exist yet are reported when they appear.
func New(paths []string, opts ...Option) *Watcher {
	w := &Watcher{
		modTimes: make(map[string]time.Time),
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "watcher"))

	seen := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		w.paths = append(w.paths, abs)
		if info, err := os.Stat(abs); err == nil {
			w.modTimes[abs] = info.ModTime()
		}
	}
	return w
}

// Paths returns the watched paths.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

// Check polls every path once and returns the changes since the last poll.
func (w *Watcher) Check() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var events []Event
	for _, path := range w.paths {
		info, err := os.Stat(path)
		last, tracked := w.modTimes[path]
		switch {
		case err != nil:
			if tracked {
				delete(w.modTimes, path)
				events = append(events, Event{Path: path, Op: OpRemove, Timestamp: now})
			}
		case !tracked:
			w.modTimes[path] = info.ModTime()
			events = append(events, Event{Path: path, Op: OpCreate, Timestamp: now})
		case !info.ModTime().Equal(last):
			w.modTimes[path] = info.ModTime()
			events = append(events, Event{Path: path, Op: OpWrite, Timestamp: now})
		}
	}
	return events
}

// Run polls until ctx is done and calls fn with the settled changes, one
// event per path, sorted by path.
func (w *Watcher) Run(ctx context.Context, fn func([]Event)) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watching for changes",
		zap.Strings("paths", w.Paths()),
		zap.Duration("interval", w.interval),
		zap.Duration("debounce", w.debounce))

	pending := make(map[string]Event)
	var lastChange time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, e := range w.Check() {
				pending[e.Path] = e
				lastChange = now
				w.logger.Debug("change detected", zap.String("path", e.Path), zap.String("op", e.Op.String()))
			}
			if len(pending) == 0 || now.Sub(lastChange) < w.debounce {
				continue
			}
			batch := make([]Event, 0, len(pending))
			for _, e := range pending {
				batch = append(batch, e)
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			pending = make(map[string]Event)
			fn(batch)
		}
	}
}
