// Package watch reloads the predicate catalog when its file changes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"chrysalis/internal/logging"
	"chrysalis/internal/predicates"
)

// DefaultDebounce batches the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// ReloadFunc receives each catalog that parsed and compiled, together with
// its compiled predicates. Calls never overlap.
type ReloadFunc func(ctx context.Context, cat *predicates.Catalog, compiled []predicates.Compiled)

// reloadRequest asks the event loop for an immediate reload.
type reloadRequest struct {
	done chan error
}

// CatalogWatcher watches a predicate catalog file. It watches the parent
// directory so that editors replacing the file via rename are still seen.
type CatalogWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	dir         string
	onReload    ReloadFunc
	pending     time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	triggerCh   chan reloadRequest
	running     bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventType string
	LastError     string
}

// Option configures a CatalogWatcher.
type Option func(*CatalogWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(cw *CatalogWatcher) { cw.debounceDur = d }
}

// New creates a watcher for the catalog at path.
func New(path string, onReload ReloadFunc, opts ...Option) (*CatalogWatcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &CatalogWatcher{
		watcher:     watcher,
		path:        abs,
		dir:         filepath.Dir(abs),
		onReload:    onReload,
		debounceDur: DefaultDebounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		triggerCh:   make(chan reloadRequest),
	}
	for _, opt := range opts {
		opt(cw)
	}
	return cw, nil
}

// Path returns the watched catalog file.
func (cw *CatalogWatcher) Path() string { return cw.path }

// Start begins watching. It is non-blocking; events are handled on a
// goroutine until ctx is done or Stop is called.
func (cw *CatalogWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return nil
	}
	select {
	case <-cw.doneCh:
		cw.mu.Unlock()
		return fmt.Errorf("watcher cannot be restarted")
	default:
	}

	if err := os.MkdirAll(cw.dir, 0755); err != nil {
		cw.mu.Unlock()
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := cw.watcher.Add(cw.dir); err != nil {
		cw.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", cw.dir, err)
	}
	cw.running = true
	cw.mu.Unlock()

	logging.Watch("Watching predicate catalog %s", cw.path)
	go cw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. It is safe
// to call on a watcher that was never started.
func (cw *CatalogWatcher) Stop() {
	cw.mu.Lock()
	wasRunning := cw.running
	cw.running = false
	cw.mu.Unlock()

	if wasRunning {
		close(cw.stopCh)
		<-cw.doneCh
	}

	if err := cw.watcher.Close(); err != nil {
		logging.WatchError("Error closing watcher: %v", err)
	}
	logging.Watch("Stopped watching %s", cw.path)
}

// IsWatching returns true while the event loop is running.
func (cw *CatalogWatcher) IsWatching() bool {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.running
}

// Stats returns a copy of the activity counters.
func (cw *CatalogWatcher) Stats() Stats {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.stats
}

// Trigger reloads the catalog immediately, outside the debounce window, and
// returns the load error if any. While the watcher is running the reload is
// handed to the event loop so it never overlaps an event-driven reload.
func (cw *CatalogWatcher) Trigger(ctx context.Context) error {
	cw.mu.RLock()
	running := cw.running
	cw.mu.RUnlock()
	if !running {
		return cw.reload(ctx)
	}

	req := reloadRequest{done: make(chan error, 1)}
	select {
	case cw.triggerCh <- req:
	case <-cw.doneCh:
		return fmt.Errorf("watcher stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cw *CatalogWatcher) run(ctx context.Context) {
	defer close(cw.doneCh)

	tick := 100 * time.Millisecond
	if half := cw.debounceDur / 2; half > 0 && half < tick {
		tick = half
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("Context cancelled")
			cw.mu.Lock()
			cw.running = false
			cw.mu.Unlock()
			return

		case <-cw.stopCh:
			logging.WatchDebug("Stop signal received")
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("Watcher error: %v", err)
			cw.mu.Lock()
			cw.stats.Errors++
			cw.stats.LastError = err.Error()
			cw.mu.Unlock()

		case req := <-cw.triggerCh:
			// Pending events are covered by this reload.
			cw.mu.Lock()
			cw.pending = time.Time{}
			cw.mu.Unlock()
			req.done <- cw.reload(ctx)

		case <-debounceTicker.C:
			cw.processDebounced(ctx)
		}
	}
}

func (cw *CatalogWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.path {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	logging.WatchDebug("%s event for %s", eventType, event.Name)

	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.stats.Events++
	cw.stats.LastEventTime = time.Now()
	cw.stats.LastEventType = eventType
	if eventType == "delete" || eventType == "rename" {
		// The file is gone; a later create brings it back.
		cw.pending = time.Time{}
		return
	}
	cw.pending = time.Now()
}

func (cw *CatalogWatcher) processDebounced(ctx context.Context) {
	cw.mu.Lock()
	if cw.pending.IsZero() || time.Since(cw.pending) < cw.debounceDur {
		cw.mu.Unlock()
		return
	}
	cw.pending = time.Time{}
	cw.mu.Unlock()

	if err := cw.reload(ctx); err != nil {
		logging.WatchError("Catalog reload failed: %v", err)
	}
}

func (cw *CatalogWatcher) reload(ctx context.Context) error {
	cat, err := predicates.Load(cw.path)
	var compiled []predicates.Compiled
	if err == nil {
		compiled, err = cat.Compile()
	}
	if err != nil {
		cw.mu.Lock()
		cw.stats.Errors++
		cw.stats.LastError = err.Error()
		cw.mu.Unlock()
		return err
	}

	cw.mu.Lock()
	cw.stats.Reloads++
	cw.mu.Unlock()

	logging.Watch("Reloaded catalog %s (%d predicates)", cw.path, len(cat.Predicates))
	cw.onReload(ctx, cat, compiled)
	return nil
}
