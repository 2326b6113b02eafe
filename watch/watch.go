// Package watch reports filesystem activity once it has settled, feeding
// fsnotify events through a debouncer so that a burst of writes produces a
// single notification instead of one per event.
package watch

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tylergannon/go-signal"

	"github.com/tylergannon/go-debounce"
)

// =============================================================================
// Watcher Limit
// =============================================================================

// MaxWatchers is the global limit on the number of filesystem watchers.
// If this limit is exceeded, creating new watchers will fail with
// ErrTooManyWatchers. This prevents misconfiguration from exhausting OS
// resources.
const MaxWatchers = 100

// globalWatcherCount tracks the number of active filesystem watchers.
var globalWatcherCount atomic.Int32

// ErrTooManyWatchers is returned when attempting to create a watcher would
// exceed MaxWatchers.
var ErrTooManyWatchers = errors.New("too many filesystem watchers: limit exceeded")

// WatcherCount returns the current number of active watchers.
func WatcherCount() int32 {
	return globalWatcherCount.Load()
}

// acquireWatcher attempts to increment the watcher count.
// Returns an error if the limit would be exceeded.
func acquireWatcher() error {
	for {
		current := globalWatcherCount.Load()
		if current >= MaxWatchers {
			return ErrTooManyWatchers
		}
		if globalWatcherCount.CompareAndSwap(current, current+1) {
			return nil
		}
	}
}

// releaseWatcher decrements the watcher count.
func releaseWatcher() {
	globalWatcherCount.Add(-1)
}

// =============================================================================
// Filesystem Watcher
// =============================================================================

// FSWatcher abstracts filesystem watching for testability.
type FSWatcher interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Add(path string, recursive bool) error
	Rescan() error
	Close() error
}

// RealFSWatcher wraps fsnotify.Watcher to implement FSWatcher.
type RealFSWatcher struct {
	watcher *fsnotify.Watcher
	paths   []watchedPath // track paths for Rescan
	mu      sync.Mutex
}

type watchedPath struct {
	path      string
	recursive bool
}

// NewRealFSWatcher creates a new RealFSWatcher.
// Returns ErrTooManyWatchers if the global watcher limit would be exceeded.
func NewRealFSWatcher() (*RealFSWatcher, error) {
	if err := acquireWatcher(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		releaseWatcher()
		return nil, err
	}
	return &RealFSWatcher{watcher: w}, nil
}

func (r *RealFSWatcher) Events() <-chan fsnotify.Event {
	return r.watcher.Events
}

func (r *RealFSWatcher) Errors() <-chan error {
	return r.watcher.Errors
}

func (r *RealFSWatcher) Add(path string, recursive bool) error {
	r.mu.Lock()
	r.paths = append(r.paths, watchedPath{path: path, recursive: recursive})
	r.mu.Unlock()

	if recursive {
		return r.addRecursive(path)
	}
	return r.watcher.Add(path)
}

func (r *RealFSWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := r.watcher.Add(path); err != nil {
				log.Printf("Warning: could not watch %s: %v", path, err)
			}
		}
		return nil
	})
}

// Rescan re-walks the recursive watch roots to pick up directories created
// since the last scan.
func (r *RealFSWatcher) Rescan() error {
	r.mu.Lock()
	paths := make([]watchedPath, len(r.paths))
	copy(paths, r.paths)
	r.mu.Unlock()

	for _, wp := range paths {
		if wp.recursive {
			if err := r.addRecursive(wp.path); err != nil {
				log.Printf("Warning: rescan failed for %s: %v", wp.path, err)
			}
		}
	}
	return nil
}

func (r *RealFSWatcher) Close() error {
	releaseWatcher()
	return r.watcher.Close()
}

// =============================================================================
// Coalescer
// =============================================================================

// Config holds coalescer configuration.
type Config struct {
	Paths          []string // watched non-recursively
	RecursivePaths []string // watched recursively

	// Wait is the quiet period that must elapse before a burst of events
	// counts as settled.
	Wait time.Duration

	// MaxWait bounds how long reporting may be deferred while events keep
	// arriving. Zero disables the ceiling.
	MaxWait time.Duration
}

// Callbacks holds the callback functions for the coalescer.
type Callbacks struct {
	OnBurst  func(ev fsnotify.Event) // called on the first event of a burst
	OnSettle func(ev fsnotify.Event) // called once the burst goes quiet; ev is the last event seen
}

// Coalescer watches paths and reports each burst of filesystem activity as
// a single settled notification carrying the burst's last event.
type Coalescer struct {
	config    Config
	callbacks Callbacks
	fs        FSWatcher
	deb       *debounce.Debouncer[fsnotify.Event]

	// Holds the last settled event. Readers block while a burst is in
	// progress.
	latest *signal.Signal[fsnotify.Event]
}

// NewCoalescer creates a new Coalescer with the given configuration.
func NewCoalescer(config Config, callbacks Callbacks, fs FSWatcher) (*Coalescer, error) {
	c := &Coalescer{
		config:    config,
		callbacks: callbacks,
		fs:        fs,
		latest:    signal.New[fsnotify.Event](),
	}

	var opts []debounce.Option
	if config.MaxWait > 0 {
		opts = append(opts, debounce.WithMaxWait(config.MaxWait))
	}
	deb, err := debounce.New(config.Wait, debounce.Callbacks[fsnotify.Event]{
		OnLeading:  c.burstStarted,
		OnTrailing: c.burstSettled,
	}, opts...)
	if err != nil {
		return nil, err
	}
	c.deb = deb

	return c, nil
}

func (c *Coalescer) burstStarted(ev fsnotify.Event, _ bool) {
	// Invalidate so Latest readers block until the burst settles
	c.latest.Invalidate()
	if c.callbacks.OnBurst != nil {
		c.callbacks.OnBurst(ev)
	}
}

func (c *Coalescer) burstSettled(ev fsnotify.Event, active bool) {
	if !active {
		return
	}
	c.latest.Set(ev)
	if c.callbacks.OnSettle != nil {
		c.callbacks.OnSettle(ev)
	}
}

// Start begins watching paths and pumping events through the debouncer.
// This blocks until the context is cancelled or the watcher closes.
func (c *Coalescer) Start(ctx context.Context) {
	for _, dir := range c.config.Paths {
		if err := c.fs.Add(dir, false); err != nil {
			log.Printf("Warning: could not watch %s: %v", dir, err)
		}
	}
	for _, dir := range c.config.RecursivePaths {
		if err := c.fs.Add(dir, true); err != nil {
			log.Printf("Warning: could not watch %s recursively: %v", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-c.fs.Events():
			if !ok {
				return
			}

			// Handle new directories - rescan to pick up new subdirectories
			if event.Has(fsnotify.Create) {
				_ = c.fs.Rescan()
			}

			c.deb.Trigger(event)

		case err, ok := <-c.fs.Errors():
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

// Latest blocks while a burst is in progress and returns the most recent
// settled event.
func (c *Coalescer) Latest() fsnotify.Event {
	return c.latest.Get()
}

// Flush ends any in-progress burst immediately, as if it had gone quiet.
func (c *Coalescer) Flush() {
	c.deb.Flush()
}

// Close stops the coalescer and the underlying watcher. Pending bursts are
// dropped without a settle notification.
func (c *Coalescer) Close() error {
	c.deb.Close()
	return c.fs.Close()
}
