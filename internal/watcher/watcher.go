// Package watcher observes content directories and queues change events
// for a single ingestion worker.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/ideamark/internal/logging"
)

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a changed file is forwarded
type FileFilter func(path string) bool

// ChangeHandler handles a debounced batch of change events
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// Options configures a Registry.
type Options struct {
	// Recursive also watches every subdirectory of a registered directory.
	Recursive bool
	// Creates forwards newly created files in addition to modifications.
	Creates bool
	// Debounce groups events for the same path arriving within the delay.
	Debounce time.Duration
	// QueueSize bounds the change event queue.
	QueueSize int
}

// Watch is one registered directory observer.
type Watch struct {
	Dir     string
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// Registry holds every active directory watch and the queue their change
// events are delivered to.
type Registry struct {
	opts    Options
	logger  logging.Logger
	queue   chan ChangeEvent
	filters []FileFilter
	watches []*Watch
	mutex   sync.RWMutex
}

// NewRegistry creates an empty watch registry.
func NewRegistry(opts Options, logger logging.Logger) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Registry{
		opts:    opts,
		logger:  logger.WithComponent("watcher"),
		queue:   make(chan ChangeEvent, opts.QueueSize),
		filters: make([]FileFilter, 0),
		watches: make([]*Watch, 0),
	}
}

// AddFilter adds a file filter. Every filter must accept a path for its
// events to be queued.
func (r *Registry) AddFilter(filter FileFilter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.filters = append(r.filters, filter)
}

// AddDirectoryWatch registers an observer for dir. A missing directory is
// reported as an error and nothing is registered.
func (r *Registry) AddDirectoryWatch(dir string) error {
	cleanDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return fmt.Errorf("resolving watch directory: %w", err)
	}

	info, err := os.Stat(cleanDir)
	if err != nil {
		return fmt.Errorf("watch directory %s: %w", cleanDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path %s is not a directory", cleanDir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if r.opts.Recursive {
		err = addRecursive(fw, cleanDir)
	} else {
		err = fw.Add(cleanDir)
	}
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("watching %s: %w", cleanDir, err)
	}

	w := &Watch{Dir: cleanDir, watcher: fw, stop: make(chan struct{}), done: make(chan struct{})}

	r.mutex.Lock()
	r.watches = append(r.watches, w)
	r.mutex.Unlock()

	go r.forward(w)

	r.logger.Info(context.Background(), "Directory watch added",
		"dir", cleanDir,
		"recursive", r.opts.Recursive)

	return nil
}

// addRecursive adds root and all non-hidden subdirectories to fw.
func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// RemoveAllWatches closes every registered observer and clears the
// registry.
func (r *Registry) RemoveAllWatches() error {
	r.mutex.Lock()
	watches := r.watches
	r.watches = make([]*Watch, 0)
	r.mutex.Unlock()

	var firstErr error
	for _, w := range watches {
		close(w.stop)
		if err := w.watcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		<-w.done
	}

	if len(watches) > 0 {
		r.logger.Info(context.Background(), "Directory watches removed", "count", len(watches))
	}
	return firstErr
}

// Dirs returns the directories currently watched.
func (r *Registry) Dirs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	dirs := make([]string, 0, len(r.watches))
	for _, w := range r.watches {
		dirs = append(dirs, w.Dir)
	}
	return dirs
}

// Events exposes the change queue.
func (r *Registry) Events() <-chan ChangeEvent {
	return r.queue
}

func (r *Registry) forward(w *Watch) {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			r.handleFsnotifyEvent(w, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn(context.Background(), err, "File watcher error", "dir", w.Dir)
		}
	}
}

func (r *Registry) handleFsnotifyEvent(w *Watch, event fsnotify.Event) {
	info, err := os.Stat(event.Name)
	if err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && r.opts.Recursive {
			if err := addRecursive(w.watcher, event.Name); err != nil {
				r.logger.Warn(context.Background(), err, "Failed to watch new directory", "dir", event.Name)
			}
		}
		return
	}

	eventType, ok := r.classify(event)
	if !ok {
		return
	}

	if !r.accept(event.Name) {
		return
	}

	changeEvent := ChangeEvent{Type: eventType, Path: event.Name}
	if err == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}

	// A full queue applies backpressure instead of dropping the event, so
	// the last write to a file is always re-ingested.
	select {
	case r.queue <- changeEvent:
	case <-w.stop:
	}
}

// classify maps an fsnotify operation onto the forwarded event type.
// Only modifications are forwarded unless creates are enabled.
func (r *Registry) classify(event fsnotify.Event) (EventType, bool) {
	switch {
	case event.Has(fsnotify.Write):
		return EventTypeModified, true
	case event.Has(fsnotify.Create):
		return EventTypeCreated, r.opts.Creates
	case event.Has(fsnotify.Remove):
		return EventTypeDeleted, false
	case event.Has(fsnotify.Rename):
		return EventTypeRenamed, false
	default:
		return EventTypeModified, false
	}
}

func (r *Registry) accept(path string) bool {
	r.mutex.RLock()
	filters := r.filters
	r.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

// Run consumes the change queue until ctx is done, handing debounced
// batches to handler one at a time.
func (r *Registry) Run(ctx context.Context, handler ChangeHandler) error {
	batches := make(chan []ChangeEvent)
	debouncer := NewDebouncer(r.opts.Debounce)
	go debouncer.Run(ctx, r.queue, batches)

	for {
		select {
		case <-ctx.Done():
			return nil
		case events := <-batches:
			if err := handler(ctx, events); err != nil {
				r.logger.Error(ctx, err, "Change handler failed", "events", len(events))
			}
		}
	}
}

// NoHiddenFilter rejects hidden files.
func NoHiddenFilter(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), ".")
}

// NoTempFilter rejects editor swap and backup files.
func NoTempFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasPrefix(base, "#")
}
