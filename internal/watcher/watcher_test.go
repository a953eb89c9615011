package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/ideamark/internal/logging"
)

func markdownFilter(path string) bool {
	return strings.HasSuffix(path, ".md")
}

// collector records every batch handed to the change handler.
type collector struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (c *collector) handle(_ context.Context, events []ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, events)
	return nil
}

func (c *collector) paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var paths []string
	for _, batch := range c.batches {
		for _, event := range batch {
			paths = append(paths, event.Path)
		}
	}
	return paths
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestAddDirectoryWatchMissingDirectory(t *testing.T) {
	r := NewRegistry(Options{}, logging.Discard())

	err := r.AddDirectoryWatch(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.Empty(t, r.Dirs())
}

func TestAddDirectoryWatchRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	r := NewRegistry(Options{}, logging.Discard())
	assert.Error(t, r.AddDirectoryWatch(file))
}

func TestRemoveAllWatches(t *testing.T) {
	r := NewRegistry(Options{}, logging.Discard())
	dirA, dirB := t.TempDir(), t.TempDir()

	require.NoError(t, r.AddDirectoryWatch(dirA))
	require.NoError(t, r.AddDirectoryWatch(dirB))
	assert.ElementsMatch(t, []string{dirA, dirB}, r.Dirs())

	require.NoError(t, r.RemoveAllWatches())
	assert.Empty(t, r.Dirs())
	assert.NoError(t, r.RemoveAllWatches(), "second teardown is a no-op")
}

func TestFullQueueKeepsEvents(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 1}, logging.Discard())
	w := &Watch{stop: make(chan struct{})}
	dir := t.TempDir()
	first, second := filepath.Join(dir, "a.md"), filepath.Join(dir, "b.md")

	r.handleFsnotifyEvent(w, fsnotify.Event{Name: first, Op: fsnotify.Write})

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		r.handleFsnotifyEvent(w, fsnotify.Event{Name: second, Op: fsnotify.Write})
	}()

	select {
	case <-sent:
		t.Fatal("send on a full queue returned before the queue drained")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, first, (<-r.Events()).Path)
	<-sent
	assert.Equal(t, second, (<-r.Events()).Path)
}

func TestStopReleasesBlockedSend(t *testing.T) {
	r := NewRegistry(Options{QueueSize: 1}, logging.Discard())
	w := &Watch{stop: make(chan struct{})}
	path := filepath.Join(t.TempDir(), "a.md")

	r.handleFsnotifyEvent(w, fsnotify.Event{Name: path, Op: fsnotify.Write})

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		r.handleFsnotifyEvent(w, fsnotify.Event{Name: path, Op: fsnotify.Write})
	}()

	close(w.stop)
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("blocked send was not released by stop")
	}
}

func TestClassify(t *testing.T) {
	modifyOnly := NewRegistry(Options{}, logging.Discard())
	withCreates := NewRegistry(Options{Creates: true}, logging.Discard())

	testCases := []struct {
		name     string
		op       fsnotify.Op
		registry *Registry
		want     EventType
		ok       bool
	}{
		{"write", fsnotify.Write, modifyOnly, EventTypeModified, true},
		{"create ignored", fsnotify.Create, modifyOnly, EventTypeCreated, false},
		{"create enabled", fsnotify.Create, withCreates, EventTypeCreated, true},
		{"remove ignored", fsnotify.Remove, withCreates, EventTypeDeleted, false},
		{"rename ignored", fsnotify.Rename, withCreates, EventTypeRenamed, false},
		{"chmod ignored", fsnotify.Chmod, withCreates, EventTypeModified, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.registry.classify(fsnotify.Event{Name: "/x/a.md", Op: tc.op})
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilters(t *testing.T) {
	r := NewRegistry(Options{}, logging.Discard())
	r.AddFilter(markdownFilter)
	r.AddFilter(NoHiddenFilter)
	r.AddFilter(NoTempFilter)

	assert.True(t, r.accept("/content/en/hello.md"))
	assert.False(t, r.accept("/content/en/logo.png"))
	assert.False(t, r.accept("/content/en/.hello.md"))
	assert.False(t, r.accept("/content/en/hello.md~"))
	assert.False(t, r.accept("/content/en/#hello.md"))
}

func TestRunDeliversModifications(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "hello.md")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0o644))

	r := NewRegistry(Options{Debounce: 20 * time.Millisecond}, logging.Discard())
	r.AddFilter(markdownFilter)
	require.NoError(t, r.AddDirectoryWatch(dir))
	defer r.RemoveAllWatches()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go func() { _ = r.Run(ctx, c.handle) }()

	require.NoError(t, os.WriteFile(file, []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return len(c.paths()) > 0
	}, 3*time.Second, 10*time.Millisecond)

	for _, path := range c.paths() {
		assert.Equal(t, file, path)
	}
}

func TestNonRecursiveIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	nested := filepath.Join(sub, "deep.md")
	require.NoError(t, os.WriteFile(nested, []byte("one"), 0o644))
	top := filepath.Join(dir, "top.md")
	require.NoError(t, os.WriteFile(top, []byte("one"), 0o644))

	r := NewRegistry(Options{}, logging.Discard())
	require.NoError(t, r.AddDirectoryWatch(dir))
	defer r.RemoveAllWatches()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go func() { _ = r.Run(ctx, c.handle) }()

	require.NoError(t, os.WriteFile(nested, []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(top, []byte("two"), 0o644))

	require.Eventually(t, func() bool {
		for _, path := range c.paths() {
			if path == top {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	assert.NotContains(t, c.paths(), nested)
}

func TestRecursiveWatchesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "en", "2024")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	nested := filepath.Join(sub, "deep.md")
	require.NoError(t, os.WriteFile(nested, []byte("one"), 0o644))

	r := NewRegistry(Options{Recursive: true}, logging.Discard())
	require.NoError(t, r.AddDirectoryWatch(dir))
	defer r.RemoveAllWatches()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go func() { _ = r.Run(ctx, c.handle) }()

	require.NoError(t, os.WriteFile(nested, []byte("two"), 0o644))

	require.Eventually(t, func() bool {
		for _, path := range c.paths() {
			if path == nested {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDebouncerGroupsByPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan ChangeEvent, 10)
	out := make(chan []ChangeEvent, 1)
	go NewDebouncer(50*time.Millisecond).Run(ctx, in, out)

	in <- ChangeEvent{Type: EventTypeModified, Path: "/a.md", Size: 1}
	in <- ChangeEvent{Type: EventTypeModified, Path: "/b.md"}
	in <- ChangeEvent{Type: EventTypeModified, Path: "/a.md", Size: 2}

	select {
	case batch := <-out:
		require.Len(t, batch, 2)
		assert.Equal(t, "/a.md", batch[0].Path)
		assert.Equal(t, int64(2), batch[0].Size, "latest event per path wins")
		assert.Equal(t, "/b.md", batch[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer did not flush")
	}
}

func TestDebouncerZeroDelayPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan ChangeEvent, 2)
	out := make(chan []ChangeEvent, 2)
	go NewDebouncer(0).Run(ctx, in, out)

	in <- ChangeEvent{Path: "/a.md"}
	in <- ChangeEvent{Path: "/a.md"}

	for i := 0; i < 2; i++ {
		select {
		case batch := <-out:
			assert.Len(t, batch, 1)
		case <-time.After(2 * time.Second):
			t.Fatal("event not forwarded")
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := NewRegistry(Options{}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, func(context.Context, []ChangeEvent) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
