// Package cache provides the response cache with LRU eviction and
// wholesale invalidation.
package cache

import (
	"net/http"
	"sync"
	"sync/atomic"
)

// Response is a rendered response replayed verbatim on a cache hit.
type Response struct {
	Header http.Header
	Body   []byte
}

func (r *Response) size() int64 {
	n := int64(len(r.Body))
	for key, values := range r.Header {
		n += int64(len(key))
		for _, v := range values {
			n += int64(len(v))
		}
	}
	return n
}

// ResponseCache maps raw request URLs to rendered responses. Entries are
// evicted least recently used first once maxSize bytes are exceeded, and
// Clear drops everything at once.
//
// Every Clear advances the generation. A renderer captures the generation
// before reading the content store and passes it to Set, so a response
// rendered from content that has since changed is never stored.
type ResponseCache struct {
	entries     map[string]*entry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	generation  uint64
	// LRU implementation
	head *entry
	tail *entry
	// Statistics tracking
	hits      int64
	misses    int64
	evictions int64
	clears    int64
}

type entry struct {
	key      string
	response *Response
	size     int64
	prev     *entry
	next     *entry
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Entries   int
	Size      int64
	MaxSize   int64
	Hits      int64
	Misses    int64
	Evictions int64
	Clears    int64
}

// New creates a response cache bounded to maxSize bytes. A non-positive
// maxSize disables the bound.
func New(maxSize int64) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
	}

	// Initialize LRU doubly-linked list with dummy head and tail
	c.head = &entry{}
	c.tail = &entry{}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Generation returns the current invalidation generation.
func (c *ResponseCache) Generation() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.generation
}

// Get retrieves the response stored for key.
func (c *ResponseCache) Get(key string) (*Response, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, ok := c.entries[key]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.moveToFront(e)
	atomic.AddInt64(&c.hits, 1)
	return e.response, true
}

// Set stores response under key if no Clear happened since generation was
// read. It reports whether the response was stored.
func (c *ResponseCache) Set(key string, response *Response, generation uint64) bool {
	size := response.size()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if generation != c.generation {
		return false
	}
	if c.maxSize > 0 && size > c.maxSize {
		return false
	}

	if existing, ok := c.entries[key]; ok {
		c.currentSize += size - existing.size
		existing.response = response
		existing.size = size
		c.moveToFront(existing)
		c.evictIfNeeded(0)
		return true
	}

	c.evictIfNeeded(size)

	e := &entry{key: key, response: response, size: size}
	c.entries[key] = e
	c.currentSize += size
	c.addToFront(e)
	return true
}

// Clear drops every entry and advances the generation.
func (c *ResponseCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*entry)
	c.currentSize = 0
	c.head.next = c.tail
	c.tail.prev = c.head
	c.generation++
	atomic.AddInt64(&c.clears, 1)
}

// Len returns the number of cached responses.
func (c *ResponseCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *ResponseCache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return Stats{
		Entries:   len(c.entries),
		Size:      c.currentSize,
		MaxSize:   c.maxSize,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Clears:    atomic.LoadInt64(&c.clears),
	}
}

// evictIfNeeded evicts entries if cache would exceed max size
func (c *ResponseCache) evictIfNeeded(newSize int64) {
	if c.maxSize <= 0 {
		return
	}

	for c.currentSize+newSize > c.maxSize && c.tail.prev != c.head {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		c.currentSize -= lru.size
		atomic.AddInt64(&c.evictions, 1)
	}
}

// LRU doubly-linked list operations
func (c *ResponseCache) addToFront(e *entry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *ResponseCache) removeFromList(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *ResponseCache) moveToFront(e *entry) {
	c.removeFromList(e)
	c.addToFront(e)
}
