package cache

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(body string) *Response {
	return &Response{Header: http.Header{}, Body: []byte(body)}
}

func TestResponseCache_GetSet(t *testing.T) {
	c := New(0)
	gen := c.Generation()

	_, ok := c.Get("/en/")
	assert.False(t, ok)

	stored := &Response{
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte("<p>home</p>"),
	}
	require.True(t, c.Set("/en/", stored, gen))

	got, ok := c.Get("/en/")
	require.True(t, ok)
	assert.Same(t, stored, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestResponseCache_Clear(t *testing.T) {
	c := New(0)
	gen := c.Generation()
	c.Set("/a", response("a"), gen)
	c.Set("/b", response("b"), gen)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, gen+1, c.Generation())
	_, ok := c.Get("/a")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats().Size)
}

func TestResponseCache_StaleGenerationRejected(t *testing.T) {
	c := New(0)
	gen := c.Generation()

	c.Clear()

	assert.False(t, c.Set("/a", response("stale"), gen), "render started before the mutation")
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.Set("/a", response("fresh"), c.Generation()))
}

func TestResponseCache_LRUEviction(t *testing.T) {
	c := New(10)
	gen := c.Generation()

	c.Set("/a", response("aaaa"), gen)
	c.Set("/b", response("bbbb"), gen)
	_, _ = c.Get("/a")
	c.Set("/c", response("cccc"), gen)

	_, ok := c.Get("/b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("/a")
	assert.True(t, ok)
	_, ok = c.Get("/c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
	assert.LessOrEqual(t, c.Stats().Size, int64(10))
}

func TestResponseCache_OversizedNotStored(t *testing.T) {
	c := New(4)

	assert.False(t, c.Set("/big", response("too large"), c.Generation()))
	assert.Equal(t, 0, c.Len())
}

func TestResponseCache_Overwrite(t *testing.T) {
	c := New(0)
	gen := c.Generation()

	c.Set("/a", response("one"), gen)
	c.Set("/a", response("three"), gen)

	got, ok := c.Get("/a")
	require.True(t, ok)
	assert.Equal(t, "three", string(got.Body))
	assert.Equal(t, int64(5), c.Stats().Size)
}

func TestResponseCache_ConcurrentAccess(t *testing.T) {
	c := New(1 << 10)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("/%d/%d", i, j%5)
				c.Set(key, response(key), c.Generation())
				_, _ = c.Get(key)
				if j%17 == 0 {
					c.Clear()
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Size, int64(1<<10))
}
