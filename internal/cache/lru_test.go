package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsLeastRecent(t *testing.T) {
	c := New[string, int](2, 0)
	c.Add("a", 1)
	c.Add("b", 2)
	_, _ = c.Get("a") // a is now MRU
	c.Add("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	c := New[string, string](4, 50*time.Millisecond)
	c.Add("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(120 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLRURemoveFunc(t *testing.T) {
	c := New[string, int](10, 0)
	c.Add("total|1", 1)
	c.Add("total|2", 2)
	c.Add("name|1", 3)

	n := c.RemoveFunc(func(k string) bool { return strings.HasPrefix(k, "total|") })
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())

	c.Remove("name|1")
	assert.Equal(t, 0, c.Len())

	c.Add("x", 1)
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int, int](0, 0) })
}
