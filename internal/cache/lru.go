// internal/cache/lru.go
//
// Expiring LRU for computed values.  The dynamic field resolver keys
// entries by field, record, and an input fingerprint, and drops whole
// fields or records when a definition or row changes.
//
// Notes
// -----
// • Storage and expiry come from hashicorp/golang-lru/v2/expirable; this
//   file adds predicate removal on top.
// • Safe for concurrent use.
// • Oxford commas, two spaces after periods.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU is a least-recently-used cache whose entries also expire after ttl.
// A zero ttl disables expiry.
type LRU[K comparable, V any] struct {
	*expirable.LRU[K, V]
}

// New returns an LRU with the given capacity and TTL.  Panics on cap < 1.
func New[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU[K, V]{LRU: expirable.NewLRU[K, V](capacity, nil, ttl)}
}

// RemoveFunc drops every entry whose key matches and reports how many
// went.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	n := 0
	for _, k := range c.Keys() {
		if match(k) && c.Remove(k) {
			n++
		}
	}
	return n
}
