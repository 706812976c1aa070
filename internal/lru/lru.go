// Package lru provides a generic least-recently-used map.
package lru

import (
	"container/list"
	"errors"
	"sync/atomic"
)

// ErrNotFound is returned by Get and Touch for absent keys.
var ErrNotFound = errors.New("lru: key not found")

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache maps keys to values and remembers access order. The front of the
// recency list is the most recently used entry.
//
// Cache is not safe for concurrent use; owners serialize access. The hit and
// miss counters may be read concurrently.
type Cache[K comparable, V any] struct {
	items map[K]*list.Element
	order *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]*list.Element),
		order: list.New(),
	}
}

// Put inserts or replaces the value for k and marks it most recently used.
func (c *Cache[K, V]) Put(k K, v V) {
	if el, ok := c.items[k]; ok {
		el.Value.(*entry[K, V]).value = v
		c.order.MoveToFront(el)
		return
	}
	c.items[k] = c.order.PushFront(&entry[K, V]{key: k, value: v})
}

// Get returns the value for k without changing its age.
func (c *Cache[K, V]) Get(k K) (V, error) {
	if el, ok := c.items[k]; ok {
		return el.Value.(*entry[K, V]).value, nil
	}
	var zero V
	return zero, ErrNotFound
}

// Peek is Get with an ok flag instead of an error.
func (c *Cache[K, V]) Peek(k K) (V, bool) {
	if el, ok := c.items[k]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// TryGet returns the value for k and marks it most recently used.
func (c *Cache[K, V]) TryGet(k K) (V, bool) {
	if el, ok := c.items[k]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Touch marks k most recently used.
func (c *Cache[K, V]) Touch(k K) error {
	el, ok := c.items[k]
	if !ok {
		return ErrNotFound
	}
	c.order.MoveToFront(el)
	return nil
}

// Remove deletes k and reports whether it was present.
func (c *Cache[K, V]) Remove(k K) bool {
	el, ok := c.items[k]
	if !ok {
		return false
	}
	c.order.Remove(el)
	delete(c.items, k)
	return true
}

// Count returns 1 if k is present and 0 otherwise.
func (c *Cache[K, V]) Count(k K) int {
	if _, ok := c.items[k]; ok {
		return 1
	}
	return 0
}

func (c *Cache[K, V]) Len() int { return len(c.items) }

func (c *Cache[K, V]) Clear() {
	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Prune evicts the oldest entries until at most max remain.
func (c *Cache[K, V]) Prune(max int) int {
	return c.PruneFunc(max, nil)
}

// PruneFunc is Prune, calling onEvict for each evicted pair after it has been
// removed.
func (c *Cache[K, V]) PruneFunc(max int, onEvict func(K, V)) int {
	if max < 0 {
		max = 0
	}
	n := 0
	for len(c.items) > max {
		el := c.order.Back()
		e := el.Value.(*entry[K, V])
		c.order.Remove(el)
		delete(c.items, e.key)
		n++
		if onEvict != nil {
			onEvict(e.key, e.value)
		}
	}
	return n
}

// PruneIf walks from the oldest entry towards the newest and evicts entries
// matching pred while more than max remain. Entries that do not match are
// kept, so the final size may exceed max.
func (c *Cache[K, V]) PruneIf(max int, pred func(K, V) bool) int {
	n := 0
	for el := c.order.Back(); el != nil && len(c.items) > max; {
		prev := el.Prev()
		e := el.Value.(*entry[K, V])
		if pred(e.key, e.value) {
			c.order.Remove(el)
			delete(c.items, e.key)
			n++
		}
		el = prev
	}
	return n
}

// Each calls fn from the newest entry to the oldest until fn returns false.
// fn must not modify the cache.
func (c *Cache[K, V]) Each(fn func(K, V) bool) {
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Keys returns the keys from newest to oldest.
func (c *Cache[K, V]) Keys() []K {
	out := make([]K, 0, len(c.items))
	c.Each(func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Stats returns the TryGet hit and miss counts.
func (c *Cache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
