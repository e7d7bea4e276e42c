// Package cache holds objects fetched from or written to the document store
// for the lifetime of the process.
//
// Entries are never evicted or replaced. That is only sound because the
// cached values are content-addressed: a key can go missing, never stale.
package cache

import (
	"sync"
	"sync/atomic"
)

// Map is a concurrent add-if-absent map from object ID to V.
type Map[V any] struct {
	items sync.Map
	size  atomic.Int64
}

// New creates an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

// Get retrieves a value by key.
func (m *Map[V]) Get(key string) (V, bool) {
	v, ok := m.items.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Has reports whether key is cached.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.items.Load(key)
	return ok
}

// Add stores value under key unless key is already present. It reports
// whether the value was inserted.
func (m *Map[V]) Add(key string, value V) bool {
	if _, loaded := m.items.LoadOrStore(key, value); loaded {
		return false
	}
	m.size.Add(1)
	return true
}

// Len returns the number of cached entries.
func (m *Map[V]) Len() int {
	return int(m.size.Load())
}
