package cache

import (
	"sync"
	"time"
)

type ttlItem[V any] struct {
	value     V
	expiresAt time.Time
}

// ttlMap is a mutex-guarded map whose entries lapse after a per-entry TTL.
// Lapsed entries are invisible to readers and removed by sweep.
type ttlMap[V any] struct {
	mu    sync.Mutex
	items map[string]ttlItem[V]
	now   func() time.Time
}

func newTTLMap[V any]() *ttlMap[V] {
	return &ttlMap[V]{items: make(map[string]ttlItem[V]), now: time.Now}
}

func (m *ttlMap[V]) get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok || !m.now().Before(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (m *ttlMap[V]) set(key string, v V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = ttlItem[V]{value: v, expiresAt: m.now().Add(ttl)}
}

// setIfAbsent stores v unless a live entry exists and reports whether it stored
func (m *ttlMap[V]) setIfAbsent(key string, v V, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if it, ok := m.items[key]; ok && now.Before(it.expiresAt) {
		return false
	}
	m.items[key] = ttlItem[V]{value: v, expiresAt: now.Add(ttl)}
	return true
}

func (m *ttlMap[V]) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.items)
}

// sweep drops lapsed entries and returns how many it dropped
func (m *ttlMap[V]) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, it := range m.items {
		if !now.Before(it.expiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *ttlMap[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
