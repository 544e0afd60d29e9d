// Package keymu provides one mutex per key. Work for the same key runs
// serially while different keys proceed concurrently; entries are removed
// once nobody holds or waits for them.
package keymu

import (
	"fmt"
	"sync"
)

type Map[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry[K]
}

type entry[K comparable] struct {
	owner *Map[K]
	mu    sync.Mutex
	refs  int
	key   K
}

// Unlocker releases a lock obtained from Lock.
type Unlocker interface {
	Unlock()
}

func New[K comparable]() *Map[K] {
	return &Map[K]{entries: make(map[K]*entry[K])}
}

// Lock blocks until the lock for key is held.
func (m *Map[K]) Lock(key K) Unlocker {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry[K]{owner: m, key: key}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return e
}

// Do runs fn while holding the lock for key.
func (m *Map[K]) Do(key K, fn func() error) error {
	u := m.Lock(key)
	defer u.Unlock()
	return fn()
}

// Held reports whether key is locked or awaited.
func (m *Map[K]) Held(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func (e *entry[K]) Unlock() {
	m := e.owner

	m.mu.Lock()
	cur, ok := m.entries[e.key]
	if !ok || cur != e {
		m.mu.Unlock()
		panic(fmt.Errorf("keymu: unlock of unlocked key %v", e.key))
	}
	e.refs--
	if e.refs < 1 {
		delete(m.entries, e.key)
	}
	m.mu.Unlock()

	e.mu.Unlock()
}
