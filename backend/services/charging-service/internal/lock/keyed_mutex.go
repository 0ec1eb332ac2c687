// Package lock provides in-process keyed mutual exclusion.
package lock

import (
	"context"
	"slices"
	"sync"
)

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex serialises callers per key within one process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewKeyedMutex returns an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires every key in sorted order, so callers locking overlapping key sets cannot
// deadlock. It gives up with ctx.Err() when ctx ends first.
func (m *KeyedMutex) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]string, 0, len(sorted))
	for _, key := range sorted {
		if err := m.acquire(ctx, key); err != nil {
			m.release(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(func() { m.release(held) }) }, nil
}

func (m *KeyedMutex) acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.unref(key, e)
		return ctx.Err()
	}
}

func (m *KeyedMutex) release(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		m.mu.Lock()
		e := m.locks[keys[i]]
		m.mu.Unlock()
		<-e.ch
		m.unref(keys[i], e)
	}
}

func (m *KeyedMutex) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
