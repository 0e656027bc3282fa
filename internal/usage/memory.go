package usage

import (
	"context"
	"sync"
)

type memKey struct {
	date   string
	bucket Bucket
}

// MemoryStore keeps counters in process memory behind a mutex.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[memKey]Counter
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[memKey]Counter)}
}

// Get returns the counter, zero if the day has no activity yet.
func (m *MemoryStore) Get(_ context.Context, dateKey string, bucket Bucket) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[memKey{dateKey, bucket}], nil
}

// Increment adds delta under the store lock.
func (m *MemoryStore) Increment(_ context.Context, dateKey string, bucket Bucket, delta Counter) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{dateKey, bucket}
	next := m.counters[k].Add(delta)
	m.counters[k] = next
	return next, nil
}

// Reset drops all counters.
func (m *MemoryStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[memKey]Counter)
	return nil
}

// Prune drops days strictly before the given date key and returns how many
// counters were removed. Date keys sort lexically.
func (m *MemoryStore) Prune(_ context.Context, before string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for k := range m.counters {
		if k.date < before {
			delete(m.counters, k)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
