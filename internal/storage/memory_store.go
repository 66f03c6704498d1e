package storage

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value  string
	expiry time.Time
}

// memoryStore keeps entries for the lifetime of the process.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryStore(opts Options) *memoryStore {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     opts.TTL,
		now:     time.Now,
	}
}

func (m *memoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiry.After(m.now()) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *memoryStore) Set(key, value string) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiry: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Close() error { return nil }
