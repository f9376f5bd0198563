package cache

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps encoded entries in process. Entries are stored encoded so
// a caller mutating its slice can never alter the cached snapshot.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.RLock()
	b, ok := m.entries[key.String()]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, ErrMiss
	}
	return decodeEntry(b)
}

func (m *MemoryStore) Put(ctx context.Context, key Key, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encodeEntry(e)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key.String()] = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.entries, key.String())
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, domain string) error {
	prefix := domain + ":"
	m.mu.Lock()
	for k := range m.entries {
		if domain == "" || strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}
