package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryProvider is a bounded in-process cache. Entries carry their own
// deadline since the LRU itself has no TTL support.
type MemoryProvider struct {
	entries *lru.Cache[string, memoryEntry]
}

type memoryEntry struct {
	value    string
	deadline time.Time
}

const memoryCacheCapacity = 10_000

func NewMemoryProvider() (*MemoryProvider, error) {
	entries, err := lru.New[string, memoryEntry](memoryCacheCapacity)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{entries: entries}, nil
}

func (m *MemoryProvider) Get(ctx context.Context, key string) (string, error) {
	_ = ctx
	entry, exists := m.entries.Get(key)
	if !exists {
		return "", ErrNotFound
	}

	if time.Now().After(entry.deadline) {
		m.entries.Remove(key)
		return "", ErrNotFound
	}

	return entry.value, nil
}

func (m *MemoryProvider) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	_ = ctx
	m.entries.Add(key, memoryEntry{
		value:    value,
		deadline: time.Now().Add(ttl),
	})
	return nil
}

func (m *MemoryProvider) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.entries.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}
