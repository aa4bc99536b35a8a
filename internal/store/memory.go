package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/aria/internal/domain"
)

// MemoryStore implements CacheStorage in process memory.
// Contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	caches map[string][]*domain.CachedAsset
}

// NewMemory creates an empty in-memory cache storage.
func NewMemory() *MemoryStore {
	return &MemoryStore{caches: make(map[string][]*domain.CachedAsset)}
}

// Open creates the named cache if it does not exist yet.
func (m *MemoryStore) Open(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caches[name]; ok {
		return false, nil
	}
	m.caches[name] = nil
	m.order = append(m.order, name)
	return true, nil
}

// Keys returns the names of all caches, oldest first.
func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// Delete removes a cache and every asset in it.
func (m *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caches[name]; !ok {
		return false, nil
	}
	delete(m.caches, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// PutAll replaces the contents of a cache with assets.
func (m *MemoryStore) PutAll(_ context.Context, name string, assets []*domain.CachedAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caches[name]; !ok {
		return fmt.Errorf("put into %q: %w", name, ErrNoCache)
	}
	stored := make([]*domain.CachedAsset, 0, len(assets))
	for _, a := range assets {
		stored = append(stored, cloneAsset(a))
	}
	m.caches[name] = stored
	return nil
}

// Match returns the asset stored under the exact URL.
func (m *MemoryStore) Match(_ context.Context, name, url string) (*domain.CachedAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.caches[name] {
		if a.URL == url {
			return cloneAsset(a), nil
		}
	}
	return nil, nil
}

// URLs lists the URLs stored in a cache in insertion order.
func (m *MemoryStore) URLs(_ context.Context, name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	urls := make([]string, 0, len(m.caches[name]))
	for _, a := range m.caches[name] {
		urls = append(urls, a.URL)
	}
	return urls, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func cloneAsset(a *domain.CachedAsset) *domain.CachedAsset {
	c := *a
	c.Header = a.Header.Clone()
	c.Body = bytes.Clone(a.Body)
	return &c
}

var _ CacheStorage = (*MemoryStore)(nil)
