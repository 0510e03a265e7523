// cache/memory.go
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryLRUStoreConfig configures the process-local tier.
type InMemoryLRUStoreConfig struct {
	// MaxEntries bounds the number of entries held; the least recently used
	// entry is evicted when the bound is exceeded.
	MaxEntries int
	// DefaultTTL stamps the freshness horizon on entries saved without one.
	DefaultTTL time.Duration
}

// NewInMemoryLRUStoreConfigDefaults provides a config suitable for holding a
// screenful or two of decoded-size images.
func NewInMemoryLRUStoreConfigDefaults() *InMemoryLRUStoreConfig {
	return &InMemoryLRUStoreConfig{
		MaxEntries: 256,
		DefaultTTL: time.Hour,
	}
}

// InMemoryLRUStore is a bounded, process-local Store. Retention is purely
// capacity-based: entries past their freshness horizon stay resident until
// evicted, so staleness-tolerant readers can still be served.
type InMemoryLRUStore struct {
	maxEntries int
	defaultTTL time.Duration

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
}

type lruItem struct {
	key   string
	entry *Entry
}

// NewInMemoryLRUStore creates an empty store bounded by cfg.MaxEntries.
func NewInMemoryLRUStore(cfg *InMemoryLRUStoreConfig) (*InMemoryLRUStore, error) {
	if cfg == nil {
		cfg = NewInMemoryLRUStoreConfigDefaults()
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("in-memory store requires a positive MaxEntries, got %d", cfg.MaxEntries)
	}
	return &InMemoryLRUStore{
		maxEntries: cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}, nil
}

// Lookup returns the stored entry and marks it most recently used.
func (s *InMemoryLRUStore) Lookup(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, ErrMiss
	}
	s.ll.MoveToFront(elem)
	return elem.Value.(*lruItem).entry, nil
}

// Save upserts the entry and marks it most recently used, evicting from the
// cold end when the store is over capacity.
func (s *InMemoryLRUStore) Save(_ context.Context, key string, entry *Entry) error {
	stampExpiry(entry, s.defaultTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		elem.Value.(*lruItem).entry = entry
		s.ll.MoveToFront(elem)
		return nil
	}
	s.items[key] = s.ll.PushFront(&lruItem{key: key, entry: entry})
	for s.ll.Len() > s.maxEntries {
		s.evictOldest()
	}
	return nil
}

// Remove deletes the entry if present.
func (s *InMemoryLRUStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.ll.Remove(elem)
		delete(s.items, key)
	}
	return nil
}

// Len reports the number of resident entries.
func (s *InMemoryLRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Close is a no-op; the store holds no external resources.
func (s *InMemoryLRUStore) Close() error {
	return nil
}

// evictOldest drops the least recently used entry. Callers must hold mu.
func (s *InMemoryLRUStore) evictOldest() {
	elem := s.ll.Back()
	if elem == nil {
		return
	}
	s.ll.Remove(elem)
	delete(s.items, elem.Value.(*lruItem).key)
}
