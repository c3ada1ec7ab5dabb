package core

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default size of the in-process store (number of entries)
const defaultMemStoreSize = 10000

// Store is the pluggable key-value backend the engine caches into. Both
// operations may be remote and fallible; the engine treats any error as a
// miss or a skipped write, never as a request failure.
type Store interface {
	// Get retrieves an entry by key. Returns (nil, false, nil) on miss.
	Get(ctx context.Context, key string) (*StoreEntry, bool, error)

	// Set stores an entry under key for ttl. Entries are immutable
	// snapshots; concurrent writers to one key resolve last-write-wins.
	Set(ctx context.Context, key string, entry *StoreEntry, ttl time.Duration) error
}

// StoreEntry is one cached response snapshot. Written once, never mutated.
type StoreEntry struct {
	Payload  []byte           `json:"p"`
	Policy   AggregatedPolicy `json:"c"`
	StoredAt int64            `json:"t"` // epoch seconds
}

type memStoreEntry struct {
	entry     *StoreEntry
	expiresAt int64
}

// MemStore is the default in-process store: a bounded LRU with lazy expiry
// on read. The engine re-checks freshness against the entry's own timestamp,
// so eviction here is purely a memory bound.
type MemStore struct {
	cache *lru.Cache[string, memStoreEntry]
}

// NewMemStore creates a bounded in-memory store
func NewMemStore(maxEntries int) (*MemStore, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemStoreSize
	}
	c, err := lru.New[string, memStoreEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemStore{cache: c}, nil
}

// Get returns the entry for key, dropping it if its TTL has elapsed
func (s *MemStore) Get(_ context.Context, key string) (*StoreEntry, bool, error) {
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if time.Now().Unix() >= e.expiresAt {
		s.cache.Remove(key)
		return nil, false, nil
	}
	return e.entry, true, nil
}

// Set stores the entry under key for ttl
func (s *MemStore) Set(_ context.Context, key string, entry *StoreEntry, ttl time.Duration) error {
	s.cache.Add(key, memStoreEntry{
		entry:     entry,
		expiresAt: time.Now().Add(ttl).Unix(),
	})
	return nil
}
