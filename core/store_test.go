package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemStore_RoundTrip(t *testing.T) {
	s, err := NewMemStore(10)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()

	entry := &StoreEntry{
		Payload:  []byte(`{"data":{}}`),
		Policy:   AggregatedPolicy{MaxAge: 60},
		StoredAt: time.Now().Unix(),
	}
	if err := s.Set(ctx, "k", entry, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, found, err := s.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("expected entry, found=%v err=%v", found, err)
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Errorf("payload mismatch")
	}
	if got.Policy.MaxAge != 60 {
		t.Errorf("policy mismatch")
	}
}

func TestMemStore_Miss(t *testing.T) {
	s, _ := NewMemStore(10)

	if _, found, err := s.Get(context.Background(), "absent"); found || err != nil {
		t.Errorf("expected clean miss, found=%v err=%v", found, err)
	}
}

func TestMemStore_LazyExpiry(t *testing.T) {
	s, _ := NewMemStore(10)
	ctx := context.Background()

	entry := &StoreEntry{Payload: []byte("x"), StoredAt: time.Now().Unix()}
	s.Set(ctx, "k", entry, -time.Second)

	if _, found, _ := s.Get(ctx, "k"); found {
		t.Errorf("expected expired entry to read as a miss")
	}
}

func TestMemStore_Bounded(t *testing.T) {
	s, _ := NewMemStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("k%d", i)
		s.Set(ctx, key, &StoreEntry{Payload: []byte(key)}, time.Minute)
	}

	if s.cache.Len() > 3 {
		t.Errorf("expected at most 3 entries, got %d", s.cache.Len())
	}
	// The most recent entry survives
	if _, found, _ := s.Get(ctx, "k4"); !found {
		t.Errorf("expected newest entry to survive eviction")
	}
}
