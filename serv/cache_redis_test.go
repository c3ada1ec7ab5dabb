package serv

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/graphmint/rescache/core"
)

func TestRedisCacheEntry_WireFormat(t *testing.T) {
	original := redisCacheEntry{
		Data:       []byte(`{"data":{"users":[{"id":1}]}}`),
		Compressed: true,
		Policy:     core.AggregatedPolicy{MaxAge: 30, Scope: core.ScopePrivate},
		StoredAt:   1700000000,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("failed to marshal entry: %v", err)
	}

	var restored redisCacheEntry
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("failed to unmarshal entry: %v", err)
	}

	if !bytes.Equal(original.Data, restored.Data) {
		t.Errorf("data mismatch")
	}
	if restored.Policy.MaxAge != 30 || restored.Policy.Scope != core.ScopePrivate {
		t.Errorf("policy did not survive the wire format: %+v", restored.Policy)
	}
	if restored.StoredAt != original.StoredAt {
		t.Errorf("storedAt mismatch")
	}
}

func TestRedisCache_KeyPrefix(t *testing.T) {
	c := &RedisCache{}

	key := c.respKey("abc123")
	if !strings.HasPrefix(key, cachePrefix) {
		t.Errorf("expected key %q to carry the cache prefix", key)
	}
}

func TestRedisCache_AvailabilityTracking(t *testing.T) {
	c := &RedisCache{metrics: &CacheMetrics{}}
	c.available.Store(true)

	if !c.isAvailable() {
		t.Fatalf("expected cache to start available")
	}

	// Any error marks the backend unavailable
	c.handleError(assertErr("connection refused"))
	if c.isAvailable() {
		t.Errorf("expected cache to be unavailable after an error")
	}

	// The reconnect probe is rate limited
	if got := c.lastCheck.Load(); got == 0 {
		t.Errorf("expected last check timestamp to be recorded")
	}
	if time.Now().Unix()-c.lastCheck.Load() > 2 {
		t.Errorf("expected last check to be recent")
	}
}

func TestCompress_Decompress(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"small", []byte("hello world")},
		{"repetitive", bytes.Repeat([]byte("test data "), 200)},
		{"json", []byte(`{"users":[{"id":1,"name":"John"},{"id":2,"name":"Jane"}]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := compress(tt.data)
			if err != nil {
				t.Fatalf("compress failed: %v", err)
			}
			out, err := decompress(comp)
			if err != nil {
				t.Fatalf("decompress failed: %v", err)
			}
			if !bytes.Equal(out, tt.data) {
				t.Errorf("round trip mismatch")
			}
		})
	}
}

// assertErr is a trivial error for availability tests
type assertErr string

func (e assertErr) Error() string { return string(e) }
