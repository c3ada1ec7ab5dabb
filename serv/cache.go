package serv

import (
	"sync/atomic"

	"github.com/graphmint/rescache/core"
)

// ResponseCache is the store contract the service layer provides to the
// engine: a core.Store with metrics and lifecycle on top. Both MemoryCache
// and RedisCache implement it.
type ResponseCache interface {
	core.Store

	// Metrics returns the cache metrics
	Metrics() *CacheMetrics

	// Close releases resources
	Close() error
}

// CacheMetrics tracks cache performance
type CacheMetrics struct {
	Hits        atomic.Int64
	Misses      atomic.Int64
	Errors      atomic.Int64
	BytesCached atomic.Int64
	BytesSaved  atomic.Int64 // Compression savings
}

// Snapshot returns a point-in-time snapshot of metrics
func (m *CacheMetrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":         m.Hits.Load(),
		"misses":       m.Misses.Load(),
		"errors":       m.Errors.Load(),
		"bytes_cached": m.BytesCached.Load(),
		"bytes_saved":  m.BytesSaved.Load(),
	}
}

// HitRate returns the cache hit rate (0.0 to 1.0)
func (m *CacheMetrics) HitRate() float64 {
	hits := m.Hits.Load()
	total := hits + m.Misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
