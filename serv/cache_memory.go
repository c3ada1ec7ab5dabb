package serv

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/graphmint/rescache/core"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Default memory cache size (number of entries)
const defaultMemoryCacheSize = 10000

// Only compress payloads above this size
const compressionThreshold = 1024

// memoryCacheEntry wraps a cached response with its wire form and expiry
type memoryCacheEntry struct {
	payload    []byte // possibly gzip-compressed
	compressed bool
	policy     core.AggregatedPolicy
	storedAt   int64
	expiresAt  int64
}

// MemoryCache provides in-memory LRU response caching with compression and
// OpenTelemetry metrics. It is the fallback backend when Redis is not
// configured or unavailable.
type MemoryCache struct {
	cache   *lru.Cache[string, *memoryCacheEntry]
	conf    CachingConfig
	metrics *CacheMetrics

	// OpenTelemetry metric instruments
	otelHitCounter       metric.Int64Counter
	otelMissCounter      metric.Int64Counter
	otelErrorCounter     metric.Int64Counter
	otelBytesCachedGauge metric.Int64UpDownCounter
	otelBytesSavedGauge  metric.Int64UpDownCounter
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache(conf CachingConfig, maxEntries int) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryCacheSize
	}

	cache, err := lru.New[string, *memoryCacheEntry](maxEntries)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache{
		cache:   cache,
		conf:    conf,
		metrics: &CacheMetrics{},
	}

	meter := otel.Meter("rescache.io/cache")

	mc.otelHitCounter, _ = meter.Int64Counter("rescache.hits",
		metric.WithDescription("Number of cache hits"))
	mc.otelMissCounter, _ = meter.Int64Counter("rescache.misses",
		metric.WithDescription("Number of cache misses"))
	mc.otelErrorCounter, _ = meter.Int64Counter("rescache.errors",
		metric.WithDescription("Number of cache errors"))
	mc.otelBytesCachedGauge, _ = meter.Int64UpDownCounter("rescache.bytes_cached",
		metric.WithDescription("Total bytes stored in cache"))
	mc.otelBytesSavedGauge, _ = meter.Int64UpDownCounter("rescache.bytes_saved",
		metric.WithDescription("Bytes saved via compression"))

	return mc, nil
}

// Get retrieves a cached entry. Expired entries read as a miss and are
// dropped; the engine re-checks freshness against the entry timestamp.
func (mc *MemoryCache) Get(ctx context.Context, key string) (*core.StoreEntry, bool, error) {
	e, ok := mc.cache.Get(key)
	if !ok {
		mc.recordMiss(ctx)
		return nil, false, nil
	}

	if time.Now().Unix() >= e.expiresAt {
		mc.cache.Remove(key)
		mc.recordMiss(ctx)
		return nil, false, nil
	}

	payload := e.payload
	if e.compressed {
		var err error
		payload, err = decompress(e.payload)
		if err != nil {
			mc.recordError(ctx)
			return nil, false, err
		}
	}

	mc.recordHit(ctx)
	return &core.StoreEntry{
		Payload:  payload,
		Policy:   e.policy,
		StoredAt: e.storedAt,
	}, true, nil
}

// Set stores an entry for the given TTL, compressing large payloads
func (mc *MemoryCache) Set(ctx context.Context, key string, entry *core.StoreEntry, ttl time.Duration) error {
	data := entry.Payload
	compressed := false

	threshold := mc.conf.CompressionMin
	if threshold <= 0 {
		threshold = compressionThreshold
	}

	if len(data) > threshold {
		compData, err := compress(data)
		if err == nil && len(compData) < len(data) {
			saved := int64(len(data) - len(compData))
			mc.metrics.BytesSaved.Add(saved)
			if mc.otelBytesSavedGauge != nil {
				mc.otelBytesSavedGauge.Add(ctx, saved)
			}
			data = compData
			compressed = true
		}
	}

	mc.cache.Add(key, &memoryCacheEntry{
		payload:    data,
		compressed: compressed,
		policy:     entry.Policy,
		storedAt:   entry.StoredAt,
		expiresAt:  time.Now().Add(ttl).Unix(),
	})

	cached := int64(len(data))
	mc.metrics.BytesCached.Add(cached)
	if mc.otelBytesCachedGauge != nil {
		mc.otelBytesCachedGauge.Add(ctx, cached)
	}
	return nil
}

// Metric recording helpers (record both internal metrics and OTel metrics)
func (mc *MemoryCache) recordHit(ctx context.Context) {
	mc.metrics.Hits.Add(1)
	if mc.otelHitCounter != nil {
		mc.otelHitCounter.Add(ctx, 1)
	}
}

func (mc *MemoryCache) recordMiss(ctx context.Context) {
	mc.metrics.Misses.Add(1)
	if mc.otelMissCounter != nil {
		mc.otelMissCounter.Add(ctx, 1)
	}
}

func (mc *MemoryCache) recordError(ctx context.Context) {
	mc.metrics.Errors.Add(1)
	if mc.otelErrorCounter != nil {
		mc.otelErrorCounter.Add(ctx, 1)
	}
}

// Metrics returns the cache metrics
func (mc *MemoryCache) Metrics() *CacheMetrics {
	return mc.metrics
}

// Close purges the cache
func (mc *MemoryCache) Close() error {
	mc.cache.Purge()
	return nil
}

// Compression helpers using gzip
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
