package serv

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/graphmint/rescache/core"
)

// Hardcoded constants for cache behavior
const (
	cachePrefix        = "rc:cache:"             // Redis key prefix
	redisTimeout       = 100 * time.Millisecond  // Redis operation timeout
	redisRetryInterval = 30 * time.Second        // Retry interval when Redis unavailable
	redisPingAttempts  = 3                       // Initial connection attempts
)

// redisCacheEntry is the wire form of a cached response
type redisCacheEntry struct {
	Data       []byte                `json:"d"`
	Compressed bool                  `json:"c,omitempty"`
	Policy     core.AggregatedPolicy `json:"p"`
	StoredAt   int64                 `json:"t"`
}

// RedisCache provides Redis-backed response caching. The cache is never a
// hard dependency: when Redis goes away every operation degrades to a miss
// and a background probe reconnects once it returns.
type RedisCache struct {
	client    *redis.Client
	conf      CachingConfig
	metrics   *CacheMetrics
	available atomic.Bool
	lastCheck atomic.Int64

	// OpenTelemetry metric instruments
	otelHitCounter       metric.Int64Counter
	otelMissCounter      metric.Int64Counter
	otelErrorCounter     metric.Int64Counter
	otelBytesCachedGauge metric.Int64UpDownCounter
	otelBytesSavedGauge  metric.Int64UpDownCounter
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(redisURL string, conf CachingConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}

	client := redis.NewClient(opts)

	err = retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
			defer cancel()
			return client.Ping(ctx).Err()
		},
		retry.Attempts(redisPingAttempts),
		retry.Delay(100*time.Millisecond),
	)
	if err != nil {
		return nil, errors.Wrap(err, "redis connection failed")
	}

	rc := &RedisCache{
		client:  client,
		conf:    conf,
		metrics: &CacheMetrics{},
	}
	rc.available.Store(true)

	meter := otel.Meter("rescache.io/cache")

	rc.otelHitCounter, _ = meter.Int64Counter("rescache.hits",
		metric.WithDescription("Number of cache hits"))
	rc.otelMissCounter, _ = meter.Int64Counter("rescache.misses",
		metric.WithDescription("Number of cache misses"))
	rc.otelErrorCounter, _ = meter.Int64Counter("rescache.errors",
		metric.WithDescription("Number of cache errors"))
	rc.otelBytesCachedGauge, _ = meter.Int64UpDownCounter("rescache.bytes_cached",
		metric.WithDescription("Total bytes stored in cache"))
	rc.otelBytesSavedGauge, _ = meter.Int64UpDownCounter("rescache.bytes_saved",
		metric.WithDescription("Bytes saved via compression"))

	return rc, nil
}

func (c *RedisCache) respKey(hash string) string {
	return cachePrefix + hash
}

// Get retrieves a cached entry, degrading to a miss on any Redis failure
func (c *RedisCache) Get(ctx context.Context, key string) (*core.StoreEntry, bool, error) {
	if !c.isAvailable() {
		c.maybeRetryConnection()
		return nil, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.respKey(key)).Bytes()
	if err == redis.Nil {
		c.recordMiss(ctx)
		return nil, false, nil
	}
	if err != nil {
		c.handleError(err)
		c.recordMiss(ctx)
		return nil, false, err
	}

	var entry redisCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.recordError(ctx)
		return nil, false, err
	}

	payload := entry.Data
	if entry.Compressed {
		payload, err = decompress(entry.Data)
		if err != nil {
			c.recordError(ctx)
			return nil, false, err
		}
	}

	c.recordHit(ctx)
	return &core.StoreEntry{
		Payload:  payload,
		Policy:   entry.Policy,
		StoredAt: entry.StoredAt,
	}, true, nil
}

// Set stores an entry under key with a Redis-side TTL
func (c *RedisCache) Set(ctx context.Context, key string, entry *core.StoreEntry, ttl time.Duration) error {
	if !c.isAvailable() {
		return nil
	}

	data := entry.Payload
	compressed := false

	threshold := c.conf.CompressionMin
	if threshold <= 0 {
		threshold = compressionThreshold
	}

	if len(data) > threshold {
		compData, err := compress(data)
		if err == nil && len(compData) < len(data) {
			saved := int64(len(data) - len(compData))
			c.metrics.BytesSaved.Add(saved)
			if c.otelBytesSavedGauge != nil {
				c.otelBytesSavedGauge.Add(ctx, saved)
			}
			data = compData
			compressed = true
		}
	}

	wire := redisCacheEntry{
		Data:       data,
		Compressed: compressed,
		Policy:     entry.Policy,
		StoredAt:   entry.StoredAt,
	}

	wireJSON, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.respKey(key), wireJSON, ttl).Err(); err != nil {
		c.handleError(err)
		c.recordError(ctx)
		return err
	}

	cached := int64(len(wireJSON))
	c.metrics.BytesCached.Add(cached)
	if c.otelBytesCachedGauge != nil {
		c.otelBytesCachedGauge.Add(ctx, cached)
	}
	return nil
}

// Availability management
func (c *RedisCache) isAvailable() bool {
	return c.available.Load()
}

func (c *RedisCache) handleError(err error) {
	if err != nil {
		c.available.Store(false)
		c.lastCheck.Store(time.Now().Unix())
	}
}

func (c *RedisCache) maybeRetryConnection() {
	if c.isAvailable() {
		return
	}

	lastCheck := c.lastCheck.Load()
	if time.Now().Unix()-lastCheck < int64(redisRetryInterval.Seconds()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err == nil {
		c.available.Store(true)
	}
	c.lastCheck.Store(time.Now().Unix())
}

// Metric recording helpers (record both internal metrics and OTel metrics)
func (c *RedisCache) recordHit(ctx context.Context) {
	c.metrics.Hits.Add(1)
	if c.otelHitCounter != nil {
		c.otelHitCounter.Add(ctx, 1)
	}
}

func (c *RedisCache) recordMiss(ctx context.Context) {
	c.metrics.Misses.Add(1)
	if c.otelMissCounter != nil {
		c.otelMissCounter.Add(ctx, 1)
	}
}

func (c *RedisCache) recordError(ctx context.Context) {
	c.metrics.Errors.Add(1)
	if c.otelErrorCounter != nil {
		c.otelErrorCounter.Add(ctx, 1)
	}
}

// Metrics returns the cache metrics
func (c *RedisCache) Metrics() *CacheMetrics {
	return c.metrics
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
