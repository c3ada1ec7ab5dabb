package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Request carries the cache-relevant components of one incoming query.
// Two requests are cache-equivalent iff every component is structurally
// equal after variable canonicalization.
type Request struct {
	// Query is the raw document text. Caching keys on the text itself,
	// not a parsed form.
	Query []byte

	// OperationName selects the operation within the document
	OperationName string

	// Variables for the operation. Must be JSON-serializable.
	Variables map[string]interface{}

	// SessionID identifies the caller's session, empty when anonymous
	SessionID string

	// ExtraKeyData is caller-controlled data mixed into the key verbatim
	ExtraKeyData string
}

// Option configures an Engine
type Option func(*Engine)

// WithStore sets the backing store. Defaults to a bounded in-process LRU.
func WithStore(s Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithLogger sets the logger used for degraded-path reporting
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithDefaultMaxAge gives fields without an explicit hint a default max-age.
// Without it any unhinted field makes the whole response uncacheable.
func WithDefaultMaxAge(secs int) Option {
	return func(e *Engine) { e.defaultMaxAge = secs }
}

// WithReadPredicate sets the shouldReadFromCache hook
func WithReadPredicate(p Predicate) Option {
	return func(e *Engine) { e.gate.read = p }
}

// WithWritePredicate sets the shouldWriteToCache hook
func WithWritePredicate(p Predicate) Option {
	return func(e *Engine) { e.gate.write = p }
}

// WithSplitAuthenticated controls the shared authenticated-public bucket.
// When disabled, public responses from authenticated callers share the
// anonymous bucket instead. On by default.
func WithSplitAuthenticated(on bool) Option {
	return func(e *Engine) { e.splitAuth = on }
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine decides, per request, whether a previously computed response may be
// served from the cache and whether a freshly computed response should be
// stored for reuse. It holds no per-request state; concurrent requests each
// carry their own RequestCache.
type Engine struct {
	store         Store
	keys          *CacheKeyBuilder
	gate          *gate
	log           *zap.SugaredLogger
	defaultMaxAge int
	splitAuth     bool
	now           func() time.Time
}

// New creates an engine. With no options it caches into an in-process LRU
// and allows all reads and writes.
func New(opts ...Option) *Engine {
	e := &Engine{
		keys:      NewCacheKeyBuilder(),
		gate:      newGate(),
		splitAuth: true,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.store == nil {
		e.store, _ = NewMemStore(0)
	}
	if e.log == nil {
		e.log = zap.NewNop().Sugar()
	}
	return e
}

// RequestCache tracks one request through the cache lifecycle: call Lookup
// before executing the query, Finish with the result after, and Headers for
// the outgoing freshness metadata. Not safe for concurrent use; create one
// per request.
type RequestCache struct {
	e   *Engine
	req *Request

	policy *AggregatedPolicy
	hit    bool
	age    int
	keyErr bool
}

// NewRequest starts the cache lifecycle for one request
func (e *Engine) NewRequest(req *Request) *RequestCache {
	return &RequestCache{e: e, req: req}
}

// Lookup consults the store for a previously cached response and returns the
// payload on a fresh hit. A read-policy denial, missing or expired entry,
// key derivation failure or store error all return ok=false: execution
// should then proceed as usual and its result be handed to Finish.
func (rc *RequestCache) Lookup(ctx context.Context) ([]byte, bool) {
	ok, err := rc.e.gate.mayRead(ctx, rc.req)
	if err != nil {
		rc.e.log.Warnf("treating cache read as denied: %s", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	for _, bkt := range rc.lookupBuckets() {
		key, err := rc.e.keys.Build(rc.req, bkt)
		if err != nil {
			rc.e.log.Warnf("request will not be cached: %s", err)
			rc.keyErr = true
			return nil, false
		}

		entry, found, err := rc.e.store.Get(ctx, key)
		if err != nil {
			rc.e.log.Warnf("cache lookup degraded to miss: %s",
				&StoreError{Op: "get", Err: err})
			continue
		}
		if !found {
			continue
		}

		age := int(rc.e.now().Unix() - entry.StoredAt)
		if age < 0 {
			age = 0
		}
		if age >= entry.Policy.MaxAge {
			// Expired. The backend evicts on its own schedule.
			continue
		}

		p := entry.Policy
		rc.policy = &p
		rc.hit = true
		rc.age = age
		return entry.Payload, true
	}
	return nil, false
}

// lookupBuckets returns the key spaces to try, most specific first
func (rc *RequestCache) lookupBuckets() []Bucket {
	if rc.req.SessionID == "" {
		return []Bucket{BucketAnonymous}
	}
	if rc.e.splitAuth {
		return []Bucket{BucketPrivate, BucketAuthenticated}
	}
	return []Bucket{BucketPrivate, BucketAnonymous}
}

// writeBucket picks the namespace a fresh entry lands in. Private responses
// key on the exact session and are never cached without one. Public
// responses from authenticated callers populate the shared authenticated
// bucket, never the anonymous one.
func (rc *RequestCache) writeBucket(scope Scope) (Bucket, bool) {
	if scope == ScopePrivate {
		if rc.req.SessionID == "" {
			return 0, false
		}
		return BucketPrivate, true
	}
	if rc.req.SessionID != "" && rc.e.splitAuth {
		return BucketAuthenticated, true
	}
	return BucketAnonymous, true
}

// Finish aggregates the hints harvested from execution, decides whether the
// response is cacheable and stores it when the write policy allows. After a
// hit it is a no-op; the hit already recorded its policy.
func (rc *RequestCache) Finish(ctx context.Context, payload []byte, hints []CacheHint) {
	if rc.hit {
		return
	}

	agg := newAggregator(rc.e.defaultMaxAge)
	for _, h := range hints {
		agg.Visit(h)
	}

	policy, cacheable := agg.Policy()
	rc.policy = &policy

	if !cacheable {
		if policy.PossibleRootFieldsCacheable {
			rc.e.log.Debugf("response tainted by unhinted field, not caching")
		}
		return
	}
	if rc.keyErr {
		return
	}

	ok, err := rc.e.gate.mayWrite(ctx, rc.req)
	if err != nil {
		rc.e.log.Warnf("treating cache write as denied: %s", err)
		return
	}
	if !ok {
		return
	}

	bkt, ok := rc.writeBucket(policy.Scope)
	if !ok {
		return
	}

	key, err := rc.e.keys.Build(rc.req, bkt)
	if err != nil {
		rc.e.log.Warnf("response will not be cached: %s", err)
		return
	}

	entry := &StoreEntry{
		Payload:  payload,
		Policy:   policy,
		StoredAt: rc.e.now().Unix(),
	}
	ttl := time.Duration(policy.MaxAge) * time.Second

	if err := rc.e.store.Set(ctx, key, entry, ttl); err != nil {
		rc.e.log.Warnf("cache write skipped: %s", &StoreError{Op: "set", Err: err})
	}
}

// Hit reports whether Lookup served this request from cache
func (rc *RequestCache) Hit() bool {
	return rc.hit
}

// Headers returns the HTTP freshness metadata for the response. It reflects
// the computed policy even when a policy gate suppressed the actual write:
// HTTP metadata and internal caching decisions are independent axes.
func (rc *RequestCache) Headers() Headers {
	return computeHeaders(rc.policy, rc.hit, rc.age)
}
