package core

// Scope controls whether a cached response may be shared across callers
type Scope int

const (
	// ScopePublic responses are shared by every caller
	ScopePublic Scope = iota

	// ScopePrivate responses are isolated per session
	ScopePrivate
)

// String returns the scope as it appears in Cache-Control
func (s Scope) String() string {
	if s == ScopePrivate {
		return "private"
	}
	return "public"
}

// CacheHint is a per-field cache annotation harvested from query execution.
// A nil MaxAge means the field carried no hint.
type CacheHint struct {
	MaxAge *int  `json:"maxAge,omitempty"`
	Scope  Scope `json:"scope"`
}

// MaxAge is a convenience for building hint literals
func MaxAge(secs int) *int {
	return &secs
}

// AggregatedPolicy is the reduction of every hint visited while executing
// one request. A MaxAge of 0 means the response must not be cached.
type AggregatedPolicy struct {
	MaxAge int   `json:"maxAge"`
	Scope  Scope `json:"scope"`

	// PossibleRootFieldsCacheable is true when at least one visited field
	// carried a positive max-age, even if the response as a whole ended up
	// uncacheable. Used for logging tainted responses.
	PossibleRootFieldsCacheable bool `json:"rootCacheable,omitempty"`
}

// aggregator folds per-field hints into one response-wide policy
type aggregator struct {
	defaultMaxAge int
	visited       bool
	maxAge        int
	scope         Scope
	possible      bool
}

func newAggregator(defaultMaxAge int) *aggregator {
	return &aggregator{defaultMaxAge: defaultMaxAge}
}

// Visit folds one hint into the running policy. A field with no max-age
// hint contributes the configured default, which is 0 unless overridden:
// any unhinted field taints the whole response.
func (a *aggregator) Visit(h CacheHint) {
	ma := a.defaultMaxAge
	if h.MaxAge != nil {
		ma = *h.MaxAge
	}
	if ma < 0 {
		ma = 0
	}
	if ma > 0 {
		a.possible = true
	}
	if !a.visited || ma < a.maxAge {
		a.maxAge = ma
	}
	a.visited = true

	if h.Scope == ScopePrivate {
		a.scope = ScopePrivate
	}
}

// Policy returns the aggregated policy. ok is false when the response is
// not cacheable: nothing was visited (e.g. an introspection-only response)
// or the effective max-age is zero.
func (a *aggregator) Policy() (AggregatedPolicy, bool) {
	p := AggregatedPolicy{
		Scope:                       a.scope,
		PossibleRootFieldsCacheable: a.possible,
	}
	if !a.visited || a.maxAge <= 0 {
		return p, false
	}
	p.MaxAge = a.maxAge
	return p, true
}
