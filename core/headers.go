package core

import "fmt"

// Headers carries the HTTP cache metadata computed for one response.
// The zero value means "emit nothing", equivalent to no-cache.
type Headers struct {
	CacheControl string
	Age          int
	HasAge       bool
}

// computeHeaders translates the aggregated policy and hit state into header
// values. An absent or uncacheable policy yields no headers. Age is present
// only on an actual hit, equal to seconds elapsed since storage.
func computeHeaders(policy *AggregatedPolicy, hit bool, age int) Headers {
	if policy == nil || policy.MaxAge <= 0 {
		return Headers{}
	}

	h := Headers{
		CacheControl: fmt.Sprintf("max-age=%d, %s", policy.MaxAge, policy.Scope),
	}
	if hit {
		h.Age = age
		h.HasAge = true
	}
	return h
}
