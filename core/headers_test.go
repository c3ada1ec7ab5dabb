package core

import "testing"

func TestComputeHeaders_Miss(t *testing.T) {
	policy := &AggregatedPolicy{MaxAge: 10, Scope: ScopePublic}
	h := computeHeaders(policy, false, 0)

	if h.CacheControl != "max-age=10, public" {
		t.Errorf("unexpected Cache-Control: %q", h.CacheControl)
	}
	if h.HasAge {
		t.Errorf("expected no Age on a miss")
	}
}

func TestComputeHeaders_Hit(t *testing.T) {
	policy := &AggregatedPolicy{MaxAge: 10, Scope: ScopePrivate}
	h := computeHeaders(policy, true, 5)

	if h.CacheControl != "max-age=10, private" {
		t.Errorf("unexpected Cache-Control: %q", h.CacheControl)
	}
	if !h.HasAge || h.Age != 5 {
		t.Errorf("expected Age 5, got %d (present=%v)", h.Age, h.HasAge)
	}
}

func TestComputeHeaders_Uncacheable(t *testing.T) {
	if h := computeHeaders(nil, false, 0); h.CacheControl != "" || h.HasAge {
		t.Errorf("expected no headers for absent policy")
	}

	policy := &AggregatedPolicy{MaxAge: 0}
	if h := computeHeaders(policy, false, 0); h.CacheControl != "" || h.HasAge {
		t.Errorf("expected no headers for uncacheable policy")
	}
}
