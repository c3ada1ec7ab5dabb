package core

import "context"

// Predicate is a caller-supplied cache eligibility check. Predicates may do
// their own I/O (feature flags, auth lookups); the engine waits for the
// result before advancing.
type Predicate func(ctx context.Context, req *Request) (bool, error)

func allowAll(context.Context, *Request) (bool, error) {
	return true, nil
}

// gate evaluates read/write eligibility before the engine touches the store
type gate struct {
	read  Predicate
	write Predicate
}

func newGate() *gate {
	return &gate{read: allowAll, write: allowAll}
}

// mayRead reports whether the cache may be consulted for this request.
// A failing predicate denies, and the failure is returned for logging.
func (g *gate) mayRead(ctx context.Context, req *Request) (bool, error) {
	ok, err := g.read(ctx, req)
	if err != nil {
		return false, &PredicateError{Op: "read", Err: err}
	}
	return ok, nil
}

// mayWrite reports whether a fresh response may be stored
func (g *gate) mayWrite(ctx context.Context, req *Request) (bool, error) {
	ok, err := g.write(ctx, req)
	if err != nil {
		return false, &PredicateError{Op: "write", Err: err}
	}
	return ok, nil
}
