package core

import "fmt"

// Caching is strictly best-effort: none of these errors ever abort the
// request/response cycle. They are logged and the request proceeds uncached.

// KeyDerivationError reports a request whose variables could not be
// canonicalized. Caching is disabled for that request.
type KeyDerivationError struct {
	Err error
}

func (e *KeyDerivationError) Error() string {
	return fmt.Sprintf("cache key derivation failed: %v", e.Err)
}

func (e *KeyDerivationError) Unwrap() error { return e.Err }

// StoreError reports a failed backing store operation. Lookups degrade to a
// miss and writes are skipped.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cache store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// PredicateError reports a caller-supplied policy predicate that returned an
// error. It is treated as a denial.
type PredicateError struct {
	Op  string
	Err error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("cache %s predicate failed: %v", e.Op, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }
