package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Bucket is one of the three disjoint cache key namespaces. Private entries
// key on exact session identity, authenticated entries key on session
// presence only, anonymous entries carry no session component at all.
type Bucket int

const (
	BucketAnonymous Bucket = iota
	BucketAuthenticated
	BucketPrivate
)

func (b Bucket) tag() string {
	switch b {
	case BucketAuthenticated:
		return "auth"
	case BucketPrivate:
		return "private"
	default:
		return "anon"
	}
}

// CacheKeyBuilder builds bucketed cache keys from request components
type CacheKeyBuilder struct{}

// NewCacheKeyBuilder creates a new cache key builder
func NewCacheKeyBuilder() *CacheKeyBuilder {
	return &CacheKeyBuilder{}
}

// Build creates a cache key for one bucket.
// The key is a SHA256 hash of: bucket tag + operation name + raw query text
// + canonicalized variables + extra key data, plus the session id for the
// private bucket. Query text is hashed as-is, so documents differing only in
// whitespace land on distinct keys.
func (b *CacheKeyBuilder) Build(req *Request, bkt Bucket) (string, error) {
	h := sha256.New()

	h.Write([]byte("bucket:"))
	h.Write([]byte(bkt.tag()))

	if req.OperationName != "" {
		h.Write([]byte(":op:"))
		h.Write([]byte(req.OperationName))
	}

	h.Write([]byte(":query:"))
	h.Write(req.Query)

	if len(req.Variables) > 0 {
		vars, err := canonicalJSON(req.Variables)
		if err != nil {
			return "", &KeyDerivationError{Err: err}
		}
		h.Write([]byte(":vars:"))
		h.Write(vars)
	}

	if req.ExtraKeyData != "" {
		h.Write([]byte(":extra:"))
		h.Write([]byte(req.ExtraKeyData))
	}

	// Only the private bucket keys on session identity. The authenticated
	// bucket is distinguished by its tag alone: all sessions share it.
	if bkt == BucketPrivate {
		h.Write([]byte(":session:"))
		h.Write([]byte(req.SessionID))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON encodes a value deterministically: object keys are sorted
// recursively so variable maps that differ only in order collide to the
// same bytes.
func canonicalJSON(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return canonicalMap(val)
	case []interface{}:
		return canonicalSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, kb...)
		out = append(out, ':')

		vb, err := canonicalJSON(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	return append(out, '}'), nil
}

func canonicalSlice(s []interface{}) ([]byte, error) {
	out := []byte{'['}
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		vb, err := canonicalJSON(v)
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	return append(out, ']'), nil
}
