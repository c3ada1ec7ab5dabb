package serv

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/graphmint/rescache/core"
)

// stubExecutor returns a fixed result and counts invocations
type stubExecutor struct {
	payload []byte
	hints   []core.CacheHint
	calls   int
}

func (s *stubExecutor) Execute(_ context.Context, _ *core.Request) (*ExecutionResult, error) {
	s.calls++
	return &ExecutionResult{Payload: s.payload, Hints: s.hints}, nil
}

func newTestHandler(t *testing.T, exec Executor, opts ...core.Option) *CacheHandler {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	engine := core.New(append([]core.Option{core.WithLogger(log)}, opts...)...)
	return NewCacheHandler(engine, exec, CachingConfig{SessionHeader: "session-id"}, log)
}

func doRequest(h http.Handler, query string, session string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(gqlRequest{Query: query})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/graphql", bytes.NewReader(body))
	if session != "" {
		req.Header.Set("session-id", session)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCacheHandler_MissThenHit(t *testing.T) {
	exec := &stubExecutor{
		payload: []byte(`{"data":{"cached":"yes"}}`),
		hints:   []core.CacheHint{{MaxAge: core.MaxAge(10)}},
	}
	h := newTestHandler(t, exec)

	w := doRequest(h, `{ cached }`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "max-age=10, public", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Age"))
	assert.Equal(t, string(exec.payload), w.Body.String())

	w = doRequest(h, `{ cached }`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "max-age=10, public", w.Header().Get("Cache-Control"))
	assert.Equal(t, "0", w.Header().Get("Age"))
	assert.Equal(t, string(exec.payload), w.Body.String())

	assert.Equal(t, 1, exec.calls, "second request must not reach the executor")
}

func TestCacheHandler_TaintedNeverCached(t *testing.T) {
	exec := &stubExecutor{
		payload: []byte(`{"data":{"cached":"yes","uncached":"no"}}`),
		hints:   []core.CacheHint{{MaxAge: core.MaxAge(10)}, {}},
	}
	h := newTestHandler(t, exec)

	for i := 0; i < 2; i++ {
		w := doRequest(h, `{ cached uncached }`, "")
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		assert.Empty(t, w.Header().Get("Cache-Control"))
	}
	assert.Equal(t, 2, exec.calls)
}

func TestCacheHandler_PrivateSessions(t *testing.T) {
	exec := &stubExecutor{
		payload: []byte(`{"data":{"private":"me"}}`),
		hints:   []core.CacheHint{{MaxAge: core.MaxAge(9), Scope: core.ScopePrivate}},
	}
	h := newTestHandler(t, exec)

	// Private without a session is never cached
	doRequest(h, `{ private }`, "")
	w := doRequest(h, `{ private }`, "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	// Session foo: miss then hit
	w = doRequest(h, `{ private }`, "foo")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, "max-age=9, private", w.Header().Get("Cache-Control"))
	w = doRequest(h, `{ private }`, "foo")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	// Session bar: its own bucket
	w = doRequest(h, `{ private }`, "bar")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
}

func TestCacheHandler_WhitespaceMatters(t *testing.T) {
	exec := &stubExecutor{
		payload: []byte(`{"data":{"cached":"yes"}}`),
		hints:   []core.CacheHint{{MaxAge: core.MaxAge(10)}},
	}
	h := newTestHandler(t, exec)

	doRequest(h, `{ cached }`, "")
	w := doRequest(h, `{  cached  }`, "")
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"),
		"raw-text keying: whitespace differences must miss")
}

func TestCacheHandler_BadRequestBody(t *testing.T) {
	h := newTestHandler(t, &stubExecutor{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/graphql",
		bytes.NewReader([]byte(`{not json`)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCacheHandler_ExtraKeyData(t *testing.T) {
	exec := &stubExecutor{
		payload: []byte(`{"data":{"cached":"yes"}}`),
		hints:   []core.CacheHint{{MaxAge: core.MaxAge(10)}},
	}
	h := newTestHandler(t, exec)
	h.ExtraKeyData = func(r *http.Request) string {
		return r.Header.Get("X-Api-Version")
	}

	body, _ := json.Marshal(gqlRequest{Query: `{ cached }`})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/graphql", bytes.NewReader(body))
	req.Header.Set("X-Api-Version", "v1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	// Different extra data lands on a different key
	req = httptest.NewRequest(http.MethodPost, "/api/v1/graphql", bytes.NewReader(body))
	req.Header.Set("X-Api-Version", "v2")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	// Same extra data hits
	req = httptest.NewRequest(http.MethodPost, "/api/v1/graphql", bytes.NewReader(body))
	req.Header.Set("X-Api-Version", "v1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}
