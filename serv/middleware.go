package serv

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-http-utils/headers"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/graphmint/rescache/core"
)

// gqlRequest is the standard GraphQL-over-HTTP request body
type gqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// ExecutionResult is what the executor collaborator hands back: the
// serialized response body plus the cache hints visited while resolving it
type ExecutionResult struct {
	Payload []byte
	Hints   []core.CacheHint
}

// Executor runs the query when the cache cannot answer it. It stands in for
// the query-execution engine; this layer never parses or resolves documents.
type Executor interface {
	Execute(ctx context.Context, req *core.Request) (*ExecutionResult, error)
}

// CacheHandler serves GraphQL requests through the response cache: lookup
// before execution, store after, freshness headers always. Mountable on any
// router.
type CacheHandler struct {
	engine *core.Engine
	exec   Executor
	conf   CachingConfig
	log    *zap.SugaredLogger
	keys   *core.CacheKeyBuilder
	group  singleflight.Group

	// SessionID extracts the caller's session from the request. The
	// default reads the configured session header.
	SessionID func(r *http.Request) string

	// ExtraKeyData mixes caller-controlled data into the cache key
	ExtraKeyData func(r *http.Request) string
}

// NewCacheHandler creates a cache handler around an engine and an executor
func NewCacheHandler(engine *core.Engine, exec Executor, conf CachingConfig, log *zap.SugaredLogger) *CacheHandler {
	h := &CacheHandler{
		engine: engine,
		exec:   exec,
		conf:   conf,
		log:    log,
		keys:   core.NewCacheKeyBuilder(),
	}

	sessionHeader := conf.SessionHeader
	if sessionHeader == "" {
		sessionHeader = "session-id"
	}
	h.SessionID = func(r *http.Request) string {
		return r.Header.Get(sessionHeader)
	}
	h.ExtraKeyData = func(*http.Request) string {
		return ""
	}
	return h
}

func (h *CacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := xid.New().String()

	var gql gqlRequest
	if err := json.NewDecoder(r.Body).Decode(&gql); err != nil {
		http.Error(w, `{"errors":[{"message":"invalid request body"}]}`,
			http.StatusBadRequest)
		return
	}

	req := &core.Request{
		Query:         []byte(gql.Query),
		OperationName: gql.OperationName,
		Variables:     gql.Variables,
		SessionID:     h.SessionID(r),
		ExtraKeyData:  h.ExtraKeyData(r),
	}

	rc := h.engine.NewRequest(req)

	if payload, ok := rc.Lookup(r.Context()); ok {
		h.log.Debugw("cache hit", "req_id", reqID, "op", gql.OperationName)
		h.writeResponse(w, rc.Headers(), "HIT", payload)
		return
	}

	res, err := h.execute(r.Context(), req)
	if err != nil {
		h.log.Errorw("execution failed", "req_id", reqID, "op", gql.OperationName, "error", err)
		http.Error(w, `{"errors":[{"message":"internal error"}]}`,
			http.StatusInternalServerError)
		return
	}

	rc.Finish(r.Context(), res.Payload, res.Hints)
	h.log.Debugw("cache miss", "req_id", reqID, "op", gql.OperationName)
	h.writeResponse(w, rc.Headers(), "MISS", res.Payload)
}

// execute runs the query, coalescing concurrent identical misses. The
// flight key includes the session so callers never share private work.
func (h *CacheHandler) execute(ctx context.Context, req *core.Request) (*ExecutionResult, error) {
	bkt := core.BucketAnonymous
	if req.SessionID != "" {
		bkt = core.BucketPrivate
	}

	fkey, err := h.keys.Build(req, bkt)
	if err != nil {
		// Key cannot be derived, run uncoalesced
		return h.exec.Execute(ctx, req)
	}

	v, err, _ := h.group.Do(fkey, func() (interface{}, error) {
		return h.exec.Execute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ExecutionResult), nil
}

func (h *CacheHandler) writeResponse(w http.ResponseWriter, ch core.Headers, state string, payload []byte) {
	w.Header().Set(headers.ContentType, "application/json")
	w.Header().Set("X-Cache", state)

	if ch.CacheControl != "" {
		w.Header().Set(headers.CacheControl, ch.CacheControl)
	}
	if ch.HasAge {
		w.Header().Set("Age", strconv.Itoa(ch.Age))
	}

	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck
}
