package serv

import (
	"context"
	"encoding/json"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/graphmint/rescache/core"
)

// HTTPExecutor forwards queries to an upstream GraphQL server and harvests
// cache hints from the cacheControl response extension.
type HTTPExecutor struct {
	url    string
	client *resty.Client
}

// NewHTTPExecutor creates an executor that proxies to url
func NewHTTPExecutor(url string) *HTTPExecutor {
	return &HTTPExecutor{
		url:    url,
		client: resty.New(),
	}
}

// cacheControlExt is the cacheControl response extension shape
type cacheControlExt struct {
	Hints []struct {
		MaxAge *int   `json:"maxAge"`
		Scope  string `json:"scope"`
	} `json:"hints"`
}

type upstreamResponse struct {
	Extensions struct {
		CacheControl *cacheControlExt `json:"cacheControl"`
	} `json:"extensions"`
}

// Execute forwards the request upstream and returns the raw response body
// together with the hints it advertised
func (e *HTTPExecutor) Execute(ctx context.Context, req *core.Request) (*ExecutionResult, error) {
	body := gqlRequest{
		Query:         string(req.Query),
		OperationName: req.OperationName,
		Variables:     req.Variables,
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(e.url)
	if err != nil {
		return nil, errors.Wrap(err, "upstream request failed")
	}
	if resp.IsError() {
		return nil, errors.Errorf("upstream returned status %d", resp.StatusCode())
	}

	payload := resp.Body()

	var parsed upstreamResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, errors.Wrap(err, "invalid upstream response")
	}

	return &ExecutionResult{
		Payload: payload,
		Hints:   extHints(parsed.Extensions.CacheControl),
	}, nil
}

// extHints converts the extension hints to engine hints. A response with no
// extension yields no hints and stays uncacheable.
func extHints(ext *cacheControlExt) []core.CacheHint {
	if ext == nil {
		return nil
	}

	hints := make([]core.CacheHint, 0, len(ext.Hints))
	for _, h := range ext.Hints {
		hint := CacheHintFromExt(h.MaxAge, h.Scope)
		hints = append(hints, hint)
	}
	return hints
}

// CacheHintFromExt builds an engine hint from extension fields
func CacheHintFromExt(maxAge *int, scope string) core.CacheHint {
	h := core.CacheHint{MaxAge: maxAge}
	if scope == "PRIVATE" {
		h.Scope = core.ScopePrivate
	}
	return h
}
