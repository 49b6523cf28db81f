package service

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/metrics"
	"github.com/invenhost/inventree-shopify/internal/repository"
	"github.com/invenhost/inventree-shopify/internal/repository/memory"
	"github.com/invenhost/inventree-shopify/internal/shopify"
)

type call struct {
	Method   string
	Endpoint string
	Params   url.Values
	Body     any
}

type routeFunc func(c call) (*shopify.Response, error)

// fakeRemote answers Call from a route table keyed by "METHOD endpoint"
type fakeRemote struct {
	mu     sync.Mutex
	routes map[string]routeFunc
	calls  []call
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{routes: make(map[string]routeFunc)}
}

func (f *fakeRemote) on(method, endpoint string, fn routeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+endpoint] = fn
}

func (f *fakeRemote) Call(_ context.Context, method, endpoint string, params url.Values, body any) (*shopify.Response, error) {
	f.mu.Lock()
	c := call{Method: method, Endpoint: endpoint, Params: params, Body: body}
	f.calls = append(f.calls, c)
	fn, ok := f.routes[method+" "+endpoint]
	f.mu.Unlock()

	if !ok {
		return &shopify.Response{Status: 404, Body: json.RawMessage(`{"errors":"Not Found"}`)}, nil
	}
	return fn(c)
}

func (f *fakeRemote) callsTo(method, endpoint string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Method == method && c.Endpoint == endpoint {
			out = append(out, c)
		}
	}
	return out
}

func jsonResponse(t *testing.T, status int, v any) *shopify.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return &shopify.Response{Status: status, Body: b}
}

func rawResponse(status int, body string) *shopify.Response {
	return &shopify.Response{Status: status, Body: json.RawMessage(body)}
}

type testEnv struct {
	remote  *fakeRemote
	repos   *repository.Repositories
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func newTestEnv() *testEnv {
	return &testEnv{
		remote:  newFakeRemote(),
		repos:   memory.NewRepositories(),
		metrics: metrics.NewNop(),
		logger:  zap.NewNop(),
	}
}
