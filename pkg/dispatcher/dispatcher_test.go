package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/state"
)

type fakeStateProvider struct {
	st *state.State
}

func (f *fakeStateProvider) Current() *state.State { return f.st }

func TestParsePath(t *testing.T) {
	prefix, endpoint, ok := parsePath("/t1/svc/sse")
	require.True(t, ok)
	assert.Equal(t, "/t1/svc", prefix)
	assert.Equal(t, "sse", endpoint)
}

func TestParsePathTooShort(t *testing.T) {
	_, _, ok := parsePath("/t1")
	assert.False(t, ok)

	_, _, ok = parsePath("/")
	assert.False(t, ok)
}

func TestServeHTTPUnknownPrefixIs404(t *testing.T) {
	st := &state.State{Runtime: map[string]*state.Runtime{}}
	d := New(&fakeStateProvider{st: st}, session.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/no/such/sse", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTPUnknownEndpointIs404(t *testing.T) {
	st := &state.State{Runtime: map[string]*state.Runtime{
		"/t1/svc": {BackendProto: state.ProtoHTTP, Router: config.Router{Prefix: "/t1/svc"}},
	}}
	d := New(&fakeStateProvider{st: st}, session.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/t1/svc/nonsense", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTPOptionsShortCircuits(t *testing.T) {
	st := &state.State{Runtime: map[string]*state.Runtime{
		"/t1/svc": {BackendProto: state.ProtoHTTP, Router: config.Router{Prefix: "/t1/svc"}},
	}}
	d := New(&fakeStateProvider{st: st}, session.NewMemoryStore())

	req := httptest.NewRequest(http.MethodOptions, "/t1/svc/mcp", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestApplyCORSRestrictsToAllowedOrigin(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")

	applyCORS(rec, req, config.CORSPolicy{AllowOrigins: []string{"https://good.example"}})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/x", nil)
	req2.Header.Set("Origin", "https://good.example")
	applyCORS(rec2, req2, config.CORSPolicy{AllowOrigins: []string{"https://good.example"}})
	assert.Equal(t, "https://good.example", rec2.Header().Get("Access-Control-Allow-Origin"))
}
