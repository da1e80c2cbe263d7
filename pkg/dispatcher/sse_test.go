package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/session"
	"github.com/null-runner/mcp-gateway/pkg/state"
)

func TestHandleSSERegistersSessionAndEmitsEndpointEvent(t *testing.T) {
	store := session.NewMemoryStore()
	d := New(nil, store)
	rt := &state.Runtime{Router: config.Router{SSEPrefix: "/bridge"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // return from the stream loop immediately after setup

	req := httptest.NewRequest(http.MethodGet, "/t1/svc/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	d.handleSSE(rec, req, "/t1/svc", rt)

	body := rec.Body.String()
	assert.Contains(t, body, "event: endpoint")
	assert.Contains(t, body, "/bridge/t1/svc/message?sessionId=")

	all, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, all, "session should be unregistered once the stream loop exits")
}

func TestHandleSSERejectsNonGET(t *testing.T) {
	d := New(nil, session.NewMemoryStore())
	rt := &state.Runtime{}

	req := httptest.NewRequest(http.MethodPost, "/t1/svc/sse", nil)
	rec := httptest.NewRecorder()
	d.handleSSE(rec, req, "/t1/svc", rt)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleMessageDeliversRPCResponseOnSessionQueue(t *testing.T) {
	store := session.NewMemoryStore()
	d := New(nil, store)
	rt := &state.Runtime{BackendProto: state.ProtoHTTP, Transport: &fakeTransport{}}

	sess, err := store.Register("/t1/svc", session.Meta{Type: session.TypeSSE})
	require.NoError(t, err)

	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	req := httptest.NewRequest(http.MethodPost, "/t1/svc/message?sessionId="+sess.ID(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.handleMessage(rec, req, "/t1/svc", rt)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case msg := <-sess.Events():
		assert.Equal(t, "message", msg.Event)
		assert.Contains(t, msg.Data, `"result"`)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async rpc response")
	}
}

func TestHandleMessageUnknownSessionIs404(t *testing.T) {
	d := New(nil, session.NewMemoryStore())
	rt := &state.Runtime{}

	req := httptest.NewRequest(http.MethodPost, "/t1/svc/message?sessionId=nope", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	d.handleMessage(rec, req, "/t1/svc", rt)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMessageRejectsNonPOST(t *testing.T) {
	d := New(nil, session.NewMemoryStore())
	rt := &state.Runtime{}

	req := httptest.NewRequest(http.MethodGet, "/t1/svc/message", nil)
	rec := httptest.NewRecorder()
	d.handleMessage(rec, req, "/t1/svc", rt)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
