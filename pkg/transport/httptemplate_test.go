package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

func TestHTTPTemplateTransportCallTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/widgets/42", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	hs := config.HTTPServer{Name: "widgets", URL: srv.URL, Tools: []string{"getWidget"}}
	tool := config.Tool{
		Name:   "getWidget",
		Method: http.MethodGet,
		Path:   "/widgets/{{args.id}}",
		Headers: map[string]string{
			"Authorization": "{{request.headers.token}}",
		},
		ResponseBody: `{{response.ok}}`,
	}

	tr := NewHTTPTemplateTransport(hs, map[string]config.Tool{"getWidget": tool}, 0)
	require.NoError(t, tr.Start(context.Background()))

	res, err := tr.CallTool(context.Background(), "getWidget", map[string]any{"id": float64(42)}, RequestSnapshot{
		Headers: map[string]string{"token": "tok-1"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "true", res.Content[0].Text)
}

func TestHTTPTemplateTransportUnknownTool(t *testing.T) {
	hs := config.HTTPServer{Name: "widgets", URL: "http://example.invalid"}
	tr := NewHTTPTemplateTransport(hs, map[string]config.Tool{}, 0)
	res, err := tr.CallTool(context.Background(), "missing", nil, RequestSnapshot{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMergeSnapshotsCurrentWins(t *testing.T) {
	base := RequestSnapshot{Headers: map[string]string{"a": "1", "b": "2"}}
	cur := RequestSnapshot{Headers: map[string]string{"b": "override"}}
	merged := MergeSnapshots(base, cur)
	assert.Equal(t, "1", merged.Headers["a"])
	assert.Equal(t, "override", merged.Headers["b"])
}
