package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

func TestFillDefaultsAndNormalizeFillsMissingDefault(t *testing.T) {
	tool := config.Tool{Args: []config.ToolArg{
		{Name: "limit", Type: "number", Default: float64(10)},
	}}
	args := fillDefaultsAndNormalize(tool, map[string]any{})
	assert.Equal(t, float64(10), args["limit"])
}

func TestFillDefaultsAndNormalizeParsesJSONStringForObjectArg(t *testing.T) {
	tool := config.Tool{Args: []config.ToolArg{
		{Name: "filter", Type: "object"},
	}}
	raw := map[string]any{"filter": `{"status":"open"}`}
	args := fillDefaultsAndNormalize(tool, raw)

	parsed, ok := args["filter"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "open", parsed["status"])
	// the original map must be untouched
	assert.IsType(t, "", raw["filter"])
}

func TestFillDefaultsAndNormalizeLeavesNonStringObjectArgAlone(t *testing.T) {
	tool := config.Tool{Args: []config.ToolArg{
		{Name: "filter", Type: "object"},
	}}
	already := map[string]any{"status": "open"}
	args := fillDefaultsAndNormalize(tool, map[string]any{"filter": already})
	assert.Equal(t, already, args["filter"])
}

func TestBodyFromArgsAssemblesBodyPositionedArgs(t *testing.T) {
	tool := config.Tool{Args: []config.ToolArg{
		{Name: "name", Position: config.PositionBody},
		{Name: "id", Position: config.PositionPath},
	}}
	body, ok := bodyFromArgs(tool, map[string]any{"name": "widget", "id": "42"})
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "widget", decoded["name"])
	assert.NotContains(t, decoded, "id")
}

func TestBodyFromArgsNoBodyArgsReturnsFalse(t *testing.T) {
	tool := config.Tool{Args: []config.ToolArg{{Name: "id", Position: config.PositionPath}}}
	_, ok := bodyFromArgs(tool, map[string]any{"id": "1"})
	assert.False(t, ok)
}

func TestCallToolAssemblesQueryParamsFromArgs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "widgets", r.URL.Query().Get("category"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	hs := config.HTTPServer{Name: "svc", URL: srv.URL, Tools: []string{"search"}}
	tool := config.Tool{
		Name:   "search",
		Method: http.MethodGet,
		Path:   "/search",
		Args: []config.ToolArg{
			{Name: "category", Position: config.PositionQuery},
		},
	}
	tr := NewHTTPTemplateTransport(hs, map[string]config.Tool{"search": tool}, 0)
	res, err := tr.CallTool(context.Background(), "search", map[string]any{"category": "widgets"}, RequestSnapshot{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestCallToolBuildsBodyFromArgsWhenNoRequestBodyTemplate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&decoded))
		assert.Equal(t, "widget-1", decoded["name"])
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	hs := config.HTTPServer{Name: "svc", URL: srv.URL, Tools: []string{"create"}}
	tool := config.Tool{
		Name:   "create",
		Method: http.MethodPost,
		Path:   "/create",
		Args: []config.ToolArg{
			{Name: "name", Position: config.PositionBody},
		},
	}
	tr := NewHTTPTemplateTransport(hs, map[string]config.Tool{"create": tool}, 0)
	res, err := tr.CallTool(context.Background(), "create", map[string]any{"name": "widget-1"}, RequestSnapshot{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}
