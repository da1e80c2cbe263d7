package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/protocol"
	"github.com/null-runner/mcp-gateway/pkg/schema"
	"github.com/null-runner/mcp-gateway/pkg/state"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

type fakeTransport struct {
	tools      *protocol.ListToolsResult
	toolsErr   error
	callResult *protocol.CallToolResult
	callErr    error
	lastArgs   map[string]any
}

func (f *fakeTransport) Start(context.Context) error { return nil }
func (f *fakeTransport) Stop(context.Context) error  { return nil }
func (f *fakeTransport) IsRunning() bool             { return true }
func (f *fakeTransport) ListTools(context.Context) (*protocol.ListToolsResult, error) {
	return f.tools, f.toolsErr
}
func (f *fakeTransport) CallTool(_ context.Context, _ string, args map[string]any, _ transport.RequestSnapshot) (*protocol.CallToolResult, error) {
	f.lastArgs = args
	return f.callResult, f.callErr
}

func TestHandleRPCInitialize(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(protocol.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, protocol.LatestProtocolVersion, result.ProtocolVersion)
}

func TestHandleRPCNotificationReturnsNil(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), transport.RequestSnapshot{})
	assert.Nil(t, resp)
}

func TestHandleRPCPing(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
}

func TestHandleRPCToolsListHTTPUsesSchema(t *testing.T) {
	rt := &state.Runtime{
		BackendProto: state.ProtoHTTP,
		ToolsSchema:  []protocol.ToolSchema{{Name: "ping"}},
		Transport:    &fakeTransport{},
	}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	result, ok := resp.Result.(protocol.ListToolsResult)
	require.True(t, ok)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "ping", result.Tools[0].Name)
}

func TestHandleRPCToolsListMCPDelegatesToTransport(t *testing.T) {
	ft := &fakeTransport{tools: &protocol.ListToolsResult{Tools: []protocol.ToolSchema{{Name: "remote-tool"}}}}
	rt := &state.Runtime{BackendProto: state.ProtoStdio, Transport: ft}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	result, ok := resp.Result.(*protocol.ListToolsResult)
	require.True(t, ok)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, "remote-tool", result.Tools[0].Name)
}

func TestHandleRPCToolsCall(t *testing.T) {
	ft := &fakeTransport{callResult: &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent("ok")}}}
	rt := &state.Runtime{BackendProto: state.ProtoHTTP, Transport: ft}
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{"a":1}}}`)
	resp := handleRPC(context.Background(), rt, raw, transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	assert.Equal(t, float64(1), ft.lastArgs["a"])
}

func TestHandleRPCResourcesListIsEmpty(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(protocol.ListResourcesResult)
	require.True(t, ok)
	assert.Empty(t, result.Resources)
}

func TestHandleRPCPromptsListIsEmpty(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(protocol.ListPromptsResult)
	require.True(t, ok)
	assert.Empty(t, result.Prompts)
}

func TestHandleRPCToolsCallRejectsArgsFailingSchema(t *testing.T) {
	resolved, err := schema.Compile(map[string]any{
		"type":                 "object",
		"required":             []any{"name"},
		"additionalProperties": false,
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resolved)

	rt := &state.Runtime{
		BackendProto:    state.ProtoHTTP,
		Transport:       &fakeTransport{},
		ToolsValidators: map[string]*jsonschema.Resolved{"ping": resolved},
	}
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{}}}`)
	resp := handleRPC(context.Background(), rt, raw, transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

func TestHandleRPCUnknownMethod(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound, resp.Error.Code)
}

func TestHandleRPCInvalidJSON(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`not json`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ParseError, resp.Error.Code)
}

func TestHandleRPCToolsCallInvalidParams(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP, Transport: &fakeTransport{}}
	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"not-an-object"}`)
	resp := handleRPC(context.Background(), rt, raw, transport.RequestSnapshot{})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

func TestHandleRPCIDIsEchoed(t *testing.T) {
	rt := &state.Runtime{BackendProto: state.ProtoHTTP}
	resp := handleRPC(context.Background(), rt, []byte(`{"jsonrpc":"2.0","id":"abc","method":"ping"}`), transport.RequestSnapshot{})
	require.NotNil(t, resp)
	var id string
	require.NoError(t, json.Unmarshal(resp.ID, &id))
	assert.Equal(t, "abc", id)
}
