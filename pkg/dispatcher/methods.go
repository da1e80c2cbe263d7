package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/null-runner/mcp-gateway/pkg/protocol"
	"github.com/null-runner/mcp-gateway/pkg/schema"
	"github.com/null-runner/mcp-gateway/pkg/state"
	"github.com/null-runner/mcp-gateway/pkg/telemetry"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

// handleRPC decodes and executes one JSON-RPC request against rt, per
// the method table in spec §4.4 step 5. Returns nil when the request
// is a notification (no id): the caller must not emit a response.
func handleRPC(ctx context.Context, rt *state.Runtime, raw []byte, req transport.RequestSnapshot) *protocol.Response {
	var rpcReq protocol.Request
	if err := json.Unmarshal(raw, &rpcReq); err != nil {
		resp := protocol.NewError(nil, protocol.ParseError, "invalid JSON-RPC request: "+err.Error())
		return &resp
	}

	var result any
	var rpcErr *protocol.Error

	switch rpcReq.Method {
	case "initialize":
		var params protocol.InitializeParams
		_ = json.Unmarshal(rpcReq.Params, &params)
		result = protocol.InitializeResult{
			ProtocolVersion: protocol.LatestProtocolVersion,
			ServerInfo:      protocol.Implementation{Name: "mcp-gateway", Version: "1.0.0"},
			Capabilities:    protocol.ServerCapabilities{Tools: protocol.ToolsCapability{ListChanged: true}},
		}

	case "notifications/initialized":
		return nil

	case "ping":
		result = map[string]any{}

	case "tools/list":
		if rt.BackendProto == state.ProtoHTTP {
			result = protocol.ListToolsResult{Tools: rt.ToolsSchema}
		} else {
			res, err := rt.Transport.ListTools(ctx)
			if err != nil {
				rpcErr = &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
			} else {
				result = res
			}
		}

	case "resources/list":
		result = protocol.ListResourcesResult{Resources: []protocol.ResourceSchema{}}

	case "prompts/list":
		result = protocol.ListPromptsResult{Prompts: []protocol.PromptSchema{}}

	case "tools/call":
		var params protocol.CallToolParams
		if err := json.Unmarshal(rpcReq.Params, &params); err != nil {
			rpcErr = &protocol.Error{Code: protocol.InvalidParams, Message: "invalid tools/call params: " + err.Error()}
			break
		}
		if validator := rt.ToolsValidators[params.Name]; validator != nil {
			if err := schema.Validate(validator, params.Arguments); err != nil {
				rpcErr = &protocol.Error{Code: protocol.InvalidParams, Message: "arguments do not match tool schema: " + err.Error()}
				break
			}
		}
		start := time.Now()
		res, err := rt.Transport.CallTool(ctx, params.Name, params.Arguments, req)
		isError := err != nil || (res != nil && res.IsError)
		telemetry.RecordToolCall(ctx, rt.Router.Prefix, params.Name, time.Since(start), isError)
		if err != nil {
			rpcErr = &protocol.Error{Code: protocol.InternalError, Message: err.Error()}
		} else {
			result = res
		}

	default:
		rpcErr = &protocol.Error{Code: protocol.MethodNotFound, Message: "unknown method " + rpcReq.Method}
	}

	if rpcReq.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		resp := protocol.Response{JSONRPC: "2.0", ID: rpcReq.ID, Error: rpcErr}
		return &resp
	}
	resp := protocol.NewResult(rpcReq.ID, result)
	return &resp
}
