// Package state builds the gateway's live runtime model — Runtime and
// State — from a list of Configs, and rebuilds it atomically whenever
// configuration changes. Grounded on the teacher's reload/diff pattern
// (clear, rebuild, diff against the previous generation) adapted from
// tool-registration bookkeeping to prefix bookkeeping.
package state

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/protocol"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

// BackendProto tags which wire protocol a Runtime's transport speaks.
type BackendProto string

const (
	ProtoHTTP       BackendProto = "http"
	ProtoSSE        BackendProto = "sse"
	ProtoStreamable BackendProto = "streamable"
	ProtoStdio      BackendProto = "stdio"
)

// Runtime is the materialized, per-prefix binding of one Config slice
// to a live transport: exactly one of HTTPServer or MCPServer is set.
type Runtime struct {
	BackendProto BackendProto
	Router       config.Router
	HTTPServer   *config.HTTPServer
	MCPServer    *config.MCPServer
	Tools        map[string]config.Tool
	ToolsSchema  []protocol.ToolSchema
	ToolsValidators map[string]*jsonschema.Resolved
	Transport    transport.Transport

	// ConfigKey and TenantID identify which Config and Tenant this
	// Runtime was derived from, for logging and introspection.
	ConfigKey string
	TenantID  string
}
