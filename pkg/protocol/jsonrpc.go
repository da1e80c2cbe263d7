// Package protocol defines the wire types the Dispatcher decodes and
// encodes directly: JSON-RPC 2.0 envelopes and the MCP tool/content
// shapes carried inside them. These are hand-written rather than
// borrowed from an MCP server framework because the Dispatcher owns
// session multiplexing and SSE framing itself (spec §4.4) — the same
// reason the other Go gateway reference implementations in this space
// (x22x22-Unla, nohavewho-whogate-unla) define their own minimal
// pkg/mcp types instead of depending on one.
package protocol

import "encoding/json"

// ErrorCode is the symbolic JSON-RPC error code the gateway reports.
type ErrorCode string

const (
	ParseError       ErrorCode = "ParseError"
	InvalidRequest   ErrorCode = "InvalidRequest"
	MethodNotFound   ErrorCode = "MethodNotFound"
	InvalidParams    ErrorCode = "InvalidParams"
	InternalError    ErrorCode = "InternalError"
	RequestTimeout   ErrorCode = "RequestTimeout"
	ConnectionClosed ErrorCode = "ConnectionClosed"
)

// LatestProtocolVersion is advertised in initialize responses.
const LatestProtocolVersion = "2025-06-18"

// Request is a JSON-RPC 2.0 request object. ID may be a number,
// string, or absent (notification).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id and so
// expects no response (e.g. notifications/initialized).
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Error is the JSON-RPC error object the gateway emits for protocol
// framing failures (never for tool-internal failures; those surface as
// CallToolResult{IsError: true} per spec §7).
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a successful response echoing the request id.
func NewResult(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error response echoing the request id.
func NewError(id json.RawMessage, code ErrorCode, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

// Content is a single piece of tool output, today always type "text".
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextContent builds a single text Content item.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// CallToolResult is the result of tools/call. Tool-internal failures
// set IsError and never become a JSON-RPC Error (spec §7).
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ErrorResult builds a tool-internal failure result with a single
// length-capped diagnostic text content, per spec §7's 200-char cap
// for generic surfaces.
func ErrorResult(format string, args ...any) CallToolResult {
	msg := sprintfCapped(200, format, args...)
	return CallToolResult{Content: []Content{TextContent(msg)}, IsError: true}
}

// ToolSchema is the client-facing description of a callable tool:
// name, description, and its JSON Schema input shape.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []ToolSchema `json:"tools"`
}

// ResourceSchema is the client-facing description of one resource.
// Nothing in the gateway registers resources today, so resources/list
// always answers with an empty set rather than MethodNotFound — a
// client that proactively lists resources should see "none", not an
// error it has to special-case.
type ResourceSchema struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources []ResourceSchema `json:"resources"`
}

// PromptSchema is the client-facing description of one prompt.
type PromptSchema struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ListPromptsResult is the result of prompts/list.
type ListPromptsResult struct {
	Prompts []PromptSchema `json:"prompts"`
}

// CallToolParams is the decoded params of a tools/call request.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// InitializeParams is the decoded params of an initialize request;
// all fields are optional (lenient defaults per spec §4.4's table).
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion,omitempty"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ClientInfo      map[string]any `json:"clientInfo,omitempty"`
}

// InitializeResult is the result of initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// Implementation identifies the gateway to a connecting client.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities is the capability set advertised on initialize.
type ServerCapabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability announces whether the tool list can change mid-session.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}
