// Package transport implements the gateway's backend-facing connector
// abstraction: HTTP template execution, a stdio MCP subprocess, and
// upstream SSE/Streamable-HTTP MCP sessions. All three expose the same
// ListTools/CallTool contract (spec §4.3) so Runtime and the
// Dispatcher never need to know which backend protocol they're
// talking to.
package transport

import (
	"context"
	"sync"

	"github.com/null-runner/mcp-gateway/pkg/protocol"
)

// RequestSnapshot is the subset of an inbound HTTP request the HTTP
// template transport renders against: headers, query, cookies, path,
// and body. The Dispatcher merges a session's captured snapshot with
// the current request's snapshot (current wins) before calling a tool,
// per spec §4.4 step 6.
type RequestSnapshot struct {
	Headers map[string]string
	Query   map[string]string
	Cookies map[string]string
	Path    string
	Body    any
}

// MergeSnapshots layers cur over base; cur's values win on conflict.
// Used to combine a session's request-at-establishment snapshot with
// the current request's snapshot before a tool call is rendered.
func MergeSnapshots(base, cur RequestSnapshot) RequestSnapshot {
	out := RequestSnapshot{
		Headers: mergeMaps(base.Headers, cur.Headers),
		Query:   mergeMaps(base.Query, cur.Query),
		Cookies: mergeMaps(base.Cookies, cur.Cookies),
		Path:    base.Path,
		Body:    base.Body,
	}
	if cur.Path != "" {
		out.Path = cur.Path
	}
	if cur.Body != nil {
		out.Body = cur.Body
	}
	return out
}

func mergeMaps(base, cur map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(cur))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Transport is the polymorphic backend connector: one tagged variant
// per protocol {http, stdio, sse, streamable}, a runtime dispatch
// table rather than an inheritance hierarchy (spec §9). The HTTP
// variant's Start/Stop are no-ops; it holds no persistent connection.
type Transport interface {
	// Start brings the transport up if it isn't already (no-op for
	// HTTP). Safe to call concurrently; serialized under the
	// transport's own lock so callers never observe a half-started
	// transport.
	Start(ctx context.Context) error
	// Stop tears the transport down. Idempotent, safe to call
	// concurrently with in-flight ListTools/CallTool.
	Stop(ctx context.Context) error
	// IsRunning reports whether the transport is currently up.
	IsRunning() bool
	// ListTools returns the backend's tool set. For HTTP transports
	// this is answered from the Runtime's own tools_schema instead
	// (spec §9's open question) and this method is not on the hot
	// path there.
	ListTools(ctx context.Context) (*protocol.ListToolsResult, error)
	// CallTool invokes a tool by name. Tool-internal failures (not
	// found, backend error) are returned as a CallToolResult with
	// IsError set, never as a Go error that would escalate to a
	// JSON-RPC error (spec §7).
	CallTool(ctx context.Context, name string, args map[string]any, req RequestSnapshot) (*protocol.CallToolResult, error)
}

// lifecycle is embedded by every Transport implementation to serialize
// Start/Stop under one lock (spec §4.3's "all transports serialize
// start/stop under a per-transport lock").
type lifecycle struct {
	mu      sync.Mutex
	running bool
}

func (l *lifecycle) withLock(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

func (l *lifecycle) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
