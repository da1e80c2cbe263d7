package transport

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/google/shlex"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/protocol"
)

// MCPClientTransport connects to a backend MCPServer (stdio subprocess,
// or upstream sse/streamable) as an MCP client using the official SDK,
// and re-exposes its tool set through the Transport contract. One
// instance is held per MCPServer for as long as it's referenced across
// reloads (spec §4.2's transport-identity-reuse rule).
type MCPClientTransport struct {
	lifecycle

	server config.MCPServer
	client *sdkmcp.Client

	mu      sync.Mutex
	session *sdkmcp.ClientSession
	done    chan struct{}

	toolsMu     sync.Mutex
	toolsCached bool
	toolNames   map[string]bool
}

// NewMCPClientTransport builds a (not-yet-started) client transport for
// one backend MCPServer declaration.
func NewMCPClientTransport(server config.MCPServer) *MCPClientTransport {
	return &MCPClientTransport{
		server: server,
		client: sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-gateway", Version: "1.0.0"}, nil),
	}
}

func (t *MCPClientTransport) buildSDKTransport() (sdkmcp.Transport, error) {
	switch t.server.Type {
	case config.MCPServerStdio:
		parts, err := shlex.Split(t.server.Command)
		if err != nil {
			return nil, fmt.Errorf("parsing command %q: %w", t.server.Command, err)
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("mcp server %q has an empty command", t.server.Name)
		}
		args := append(append([]string{}, parts[1:]...), t.server.Args...)
		cmd := exec.Command(parts[0], args...)
		return &sdkmcp.CommandTransport{Command: cmd}, nil
	case config.MCPServerSSE:
		return &sdkmcp.SSEClientTransport{Endpoint: t.server.URL, HTTPClient: &http.Client{}}, nil
	case config.MCPServerStreamable:
		return &sdkmcp.StreamableClientTransport{Endpoint: t.server.URL, HTTPClient: &http.Client{}}, nil
	default:
		return nil, fmt.Errorf("unsupported mcp server type %q", t.server.Type)
	}
}

func (t *MCPClientTransport) Start(ctx context.Context) error {
	return t.withLock(func() error {
		if t.running {
			return nil
		}
		sdkTransport, err := t.buildSDKTransport()
		if err != nil {
			return err
		}
		session, err := t.client.Connect(ctx, sdkTransport, nil)
		if err != nil {
			return fmt.Errorf("connecting to mcp server %q: %w", t.server.Name, err)
		}

		t.mu.Lock()
		t.session = session
		t.done = make(chan struct{})
		done := t.done
		t.mu.Unlock()

		go func() {
			session.Wait()
			close(done)
		}()

		t.running = true
		log.Log(fmt.Sprintf("mcp server %q: connected (%s)", t.server.Name, t.server.Type))
		return nil
	})
}

func (t *MCPClientTransport) Stop(ctx context.Context) error {
	return t.withLock(func() error {
		t.mu.Lock()
		session := t.session
		t.session = nil
		t.mu.Unlock()
		if session != nil {
			if err := session.Close(); err != nil {
				return err
			}
		}
		t.running = false
		return nil
	})
}

func (t *MCPClientTransport) IsRunning() bool { return t.isRunning() }

func (t *MCPClientTransport) currentSession() (*sdkmcp.ClientSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil, false
	}
	select {
	case <-t.done:
		return nil, false
	default:
		return t.session, true
	}
}

// ensureStarted brings the transport up on first use (spec §4.3: "the
// decorator ensures start is invoked before the first call", grounded
// on original_source/myunla/gateway/transports/base.py's
// transport_has_started decorator). on_demand and on_start servers
// alike are started here; an on_start server is normally already
// running from BuildFrom, so this is a no-op for it.
func (t *MCPClientTransport) ensureStarted(ctx context.Context) (*sdkmcp.ClientSession, error) {
	if session, ok := t.currentSession(); ok {
		return session, nil
	}
	if err := t.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting mcp server %q: %w", t.server.Name, err)
	}
	session, ok := t.currentSession()
	if !ok {
		return nil, fmt.Errorf("mcp server %q: no session after start", t.server.Name)
	}
	return session, nil
}

// stopIfOnDemand closes the transport after one operation for
// on_demand servers, grounded on stdio.py's call_tools opening the
// transport via the decorator and calling self.stop() once the call
// completes, rather than holding the subprocess open between calls.
func (t *MCPClientTransport) stopIfOnDemand(ctx context.Context) {
	if t.server.Policy != config.PolicyOnDemand {
		return
	}
	if err := t.Stop(ctx); err != nil {
		log.Warnf(log.Extras{log.F("server", t.server.Name)}, "stopping on-demand transport: %v", err)
	}
}

func (t *MCPClientTransport) ListTools(ctx context.Context) (*protocol.ListToolsResult, error) {
	// Unlike CallTool, listing tools doesn't close an on_demand server
	// back down afterward (stdio.py's fetch_tools never calls stop());
	// only a completed tool call does.
	session, err := t.ensureStarted(ctx)
	if err != nil {
		return nil, err
	}

	var tools []protocol.ToolSchema
	params := &sdkmcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list on %q: %w", t.server.Name, err)
		}
		for _, tool := range res.Tools {
			tools = append(tools, protocol.ToolSchema{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: schemaToMap(tool.InputSchema),
			})
		}
		if res.NextCursor == "" {
			break
		}
		params = &sdkmcp.ListToolsParams{Cursor: res.NextCursor}
	}
	t.cacheToolNames(tools)
	return &protocol.ListToolsResult{Tools: tools}, nil
}

// cacheToolNames records the tool set from a successful tools/list, so
// CallTool can reject an unknown tool name without starting the
// subprocess (spec §4.3; stdio.py's _tools_cache/_has_tool).
func (t *MCPClientTransport) cacheToolNames(tools []protocol.ToolSchema) {
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	t.toolsMu.Lock()
	t.toolNames = names
	t.toolsCached = true
	t.toolsMu.Unlock()
}

// knownTool reports whether name is present in an already-populated
// tools cache. Returns true (proceed with the call) until the cache
// has been populated at least once by ListTools.
func (t *MCPClientTransport) knownTool(name string) bool {
	t.toolsMu.Lock()
	defer t.toolsMu.Unlock()
	if !t.toolsCached {
		return true
	}
	return t.toolNames[name]
}

func (t *MCPClientTransport) CallTool(ctx context.Context, name string, args map[string]any, _ RequestSnapshot) (*protocol.CallToolResult, error) {
	if !t.knownTool(name) {
		return ptr(protocol.ErrorResult("tool %q not found on mcp server %q", name, t.server.Name)), nil
	}

	session, err := t.ensureStarted(ctx)
	if err != nil {
		return ptr(protocol.ErrorResult("starting mcp server %q: %v", t.server.Name, err)), nil
	}
	defer t.stopIfOnDemand(ctx)

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		log.Errorf(log.Extras{log.F("tool", name), log.F("server", t.server.Name)}, "tools/call failed: %v", err)
		return ptr(protocol.ErrorResult("calling tool %q on %q: %v", name, t.server.Name, err)), nil
	}
	return &protocol.CallToolResult{Content: extractContent(res), IsError: res.IsError}, nil
}

func extractContent(res *sdkmcp.CallToolResult) []protocol.Content {
	var out []protocol.Content
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			out = append(out, protocol.TextContent(tc.Text))
		}
	}
	if len(out) == 0 {
		out = append(out, protocol.TextContent(""))
	}
	return out
}

// schemaToMap best-effort coerces the SDK's resolved schema type into
// the plain map[string]any the gateway's wire types carry.
func schemaToMap(s *sdkmcp.Schema) map[string]any {
	if s == nil {
		return nil
	}
	m := map[string]any{"type": s.Type}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			props[k] = schemaToMap(v)
		}
		m["properties"] = props
	}
	return m
}
