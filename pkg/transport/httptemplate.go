package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/eval"
	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/protocol"
)

// HTTPTemplateTransport renders a Tool's method/path/headers/body
// templates against the call's arguments and the current request
// snapshot, then issues one outbound HTTP request per call. It holds
// no persistent connection, so Start/Stop are no-ops (spec §4.3).
type HTTPTemplateTransport struct {
	lifecycle

	server config.HTTPServer
	tools  map[string]config.Tool
	client *http.Client
}

// NewHTTPTemplateTransport builds a transport bound to one HTTPServer
// and the subset of the owning Config's tools that server exposes.
func NewHTTPTemplateTransport(server config.HTTPServer, tools map[string]config.Tool, timeout time.Duration) *HTTPTemplateTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTemplateTransport{
		server: server,
		tools:  tools,
		client: &http.Client{Timeout: timeout},
	}
}

// Start marks the transport up; there is no connection to establish.
func (t *HTTPTemplateTransport) Start(ctx context.Context) error {
	return t.withLock(func() error {
		t.running = true
		return nil
	})
}

// Stop marks the transport down; there is no connection to release.
func (t *HTTPTemplateTransport) Stop(ctx context.Context) error {
	return t.withLock(func() error {
		t.running = false
		return nil
	})
}

func (t *HTTPTemplateTransport) IsRunning() bool { return t.isRunning() }

// ListTools is unused on this path; Runtime answers tools/list from
// its own tools_schema for HTTP backends without consulting the
// transport (spec §9's resolved open question).
func (t *HTTPTemplateTransport) ListTools(ctx context.Context) (*protocol.ListToolsResult, error) {
	return &protocol.ListToolsResult{}, nil
}

func (t *HTTPTemplateTransport) CallTool(ctx context.Context, name string, rawArgs map[string]any, req RequestSnapshot) (*protocol.CallToolResult, error) {
	tool, ok := t.tools[name]
	if !ok {
		return ptr(protocol.ErrorResult("tool %q not found on server %q", name, t.server.Name)), nil
	}

	args := fillDefaultsAndNormalize(tool, rawArgs)

	evalCtx := eval.Context{
		"args": args,
		"config": map[string]any{
			"url": t.server.URL,
		},
		"request": requestSnapshotToMap(req),
	}

	path, err := eval.Render(tool.Path, evalCtx)
	if err != nil {
		return ptr(protocol.ErrorResult("rendering path for tool %q: %v", name, err)), nil
	}
	base, err := url.Parse(t.server.URL)
	if err != nil {
		return ptr(protocol.ErrorResult("invalid server url %q: %v", t.server.URL, err)), nil
	}
	target, err := base.Parse(path)
	if err != nil {
		return ptr(protocol.ErrorResult("resolving path %q against %q: %v", path, t.server.URL, err)), nil
	}

	query := target.Query()
	for _, a := range tool.Args {
		if a.Position != config.PositionQuery {
			continue
		}
		if v, ok := args[a.Name]; ok && v != nil {
			query.Set(a.Name, fmt.Sprint(v))
		}
	}
	target.RawQuery = query.Encode()

	method := tool.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	switch {
	case tool.RequestBody != "":
		rendered, err := eval.Render(tool.RequestBody, evalCtx)
		if err != nil {
			return ptr(protocol.ErrorResult("rendering request body for tool %q: %v", name, err)), nil
		}
		body = bytes.NewBufferString(rendered)
	default:
		if rendered, ok := bodyFromArgs(tool, args); ok {
			body = bytes.NewBufferString(rendered)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return ptr(protocol.ErrorResult("building request for tool %q: %v", name, err)), nil
	}
	for _, a := range tool.Args {
		if a.Position != config.PositionHeader {
			continue
		}
		if v, ok := args[a.Name]; ok && v != nil {
			httpReq.Header.Set(a.Name, fmt.Sprint(v))
		}
	}
	for k, v := range tool.Headers {
		rendered, err := eval.Render(v, evalCtx)
		if err != nil {
			return ptr(protocol.ErrorResult("rendering header %q for tool %q: %v", k, name, err)), nil
		}
		httpReq.Header.Set(k, rendered)
	}
	if tool.RequestBody != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		log.Errorf(log.Extras{log.F("tool", name), log.F("server", t.server.Name)}, "backend call failed: %v", err)
		return ptr(protocol.ErrorResult("calling backend for tool %q: %v", name, err)), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ptr(protocol.ErrorResult("reading response for tool %q: %v", name, err)), nil
	}

	if resp.StatusCode >= 400 {
		return ptr(protocol.ErrorResult("backend returned %d for tool %q", resp.StatusCode, name)), nil
	}

	text := string(respBody)
	if tool.ResponseBody != "" {
		var parsed any
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr == nil {
			respCtx := cloneContext(evalCtx)
			respCtx["response"] = parsed
			rendered, err := eval.Render(tool.ResponseBody, respCtx)
			if err != nil {
				return ptr(protocol.ErrorResult("rendering response body for tool %q: %v", name, err)), nil
			}
			text = rendered
		}
	}

	return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(text)}}, nil
}

// fillDefaultsAndNormalize applies each declared arg's default when
// the call omitted it, and parses any object/array-typed argument
// whose supplied value arrived as a JSON string (spec §4.3 step 2).
// rawArgs is never mutated.
func fillDefaultsAndNormalize(tool config.Tool, rawArgs map[string]any) map[string]any {
	args := make(map[string]any, len(rawArgs)+len(tool.Args))
	for k, v := range rawArgs {
		args[k] = v
	}
	for _, a := range tool.Args {
		v, present := args[a.Name]
		if !present {
			if a.Default != nil {
				args[a.Name] = a.Default
			}
			continue
		}
		if a.Type != "object" && a.Type != "array" {
			continue
		}
		s, isString := v.(string)
		if !isString {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			args[a.Name] = parsed
		}
	}
	return args
}

// bodyFromArgs assembles a JSON object body from every arg declared
// with position=body, used when the tool has no request_body template
// (spec §4.3 step 4: "template takes precedence if non-empty").
func bodyFromArgs(tool config.Tool, args map[string]any) (string, bool) {
	body := make(map[string]any)
	for _, a := range tool.Args {
		if a.Position != config.PositionBody {
			continue
		}
		if v, ok := args[a.Name]; ok && v != nil {
			body[a.Name] = v
		}
	}
	if len(body) == 0 {
		return "", false
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func cloneContext(ctx eval.Context) eval.Context {
	out := make(eval.Context, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

func requestSnapshotToMap(req RequestSnapshot) map[string]any {
	return map[string]any{
		"headers": stringMapToAny(req.Headers),
		"query":   stringMapToAny(req.Query),
		"cookies": stringMapToAny(req.Cookies),
		"path":    req.Path,
		"body":    req.Body,
	}
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func ptr(r protocol.CallToolResult) *protocol.CallToolResult { return &r }
