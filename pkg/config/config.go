// Package config defines the declarative, tenant-scoped configuration
// documents the gateway builds its runtime state from: Config, Router,
// HTTPServer, MCPServer and Tool. Field names match the gateway's YAML
// and JSON wire format verbatim.
package config

import "fmt"

// ArgPosition is where a Tool argument is placed when a request is
// assembled.
type ArgPosition string

const (
	PositionQuery  ArgPosition = "query"
	PositionHeader ArgPosition = "header"
	PositionPath   ArgPosition = "path"
	PositionBody   ArgPosition = "body"
)

// MCPServerType selects the backend protocol an MCPServer speaks.
type MCPServerType string

const (
	MCPServerSSE        MCPServerType = "sse"
	MCPServerStdio       MCPServerType = "stdio"
	MCPServerStreamable  MCPServerType = "streamable"
)

// MCPServerPolicy controls when a stdio/sse/streamable transport is
// started relative to a gateway (re)load.
type MCPServerPolicy string

const (
	PolicyOnStart  MCPServerPolicy = "on_start"
	PolicyOnDemand MCPServerPolicy = "on_demand"
)

// ArgItems describes the element type of an array-typed Tool argument.
type ArgItems struct {
	Type string `yaml:"type" json:"type"`
}

// ToolArg is one named argument a Tool accepts.
type ToolArg struct {
	Name     string      `yaml:"name" json:"name" validate:"required"`
	Position ArgPosition `yaml:"position" json:"position" validate:"required,oneof=query header path body"`
	Type     string      `yaml:"type" json:"type"`
	Required bool        `yaml:"required" json:"required"`
	Default  any         `yaml:"default,omitempty" json:"default,omitempty"`
	Items    *ArgItems   `yaml:"items,omitempty" json:"items,omitempty"`
}

// Tool is a single callable operation, rendered against an outbound
// HTTP request template when its owning server is an HTTPServer.
type Tool struct {
	Name         string            `yaml:"name" json:"name" validate:"required"`
	Description  string            `yaml:"description" json:"description"`
	Method       string            `yaml:"method" json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path         string            `yaml:"path" json:"path" validate:"required"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Args         []ToolArg         `yaml:"args,omitempty" json:"args,omitempty" validate:"dive"`
	RequestBody  string            `yaml:"request_body,omitempty" json:"request_body,omitempty"`
	ResponseBody string            `yaml:"response_body,omitempty" json:"response_body,omitempty"`
	InputSchema  map[string]any    `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
}

// HTTPServer exposes a fixed set of Tools through one base URL.
type HTTPServer struct {
	Name  string   `yaml:"name" json:"name" validate:"required"`
	URL   string   `yaml:"url" json:"url" validate:"required,url"`
	Tools []string `yaml:"tools" json:"tools"`
}

// MCPServer is a backend MCP implementation the gateway connects to as
// a client: a subprocess (stdio), or an upstream server (sse /
// streamable).
type MCPServer struct {
	Name         string          `yaml:"name" json:"name" validate:"required"`
	Type         MCPServerType   `yaml:"type" json:"type" validate:"required,oneof=sse stdio streamable"`
	Command      string          `yaml:"command,omitempty" json:"command,omitempty"`
	URL          string          `yaml:"url,omitempty" json:"url,omitempty"`
	Args         []string        `yaml:"args,omitempty" json:"args,omitempty"`
	Policy       MCPServerPolicy `yaml:"policy" json:"policy" validate:"required,oneof=on_start on_demand"`
	Preinstalled bool            `yaml:"preinstalled,omitempty" json:"preinstalled,omitempty"`
}

// CORSPolicy is the pass-through CORS configuration applied to a
// Router; the core only threads it through to the extension point
// described in spec §4.4 step 3.
type CORSPolicy struct {
	AllowOrigins []string `yaml:"allow_origins,omitempty" json:"allow_origins,omitempty"`
	AllowMethods []string `yaml:"allow_methods,omitempty" json:"allow_methods,omitempty"`
	AllowHeaders []string `yaml:"allow_headers,omitempty" json:"allow_headers,omitempty"`
}

// Router binds a URL path prefix to a named server within the same
// Config.
type Router struct {
	Prefix    string     `yaml:"prefix" json:"prefix" validate:"required"`
	Server    string     `yaml:"server" json:"server" validate:"required"`
	SSEPrefix string     `yaml:"sse_prefix,omitempty" json:"sse_prefix,omitempty"`
	CORS      CORSPolicy `yaml:"cors,omitempty" json:"cors,omitempty"`
}

// Config is a tenant-scoped bundle of routers, servers and tools.
// Unique key is (Tenant, Name).
type Config struct {
	Name        string       `yaml:"name" json:"name" validate:"required"`
	Tenant      string       `yaml:"tenant" json:"tenant" validate:"required"`
	Routers     []Router     `yaml:"routers,omitempty" json:"routers,omitempty" validate:"dive"`
	HTTPServers []HTTPServer `yaml:"http_servers,omitempty" json:"http_servers,omitempty" validate:"dive"`
	MCPServers  []MCPServer  `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty" validate:"dive"`
	Tools       []Tool       `yaml:"tools,omitempty" json:"tools,omitempty" validate:"dive"`
}

// Key returns the Config's unique (tenant, name) identity.
func (c Config) Key() string {
	return c.Tenant + "/" + c.Name
}

// ToolByName indexes Config.Tools by name; duplicate names keep the
// first occurrence, consistent with the single left-to-right pass
// State.BuildFrom performs over a Config's tools.
func (c Config) ToolByName() map[string]Tool {
	m := make(map[string]Tool, len(c.Tools))
	for _, t := range c.Tools {
		if _, ok := m[t.Name]; !ok {
			m[t.Name] = t
		}
	}
	return m
}

// Validate checks the invariants a Config must satisfy on its own,
// independent of the Tenant it belongs to: every Router.Server must
// resolve to an HTTPServer or MCPServer declared in this same Config.
// Tenant-prefix containment is checked by ValidateTenant,
// since it needs the owning Tenant's registered prefix.
func (c Config) Validate() error {
	servers := make(map[string]bool, len(c.HTTPServers)+len(c.MCPServers))
	for _, s := range c.HTTPServers {
		servers[s.Name] = true
	}
	for _, s := range c.MCPServers {
		servers[s.Name] = true
	}
	for _, r := range c.Routers {
		if !servers[r.Server] {
			return fmt.Errorf("router %q references unknown server %q", r.Prefix, r.Server)
		}
	}
	return nil
}

// Tenant is the minimal representation of the admin collaborator's
// tenant entity the core needs: just enough to check the tenant-prefix
// containment invariant when a Config is built into State.
type Tenant struct {
	ID     string `yaml:"id" json:"id"`
	Prefix string `yaml:"prefix" json:"prefix"`
}
