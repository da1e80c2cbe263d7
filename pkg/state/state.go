package state

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/sync/errgroup"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/protocol"
	"github.com/null-runner/mcp-gateway/pkg/schema"
	"github.com/null-runner/mcp-gateway/pkg/telemetry"
	"github.com/null-runner/mcp-gateway/pkg/transport"
)

// Metrics summarizes one State generation, per spec §3's State type.
type Metrics struct {
	TotalTools      int
	HTTPServers     int
	MCPServers      int
	IdleHTTPServers int
	IdleMCPServers  int
	MissingTools    int
}

// State is the immutable, atomically-swapped snapshot of every
// Runtime this gateway instance serves, plus the Configs it was built
// from. A State exclusively owns its runtime map and transports except
// when BuildFrom transfers a transport into the next generation.
type State struct {
	Configs []config.Config
	Runtime map[string]*Runtime
	Metrics Metrics
}

// BuildStateException is a per-prefix/per-server failure during a
// rebuild. It is logged and causes that prefix to be omitted; it never
// aborts the whole build (spec §4.2's failure model).
type BuildStateException struct {
	Tenant string
	Server string
	Prefix string
	Kind   string
	Err    error
}

func (e *BuildStateException) Error() string {
	return fmt.Sprintf("build state: tenant=%s server=%s prefix=%s kind=%s: %v", e.Tenant, e.Server, e.Prefix, e.Kind, e.Err)
}

func (e *BuildStateException) Unwrap() error { return e.Err }

// TransportFactory creates a not-yet-started transport for an
// MCPServer declaration. Injected so State stays independent of any
// particular subprocess/HTTP-client construction concern.
type TransportFactory func(server config.MCPServer) transport.Transport

// BuildFrom rebuilds State from configs, reusing old's transports by
// identity wherever an MCPServer's (type, command, url, args) tuple is
// unchanged for a given prefix. Per-prefix failures are collected and
// returned alongside the new State; they never abort the rebuild.
func BuildFrom(ctx context.Context, configs []config.Config, tenants map[string]config.Tenant, old *State, newTransport TransportFactory) (*State, []error) {
	var errs []error
	next := &State{
		Configs: configs,
		Runtime: make(map[string]*Runtime),
	}

	claimed := make(map[string]bool)

	for _, cfg := range configs {
		toolIndex := cfg.ToolByName()

		tenant, hasTenant := tenants[cfg.Tenant]

		prefixMap := make(map[string][]string)
		for _, r := range cfg.Routers {
			if hasTenant && !prefixAllowed(r.Prefix, tenant.Prefix) {
				errs = append(errs, &BuildStateException{
					Tenant: cfg.Tenant, Server: r.Server, Prefix: r.Prefix, Kind: "TenantPrefixViolation",
					Err: fmt.Errorf("prefix %q is not contained in tenant prefix %q", r.Prefix, tenant.Prefix),
				})
				continue
			}
			if claimed[r.Prefix] {
				errs = append(errs, &BuildStateException{
					Tenant: cfg.Tenant, Server: r.Server, Prefix: r.Prefix, Kind: "DuplicatePrefix",
					Err: fmt.Errorf("prefix %q already claimed", r.Prefix),
				})
				continue
			}
			claimed[r.Prefix] = true
			prefixMap[r.Server] = appendUnique(prefixMap[r.Server], r.Prefix)
		}
		routerByPrefix := make(map[string]config.Router, len(cfg.Routers))
		for _, r := range cfg.Routers {
			routerByPrefix[r.Prefix] = r
		}

		for _, hs := range cfg.HTTPServers {
			prefixes := prefixMap[hs.Name]
			if len(prefixes) == 0 {
				next.Metrics.IdleHTTPServers++
				continue
			}
			next.Metrics.HTTPServers++

			tools := make(map[string]config.Tool, len(hs.Tools))
			validators := make(map[string]*jsonschema.Resolved, len(hs.Tools))
			var toolSchema []protocol.ToolSchema
			for _, name := range hs.Tools {
				t, ok := toolIndex[name]
				if !ok {
					next.Metrics.MissingTools++
					log.Warnf(log.Extras{log.F("server", hs.Name), log.F("tool", name)}, "http server references undeclared tool")
					continue
				}
				tools[name] = t
				toolSchema = append(toolSchema, protocol.ToolSchema{
					Name:        t.Name,
					Description: t.Description,
					InputSchema: t.InputSchema,
				})
				resolved, err := schema.Compile(t.InputSchema)
				if err != nil {
					log.Warnf(log.Extras{log.F("server", hs.Name), log.F("tool", name)}, "compiling input schema: %v", err)
					continue
				}
				if resolved != nil {
					validators[name] = resolved
				}
			}
			next.Metrics.TotalTools += len(tools)

			for _, prefix := range prefixes {
				next.Runtime[prefix] = &Runtime{
					BackendProto:    ProtoHTTP,
					Router:          routerByPrefix[prefix],
					HTTPServer:      ptrHTTPServer(hs),
					Tools:           tools,
					ToolsSchema:     toolSchema,
					ToolsValidators: validators,
					Transport:       transport.NewHTTPTemplateTransport(hs, tools, 0),
					ConfigKey:       cfg.Key(),
					TenantID:        cfg.Tenant,
				}
			}
		}

		var runtimeMu sync.Mutex
		group, gctx := errgroup.WithContext(ctx)
		for _, mcp := range cfg.MCPServers {
			prefixes := prefixMap[mcp.Name]
			if len(prefixes) == 0 {
				next.Metrics.IdleMCPServers++
				continue
			}
			next.Metrics.MCPServers++

			for _, prefix := range prefixes {
				mcp, prefix := mcp, prefix
				group.Go(func() error {
					tr, err := resolveTransport(gctx, mcp, prefix, old, newTransport)
					runtimeMu.Lock()
					defer runtimeMu.Unlock()
					if err != nil {
						errs = append(errs, &BuildStateException{
							Tenant: cfg.Tenant, Server: mcp.Name, Prefix: prefix, Kind: "TransportStartup", Err: err,
						})
						return nil
					}
					next.Runtime[prefix] = &Runtime{
						BackendProto: BackendProto(mcp.Type),
						Router:       routerByPrefix[prefix],
						MCPServer:    ptrMCPServer(mcp),
						Tools:        map[string]config.Tool{},
						Transport:    tr,
						ConfigKey:    cfg.Key(),
						TenantID:     cfg.Tenant,
					}
					return nil
				})
			}
		}
		// Per-prefix startup failures are collected above and never
		// returned as a group error, so Wait always returns nil here.
		_ = group.Wait()
	}

	if old != nil {
		for prefix, rt := range old.Runtime {
			if _, stillPresent := next.Runtime[prefix]; stillPresent {
				continue
			}
			if rt.Transport == nil {
				continue
			}
			if err := rt.Transport.Stop(ctx); err != nil {
				log.Warnf(log.Extras{log.F("prefix", prefix)}, "stopping abandoned transport: %v", err)
			}
		}
	}

	telemetry.RecordStateRebuild(ctx, len(next.Runtime), len(errs))

	return next, errs
}

// resolveTransport reuses old's transport for prefix when the
// MCPServer's identity (type, command, url, args) is unchanged, else
// constructs and starts a fresh one per the server's startup policy.
func resolveTransport(ctx context.Context, mcp config.MCPServer, prefix string, old *State, newTransport TransportFactory) (transport.Transport, error) {
	if old != nil {
		if prev, ok := old.Runtime[prefix]; ok && prev.MCPServer != nil && sameIdentity(*prev.MCPServer, mcp) {
			return prev.Transport, nil
		}
	}

	if newTransport == nil {
		newTransport = func(m config.MCPServer) transport.Transport {
			return transport.NewMCPClientTransport(m)
		}
	}
	tr := newTransport(mcp)

	switch {
	case mcp.Policy == config.PolicyOnStart:
		if !tr.IsRunning() {
			if err := tr.Start(ctx); err != nil {
				return nil, err
			}
		}
	case mcp.Preinstalled:
		if err := tr.Start(ctx); err != nil {
			return nil, err
		}
		if err := tr.Stop(ctx); err != nil {
			log.Warnf(log.Extras{log.F("server", mcp.Name)}, "stopping liveness-check transport: %v", err)
		}
	}

	return tr, nil
}

func sameIdentity(a, b config.MCPServer) bool {
	if a.Type != b.Type || a.Command != b.Command || a.URL != b.URL || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}

func prefixAllowed(prefix, tenantPrefix string) bool {
	if tenantPrefix == "" {
		return true
	}
	return prefix == tenantPrefix || strings.HasPrefix(prefix, tenantPrefix+"/")
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func ptrHTTPServer(h config.HTTPServer) *config.HTTPServer { return &h }
func ptrMCPServer(m config.MCPServer) *config.MCPServer    { return &m }
