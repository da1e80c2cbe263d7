// Package stateloader drives the rebuild half of the gateway: loading
// Configs from the admin store, calling state.BuildFrom, and holding
// the resulting generation behind an atomic pointer (spec §2, §4.2).
// It is the single writer of the gateway's live State; the Dispatcher
// is a reader through StateLoader.Current.
package stateloader

import (
	"context"
	"sync/atomic"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/log"
	"github.com/null-runner/mcp-gateway/pkg/notifier"
	"github.com/null-runner/mcp-gateway/pkg/state"
)

// Source fetches the current set of Configs and Tenants from wherever
// the admin collaborator persists them. The core treats this as an
// external boundary (spec §1's non-goals): it never depends on a
// specific store implementation.
type Source interface {
	LoadConfigs(ctx context.Context) ([]config.Config, error)
	LoadTenants(ctx context.Context) (map[string]config.Tenant, error)
}

// StateLoader owns the atomic *state.State reference. Rebuild and
// RebuildFromConfig are its only writers; Current is safe for any
// number of concurrent readers.
type StateLoader struct {
	source    Source
	transport state.TransportFactory
	notify    notifier.Notifier

	current atomic.Pointer[state.State]
}

// New builds a StateLoader. notify may be nil (no cluster fan-out).
func New(source Source, transport state.TransportFactory, notify notifier.Notifier) *StateLoader {
	l := &StateLoader{source: source, transport: transport, notify: notify}
	l.current.Store(&state.State{Runtime: map[string]*state.Runtime{}})
	return l
}

// Current returns the live State snapshot; never nil.
func (l *StateLoader) Current() *state.State { return l.current.Load() }

// Rebuild loads fresh Configs/Tenants from the source, builds the next
// State generation reusing transports from the current one, and
// atomically publishes it. Per-prefix build failures are logged, never
// fatal (spec §4.2's failure model).
func (l *StateLoader) Rebuild(ctx context.Context) error {
	configs, err := l.source.LoadConfigs(ctx)
	if err != nil {
		return err
	}
	tenants, err := l.source.LoadTenants(ctx)
	if err != nil {
		return err
	}

	old := l.current.Load()
	next, errs := state.BuildFrom(ctx, configs, tenants, old, l.transport)
	for _, e := range errs {
		log.Warnf(nil, "state rebuild: %v", e)
	}
	l.current.Store(next)

	log.Logf("state rebuilt: %d configs, %d runtimes, %d total tools, %d missing tools",
		len(configs), len(next.Runtime), next.Metrics.TotalTools, next.Metrics.MissingTools)
	return nil
}

// RebuildFromConfig is the path a Notifier's inline payload takes
// (spec §4.5): it re-reads the source's Configs, replaces the one with
// the pushed Config's (tenant, name) key or appends it when absent, and
// builds from that set. The pushed Config is not written back to the
// source. A nil cfg falls back to Rebuild.
func (l *StateLoader) RebuildFromConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return l.Rebuild(ctx)
	}
	configs, err := l.source.LoadConfigs(ctx)
	if err != nil {
		return err
	}
	merged := replaceOrAppend(configs, *cfg)
	tenants, err := l.source.LoadTenants(ctx)
	if err != nil {
		return err
	}

	old := l.current.Load()
	next, errs := state.BuildFrom(ctx, merged, tenants, old, l.transport)
	for _, e := range errs {
		log.Warnf(nil, "state rebuild: %v", e)
	}
	l.current.Store(next)
	return nil
}

func replaceOrAppend(configs []config.Config, cfg config.Config) []config.Config {
	for i, c := range configs {
		if c.Key() == cfg.Key() {
			out := append([]config.Config{}, configs...)
			out[i] = cfg
			return out
		}
	}
	return append(append([]config.Config{}, configs...), cfg)
}

// WatchNotifier subscribes to the notifier (if any) and rebuilds on
// every update until ctx is canceled (spec §2's config-update control
// flow). Intended to run in its own goroutine.
func (l *StateLoader) WatchNotifier(ctx context.Context) {
	if l.notify == nil || !l.notify.CanReceive() {
		return
	}
	ch, err := l.notify.Watch()
	if err != nil {
		log.Warnf(nil, "state loader: watching notifier: %v", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			if err := l.RebuildFromConfig(ctx, cfg); err != nil {
				log.Warnf(nil, "state loader: rebuild from notifier update failed: %v", err)
			}
		}
	}
}
