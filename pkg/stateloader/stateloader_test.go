package stateloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

type fakeSource struct {
	configs []config.Config
	tenants map[string]config.Tenant
	err     error
}

func (f *fakeSource) LoadConfigs(context.Context) ([]config.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.configs, nil
}

func (f *fakeSource) LoadTenants(context.Context) (map[string]config.Tenant, error) {
	return f.tenants, nil
}

func baseConfig(name string) config.Config {
	return config.Config{
		Name:   name,
		Tenant: "t1",
		Routers: []config.Router{
			{Prefix: "/t1/" + name, Server: "svc"},
		},
		HTTPServers: []config.HTTPServer{
			{Name: "svc", URL: "http://backend", Tools: []string{"ping"}},
		},
		Tools: []config.Tool{
			{Name: "ping", Method: "GET", Path: "/ping"},
		},
	}
}

func TestNewStateLoaderStartsWithEmptyState(t *testing.T) {
	l := New(&fakeSource{}, nil, nil)
	st := l.Current()
	require.NotNil(t, st)
	assert.Empty(t, st.Runtime)
}

func TestRebuildPublishesNewState(t *testing.T) {
	src := &fakeSource{
		configs: []config.Config{baseConfig("svc")},
		tenants: map[string]config.Tenant{"t1": {ID: "t1", Prefix: "/t1"}},
	}
	l := New(src, nil, nil)

	require.NoError(t, l.Rebuild(context.Background()))

	st := l.Current()
	assert.Contains(t, st.Runtime, "/t1/svc")
}

func TestRebuildFromConfigMergesIntoSourceSet(t *testing.T) {
	src := &fakeSource{
		configs: []config.Config{baseConfig("one")},
		tenants: map[string]config.Tenant{"t1": {ID: "t1", Prefix: "/t1"}},
	}
	l := New(src, nil, nil)
	require.NoError(t, l.Rebuild(context.Background()))

	pushed := baseConfig("two")
	require.NoError(t, l.RebuildFromConfig(context.Background(), &pushed))

	st := l.Current()
	assert.Contains(t, st.Runtime, "/t1/one")
	assert.Contains(t, st.Runtime, "/t1/two")
}

func TestRebuildFromConfigReplacesSameKey(t *testing.T) {
	cfg := baseConfig("one")
	src := &fakeSource{
		configs: []config.Config{cfg},
		tenants: map[string]config.Tenant{"t1": {ID: "t1", Prefix: "/t1"}},
	}
	l := New(src, nil, nil)
	require.NoError(t, l.Rebuild(context.Background()))

	updated := cfg
	updated.Routers = []config.Router{{Prefix: "/t1/renamed", Server: "svc"}}
	require.NoError(t, l.RebuildFromConfig(context.Background(), &updated))

	st := l.Current()
	assert.NotContains(t, st.Runtime, "/t1/one")
	assert.Contains(t, st.Runtime, "/t1/renamed")
}

func TestReplaceOrAppend(t *testing.T) {
	a := config.Config{Name: "a", Tenant: "t1"}
	b := config.Config{Name: "b", Tenant: "t1"}
	updated := config.Config{Name: "a", Tenant: "t1", Routers: []config.Router{{Prefix: "/x"}}}

	out := replaceOrAppend([]config.Config{a, b}, updated)
	require.Len(t, out, 2)
	assert.Equal(t, updated.Routers, out[0].Routers)

	out = replaceOrAppend([]config.Config{a, b}, config.Config{Name: "c", Tenant: "t1"})
	assert.Len(t, out, 3)
}
