package configsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSourceLoadConfigsAndTenants(t *testing.T) {
	path := writeYAML(t, `
tenants:
  - id: t1
    prefix: /t1
configs:
  - name: c1
    tenant: t1
    routers:
      - prefix: /t1/svc
        server: svc
    http_servers:
      - name: svc
        url: http://backend
        tools: [ping]
    tools:
      - name: ping
        method: GET
        path: /ping
`)
	src := New(path)

	configs, err := src.LoadConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "c1", configs[0].Name)

	tenants, err := src.LoadTenants(context.Background())
	require.NoError(t, err)
	require.Contains(t, tenants, "t1")
	assert.Equal(t, "/t1", tenants["t1"].Prefix)
}

func TestFileSourceValidatesConfigs(t *testing.T) {
	path := writeYAML(t, `
configs:
  - name: broken
    tenant: t1
    routers:
      - prefix: /t1/svc
        server: missing-server
`)
	src := New(path)

	_, err := src.LoadConfigs(context.Background())
	assert.Error(t, err)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := New(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := src.LoadConfigs(context.Background())
	assert.Error(t, err)
}

func TestFileSourceReReadsOnEveryLoad(t *testing.T) {
	path := writeYAML(t, `configs: []`)
	src := New(path)

	configs, err := src.LoadConfigs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, configs)

	require.NoError(t, os.WriteFile(path, []byte(`
configs:
  - name: c1
    tenant: t1
`), 0o644))

	configs, err = src.LoadConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "c1", configs[0].Name)
}
