// Package configsource provides a filesystem-backed implementation of
// stateloader.Source, grounded on the teacher's own YAML
// config-reading idiom (pkg/client/config.go). It stands in for the
// REST admin API's CRUD store (spec §1's non-goal, external
// collaborator): a single YAML document listing every tenant's
// Configs, reloaded from disk on every Rebuild.
package configsource

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

// document is the on-disk shape: a flat list of tenants and configs,
// field names matching §3's wire format verbatim.
type document struct {
	Tenants []config.Tenant `yaml:"tenants"`
	Configs []config.Config `yaml:"configs"`
}

// FileSource reads Configs/Tenants from a single YAML file at path.
// LoadConfigs re-reads the file on every call so an operator's edit is
// picked up on the next reload; LoadTenants does not read the file and
// returns the tenants from the most recent LoadConfigs read (none
// before the first one).
type FileSource struct {
	path string

	mu   sync.Mutex
	last document
}

// New builds a FileSource bound to path.
func New(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) load() (document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return document{}, fmt.Errorf("reading config file %q: %w", f.path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parsing config file %q: %w", f.path, err)
	}
	for _, c := range doc.Configs {
		if err := config.ValidateStruct(c); err != nil {
			return document{}, fmt.Errorf("config %q: %w", c.Key(), err)
		}
		if err := c.Validate(); err != nil {
			return document{}, fmt.Errorf("config %q: %w", c.Key(), err)
		}
	}

	f.mu.Lock()
	f.last = doc
	f.mu.Unlock()
	return doc, nil
}

func (f *FileSource) LoadConfigs(_ context.Context) ([]config.Config, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	return doc.Configs, nil
}

func (f *FileSource) LoadTenants(_ context.Context) (map[string]config.Tenant, error) {
	f.mu.Lock()
	doc := f.last
	f.mu.Unlock()

	out := make(map[string]config.Tenant, len(doc.Tenants))
	for _, t := range doc.Tenants {
		out[t.ID] = t
	}
	return out, nil
}
