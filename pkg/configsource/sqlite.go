package configsource

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	// registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/null-runner/mcp-gateway/pkg/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// configRow is the table row a Config document round-trips through:
// the nested Routers/HTTPServers/MCPServers/Tools shape doesn't map
// cleanly onto normalized tables, so it's stored as one JSON blob per
// (tenant, name), the same way the teacher's CatalogServer snapshot
// column carries a nested JSON payload (pkg/db/catalog.go).
type configRow struct {
	Tenant string `db:"tenant"`
	Name   string `db:"name"`
	Doc    string `db:"doc"`
}

type tenantRow struct {
	ID     string `db:"id"`
	Prefix string `db:"prefix"`
}

// SQLiteSource is a stateloader.Source backed by a local SQLite
// database, standing in for the REST admin API's CRUD store (spec's
// external-collaborator non-goal): an operator or admin tool writes
// rows into the configs/tenants tables directly, and every Rebuild
// reads the current table contents.
type SQLiteSource struct {
	db *sqlx.DB
}

// NewSQLiteSource opens (creating if necessary) the SQLite database at
// path and runs its migrations, grounded on the teacher's own
// sqlx+golang-migrate wiring (pkg/db/db.go).
func NewSQLiteSource(path string) (*SQLiteSource, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("opening config database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	migDriver, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("loading config migrations: %w", err)
	}
	driver, err := msqlite.WithInstance(sqlDB, &msqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("building migration driver: %w", err)
	}
	mig, err := migrate.NewWithInstance("iofs", migDriver, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("building migrator: %w", err)
	}
	if err := mig.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("running config migrations: %w", err)
	}

	return &SQLiteSource{db: sqlx.NewDb(sqlDB, "sqlite")}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteSource) Close() error { return s.db.Close() }

// LoadConfigs returns every Config currently stored, decoded from its
// JSON document column.
func (s *SQLiteSource) LoadConfigs(ctx context.Context) ([]config.Config, error) {
	var rows []configRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT tenant, name, doc FROM configs`); err != nil {
		return nil, fmt.Errorf("loading configs: %w", err)
	}

	out := make([]config.Config, 0, len(rows))
	for _, r := range rows {
		var cfg config.Config
		if err := json.Unmarshal([]byte(r.Doc), &cfg); err != nil {
			return nil, fmt.Errorf("decoding config %s/%s: %w", r.Tenant, r.Name, err)
		}
		if err := config.ValidateStruct(cfg); err != nil {
			return nil, fmt.Errorf("config %s/%s: %w", r.Tenant, r.Name, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config %s/%s: %w", r.Tenant, r.Name, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadTenants returns every registered Tenant, keyed by ID.
func (s *SQLiteSource) LoadTenants(ctx context.Context) (map[string]config.Tenant, error) {
	var rows []tenantRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, prefix FROM tenants`); err != nil {
		return nil, fmt.Errorf("loading tenants: %w", err)
	}

	out := make(map[string]config.Tenant, len(rows))
	for _, r := range rows {
		out[r.ID] = config.Tenant{ID: r.ID, Prefix: r.Prefix}
	}
	return out, nil
}

// PutConfig upserts a Config document, for admin tooling that writes
// directly against the database rather than through a YAML file.
func (s *SQLiteSource) PutConfig(ctx context.Context, cfg config.Config) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config %s: %w", cfg.Key(), err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO configs (tenant, name, doc) VALUES ($1, $2, $3)
		 ON CONFLICT(tenant, name) DO UPDATE SET doc = excluded.doc`,
		cfg.Tenant, cfg.Name, string(doc))
	if err != nil {
		return fmt.Errorf("storing config %s: %w", cfg.Key(), err)
	}
	return nil
}

// PutTenant upserts a Tenant registration.
func (s *SQLiteSource) PutTenant(ctx context.Context, t config.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, prefix) VALUES ($1, $2)
		 ON CONFLICT(id) DO UPDATE SET prefix = excluded.prefix`,
		t.ID, t.Prefix)
	if err != nil {
		return fmt.Errorf("storing tenant %s: %w", t.ID, err)
	}
	return nil
}
