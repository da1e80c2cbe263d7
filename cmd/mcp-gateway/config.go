package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/null-runner/mcp-gateway/pkg/config"
	"github.com/null-runner/mcp-gateway/pkg/configsource"
	"github.com/null-runner/mcp-gateway/pkg/stateloader"
)

// watcher is implemented by configsource.FileSource; matched with a
// type assertion in serve() since stateloader.Source doesn't require
// it (SQLite sources are polled by rebuild, never fs-watched).
type watcher interface {
	Watch(ctx context.Context, fn func()) error
}

// openSource picks the ConfigSource a run operates against: a SQLite
// database if --config-db is set, otherwise the YAML file at
// --config. closeFn is non-nil only for the SQLite source, which owns
// a database handle.
func openSource(yamlPath, sqlitePath string) (src stateloader.Source, closeFn func() error, err error) {
	if sqlitePath != "" {
		s, err := configsource.NewSQLiteSource(sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening config database %s: %w", sqlitePath, err)
		}
		return s, s.Close, nil
	}
	return configsource.New(yamlPath), nil, nil
}

func configCommand() *cobra.Command {
	var yamlPath, sqlitePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or validate the tenants/configs store",
	}
	cmd.PersistentFlags().StringVar(&yamlPath, "config", "gateway.yaml", "path to the tenants/configs YAML file")
	cmd.PersistentFlags().StringVar(&sqlitePath, "config-db", "", "path to a SQLite tenants/configs database (overrides --config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load every Config and Tenant and report validation errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, yamlPath, sqlitePath)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current tenants/configs set as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, yamlPath, sqlitePath)
		},
	})

	return cmd
}

func runConfigValidate(cmd *cobra.Command, yamlPath, sqlitePath string) error {
	ctx := cmd.Context()
	src, closeFn, err := openSource(yamlPath, sqlitePath)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	// FileSource/SQLiteSource already run config.ValidateStruct and
	// Config.Validate inside LoadConfigs, so a clean return here means
	// every Config is well-formed; LoadConfigs surfaces the first
	// failure as a wrapped error. Tenant entries are not validated on
	// load.
	configs, err := src.LoadConfigs(ctx)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	tenants, err := src.LoadTenants(ctx)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	for _, c := range configs {
		tenant, ok := tenants[c.Tenant]
		if !ok {
			return fmt.Errorf("validation failed: config %s references unknown tenant %q", c.Key(), c.Tenant)
		}
		if err := config.ValidateTenant(c, tenant); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tenant(s), %d config(s)\n", len(tenants), len(configs))
	return nil
}

func runConfigShow(cmd *cobra.Command, yamlPath, sqlitePath string) error {
	ctx := cmd.Context()
	src, closeFn, err := openSource(yamlPath, sqlitePath)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	configs, err := src.LoadConfigs(ctx)
	if err != nil {
		return err
	}
	tenants, err := src.LoadTenants(ctx)
	if err != nil {
		return err
	}

	out := struct {
		Tenants map[string]config.Tenant `json:"tenants"`
		Configs []config.Config          `json:"configs"`
	}{Tenants: tenants, Configs: configs}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
