// Command mcp-gateway runs the multi-tenant MCP gateway: it loads
// Configs/Tenants from a YAML file or a SQLite database, builds the
// routing State, and serves every tenant's prefixes over one HTTP
// front door.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "mcp-gateway",
		Short: "Run the multi-tenant MCP gateway",
	}
	root.AddCommand(serveCommand())
	root.AddCommand(configCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
