package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emergent-company/ageload/internal/config"
	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/internal/migrate"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Enable the AGE extension and create the graph",
	Long: `Apply the embedded migrations (CREATE EXTENSION age, run log table) and
create the target graph if it does not exist yet.

Examples:
  ageload setup
  ageload setup --graph social`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var (
		cfg      *config.Config
		client   *database.Client
		migrator *migrate.Migrator
	)
	stop, err := startApp(ctx, &cfg, &client, &migrator)
	if err != nil {
		return err
	}
	defer stop()

	if err := migrator.Up(ctx); err != nil {
		return err
	}
	version, err := migrator.Version(ctx)
	if err != nil {
		return err
	}

	created, err := client.EnsureGraph(ctx, cfg.Graph.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Schema version: %d\n", version)
	if created {
		fmt.Fprintf(out, "Graph %q created\n", cfg.Graph.Name)
	} else {
		fmt.Fprintf(out, "Graph %q already exists\n", cfg.Graph.Name)
	}
	return nil
}
