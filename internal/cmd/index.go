package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/emergent-company/ageload/domain/indexer"
	"github.com/emergent-company/ageload/internal/config"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Create id indexes for every vertex label",
	Long: `Create an index on the id property of each vertex label in the graph.
Labels that already have one are skipped, so the command is safe to re-run.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var (
		cfg *config.Config
		idx *indexer.Indexer
	)
	stop, err := startApp(ctx, &cfg, &idx)
	if err != nil {
		return err
	}
	defer stop()

	res, err := idx.CreateIndexes(ctx, cfg.Graph.Name)
	if err != nil {
		return err
	}
	return renderIndexResult(cmd.OutOrStdout(), cfg.Graph.Name, res)
}

func renderIndexResult(w io.Writer, graph string, res indexer.Result) error {
	table := newTable(w, "Graph", "Created", "Skipped", "Failed")
	table.Append(graph, fmt.Sprint(res.Created), fmt.Sprint(res.Skipped), fmt.Sprint(res.Failed()))
	if err := table.Render(); err != nil {
		return err
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", warn.Label, warn.Message)
	}
	return nil
}
