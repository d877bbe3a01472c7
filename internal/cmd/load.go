package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/domain/loader"
	"github.com/emergent-company/ageload/domain/pipeline"
	"github.com/emergent-company/ageload/internal/config"
	"github.com/emergent-company/ageload/pkg/apperror"
	"github.com/emergent-company/ageload/pkg/logger"
)

var loadFlags struct {
	profileFlags
	nodes    string
	edges    string
	generate bool
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk-load a dataset into the graph",
	Long: `Load nodes.csv and edges.csv (or a freshly generated dataset) into the
graph, then create an index on the id property of every vertex label.

Strategies:
  direct    one CREATE statement per node or edge, one commit per chunk
  batched   one multi-clause statement per chunk
  staged    COPY into temporary tables, then page through them
  agload    write per-label CSV files and run the age_load tool

If the chosen strategy needs tooling that is not installed, the --fallback
strategy is used instead.

Examples:
  ageload load
  ageload load --strategy staged --batch-size 1000
  ageload load --generate --persons 5000 --density 0.01
  ageload load --strategy agload --keep-files --metrics-addr :9102`,
	RunE: runLoad,
}

func init() {
	addProfileFlags(loadCmd, &loadFlags.profileFlags)

	f := loadCmd.Flags()
	f.StringVar(&loadFlags.nodes, "nodes", dataset.NodesFile, "nodes CSV file")
	f.StringVar(&loadFlags.edges, "edges", dataset.EdgesFile, "edges CSV file")
	f.BoolVar(&loadFlags.generate, "generate", false, "generate the dataset in-process instead of reading files")

	f.String("strategy", "batched", "load strategy: direct, batched, staged or agload")
	f.String("fallback", pipeline.DefaultFallback, "strategy used when --strategy is unavailable")
	f.Int("batch-size", 5000, "items per chunk")
	f.String("binary", "age_load", "age_load executable (agload strategy)")
	f.String("work-dir", "", "directory for agload CSV files (default: OS temp dir)")
	f.Bool("keep-files", false, "keep agload CSV files after the run")
	f.Bool("skip-indexes", false, "do not create id indexes after loading")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while loading")

	for _, name := range []string{"strategy", "fallback", "batch-size", "binary", "work-dir", "keep-files", "skip-indexes", "metrics-addr"} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	ds, err := loadDataset(cmd)
	if err != nil {
		return err
	}

	var (
		cfg    *config.Config
		pipe   *pipeline.Pipeline
		log    *slog.Logger
	)
	stop, err := startApp(ctx, &cfg, &pipe, &log)
	if err != nil {
		return err
	}
	defer stop()

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, log)
		defer shutdown()
	}

	report, err := pipe.Run(ctx, ds, pipeline.Options{
		Graph:       cfg.Graph.Name,
		BatchSize:   cfg.Loader.BatchSize,
		Strategy:    cfg.Loader.Strategy,
		Fallback:    cfg.Loader.Fallback,
		SkipIndexes: cfg.Loader.SkipIndexes,
	})
	if err != nil {
		return withSetupHint(err)
	}
	return renderLoadReport(cmd.OutOrStdout(), report)
}

// withSetupHint points at the setup command when the graph is missing.
func withSetupHint(err error) error {
	if errors.Is(err, apperror.ErrGraphNotFound) {
		return fmt.Errorf("%w (run `ageload setup` first)", err)
	}
	return err
}

func loadDataset(cmd *cobra.Command) (dataset.Dataset, error) {
	if loadFlags.generate {
		p, err := loadFlags.resolve(cmd)
		if err != nil {
			return dataset.Dataset{}, err
		}
		ds, _, err := buildDataset(p)
		return ds, err
	}
	return dataset.ReadFiles(loadFlags.nodes, loadFlags.edges)
}

// serveMetrics exposes the default Prometheus registry until the returned
// function is called.
func serveMetrics(addr string, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logger.Error(err))
		}
	}()
	log.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func renderLoadReport(w io.Writer, r pipeline.Report) error {
	strategy := r.Strategy
	if r.FellBack {
		strategy = fmt.Sprintf("%s (fallback from %s)", r.Strategy, r.Requested)
	}
	fmt.Fprintf(w, "Run %s: graph %s, strategy %s, batch size %d\n\n", r.RunID, r.Graph, strategy, r.BatchSize)

	table := newTable(w, "Phase", "Total", "Loaded", "Skipped", "Chunks", "Elapsed", "Rate/s")
	for _, sum := range []loader.Summary{r.Nodes, r.Edges} {
		if sum.Kind == "" {
			continue
		}
		table.Append(string(sum.Kind),
			fmt.Sprint(sum.Total), fmt.Sprint(sum.Loaded), fmt.Sprint(sum.Skipped), fmt.Sprint(sum.Chunks),
			formatDuration(sum.Elapsed), fmt.Sprintf("%.0f", sum.Rate()))
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nIndexes: %d created, %d skipped, %d failed\n", r.Indexes.Created, r.Indexes.Skipped, r.Indexes.Failed())
	for _, warn := range r.Indexes.Warnings {
		fmt.Fprintf(w, "  warning: %s: %s\n", warn.Label, warn.Message)
	}
	for _, reason := range r.Edges.SkipReasons {
		fmt.Fprintf(w, "  skipped: %s\n", reason)
	}
	fmt.Fprintf(w, "Host: %s %s/%s, %d CPUs, %s available of %s\n",
		r.Env.GoVersion, r.Env.OS, r.Env.Arch, r.Env.CPUs,
		formatBytes(r.Env.AvailableMemory), formatBytes(r.Env.TotalMemory))
	fmt.Fprintf(w, "Total time: %s\n", formatDuration(r.Elapsed))
	return nil
}
