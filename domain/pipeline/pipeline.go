// Package pipeline runs a complete load: nodes, then edges, then indexes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/domain/indexer"
	"github.com/emergent-company/ageload/domain/loader"
	"github.com/emergent-company/ageload/pkg/apperror"
	"github.com/emergent-company/ageload/pkg/logger"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		NewRunLog,
		func(reg *loader.Registry, idx *indexer.Indexer, runs *RunLog, log *slog.Logger) *Pipeline {
			return New(reg, idx, runs, log)
		},
	),
)

// DefaultFallback is used when Options.Fallback is empty.
const DefaultFallback = "batched"

// Strategies resolves a strategy by name.
type Strategies interface {
	Get(name string) (loader.Strategy, error)
}

// IndexCreator creates the id indexes of a graph.
type IndexCreator interface {
	CreateIndexes(ctx context.Context, graph string) (indexer.Result, error)
}

// Options controls a single Run.
type Options struct {
	Graph       string
	BatchSize   int
	Strategy    string
	Fallback    string
	SkipIndexes bool
}

// Report is the outcome of a Run.
type Report struct {
	RunID     uuid.UUID
	Graph     string
	Requested string
	Strategy  string
	FellBack  bool
	BatchSize int
	StartedAt time.Time
	Elapsed   time.Duration
	Nodes     loader.Summary
	Edges     loader.Summary
	Indexes   indexer.Result
	Env       Env
}

// Pipeline loads whole datasets with one strategy.
type Pipeline struct {
	strategies Strategies
	indexes    IndexCreator
	recorder   Recorder
	log        *slog.Logger

	now   func() time.Time
	newID func() uuid.UUID
	probe envProbe
}

// New creates a Pipeline. recorder may be nil.
func New(strategies Strategies, indexes IndexCreator, recorder Recorder, log *slog.Logger) *Pipeline {
	return &Pipeline{
		strategies: strategies,
		indexes:    indexes,
		recorder:   recorder,
		log:        log.With(logger.Scope("pipeline")),
		now:        time.Now,
		newID:      uuid.New,
		probe:      defaultProbe(),
	}
}

// Run loads ds into opts.Graph. Every node is committed before the first
// edge is attempted.
func (p *Pipeline) Run(ctx context.Context, ds dataset.Dataset, opts Options) (Report, error) {
	report := Report{
		RunID:     p.newID(),
		Graph:     opts.Graph,
		Requested: opts.Strategy,
		BatchSize: opts.BatchSize,
		StartedAt: p.now(),
	}
	report.Env = p.probe.capture(ctx, p.log)

	err := p.run(ctx, ds, opts, &report)
	report.Elapsed = p.now().Sub(report.StartedAt)

	if err != nil {
		p.log.Error("==================== LOAD FAILED ====================",
			slog.String("run_id", report.RunID.String()),
			slog.String("graph", opts.Graph),
			slog.String("strategy", report.Strategy),
			slog.String("code", apperror.CodeOf(err)),
			logger.Error(err),
		)
	} else {
		p.log.Info("load complete",
			slog.String("run_id", report.RunID.String()),
			slog.String("strategy", report.Strategy),
			slog.Bool("fell_back", report.FellBack),
			slog.Int("nodes_loaded", report.Nodes.Loaded),
			slog.Int("edges_loaded", report.Edges.Loaded),
			slog.Int("edges_skipped", report.Edges.Skipped),
			slog.Int("indexes_created", report.Indexes.Created),
			slog.Duration("elapsed", report.Elapsed),
		)
	}

	if p.recorder != nil {
		if rerr := p.recorder.Record(context.WithoutCancel(ctx), report, err); rerr != nil {
			p.log.Warn("could not record run", logger.Error(rerr))
		}
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context, ds dataset.Dataset, opts Options, report *Report) error {
	if len(ds.Nodes) == 0 {
		return apperror.ErrEmptyInput.WithMessage("dataset has no nodes")
	}
	if err := ds.Validate(); err != nil {
		return err
	}

	strategy, fellBack, err := p.resolve(opts)
	if err != nil {
		return err
	}
	report.Strategy = strategy.Name()
	report.FellBack = fellBack

	p.log.Info("loading dataset",
		slog.String("run_id", report.RunID.String()),
		slog.String("graph", opts.Graph),
		slog.String("strategy", strategy.Name()),
		slog.Int("batch_size", opts.BatchSize),
		slog.Int("nodes", len(ds.Nodes)),
		slog.Int("edges", len(ds.Edges)),
	)

	report.Nodes, err = strategy.LoadNodes(ctx, ds.Nodes, opts.Graph, opts.BatchSize)
	if err != nil {
		return fmt.Errorf("load nodes: %w", err)
	}

	if len(ds.Edges) > 0 {
		report.Edges, err = strategy.LoadEdges(ctx, ds.Edges, opts.Graph, opts.BatchSize)
		if err != nil {
			return fmt.Errorf("load edges: %w", err)
		}
	}

	if opts.SkipIndexes || p.indexes == nil {
		return nil
	}
	report.Indexes, err = p.indexes.CreateIndexes(ctx, opts.Graph)
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// resolve looks up the requested strategy and swaps in the fallback when the
// requested one cannot run here.
func (p *Pipeline) resolve(opts Options) (loader.Strategy, bool, error) {
	strategy, err := p.strategies.Get(opts.Strategy)
	if err != nil {
		return nil, false, err
	}
	err = loader.Available(strategy)
	if err == nil {
		return strategy, false, nil
	}
	if !errors.Is(err, apperror.ErrToolUnavailable) {
		return nil, false, err
	}

	fallback := opts.Fallback
	if fallback == "" {
		fallback = DefaultFallback
	}
	if fallback == opts.Strategy {
		return nil, false, err
	}
	p.log.Warn("strategy unavailable, falling back",
		slog.String("strategy", opts.Strategy),
		slog.String("fallback", fallback),
		logger.Error(err),
	)

	alt, ferr := p.strategies.Get(fallback)
	if ferr != nil {
		return nil, false, ferr
	}
	if ferr := loader.Available(alt); ferr != nil {
		return nil, false, ferr
	}
	return alt, true, nil
}
