// Package loader bulk-loads datasets into an Apache AGE graph.
//
// Every strategy follows the same contract. Nodes load in per-label chunks,
// one commit per chunk, and the first failing chunk aborts the call with a
// ChunkLoadError. Edges load in chunks too, but a failing edge is skipped and
// counted rather than aborting. Progress is reported after every commit.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/pkg/apperror"
	"github.com/emergent-company/ageload/pkg/logger"
)

// Kind says whether a summary or progress update is about nodes or edges.
type Kind string

const (
	KindNodes Kind = "nodes"
	KindEdges Kind = "edges"
)

// Strategy is one way of moving a dataset into the graph.
type Strategy interface {
	Name() string
	LoadNodes(ctx context.Context, nodes []dataset.Node, graph string, batchSize int) (Summary, error)
	LoadEdges(ctx context.Context, edges []dataset.Edge, graph string, batchSize int) (Summary, error)
}

// Checker is implemented by strategies that depend on external tooling.
type Checker interface {
	Available() error
}

// Available returns nil when s can run in this environment.
func Available(s Strategy) error {
	if c, ok := s.(Checker); ok {
		return c.Available()
	}
	return nil
}

// Summary is the outcome of one LoadNodes or LoadEdges call.
type Summary struct {
	Kind        Kind
	Strategy    string
	Total       int
	Loaded      int
	Skipped     int
	Chunks      int
	Elapsed     time.Duration
	SkipReasons []string
}

// Rate returns loaded items per second.
func (s Summary) Rate() float64 {
	return perSecond(s.Loaded, s.Elapsed)
}

// ChunkLoadError reports the chunk that aborted a node load. Chunk is
// 1-based and counts every chunk of the call, across labels.
type ChunkLoadError struct {
	Kind  Kind
	Label string
	Chunk int
	Cause error
}

func (e *ChunkLoadError) Error() string {
	return fmt.Sprintf("load %s: chunk %d (label %s) failed: %v", e.Kind, e.Chunk, e.Label, e.Cause)
}

func (e *ChunkLoadError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, apperror.ErrChunkLoad) match.
func (e *ChunkLoadError) Is(target error) bool {
	return target == apperror.ErrChunkLoad
}

// Options holds what every strategy needs.
type Options struct {
	Store    database.Store
	Log      *slog.Logger
	Metrics  *Metrics
	Progress Reporter
}

// base carries the shared plumbing of the statement-driven strategies.
type base struct {
	name     string
	store    database.Store
	log      *slog.Logger
	metrics  *Metrics
	progress Reporter
}

func newBase(name string, opts Options) base {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return base{
		name:     name,
		store:    opts.Store,
		log:      log.With(logger.Scope("loader." + name)),
		metrics:  opts.Metrics,
		progress: opts.Progress,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) tracker(kind Kind, total int) *tracker {
	return newTracker(kind, b.name, total, b.progress, b.metrics)
}

func checkInput(n, batchSize int) error {
	if n == 0 {
		return apperror.ErrEmptyInput
	}
	if batchSize < 1 {
		return apperror.ErrInvalidBatchSize.WithDetails(map[string]any{"batch_size": batchSize})
	}
	return nil
}

// fatalErr returns the error that must abort an edge load, or nil when err
// only affects the records being written.
func fatalErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, apperror.ErrGraphNotFound) {
		return err
	}
	return nil
}

// groupNodes partitions nodes by label, keeping first-seen label order and the
// relative order within each label.
func groupNodes(nodes []dataset.Node) ([]string, map[string][]dataset.Node) {
	var order []string
	groups := make(map[string][]dataset.Node)
	for _, n := range nodes {
		if _, ok := groups[n.Label]; !ok {
			order = append(order, n.Label)
		}
		groups[n.Label] = append(groups[n.Label], n)
	}
	return order, groups
}

func groupEdges(edges []dataset.Edge) ([]string, map[string][]dataset.Edge) {
	var order []string
	groups := make(map[string][]dataset.Edge)
	for _, e := range edges {
		if _, ok := groups[e.Label]; !ok {
			order = append(order, e.Label)
		}
		groups[e.Label] = append(groups[e.Label], e)
	}
	return order, groups
}

// chunks splits n items into [start, end) windows of at most size.
func chunks(n, size int) [][2]int {
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
	}
	return out
}

// inTx runs write in its own transaction and commits it.
func inTx(ctx context.Context, sess database.Session, write func(tx database.Tx) error) error {
	tx, err := sess.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := write(tx); err != nil {
		return err
	}
	return tx.Commit()
}
