package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/emergent-company/ageload/pkg/logger"
)

// Run is one row of the ageload_runs table.
type Run struct {
	bun.BaseModel `bun:"table:ageload_runs,alias:r"`

	RunID          uuid.UUID `bun:"run_id,pk,type:uuid"`
	Graph          string    `bun:"graph,notnull"`
	Strategy       string    `bun:"strategy,notnull"`
	BatchSize      int       `bun:"batch_size,notnull"`
	NodesLoaded    int64     `bun:"nodes_loaded,notnull"`
	NodesSkipped   int64     `bun:"nodes_skipped,notnull"`
	EdgesLoaded    int64     `bun:"edges_loaded,notnull"`
	EdgesSkipped   int64     `bun:"edges_skipped,notnull"`
	IndexesCreated int       `bun:"indexes_created,notnull"`
	ElapsedMs      int64     `bun:"elapsed_ms,notnull"`
	Error          *string   `bun:"error"`
	StartedAt      time.Time `bun:"started_at,notnull"`
	FinishedAt     time.Time `bun:"finished_at,notnull"`
}

// Recorder persists the outcome of a run.
type Recorder interface {
	Record(ctx context.Context, r Report, runErr error) error
}

// RunLog records runs in the ageload_runs table created by the migrations.
type RunLog struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRunLog creates a new RunLog.
func NewRunLog(db *bun.DB, log *slog.Logger) *RunLog {
	return &RunLog{
		db:  db,
		log: log.With(logger.Scope("pipeline.runlog")),
	}
}

// Record inserts one row describing r.
func (l *RunLog) Record(ctx context.Context, r Report, runErr error) error {
	row := newRun(r, runErr)
	if _, err := l.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	l.log.Debug("run recorded", slog.String("run_id", r.RunID.String()))
	return nil
}

func newRun(r Report, runErr error) *Run {
	row := &Run{
		RunID:          r.RunID,
		Graph:          r.Graph,
		Strategy:       r.Strategy,
		BatchSize:      r.BatchSize,
		NodesLoaded:    int64(r.Nodes.Loaded),
		NodesSkipped:   int64(r.Nodes.Skipped),
		EdgesLoaded:    int64(r.Edges.Loaded),
		EdgesSkipped:   int64(r.Edges.Skipped),
		IndexesCreated: r.Indexes.Created,
		ElapsedMs:      r.Elapsed.Milliseconds(),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.StartedAt.Add(r.Elapsed),
	}
	if runErr != nil {
		msg := runErr.Error()
		row.Error = &msg
	}
	return row
}
