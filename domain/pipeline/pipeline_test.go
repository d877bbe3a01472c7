package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/domain/indexer"
	"github.com/emergent-company/ageload/domain/loader"
	"github.com/emergent-company/ageload/pkg/apperror"
)

// fakeStrategy records the order of calls it receives.
type fakeStrategy struct {
	name        string
	unavailable error
	nodeErr     error
	edgeErr     error
	calls       *[]string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Available() error { return f.unavailable }

func (f *fakeStrategy) LoadNodes(ctx context.Context, nodes []dataset.Node, graph string, batchSize int) (loader.Summary, error) {
	*f.calls = append(*f.calls, f.name+":nodes")
	if f.nodeErr != nil {
		return loader.Summary{}, f.nodeErr
	}
	return loader.Summary{Kind: loader.KindNodes, Strategy: f.name, Total: len(nodes), Loaded: len(nodes), Chunks: 1}, nil
}

func (f *fakeStrategy) LoadEdges(ctx context.Context, edges []dataset.Edge, graph string, batchSize int) (loader.Summary, error) {
	*f.calls = append(*f.calls, f.name+":edges")
	if f.edgeErr != nil {
		return loader.Summary{}, f.edgeErr
	}
	return loader.Summary{Kind: loader.KindEdges, Strategy: f.name, Total: len(edges), Loaded: len(edges) - 1, Skipped: 1, Chunks: 1}, nil
}

type fakeIndexer struct {
	calls *[]string
	err   error
}

func (f *fakeIndexer) CreateIndexes(ctx context.Context, graph string) (indexer.Result, error) {
	*f.calls = append(*f.calls, "indexes")
	return indexer.Result{Created: 4}, f.err
}

type fakeRecorder struct {
	reports []Report
	errs    []error
	fail    error
}

func (f *fakeRecorder) Record(ctx context.Context, r Report, runErr error) error {
	f.reports = append(f.reports, r)
	f.errs = append(f.errs, runErr)
	return f.fail
}

type fixture struct {
	calls    []string
	agload   *fakeStrategy
	batched  *fakeStrategy
	indexer  *fakeIndexer
	recorder *fakeRecorder
	logs     *bytes.Buffer
	pipeline *Pipeline
}

func newFixture() *fixture {
	f := &fixture{logs: &bytes.Buffer{}}
	f.agload = &fakeStrategy{name: "agload", calls: &f.calls}
	f.batched = &fakeStrategy{name: "batched", calls: &f.calls}
	f.indexer = &fakeIndexer{calls: &f.calls}
	f.recorder = &fakeRecorder{}

	log := slog.New(slog.NewTextHandler(f.logs, nil))
	f.pipeline = New(loader.NewRegistry(f.agload, f.batched), f.indexer, f.recorder, log)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ticks := 0
	f.pipeline.now = func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks-1) * time.Second)
	}
	f.pipeline.newID = func() uuid.UUID { return uuid.MustParse("6f1c2d7e-0000-4000-8000-000000000001") }
	f.pipeline.probe = envProbe{
		getMemStats: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 8 << 30, Available: 4 << 30}, nil
		},
		getLoadAvg: func(context.Context) (*load.AvgStat, error) {
			return &load.AvgStat{Load1: 0.5}, nil
		},
		getCPUCount: func(context.Context, bool) (int, error) { return 4, nil },
	}
	return f
}

func sampleDataset() dataset.Dataset {
	return dataset.Dataset{
		Nodes: []dataset.Node{
			{ID: 1, Label: "Person", Properties: map[string]any{"name": "Person_0"}},
			{ID: 2, Label: "Company", Properties: map[string]any{"name": "Company_0"}},
		},
		Edges: []dataset.Edge{
			{ID: 1, Label: "WORKS_AT", FromID: 1, ToID: 2, FromLabel: "Person", ToLabel: "Company"},
			{ID: 2, Label: "WORKS_AT", FromID: 9, ToID: 2, FromLabel: "Person", ToLabel: "Company"},
		},
	}
}

func TestRun_PhaseOrder(t *testing.T) {
	f := newFixture()

	report, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 100, Strategy: "batched"})
	require.NoError(t, err)

	assert.Equal(t, []string{"batched:nodes", "batched:edges", "indexes"}, f.calls)
	assert.Equal(t, "batched", report.Strategy)
	assert.False(t, report.FellBack)
	assert.Equal(t, 2, report.Nodes.Loaded)
	assert.Equal(t, 1, report.Edges.Loaded)
	assert.Equal(t, 1, report.Edges.Skipped)
	assert.Equal(t, 4, report.Indexes.Created)
	assert.Equal(t, time.Second, report.Elapsed)
	assert.Equal(t, "6f1c2d7e-0000-4000-8000-000000000001", report.RunID.String())
	assert.Equal(t, 4, report.Env.CPUs)
	assert.Equal(t, uint64(8<<30), report.Env.TotalMemory)

	require.Len(t, f.recorder.reports, 1)
	assert.NoError(t, f.recorder.errs[0])
}

func TestRun_SkipIndexes(t *testing.T) {
	f := newFixture()

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "batched", SkipIndexes: true})
	require.NoError(t, err)
	assert.NotContains(t, f.calls, "indexes")
}

func TestRun_NoEdges(t *testing.T) {
	f := newFixture()
	ds := sampleDataset()
	ds.Edges = nil

	_, err := f.pipeline.Run(context.Background(), ds, Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	require.NoError(t, err)
	assert.Equal(t, []string{"batched:nodes", "indexes"}, f.calls)
}

func TestRun_FallsBackWhenToolMissing(t *testing.T) {
	f := newFixture()
	f.agload.unavailable = apperror.ErrToolUnavailable.WithMessage("age_load not found")

	report, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "agload"})
	require.NoError(t, err)

	assert.True(t, report.FellBack)
	assert.Equal(t, "agload", report.Requested)
	assert.Equal(t, "batched", report.Strategy)
	assert.Equal(t, []string{"batched:nodes", "batched:edges", "indexes"}, f.calls)
	assert.Contains(t, f.logs.String(), "falling back")
}

func TestRun_FallbackSameAsRequested(t *testing.T) {
	f := newFixture()
	f.agload.unavailable = apperror.ErrToolUnavailable

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "agload", Fallback: "agload"})
	assert.ErrorIs(t, err, apperror.ErrToolUnavailable)
	assert.Empty(t, f.calls)
}

func TestRun_UnknownStrategy(t *testing.T) {
	f := newFixture()

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "parallel"})
	assert.ErrorIs(t, err, apperror.ErrUnknownStrategy)
	assert.Empty(t, f.calls)
}

func TestRun_EmptyAndInvalidInput(t *testing.T) {
	f := newFixture()

	_, err := f.pipeline.Run(context.Background(), dataset.Dataset{}, Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	assert.ErrorIs(t, err, apperror.ErrEmptyInput)

	ds := sampleDataset()
	ds.Nodes[1].ID = 1
	_, err = f.pipeline.Run(context.Background(), ds, Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	assert.ErrorIs(t, err, apperror.ErrInvalidDataset)
	assert.Empty(t, f.calls)
}

func TestRun_NodeFailureStopsBeforeEdges(t *testing.T) {
	f := newFixture()
	chunkErr := &loader.ChunkLoadError{Kind: loader.KindNodes, Label: "Person", Chunk: 3, Cause: errors.New("boom")}
	f.batched.nodeErr = chunkErr

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrChunkLoad)

	var cle *loader.ChunkLoadError
	require.ErrorAs(t, err, &cle)
	assert.Equal(t, 3, cle.Chunk)

	assert.Equal(t, []string{"batched:nodes"}, f.calls)
	assert.Contains(t, f.logs.String(), "LOAD FAILED")

	require.Len(t, f.recorder.errs, 1)
	assert.ErrorIs(t, f.recorder.errs[0], apperror.ErrChunkLoad)
}

func TestRun_IndexFailure(t *testing.T) {
	f := newFixture()
	f.indexer.err = apperror.ErrGraphNotFound

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	assert.ErrorIs(t, err, apperror.ErrGraphNotFound)
}

func TestRun_RecorderFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.recorder.fail = errors.New("relation \"ageload_runs\" does not exist")

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	require.NoError(t, err)
	assert.Contains(t, f.logs.String(), "could not record run")
}

func TestRun_WithoutRecorder(t *testing.T) {
	f := newFixture()
	f.pipeline.recorder = nil

	_, err := f.pipeline.Run(context.Background(), sampleDataset(), Options{Graph: "g", BatchSize: 10, Strategy: "batched"})
	require.NoError(t, err)
}

func TestEnvCapture_Degrades(t *testing.T) {
	probe := envProbe{
		getMemStats: func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc") },
		getLoadAvg:  func(context.Context) (*load.AvgStat, error) { return nil, errors.New("no /proc") },
		getCPUCount: func(context.Context, bool) (int, error) { return 0, errors.New("no /proc") },
	}

	env := probe.capture(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NotEmpty(t, env.GoVersion)
	assert.Positive(t, env.CPUs)
	assert.Zero(t, env.TotalMemory)
}
