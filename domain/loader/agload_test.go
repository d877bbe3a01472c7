package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/pkg/apperror"
)

type agloadCall struct {
	args []string
	csv  string
}

func newTestAgload(t *testing.T, cfg AgloadConfig, fail func(args []string) bool) (*Agload, *[]agloadCall) {
	t.Helper()
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database = "localhost", 5455, "postgresUser", "s3cret", "postgresDB"

	a := NewAgload(Options{Log: discardLogger()}, cfg)
	a.lookPath = func(string) (string, error) { return "/usr/local/bin/age_load", nil }

	var calls []agloadCall
	a.run = func(ctx context.Context, path string, args []string) ([]byte, error) {
		csvPath := args[len(args)-1]
		data, err := os.ReadFile(csvPath)
		require.NoError(t, err)
		calls = append(calls, agloadCall{args: args, csv: string(data)})
		if fail != nil && fail(args) {
			return []byte("ERROR: label does not exist\nDETAIL: more"), errors.New("exit status 1")
		}
		return nil, nil
	}
	return a, &calls
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestAgload_Unavailable(t *testing.T) {
	a := NewAgload(Options{Log: discardLogger()}, AgloadConfig{Binary: "definitely-not-installed"})
	a.lookPath = func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }

	assert.ErrorIs(t, Available(a), apperror.ErrToolUnavailable)

	_, err := a.LoadNodes(context.Background(), people(2, 0), testGraph, 10)
	assert.ErrorIs(t, err, apperror.ErrToolUnavailable)
	_, err = a.LoadEdges(context.Background(), knows(2), testGraph, 10)
	assert.ErrorIs(t, err, apperror.ErrToolUnavailable)
}

func TestAgload_LoadNodesOneFilePerLabel(t *testing.T) {
	a, calls := newTestAgload(t, AgloadConfig{}, nil)

	sum, err := a.LoadNodes(context.Background(), people(2, 1), testGraph, 5000)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Loaded)
	assert.Equal(t, 2, sum.Chunks)

	require.Len(t, *calls, 2)
	first := (*calls)[0]
	assert.Equal(t, "vertex", argValue(first.args, "--type"))
	assert.Equal(t, "Person", argValue(first.args, "--label"))
	assert.Equal(t, testGraph, argValue(first.args, "--graph"))
	assert.Equal(t, "5455", argValue(first.args, "--port"))
	assert.Equal(t, "vertices_Person.csv", filepath.Base(argValue(first.args, "--csv-path")))
	assert.Equal(t, "id,name,rank\n1,n1,1\n2,n2,2\n", first.csv)
}

func TestAgload_NodeFailureIsChunkError(t *testing.T) {
	a, _ := newTestAgload(t, AgloadConfig{}, func(args []string) bool {
		return argValue(args, "--label") == "Company"
	})

	sum, err := a.LoadNodes(context.Background(), people(2, 1), testGraph, 5000)
	var chunkErr *ChunkLoadError
	require.True(t, errors.As(err, &chunkErr))
	assert.Equal(t, 2, chunkErr.Chunk)
	assert.Equal(t, "Company", chunkErr.Label)
	assert.Contains(t, err.Error(), "label does not exist")
	assert.Equal(t, 2, sum.Loaded)
}

func TestAgload_EdgeFailureSkipsType(t *testing.T) {
	edges := append(knows(2), dataset.Edge{ID: 3, Label: "WORKS_AT", FromID: 1, ToID: 3})
	a, calls := newTestAgload(t, AgloadConfig{}, func(args []string) bool {
		return argValue(args, "--label") == "KNOWS"
	})

	sum, err := a.LoadEdges(context.Background(), edges, testGraph, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Loaded)
	assert.Equal(t, 2, sum.Skipped)
	require.Len(t, sum.SkipReasons, 2)
	assert.Contains(t, sum.SkipReasons[0], "label does not exist")
	assert.NotContains(t, sum.SkipReasons[0], "DETAIL")

	require.Len(t, *calls, 2)
	assert.Equal(t, "edge", argValue((*calls)[0].args, "--type"))
	assert.Equal(t, "start_id,end_id,since\n1,2,2020\n1,3,2020\n", (*calls)[0].csv)
	assert.Equal(t, "start_id,end_id\n1,3\n", (*calls)[1].csv)
}

func TestAgload_CleansUpUnlessKeepFiles(t *testing.T) {
	work := t.TempDir()
	a, _ := newTestAgload(t, AgloadConfig{WorkDir: work}, nil)
	_, err := a.LoadNodes(context.Background(), people(1, 0), testGraph, 10)
	require.NoError(t, err)
	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)

	keep := t.TempDir()
	a, _ = newTestAgload(t, AgloadConfig{WorkDir: keep, KeepFiles: true}, nil)
	_, err = a.LoadNodes(context.Background(), people(1, 0), testGraph, 10)
	require.NoError(t, err)
	entries, err = os.ReadDir(keep)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = os.Stat(filepath.Join(keep, entries[0].Name(), "vertices_Person.csv"))
	assert.NoError(t, err)
}

func TestAgload_CommandLineMasksPassword(t *testing.T) {
	a, _ := newTestAgload(t, AgloadConfig{}, nil)

	line := a.CommandLine("/usr/local/bin/age_load", testGraph, "Person", "vertex", "/tmp/dir with space/vertices_Person.csv")
	assert.NotContains(t, line, "s3cret")
	assert.Contains(t, line, "--password ")
	assert.Contains(t, line, "--username postgresUser")
	assert.True(t, strings.HasSuffix(line, "'/tmp/dir with space/vertices_Person.csv'"))
}

func TestPropertyCells(t *testing.T) {
	cells, err := propertyCells([]string{"a", "b", "c", "d", "e"}, map[string]any{
		"a": "x,y", "b": true, "c": int32(7), "d": 1.25,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x,y", "true", "7", "1.25", ""}, cells)

	_, err = propertyCells([]string{"a"}, map[string]any{"a": struct{}{}})
	assert.Error(t, err)
}
