package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/pkg/apperror"
)

// fakeStore is an in-memory stand-in for an AGE database. It understands just
// enough of the statements the loaders emit to track what was committed.
type fakeStore struct {
	mu sync.Mutex

	// statements containing any of these substrings fail
	failOn []string
	// edges touching these vertex ids match nothing
	missing map[int64]bool
	// every cypher statement fails with graph not found
	graphMissing bool
	commitErr    error
	beginErr     error

	opened    int
	closed    int
	executed  []string
	committed []result
	tables    map[string][][]any
	dropped   []string
}

type result struct {
	stmt string
	rows int
}

func newFakeStore() *fakeStore {
	return &fakeStore{missing: map[int64]bool{}, tables: map[string][][]any{}}
}

func (f *fakeStore) Open(ctx context.Context) (database.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return &fakeSession{store: f}, nil
}

var (
	nodeIDPattern = regexp.MustCompile(`CREATE \(:\w+ \{id: (\d+)`)
	endpointIDs   = regexp.MustCompile(`\(\w+(?::\w+)? \{id: (\d+)\}\)`)
)

// nodeIDs returns the ids of every committed vertex in commit order.
func (f *fakeStore) nodeIDs() []int64 {
	var ids []int64
	for _, r := range f.committed {
		for _, m := range nodeIDPattern.FindAllStringSubmatch(r.stmt, -1) {
			id, _ := strconv.ParseInt(m[1], 10, 64)
			ids = append(ids, id)
		}
	}
	return ids
}

// edgeCount returns the number of committed relationships.
func (f *fakeStore) edgeCount() int {
	n := 0
	for _, r := range f.committed {
		if r.rows > 0 {
			n += strings.Count(r.stmt, "]->(")
		}
	}
	return n
}

// statementsWith counts executed statements containing substr.
func (f *fakeStore) statementsWith(substr string) int {
	n := 0
	for _, s := range f.executed {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

func (f *fakeStore) run(query string, args []any) ([][]any, error) {
	f.executed = append(f.executed, query)

	for _, s := range f.failOn {
		if strings.Contains(query, s) {
			return nil, errors.New("ERROR: injected failure for " + s)
		}
	}

	switch {
	case strings.Contains(query, "cypher("):
		if f.graphMissing {
			return nil, apperror.ErrGraphNotFound.WithInternal(errors.New(`graph "g" does not exist`))
		}
		if !strings.Contains(query, "MATCH") {
			return nil, nil
		}
		for _, m := range endpointIDs.FindAllStringSubmatch(query, -1) {
			id, _ := strconv.ParseInt(m[1], 10, 64)
			if f.missing[id] {
				return nil, nil
			}
		}
		return [][]any{{"1"}}, nil
	case strings.HasPrefix(query, "SELECT node_id"):
		return f.page(nodeStageTable, 2, args, func(r []any) []any { return []any{r[1], r[2], r[3]} }), nil
	case strings.HasPrefix(query, "SELECT edge_id"):
		return f.page(edgeStageTable, 4, args, func(r []any) []any { return r[1:] }), nil
	case strings.HasPrefix(query, "DROP TABLE IF EXISTS "):
		table := strings.TrimPrefix(query, "DROP TABLE IF EXISTS ")
		if _, ok := f.tables[table]; ok {
			f.dropped = append(f.dropped, table)
		}
		delete(f.tables, table)
	case strings.HasPrefix(query, "CREATE TEMP TABLE "):
		table := strings.Fields(query)[3]
		f.tables[table] = [][]any{}
	}
	return nil, nil
}

func (f *fakeStore) page(table string, labelCol int, args []any, project func([]any) []any) [][]any {
	label, limit, offset := args[0].(string), args[1].(int), args[2].(int)

	var matched [][]any
	for _, r := range f.tables[table] {
		if r[labelCol] == label {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i][0].(int64) < matched[j][0].(int64) })

	var out [][]any
	for i := offset; i < len(matched) && i < offset+limit; i++ {
		out = append(out, project(matched[i]))
	}
	return out
}

type fakeSession struct {
	store *fakeStore
}

func (s *fakeSession) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	rows, err := s.store.run(query, args)
	if err == nil {
		s.store.committed = append(s.store.committed, result{query, len(rows)})
	}
	return rows, err
}

func (s *fakeSession) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	rows, err := s.Query(ctx, query, args...)
	return int64(len(rows)), err
}

func (s *fakeSession) Begin(ctx context.Context) (database.Tx, error) {
	if s.store.beginErr != nil {
		return nil, s.store.beginErr
	}
	return &fakeTx{store: s.store}, nil
}

func (s *fakeSession) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.tables[table]; !ok {
		return 0, errors.New("relation " + table + " does not exist")
	}
	s.store.tables[table] = append(s.store.tables[table], rows...)
	return int64(len(rows)), nil
}

func (s *fakeSession) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closed++
	return nil
}

type fakeTx struct {
	store     *fakeStore
	pending   []result
	savepoint int
	done      bool
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	switch {
	case strings.HasPrefix(query, "SAVEPOINT "):
		t.savepoint = len(t.pending)
		return nil, nil
	case strings.HasPrefix(query, "ROLLBACK TO "):
		t.pending = t.pending[:t.savepoint]
		return nil, nil
	case strings.HasPrefix(query, "RELEASE "):
		return nil, nil
	}

	rows, err := t.store.run(query, args)
	if err == nil {
		t.pending = append(t.pending, result{query, len(rows)})
	}
	return rows, err
}

func (t *fakeTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	rows, err := t.Query(ctx, query, args...)
	return int64(len(rows)), err
}

func (t *fakeTx) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	t.store.committed = append(t.store.committed, t.pending...)
	return nil
}

func (t *fakeTx) Rollback() error {
	t.done = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
