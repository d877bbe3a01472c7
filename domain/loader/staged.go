package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/pkg/logger"
)

const (
	nodeStageTable = "temp_nodes"
	edgeStageTable = "temp_edges"
)

var (
	nodeStageColumns = []string{"seq", "node_id", "label", "properties"}
	edgeStageColumns = []string{"seq", "edge_id", "from_id", "to_id", "edge_label", "from_label", "to_label", "properties"}
)

// Staged copies the dataset into session-scoped staging tables with COPY and
// then converts it into the graph one chunk at a time, reading the chunks
// back with LIMIT/OFFSET. The staging tables are dropped on every exit path.
type Staged struct {
	base
}

func NewStaged(opts Options) *Staged {
	return &Staged{base: newBase("staged", opts)}
}

func (s *Staged) LoadNodes(ctx context.Context, nodes []dataset.Node, graph string, batchSize int) (Summary, error) {
	if err := checkInput(len(nodes), batchSize); err != nil {
		return Summary{Kind: KindNodes, Strategy: s.name}, err
	}

	sess, err := s.store.Open(ctx)
	if err != nil {
		return Summary{Kind: KindNodes, Strategy: s.name}, err
	}
	defer sess.Close()

	order, groups := groupNodes(nodes)
	rows := make([][]any, len(nodes))
	pos := make(map[string]int, len(order))
	for i, n := range nodes {
		props, err := dataset.MarshalProperties(n.Properties)
		if err != nil {
			chunk := chunkIndex(order, groups, batchSize, n.Label, pos[n.Label])
			return Summary{Kind: KindNodes, Strategy: s.name}, s.chunkFailed(KindNodes, n.Label, chunk, err)
		}
		pos[n.Label]++
		rows[i] = []any{int64(i), n.ID, n.Label, props}
	}

	ddl := fmt.Sprintf("CREATE TEMP TABLE %s (seq BIGINT, node_id BIGINT, label TEXT, properties JSONB)", nodeStageTable)
	drop, err := s.stage(ctx, sess, nodeStageTable, ddl, nodeStageColumns, rows)
	if err != nil {
		return Summary{Kind: KindNodes, Strategy: s.name}, err
	}
	defer drop()

	t := s.tracker(KindNodes, len(nodes))
	for _, label := range order {
		count := len(groups[label])
		s.log.Info("converting staged nodes", slog.String("label", label), slog.Int("count", count))

		for _, w := range chunks(count, batchSize) {
			idx, started := t.next()
			chunk, err := s.fetchNodes(ctx, sess, label, w[1]-w[0], w[0])
			if err == nil {
				err = inTx(ctx, sess, func(tx database.Tx) error {
					return writeNodesBatch(ctx, tx, graph, chunk)
				})
			}
			if err != nil {
				return t.summary(), s.chunkFailed(KindNodes, label, idx, err)
			}
			t.commit(label, len(chunk), 0, started)
		}
	}

	sum := t.summary()
	s.logDone(sum)
	return sum, nil
}

func (s *Staged) LoadEdges(ctx context.Context, edges []dataset.Edge, graph string, batchSize int) (Summary, error) {
	if err := checkInput(len(edges), batchSize); err != nil {
		return Summary{Kind: KindEdges, Strategy: s.name}, err
	}

	sess, err := s.store.Open(ctx)
	if err != nil {
		return Summary{Kind: KindEdges, Strategy: s.name}, err
	}
	defer sess.Close()

	t := s.tracker(KindEdges, len(edges))
	skips := &skipLog{log: s.log}
	defer skips.flush()

	rows := make([][]any, 0, len(edges))
	staged := make(map[string]int)
	for i, e := range edges {
		props, err := dataset.MarshalProperties(e.Properties)
		if err != nil {
			skips.record(e, err.Error())
			continue
		}
		staged[e.Label]++
		rows = append(rows, []any{int64(i), e.ID, e.FromID, e.ToID, e.Label, e.FromLabel, e.ToLabel, props})
	}

	ddl := fmt.Sprintf("CREATE TEMP TABLE %s (seq BIGINT, edge_id BIGINT, from_id BIGINT, to_id BIGINT, "+
		"edge_label TEXT, from_label TEXT, to_label TEXT, properties JSONB)", edgeStageTable)
	drop, err := s.stage(ctx, sess, edgeStageTable, ddl, edgeStageColumns, rows)
	if err != nil {
		return t.summary(), err
	}
	defer drop()

	// rows that could not be staged are already counted as skipped
	t.skipped = skips.count
	write := writeEdgesBatch(s.log)

	order, _ := groupEdges(edges)
	for _, label := range order {
		count := staged[label]
		s.log.Info("converting staged edges", slog.String("label", label), slog.Int("count", count))

		for _, w := range chunks(count, batchSize) {
			_, started := t.next()
			chunk, err := s.fetchEdges(ctx, sess, label, w[1]-w[0], w[0])
			if err != nil {
				t.reasons = skips.reasons
				return t.summary(), fmt.Errorf("read staged edges: %w", err)
			}
			loaded, err := write(ctx, sess, graph, chunk, skips)
			if err != nil {
				t.reasons = skips.reasons
				return t.summary(), err
			}
			t.commit(label, loaded, len(chunk)-loaded, started)
		}
	}

	t.reasons = skips.reasons
	sum := t.summary()
	s.logDone(sum)
	return sum, nil
}

// stage creates table, copies rows into it and returns a func that drops it.
func (s *Staged) stage(ctx context.Context, sess database.Session, table, ddl string, columns []string, rows [][]any) (func(), error) {
	if _, err := sess.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return nil, fmt.Errorf("drop stale %s: %w", table, err)
	}
	if _, err := sess.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}

	drop := func() {
		if _, err := sess.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+table); err != nil {
			s.log.Warn("failed to drop staging table", slog.String("table", table), logger.Error(err))
		}
	}

	n, err := sess.CopyFrom(ctx, table, columns, rows)
	if err != nil {
		drop()
		return nil, err
	}
	s.log.Info("staged rows", slog.String("table", table), slog.Int64("rows", n))
	return drop, nil
}

func (s *Staged) fetchNodes(ctx context.Context, sess database.Session, label string, limit, offset int) ([]dataset.Node, error) {
	rows, err := sess.Query(ctx,
		"SELECT node_id, label, properties::text FROM "+nodeStageTable+" WHERE label = ? ORDER BY seq LIMIT ? OFFSET ?",
		label, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]dataset.Node, 0, len(rows))
	for _, r := range rows {
		if len(r) != 3 {
			return nil, fmt.Errorf("staged node row has %d columns", len(r))
		}
		id, err := asInt64(r[0])
		if err != nil {
			return nil, err
		}
		props, err := dataset.UnmarshalProperties(asString(r[2]))
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", id, err)
		}
		out = append(out, dataset.Node{ID: id, Label: asString(r[1]), Properties: props})
	}
	return out, nil
}

func (s *Staged) fetchEdges(ctx context.Context, sess database.Session, label string, limit, offset int) ([]dataset.Edge, error) {
	rows, err := sess.Query(ctx,
		"SELECT edge_id, from_id, to_id, edge_label, from_label, to_label, properties::text FROM "+edgeStageTable+
			" WHERE edge_label = ? ORDER BY seq LIMIT ? OFFSET ?",
		label, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]dataset.Edge, 0, len(rows))
	for _, r := range rows {
		if len(r) != 7 {
			return nil, fmt.Errorf("staged edge row has %d columns", len(r))
		}
		var ids [3]int64
		for i := range ids {
			if ids[i], err = asInt64(r[i]); err != nil {
				return nil, err
			}
		}
		props, err := dataset.UnmarshalProperties(asString(r[6]))
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", ids[0], err)
		}
		out = append(out, dataset.Edge{
			ID:         ids[0],
			FromID:     ids[1],
			ToID:       ids[2],
			Label:      asString(r[3]),
			FromLabel:  asString(r[4]),
			ToLabel:    asString(r[5]),
			Properties: props,
		})
	}
	return out, nil
}

// chunkIndex returns the 1-based call-wide chunk number of the pos-th node of
// label.
func chunkIndex(order []string, groups map[string][]dataset.Node, batchSize int, label string, pos int) int {
	idx := 0
	for _, l := range order {
		if l == label {
			return idx + pos/batchSize + 1
		}
		idx += (len(groups[l]) + batchSize - 1) / batchSize
	}
	return idx + 1
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unexpected id value %v (%T)", v, v)
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
