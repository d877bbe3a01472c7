package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emergent-company/ageload/domain/dataset"
	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/pkg/cypher"
	"github.com/emergent-company/ageload/pkg/logger"
)

// errIncomplete marks a chained edge statement that did not create every edge.
var errIncomplete = errors.New("chained edge statement did not match every endpoint")

const edgeSavepoint = "SAVEPOINT ageload_edge"

func nodeStatement(graph string, nodes []dataset.Node) (string, error) {
	clauses := make([]string, 0, len(nodes))
	for _, n := range nodes {
		c, err := cypher.CreateNode(n.Label, n.ID, n.Properties)
		if err != nil {
			return "", fmt.Errorf("node %d: %w", n.ID, err)
		}
		clauses = append(clauses, c)
	}
	return cypher.Statement(graph, cypher.Nodes(clauses))
}

func edgeStatement(graph string, edges []dataset.Edge) (string, error) {
	clauses := make([]string, 0, len(edges))
	for i, e := range edges {
		c, err := cypher.MatchCreateEdge(i, cypher.Edge{
			Label:      e.Label,
			FromID:     e.FromID,
			ToID:       e.ToID,
			FromLabel:  e.FromLabel,
			ToLabel:    e.ToLabel,
			Properties: e.Properties,
		})
		if err != nil {
			return "", fmt.Errorf("edge %d: %w", e.ID, err)
		}
		clauses = append(clauses, c)
	}
	return cypher.Statement(graph, cypher.EdgeChain(clauses))
}

type nodeWriter func(ctx context.Context, tx database.Tx, graph string, chunk []dataset.Node) error

type edgeWriter func(ctx context.Context, sess database.Session, graph string, chunk []dataset.Edge, skips *skipLog) (int, error)

// writeNodesEach issues one CREATE statement per node.
func writeNodesEach(ctx context.Context, tx database.Tx, graph string, chunk []dataset.Node) error {
	for _, n := range chunk {
		stmt, err := nodeStatement(graph, []dataset.Node{n})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("node %d: %w", n.ID, err)
		}
	}
	return nil
}

// writeNodesBatch issues one multi-CREATE statement for the whole chunk.
func writeNodesBatch(ctx context.Context, tx database.Tx, graph string, chunk []dataset.Node) error {
	stmt, err := nodeStatement(graph, chunk)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, stmt)
	return err
}

// writeEdgesEach creates every edge under its own savepoint inside one
// transaction, so a failing edge only loses itself.
func writeEdgesEach(ctx context.Context, sess database.Session, graph string, chunk []dataset.Edge, skips *skipLog) (int, error) {
	tx, err := sess.Begin(ctx)
	if err != nil {
		// not tied to any edge; the session itself is unusable
		if ferr := fatalErr(ctx, err); ferr != nil {
			return 0, ferr
		}
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var created []dataset.Edge
	for _, e := range chunk {
		stmt, err := edgeStatement(graph, []dataset.Edge{e})
		if err != nil {
			skips.record(e, err.Error())
			continue
		}

		if _, err := tx.Exec(ctx, edgeSavepoint); err != nil {
			return 0, fmt.Errorf("savepoint: %w", err)
		}
		rows, err := tx.Query(ctx, stmt)
		if err != nil {
			if ferr := fatalErr(ctx, err); ferr != nil {
				return 0, ferr
			}
			if _, rerr := tx.Exec(ctx, "ROLLBACK TO "+edgeSavepoint); rerr != nil {
				return 0, fmt.Errorf("rollback to savepoint: %w", rerr)
			}
			skips.record(e, err.Error())
			continue
		}
		if _, err := tx.Exec(ctx, "RELEASE "+edgeSavepoint); err != nil {
			return 0, fmt.Errorf("release savepoint: %w", err)
		}
		if len(rows) == 0 {
			skips.record(e, "endpoint not found")
			continue
		}
		created = append(created, e)
	}

	if err := tx.Commit(); err != nil {
		if ferr := fatalErr(ctx, err); ferr != nil {
			return 0, ferr
		}
		for _, e := range created {
			skips.record(e, "commit: "+err.Error())
		}
		return 0, nil
	}
	return len(created), nil
}

// writeEdgesBatch tries the whole chunk as one chained statement and falls
// back to writeEdgesEach when any endpoint is missing or the statement fails.
func writeEdgesBatch(log *slog.Logger) edgeWriter {
	return func(ctx context.Context, sess database.Session, graph string, chunk []dataset.Edge, skips *skipLog) (int, error) {
		stmt, err := edgeStatement(graph, chunk)
		if err == nil {
			err = inTx(ctx, sess, func(tx database.Tx) error {
				rows, err := tx.Query(ctx, stmt)
				if err != nil {
					return err
				}
				if len(rows) != 1 {
					return errIncomplete
				}
				return nil
			})
			if err == nil {
				return len(chunk), nil
			}
			if ferr := fatalErr(ctx, err); ferr != nil {
				return 0, ferr
			}
		}
		log.Debug("isolating edges of failed chunk",
			slog.Int("edges", len(chunk)),
			slog.String("reason", err.Error()),
		)
		return writeEdgesEach(ctx, sess, graph, chunk, skips)
	}
}

// loadNodesWith is the chunk loop shared by the statement-driven strategies.
func (b *base) loadNodesWith(ctx context.Context, nodes []dataset.Node, graph string, batchSize int, write nodeWriter) (Summary, error) {
	if err := checkInput(len(nodes), batchSize); err != nil {
		return Summary{Kind: KindNodes, Strategy: b.name}, err
	}

	sess, err := b.store.Open(ctx)
	if err != nil {
		return Summary{Kind: KindNodes, Strategy: b.name}, err
	}
	defer sess.Close()

	t := b.tracker(KindNodes, len(nodes))
	order, groups := groupNodes(nodes)
	for _, label := range order {
		group := groups[label]
		b.log.Info("loading nodes", slog.String("label", label), slog.Int("count", len(group)))

		for _, w := range chunks(len(group), batchSize) {
			chunk := group[w[0]:w[1]]
			idx, started := t.next()
			err := inTx(ctx, sess, func(tx database.Tx) error {
				return write(ctx, tx, graph, chunk)
			})
			if err != nil {
				return t.summary(), b.chunkFailed(KindNodes, label, idx, err)
			}
			t.commit(label, len(chunk), 0, started)
		}
	}

	s := t.summary()
	b.logDone(s)
	return s, nil
}

// loadEdgesWith is the edge counterpart of loadNodesWith.
func (b *base) loadEdgesWith(ctx context.Context, edges []dataset.Edge, graph string, batchSize int, write edgeWriter) (Summary, error) {
	if err := checkInput(len(edges), batchSize); err != nil {
		return Summary{Kind: KindEdges, Strategy: b.name}, err
	}

	sess, err := b.store.Open(ctx)
	if err != nil {
		return Summary{Kind: KindEdges, Strategy: b.name}, err
	}
	defer sess.Close()

	t := b.tracker(KindEdges, len(edges))
	skips := &skipLog{log: b.log}
	defer skips.flush()

	order, groups := groupEdges(edges)
	for _, label := range order {
		group := groups[label]
		b.log.Info("loading edges", slog.String("label", label), slog.Int("count", len(group)))

		for _, w := range chunks(len(group), batchSize) {
			chunk := group[w[0]:w[1]]
			_, started := t.next()
			loaded, err := write(ctx, sess, graph, chunk, skips)
			if err != nil {
				t.reasons = skips.reasons
				b.log.Error("edge load aborted", slog.String("label", label), slog.Int("chunk", t.chunk), logger.Error(err))
				return t.summary(), err
			}
			t.commit(label, loaded, len(chunk)-loaded, started)
		}
	}

	t.reasons = skips.reasons
	s := t.summary()
	b.logDone(s)
	return s, nil
}

func (b *base) chunkFailed(kind Kind, label string, chunk int, err error) error {
	b.log.Error("chunk failed, aborting",
		slog.String("kind", string(kind)),
		slog.String("label", label),
		slog.Int("chunk", chunk),
		logger.Error(err),
	)
	return &ChunkLoadError{Kind: kind, Label: label, Chunk: chunk, Cause: err}
}

func (b *base) logDone(s Summary) {
	b.log.Info(string(s.Kind)+" loaded",
		slog.Int("loaded", s.Loaded),
		slog.Int("skipped", s.Skipped),
		slog.Int("chunks", s.Chunks),
		slog.Duration("elapsed", s.Elapsed),
		slog.String("rate", fmt.Sprintf("%.0f/s", s.Rate())),
	)
}
