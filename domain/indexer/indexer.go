// Package indexer creates lookup indexes on the id property of every vertex
// label in a graph.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/lib/pq"
	"go.uber.org/fx"

	"github.com/emergent-company/ageload/internal/database"
	"github.com/emergent-company/ageload/pkg/cypher"
	"github.com/emergent-company/ageload/pkg/logger"
	"github.com/emergent-company/ageload/pkg/pgutils"
)

var Module = fx.Module("indexer",
	fx.Provide(NewIndexer),
)

// maxWarningLen caps the error text kept per warning.
const maxWarningLen = 200

const labelsQuery = `SELECT l.name
FROM ag_catalog.ag_label l
JOIN ag_catalog.ag_graph g ON g.graphid = l.graph
WHERE g.name = ? AND l.kind = 'v' AND l.name <> '_ag_label_vertex'
ORDER BY l.name`

const indexOwnerQuery = `SELECT tablename FROM pg_indexes WHERE schemaname = ? AND indexname = ?`

// Warning is a label whose index could not be created.
type Warning struct {
	Label   string
	Message string
}

// Result counts what CreateIndexes did.
type Result struct {
	Created  int
	Skipped  int
	Warnings []Warning
}

// Failed returns the number of labels that produced a warning.
func (r Result) Failed() int {
	return len(r.Warnings)
}

// Indexer creates id indexes.
type Indexer struct {
	store database.Store
	log   *slog.Logger
}

// NewIndexer creates a new Indexer.
func NewIndexer(store database.Store, log *slog.Logger) *Indexer {
	return &Indexer{
		store: store,
		log:   log.With(logger.Scope("indexer")),
	}
}

// maxIdentifierLen is PostgreSQL's NAMEDATALEN-1; longer names are truncated
// by the server.
const maxIdentifierLen = 63

const indexSuffix = "_id_idx"

// IndexName returns the name of the id index for label. The label's case is
// kept so labels differing only in case get distinct indexes. Labels are
// ASCII identifiers, so cutting by byte is safe.
func IndexName(label string) string {
	if len(label)+len(indexSuffix) > maxIdentifierLen {
		label = label[:maxIdentifierLen-len(indexSuffix)]
	}
	return label + indexSuffix
}

// CreateIndexes ensures every vertex label of graph has an id index. Labels
// that already have one are skipped. Failures on a single label become
// warnings and the remaining labels are still processed; only opening the
// session or reading the label catalog returns an error.
func (i *Indexer) CreateIndexes(ctx context.Context, graph string) (Result, error) {
	var res Result

	if err := cypher.ValidateIdentifier(graph); err != nil {
		return res, fmt.Errorf("graph name: %w", err)
	}

	sess, err := i.store.Open(ctx)
	if err != nil {
		return res, err
	}
	defer sess.Close()

	rows, err := sess.Query(ctx, labelsQuery, graph)
	if err != nil {
		return res, fmt.Errorf("list vertex labels: %w", err)
	}

	for _, row := range rows {
		label := fmt.Sprint(row[0])
		created, err := i.ensure(ctx, sess, graph, label)
		switch {
		case err != nil:
			msg := truncateError(err.Error(), maxWarningLen)
			i.log.Warn("index creation failed",
				slog.String("label", label),
				slog.String("error", msg),
			)
			res.Warnings = append(res.Warnings, Warning{Label: label, Message: msg})
		case created:
			res.Created++
		default:
			res.Skipped++
		}
	}

	i.log.Info("indexes processed",
		slog.String("graph", graph),
		slog.Int("created", res.Created),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed()),
	)
	return res, nil
}

func (i *Indexer) ensure(ctx context.Context, sess database.Session, graph, label string) (bool, error) {
	if err := cypher.ValidateIdentifier(label); err != nil {
		return false, err
	}
	name := IndexName(label)

	owners, err := sess.Query(ctx, indexOwnerQuery, graph, name)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	if len(owners) > 0 {
		if owner := fmt.Sprint(owners[0][0]); owner != label {
			return false, fmt.Errorf("index name %s is already used by table %s", name, owner)
		}
		i.log.Debug("index exists", slog.String("label", label), slog.String("index", name))
		return false, nil
	}

	ddl := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s.%s (ag_catalog.agtype_access_operator(properties, '"%s"'::agtype))`,
		pq.QuoteIdentifier(name), pq.QuoteIdentifier(graph), pq.QuoteIdentifier(label), cypher.IDKey,
	)
	if _, err := sess.Exec(ctx, ddl); err != nil {
		if pgutils.IsDuplicateObject(err) {
			return false, nil
		}
		return false, err
	}
	i.log.Info("index created", slog.String("label", label), slog.String("index", name))
	return true, nil
}

// truncateError shortens error text to at most maxLen bytes without
// splitting a UTF-8 sequence.
func truncateError(msg string, maxLen int) string {
	if len(msg) <= maxLen {
		return msg
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
