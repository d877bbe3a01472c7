package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"

	"github.com/emergent-company/ageload/pkg/apperror"
	"github.com/emergent-company/ageload/pkg/logger"
	"github.com/emergent-company/ageload/pkg/pgutils"
)

// ageSetup prepares a connection for cypher() calls.
var ageSetup = []string{
	"LOAD 'age'",
	`SET search_path = ag_catalog, "$user", public`,
}

// Querier runs statements and returns every row as a slice of column values.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([][]any, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Tx is a transaction on a Session.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Session is a single pinned connection with AGE loaded. Temporary tables
// created through it stay visible until it is closed.
type Session interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Close() error
}

// Store opens sessions against the graph database.
type Store interface {
	Open(ctx context.Context) (Session, error)
}

// Client is the graph store client backed by the shared bun DB.
type Client struct {
	db  *bun.DB
	log *slog.Logger
}

// NewClient creates a new Client.
func NewClient(db *bun.DB, log *slog.Logger) *Client {
	return &Client{
		db:  db,
		log: log.With(logger.Scope("store")),
	}
}

// DB returns the underlying bun DB.
func (c *Client) DB() *bun.DB {
	return c.db
}

// Ping checks that the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Open pins a connection and loads AGE into it.
func (c *Client) Open(ctx context.Context) (Session, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("acquire connection: %w", err))
	}

	for _, stmt := range ageSetup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, apperror.ErrDatabase.WithInternal(fmt.Errorf("%s: %w", stmt, err))
		}
	}

	return &session{conn: conn}, nil
}

// GraphExists reports whether graph is registered in ag_catalog.
func (c *Client) GraphExists(ctx context.Context, graph string) (bool, error) {
	var n int
	err := c.db.NewSelect().
		TableExpr("ag_catalog.ag_graph").
		ColumnExpr("count(*)").
		Where("name = ?", graph).
		Scan(ctx, &n)
	if err != nil {
		return false, fmt.Errorf("lookup graph: %w", err)
	}
	return n > 0, nil
}

// EnsureGraph creates graph if it does not exist yet.
func (c *Client) EnsureGraph(ctx context.Context, graph string) (bool, error) {
	exists, err := c.GraphExists(ctx, graph)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	s, err := c.Open(ctx)
	if err != nil {
		return false, err
	}
	defer s.Close()

	if _, err := s.Exec(ctx, "SELECT ag_catalog.create_graph(?)", graph); err != nil {
		return false, fmt.Errorf("create graph: %w", err)
	}
	c.log.Info("graph created", slog.String("graph", graph))
	return true, nil
}

type session struct {
	conn bun.Conn
}

func (s *session) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return collect(rows)
}

func (s *session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	return affected(res), nil
}

func (s *session) Begin(ctx context.Context) (Tx, error) {
	tx, err := BeginSafeTx(ctx, s.conn)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &txn{tx: tx}, nil
}

// CopyFrom bulk-copies rows through the pgx connection underneath the pinned
// database/sql connection.
func (s *session) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var n int64
	err := s.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("copy requires a pgx connection, got %T", driverConn)
		}
		var err error
		n, err = c.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return n, classify(fmt.Errorf("copy into %s: %w", table, err))
	}
	return n, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

type txn struct {
	tx *SafeTx
}

func (t *txn) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return collect(rows)
}

func (t *txn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	return affected(res), nil
}

func (t *txn) Commit() error   { return t.tx.Commit() }
func (t *txn) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !IsRollbackNoise(err) {
		return err
	}
	return nil
}

// classify tags graph-does-not-exist failures so callers can tell them apart
// from other statement errors.
func classify(err error) error {
	if pgutils.IsGraphNotFound(err) {
		return apperror.ErrGraphNotFound.WithInternal(err)
	}
	return err
}

func collect(rows *sql.Rows) ([][]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// IsRollbackNoise reports errors from rolling back a transaction that the
// driver already closed.
func IsRollbackNoise(err error) bool {
	return errors.Is(err, sql.ErrTxDone)
}
