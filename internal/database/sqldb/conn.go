package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/seantiz/sqlworker/internal/database"
)

type binderEntry struct {
	binder *database.Binder
}

// Conn is a database.Conn backed by one dedicated *sql.Conn. Prepared
// statements are cached per query text for the lifetime of the connection.
type Conn struct {
	conn    *sql.Conn
	dialect string
	binders map[string]*binderEntry
	logger  *slog.Logger
}

var _ database.Conn = (*Conn)(nil)

// Execute runs raw SQL on the connection.
func (c *Conn) Execute(ctx context.Context, query string) (*database.ResultSet, error) {
	if !returnsRows(query) {
		if _, err := c.conn.ExecContext(ctx, query); err != nil {
			return nil, c.classify(err)
		}
		return nil, nil
	}

	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, c.classify(err)
	}
	rs, err := scanRows(rows)
	if err != nil {
		return nil, c.classify(err)
	}
	return rs, nil
}

// ExecutePrepared binds stmt's values on the cached driver statement for
// its query and runs it.
func (c *Conn) ExecutePrepared(ctx context.Context, stmt *database.PreparedStatement) (*database.ResultSet, error) {
	if stmt == nil || !stmt.Alive() {
		return nil, database.ErrStatementFreed
	}

	entry, err := c.binderFor(ctx, stmt.Query())
	if err != nil {
		return nil, err
	}
	if err := entry.binder.BindStatement(stmt); err != nil {
		return nil, err
	}

	if !returnsRows(stmt.Query()) {
		if err := entry.binder.Exec(ctx); err != nil {
			return nil, c.classify(err)
		}
		return nil, nil
	}
	rs, err := entry.binder.Query(ctx)
	if err != nil {
		return nil, c.classify(err)
	}
	return rs, nil
}

// ExecuteTransaction runs elems inside a single transaction and commits.
// Any failure rolls the transaction back.
func (c *Conn) ExecuteTransaction(ctx context.Context, elems []database.TxElement) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.classify(fmt.Errorf("begin transaction: %w", err))
	}

	for i, el := range elems {
		if err := c.execElement(ctx, tx, el); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				c.logger.Warn("transaction rollback failed", "error", rbErr)
			}
			return c.classify(fmt.Errorf("transaction element %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return c.classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// execElement runs one transaction element on tx. Prepared elements bind
// through a binder scoped to tx and do not touch the statement cache.
func (c *Conn) execElement(ctx context.Context, tx *sql.Tx, el database.TxElement) error {
	if !el.IsPrepared() {
		_, err := tx.ExecContext(ctx, el.SQL)
		return err
	}

	query := el.Stmt.Query()
	b := database.NewBinder(&txStmt{tx: tx, query: query}, query, c.logger)
	if err := b.BindStatement(el.Stmt); err != nil {
		return err
	}
	return b.Exec(ctx)
}

func (c *Conn) binderFor(ctx context.Context, query string) (*binderEntry, error) {
	if entry, ok := c.binders[query]; ok {
		return entry, nil
	}

	st, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.classify(fmt.Errorf("prepare statement: %w", err))
	}
	entry := &binderEntry{
		binder: database.NewBinder(&sqlStmt{stmt: st}, query, c.logger),
	}
	c.binders[query] = entry
	return entry, nil
}

// Close releases cached statements and returns the connection to the pool.
func (c *Conn) Close() error {
	var errs []error
	for query, entry := range c.binders {
		if err := entry.binder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statement %q: %w", query, err))
		}
	}
	clear(c.binders)
	if err := c.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Conn) classify(err error) error {
	if err != nil && isLockConflict(c.dialect, err) {
		return fmt.Errorf("%w: %w", database.ErrLockConflict, err)
	}
	return err
}

// returnsRows reports whether query is expected to produce a result set,
// based on its leading keyword.
func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimLeftFunc(query, unicode.IsSpace))
	for _, kw := range []string{"SELECT", "WITH", "PRAGMA", "SHOW", "EXPLAIN", "VALUES", "DESCRIBE"} {
		if strings.HasPrefix(q, kw) {
			return true
		}
	}
	return false
}
