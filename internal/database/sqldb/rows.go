package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/seantiz/sqlworker/internal/database"
)

// sqlStmt adapts *sql.Stmt to database.Stmt.
type sqlStmt struct {
	stmt *sql.Stmt
}

func (s *sqlStmt) Exec(ctx context.Context, args ...any) error {
	_, err := s.stmt.ExecContext(ctx, args...)
	return err
}

func (s *sqlStmt) Query(ctx context.Context, args ...any) (*database.ResultSet, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *sqlStmt) Close() error {
	return s.stmt.Close()
}

// txStmt runs a query text directly on a transaction.
type txStmt struct {
	tx    *sql.Tx
	query string
}

func (s *txStmt) Exec(ctx context.Context, args ...any) error {
	_, err := s.tx.ExecContext(ctx, s.query, args...)
	return err
}

func (s *txStmt) Query(ctx context.Context, args ...any) (*database.ResultSet, error) {
	rows, err := s.tx.QueryContext(ctx, s.query, args...)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func (s *txStmt) Close() error { return nil }

// scanRows drains rows into a ResultSet. A statement without columns
// yields a nil result.
func scanRows(rows *sql.Rows) (*database.ResultSet, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, rows.Err()
	}

	rs := &database.ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return rs, nil
}
