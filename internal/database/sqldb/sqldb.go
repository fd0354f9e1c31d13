// Package sqldb implements database.Connector on top of database/sql for
// the sqlite, mysql and duckdb drivers.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/seantiz/sqlworker/internal/database"
)

// Supported dialects.
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
	DialectDuckDB = "duckdb"
)

// Dialects lists every supported dialect.
var Dialects = []string{DialectSQLite, DialectMySQL, DialectDuckDB}

const defaultBusyTimeout = 5 * time.Second

// Option configures a Connector.
type Option func(*Connector)

// WithBusyTimeout sets how long a sqlite connection waits on a locked
// database before reporting SQLITE_BUSY. Zero reports immediately.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.busyTimeout = d
	}
}

// Connector opens dedicated connections from a shared *sql.DB.
type Connector struct {
	db          *sql.DB
	dialect     string
	busyTimeout time.Duration
	logger      *slog.Logger
}

var _ database.Connector = (*Connector)(nil)

// Open creates a connector for the given dialect and DSN.
func Open(dialect, dsn string, logger *slog.Logger, opts ...Option) (*Connector, error) {
	switch dialect {
	case DialectSQLite, DialectMySQL, DialectDuckDB:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	c := &Connector{
		db:          db,
		dialect:     dialect,
		busyTimeout: defaultBusyTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if dialect == DialectSQLite {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	return c, nil
}

// Connect reserves one connection from the underlying pool. The connection
// stays dedicated to the caller until closed.
func (c *Connector) Connect(ctx context.Context) (database.Conn, error) {
	sc, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire %s connection: %w", c.dialect, err)
	}

	if c.dialect == DialectSQLite {
		q := fmt.Sprintf("PRAGMA busy_timeout = %d", c.busyTimeout.Milliseconds())
		if _, err := sc.ExecContext(ctx, q); err != nil {
			sc.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	return &Conn{
		conn:    sc,
		dialect: c.dialect,
		binders: make(map[string]*binderEntry),
		logger:  c.logger,
	}, nil
}

// Info describes the connector.
func (c *Connector) Info() database.ConnectorInfo {
	return database.ConnectorInfo{Dialect: c.dialect}
}

// Close closes the underlying *sql.DB.
func (c *Connector) Close() error {
	return c.db.Close()
}
