package database

import "context"

// Conn is a single database connection owned by exactly one worker.
// Implementations are not required to be safe for concurrent use.
type Conn interface {
	// Execute runs raw SQL. Statements that produce no columns return a nil
	// result set.
	Execute(ctx context.Context, query string) (*ResultSet, error)

	// ExecutePrepared binds the statement's parameters and runs it.
	ExecutePrepared(ctx context.Context, stmt *PreparedStatement) (*ResultSet, error)

	// ExecuteTransaction runs every element inside one database transaction
	// and commits. On failure the transaction is rolled back; lock conflicts
	// are reported wrapped with ErrLockConflict.
	ExecuteTransaction(ctx context.Context, elems []TxElement) error

	Close() error
}

// Connector opens connections for a configured database.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
	Info() ConnectorInfo
	Close() error
}

// ConnectorInfo describes a connector for listings and logs.
type ConnectorInfo struct {
	Name    string `json:"name"`
	Dialect string `json:"dialect"`
}

// TxElement is one step of a transaction: either raw SQL or a prepared
// statement. Exactly one of SQL and Stmt is set.
type TxElement struct {
	SQL  string
	Stmt *PreparedStatement
}

// RawElement returns a transaction element for raw SQL.
func RawElement(query string) TxElement {
	return TxElement{SQL: query}
}

// PreparedElement returns a transaction element for a prepared statement.
func PreparedElement(stmt *PreparedStatement) TxElement {
	return TxElement{Stmt: stmt}
}

// IsPrepared reports whether the element carries a prepared statement.
func (e TxElement) IsPrepared() bool {
	return e.Stmt != nil
}

// Query returns the SQL text of the element.
func (e TxElement) Query() string {
	if e.Stmt != nil {
		return e.Stmt.Query()
	}
	return e.SQL
}

// ResultSet holds the rows produced by a query.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// RowCount returns the number of rows, treating a nil result as empty.
func (r *ResultSet) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
