package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Stmt is a driver-prepared statement that a Binder feeds positional
// arguments into.
type Stmt interface {
	Exec(ctx context.Context, args ...any) error
	Query(ctx context.Context, args ...any) (*ResultSet, error)
	Close() error
}

// Binder holds typed values for each placeholder of a driver statement and
// executes the statement with them. A Binder belongs to one connection and
// is not safe for concurrent use.
type Binder struct {
	stmt   Stmt
	query  string
	params []Param
	bound  []bool
	logger *slog.Logger
}

// NewBinder wraps stmt, whose SQL text is query. The parameter count is
// taken from the placeholders in query.
func NewBinder(stmt Stmt, query string, logger *slog.Logger) *Binder {
	n := CountPlaceholders(query)
	return &Binder{
		stmt:   stmt,
		query:  query,
		params: make([]Param, n),
		bound:  make([]bool, n),
		logger: logger,
	}
}

// ParamCount returns the number of placeholders.
func (b *Binder) ParamCount() int { return len(b.params) }

// Bind stores p for the placeholder at index. Strings and blobs are copied
// so the caller may reuse its buffers. Binding an index twice overwrites
// the earlier value and logs the double bind. A rejected oversized value
// leaves the placeholder unbound.
func (b *Binder) Bind(index int, p Param) error {
	if index < 0 || index >= len(b.params) {
		b.logger.Error("bind index out of range",
			"index", index,
			"param_count", len(b.params),
			"query", b.query,
		)
		return fmt.Errorf("%w: index %d, statement has %d parameters", ErrParamIndex, index, len(b.params))
	}
	if err := p.checkSize(); err != nil {
		b.logger.Error("rejecting oversized parameter",
			"index", index,
			"kind", p.Kind().String(),
			"len", p.Len(),
			"query", b.query,
		)
		b.params[index] = Param{}
		b.bound[index] = false
		return fmt.Errorf("bind index %d: %w", index, err)
	}
	if b.bound[index] {
		b.logger.Error("parameter bound twice, overwriting",
			"index", index,
			"query", b.query,
		)
	}
	b.params[index] = p.owned()
	b.bound[index] = true
	return nil
}

// BindNull binds SQL NULL at index.
func (b *Binder) BindNull(index int) error {
	return b.Bind(index, Null())
}

// ClearAll releases every bound value and marks all placeholders unbound.
func (b *Binder) ClearAll() {
	for i := range b.params {
		b.params[i] = Param{}
		b.bound[i] = false
	}
}

// BindStatement clears the binder and binds every value set on stmt.
func (b *Binder) BindStatement(stmt *PreparedStatement) error {
	if stmt == nil || !stmt.Alive() {
		return ErrStatementFreed
	}
	if stmt.ParamCount() != len(b.params) {
		return fmt.Errorf("%w: statement has %d parameters, binder has %d",
			ErrParamIndex, stmt.ParamCount(), len(b.params))
	}

	b.ClearAll()
	for i := range b.params {
		p, ok := stmt.Param(i)
		if !ok {
			continue
		}
		if err := b.Bind(i, p); err != nil {
			return err
		}
	}
	return nil
}

// Args returns the bound values in placeholder order. Every placeholder
// must be bound.
func (b *Binder) Args() ([]any, error) {
	args := make([]any, len(b.params))
	for i, p := range b.params {
		if !b.bound[i] {
			b.logger.Error("executing with unbound parameter", "index", i, "query", b.query)
			return nil, fmt.Errorf("%w: index %d", ErrParamUnbound, i)
		}
		args[i] = p.Value()
	}
	return args, nil
}

// Exec runs the statement with the bound values.
func (b *Binder) Exec(ctx context.Context) error {
	args, err := b.Args()
	if err != nil {
		return err
	}
	return b.stmt.Exec(ctx, args...)
}

// Query runs the statement with the bound values and returns its rows.
func (b *Binder) Query(ctx context.Context) (*ResultSet, error) {
	args, err := b.Args()
	if err != nil {
		return nil, err
	}
	return b.stmt.Query(ctx, args...)
}

// QueryString renders the query with bound values substituted for their
// placeholders, for diagnostics. Unbound placeholders stay as '?'.
func (b *Binder) QueryString() string {
	var sb strings.Builder
	sb.Grow(len(b.query))
	i := 0
	scanPlaceholders(b.query, func(text string, placeholder bool) {
		if !placeholder {
			sb.WriteString(text)
			return
		}
		if i < len(b.params) && b.bound[i] {
			sb.WriteString(b.params[i].Literal())
		} else {
			sb.WriteByte('?')
		}
		i++
	})
	return sb.String()
}

// Close releases the underlying driver statement.
func (b *Binder) Close() error {
	b.ClearAll()
	return b.stmt.Close()
}

// CountPlaceholders returns the number of '?' placeholders in query,
// ignoring any inside single- or double-quoted literals.
func CountPlaceholders(query string) int {
	n := 0
	scanPlaceholders(query, func(_ string, placeholder bool) {
		if placeholder {
			n++
		}
	})
	return n
}

// scanPlaceholders splits query into literal text and placeholders and
// calls emit for each piece in order.
func scanPlaceholders(query string, emit func(text string, placeholder bool)) {
	var quote byte
	start := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			if start < i {
				emit(query[start:i], false)
			}
			emit("?", true)
			start = i + 1
		}
	}
	if start < len(query) {
		emit(query[start:], false)
	}
}
