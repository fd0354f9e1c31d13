package database

import (
	"fmt"
	"sync/atomic"
)

const (
	stmtAlive uint32 = iota + 1
	stmtFreed
)

// PreparedStatement is a parameterised query together with the values to
// bind to its placeholders. Ownership passes to the pool once the statement
// is submitted; callers must not modify it afterwards.
type PreparedStatement struct {
	query  string
	params []Param
	set    []bool
	state  atomic.Uint32
}

// NewPreparedStatement creates a statement for query with one parameter
// slot per '?' placeholder outside quoted literals.
func NewPreparedStatement(query string) *PreparedStatement {
	n := CountPlaceholders(query)
	s := &PreparedStatement{
		query:  query,
		params: make([]Param, n),
		set:    make([]bool, n),
	}
	s.state.Store(stmtAlive)
	return s
}

// Query returns the statement's SQL text.
func (s *PreparedStatement) Query() string { return s.query }

// ParamCount returns the number of placeholders.
func (s *PreparedStatement) ParamCount() int { return len(s.params) }

// Set stores the value for the placeholder at index.
func (s *PreparedStatement) Set(index int, p Param) error {
	if index < 0 || index >= len(s.params) {
		return fmt.Errorf("%w: index %d, statement has %d parameters", ErrParamIndex, index, len(s.params))
	}
	s.params[index] = p
	s.set[index] = true
	return nil
}

func (s *PreparedStatement) SetInt8(index int, v int8) error     { return s.Set(index, Int8(v)) }
func (s *PreparedStatement) SetInt16(index int, v int16) error   { return s.Set(index, Int16(v)) }
func (s *PreparedStatement) SetInt32(index int, v int32) error   { return s.Set(index, Int32(v)) }
func (s *PreparedStatement) SetInt64(index int, v int64) error   { return s.Set(index, Int64(v)) }
func (s *PreparedStatement) SetUint8(index int, v uint8) error   { return s.Set(index, Uint8(v)) }
func (s *PreparedStatement) SetUint16(index int, v uint16) error { return s.Set(index, Uint16(v)) }
func (s *PreparedStatement) SetUint32(index int, v uint32) error { return s.Set(index, Uint32(v)) }
func (s *PreparedStatement) SetUint64(index int, v uint64) error { return s.Set(index, Uint64(v)) }
func (s *PreparedStatement) SetFloat32(index int, v float32) error {
	return s.Set(index, Float32(v))
}
func (s *PreparedStatement) SetFloat64(index int, v float64) error {
	return s.Set(index, Float64(v))
}
func (s *PreparedStatement) SetBool(index int, v bool) error     { return s.Set(index, Bool(v)) }
func (s *PreparedStatement) SetString(index int, v string) error { return s.Set(index, String(v)) }
func (s *PreparedStatement) SetBlob(index int, v []byte) error   { return s.Set(index, Blob(v)) }
func (s *PreparedStatement) SetNull(index int) error             { return s.Set(index, Null()) }

// Param returns the value stored at index and whether it was set.
func (s *PreparedStatement) Param(index int) (Param, bool) {
	if index < 0 || index >= len(s.params) {
		return Param{}, false
	}
	return s.params[index], s.set[index]
}

// Alive reports whether the statement has not been freed.
func (s *PreparedStatement) Alive() bool {
	return s.state.Load() == stmtAlive
}

// Free releases the statement's parameters. It reports whether this call
// performed the release; later calls are no-ops.
func (s *PreparedStatement) Free() bool {
	if !s.state.CompareAndSwap(stmtAlive, stmtFreed) {
		return false
	}
	for i := range s.params {
		s.params[i] = Param{}
		s.set[i] = false
	}
	return true
}
