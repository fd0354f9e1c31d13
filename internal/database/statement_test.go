package database_test

import (
	"errors"
	"math"
	"testing"

	"github.com/seantiz/sqlworker/internal/database"
)

func TestPreparedStatementSet(t *testing.T) {
	ps := database.NewPreparedStatement("SELECT * FROM t WHERE a = ? AND b = '?'")
	if ps.ParamCount() != 1 {
		t.Fatalf("ParamCount() = %d, want 1", ps.ParamCount())
	}

	if _, ok := ps.Param(0); ok {
		t.Error("Param(0) reported set before SetInt64")
	}
	if err := ps.SetInt64(0, 5); err != nil {
		t.Fatalf("SetInt64: %v", err)
	}
	p, ok := ps.Param(0)
	if !ok || p.Kind() != database.KindInt64 || p.Value() != int64(5) {
		t.Errorf("Param(0) = %v, %v; want int64 5", p.Value(), ok)
	}

	if err := ps.SetString(1, "x"); !errors.Is(err, database.ErrParamIndex) {
		t.Errorf("SetString(1) error = %v, want ErrParamIndex", err)
	}
}

func TestPreparedStatementFree(t *testing.T) {
	ps := database.NewPreparedStatement("SELECT ?")
	if !ps.Alive() {
		t.Fatal("new statement is not alive")
	}
	if !ps.Free() {
		t.Error("first Free() = false, want true")
	}
	if ps.Free() {
		t.Error("second Free() = true, want false")
	}
	if ps.Alive() {
		t.Error("statement alive after Free")
	}
	var zero database.PreparedStatement
	if zero.Alive() {
		t.Error("zero-value statement reported alive")
	}
}

func TestParamLiteral(t *testing.T) {
	tests := []struct {
		p    database.Param
		want string
	}{
		{database.Null(), "NULL"},
		{database.Int8(-8), "-8"},
		{database.Uint16(65535), "65535"},
		{database.Float32(0.25), "0.25"},
		{database.Float64(math.Inf(1)), "+Inf"},
		{database.Bool(false), "0"},
		{database.String("o'k"), "'o''k'"},
		{database.Blob(nil), "BINARY"},
	}
	for _, tt := range tests {
		if got := tt.p.Literal(); got != tt.want {
			t.Errorf("%s Literal() = %q, want %q", tt.p.Kind(), got, tt.want)
		}
	}
}

func TestParamValueKinds(t *testing.T) {
	tests := []struct {
		p    database.Param
		want any
	}{
		{database.Int8(1), int8(1)},
		{database.Int16(2), int16(2)},
		{database.Int32(3), int32(3)},
		{database.Uint8(4), uint8(4)},
		{database.Uint64(5), uint64(5)},
		{database.Float32(1.5), float32(1.5)},
		{database.Bool(true), true},
		{database.Null(), nil},
	}
	for _, tt := range tests {
		if got := tt.p.Value(); got != tt.want {
			t.Errorf("%s Value() = %#v, want %#v", tt.p.Kind(), got, tt.want)
		}
	}
}

func TestParamKindString(t *testing.T) {
	if got := database.KindBlob.String(); got != "blob" {
		t.Errorf("KindBlob.String() = %q, want blob", got)
	}
	if got := database.ParamKind(200).String(); got != "ParamKind(200)" {
		t.Errorf("unknown kind String() = %q", got)
	}
}

func TestResultSetRowCount(t *testing.T) {
	var rs *database.ResultSet
	if rs.RowCount() != 0 {
		t.Error("nil result RowCount() != 0")
	}
	rs = &database.ResultSet{Rows: [][]any{{1}, {2}}}
	if rs.RowCount() != 2 {
		t.Errorf("RowCount() = %d, want 2", rs.RowCount())
	}
}

func TestTxElement(t *testing.T) {
	raw := database.RawElement("DELETE FROM t")
	if raw.IsPrepared() || raw.Query() != "DELETE FROM t" {
		t.Errorf("raw element = %+v", raw)
	}
	ps := database.NewPreparedStatement("DELETE FROM t WHERE id = ?")
	el := database.PreparedElement(ps)
	if !el.IsPrepared() || el.Query() != ps.Query() {
		t.Errorf("prepared element = %+v", el)
	}
}
