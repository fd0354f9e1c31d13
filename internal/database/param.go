package database

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxStringParamLen is the longest string a single placeholder accepts.
	MaxStringParamLen = 0xFFFF

	// MaxBlobParamLen is the longest blob a single placeholder accepts.
	MaxBlobParamLen = 0xFFFFFF
)

// ParamKind identifies the type carried by a Param.
type ParamKind uint8

const (
	KindNull ParamKind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindBlob
)

var kindNames = [...]string{
	KindNull:    "null",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindBool:    "bool",
	KindString:  "string",
	KindBlob:    "blob",
}

func (k ParamKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ParamKind(%d)", uint8(k))
}

// Param is a typed statement parameter. The zero value is SQL NULL.
type Param struct {
	kind ParamKind
	i    int64
	u    uint64
	f    float64
	s    string
	blob []byte
}

func Int8(v int8) Param   { return Param{kind: KindInt8, i: int64(v)} }
func Int16(v int16) Param { return Param{kind: KindInt16, i: int64(v)} }
func Int32(v int32) Param { return Param{kind: KindInt32, i: int64(v)} }
func Int64(v int64) Param { return Param{kind: KindInt64, i: v} }

func Uint8(v uint8) Param   { return Param{kind: KindUint8, u: uint64(v)} }
func Uint16(v uint16) Param { return Param{kind: KindUint16, u: uint64(v)} }
func Uint32(v uint32) Param { return Param{kind: KindUint32, u: uint64(v)} }
func Uint64(v uint64) Param { return Param{kind: KindUint64, u: v} }

func Float32(v float32) Param { return Param{kind: KindFloat32, f: float64(v)} }
func Float64(v float64) Param { return Param{kind: KindFloat64, f: v} }

func Bool(v bool) Param {
	p := Param{kind: KindBool}
	if v {
		p.i = 1
	}
	return p
}

func String(v string) Param { return Param{kind: KindString, s: v} }

// Blob returns a blob parameter. The slice is not copied until the value
// is bound.
func Blob(v []byte) Param { return Param{kind: KindBlob, blob: v} }

// Null returns a SQL NULL parameter.
func Null() Param { return Param{} }

// Kind returns the parameter's type.
func (p Param) Kind() ParamKind { return p.kind }

// Len returns the byte length of string and blob parameters and zero for
// every other kind.
func (p Param) Len() int {
	switch p.kind {
	case KindString:
		return len(p.s)
	case KindBlob:
		return len(p.blob)
	}
	return 0
}

// Value returns the parameter as a value accepted by database/sql drivers.
func (p Param) Value() any {
	switch p.kind {
	case KindInt8:
		return int8(p.i)
	case KindInt16:
		return int16(p.i)
	case KindInt32:
		return int32(p.i)
	case KindInt64:
		return p.i
	case KindUint8:
		return uint8(p.u)
	case KindUint16:
		return uint16(p.u)
	case KindUint32:
		return uint32(p.u)
	case KindUint64:
		return p.u
	case KindFloat32:
		return float32(p.f)
	case KindFloat64:
		return p.f
	case KindBool:
		return p.i != 0
	case KindString:
		return p.s
	case KindBlob:
		return p.blob
	}
	return nil
}

// Literal renders the parameter the way it appears in a diagnostic query
// string. Blobs are not rendered.
func (p Param) Literal() string {
	switch p.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(p.i, 10)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(p.u, 10)
	case KindFloat32:
		return strconv.FormatFloat(p.f, 'g', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(p.f, 'g', -1, 64)
	case KindBool:
		if p.i != 0 {
			return "1"
		}
		return "0"
	case KindString:
		return "'" + strings.ReplaceAll(p.s, "'", "''") + "'"
	case KindBlob:
		return "BINARY"
	}
	return "NULL"
}

func (p Param) checkSize() error {
	switch p.kind {
	case KindString:
		if len(p.s) > MaxStringParamLen {
			return fmt.Errorf("%w: string of %d bytes exceeds %d", ErrParamTooLarge, len(p.s), MaxStringParamLen)
		}
	case KindBlob:
		if len(p.blob) > MaxBlobParamLen {
			return fmt.Errorf("%w: blob of %d bytes exceeds %d", ErrParamTooLarge, len(p.blob), MaxBlobParamLen)
		}
	}
	return nil
}

// owned returns a copy of p that shares no memory with the caller.
func (p Param) owned() Param {
	if p.kind == KindBlob {
		p.blob = append([]byte{}, p.blob...)
	}
	return p
}
