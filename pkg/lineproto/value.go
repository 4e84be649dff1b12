package lineproto

import (
	"bytes"
	"math"
	"strconv"
)

// Kind identifies which literal form a Value renders with.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindUint32
	KindUint64
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindString:  "string",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindFloat32: "float32",
	KindFloat64: "float64",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// IsInteger reports whether k renders with the integer suffix.
func (k Kind) IsInteger() bool {
	return k >= KindUint32 && k <= KindInt64
}

// IsFloat reports whether k renders as a bare decimal.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// Native is the set of Go types that map one-to-one onto a Kind.
type Native interface {
	string | uint32 | uint64 | int32 | int64 | float32 | float64
}

// Value is a typed field value. The zero Value has KindInvalid and is
// rejected by the serializers.
type Value struct {
	kind Kind
	s    string
	n    uint64 // integer bits; signed kinds store the two's complement
	f    float64
}

// String returns a text value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Uint32 returns an unsigned 32-bit integer value.
func Uint32(v uint32) Value { return Value{kind: KindUint32, n: uint64(v)} }

// Uint64 returns an unsigned 64-bit integer value.
func Uint64(v uint64) Value { return Value{kind: KindUint64, n: v} }

// Int32 returns a signed 32-bit integer value.
func Int32(v int32) Value { return Value{kind: KindInt32, n: uint64(int64(v))} }

// Int64 returns a signed 64-bit integer value.
func Int64(v int64) Value { return Value{kind: KindInt64, n: uint64(v)} }

// Float32 returns a 32-bit float value.
func Float32(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }

// Float64 returns a 64-bit float value.
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }

// ValueOf converts a native value to the Value of the matching kind.
// No numeric coercion happens: an int32 always becomes KindInt32.
func ValueOf[T Native](v T) Value {
	switch x := any(v).(type) {
	case string:
		return String(x)
	case uint32:
		return Uint32(x)
	case uint64:
		return Uint64(x)
	case int32:
		return Int32(x)
	case int64:
		return Int64(x)
	case float32:
		return Float32(x)
	case float64:
		return Float64(x)
	}
	return Value{}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the text of a KindString value and "" otherwise.
func (v Value) Str() string { return v.s }

// Int returns the integer held by a signed integer value.
func (v Value) Int() int64 { return int64(v.n) }

// Uint returns the integer held by an unsigned integer value.
func (v Value) Uint() uint64 { return v.n }

// Float returns the float held by a float value.
func (v Value) Float() float64 { return v.f }

// AppendTo appends the literal form of v to dst. KindInvalid appends nothing.
func (v Value) AppendTo(dst []byte) []byte {
	switch v.kind {
	case KindString:
		return AppendEscapedFieldString(dst, v.s)
	case KindUint32, KindUint64:
		dst = strconv.AppendUint(dst, v.n, 10)
		return append(dst, 'i')
	case KindInt32, KindInt64:
		dst = strconv.AppendInt(dst, int64(v.n), 10)
		return append(dst, 'i')
	case KindFloat32:
		return appendFloat(dst, v.f, 32)
	case KindFloat64:
		return appendFloat(dst, v.f, 64)
	}
	return dst
}

// String returns the literal form of v.
func (v Value) String() string {
	return string(v.AppendTo(make([]byte, 0, 24)))
}

// appendFloat writes the shortest decimal that parses back to f at the given
// bit size. Integral values keep a ".0" so the literal reads as a float.
// NaN and infinities are written as strconv spells them.
func appendFloat(dst []byte, f float64, bitSize int) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, f, 'f', -1, bitSize)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return dst
	}
	if bytes.IndexByte(dst[start:], '.') < 0 {
		dst = append(dst, '.', '0')
	}
	return dst
}
