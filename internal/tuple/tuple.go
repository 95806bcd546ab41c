// Package tuple implements C5: byte-exact encoding/decoding of scalar
// values and tuples, and the tuple-order comparator used throughout the
// storage core (table heap payloads, B+tree keys).
//
// Every scalar is encoded big-endian (spec.md §4.5/§6): a one-byte null
// flag (0 = value present, 1 = null) followed by the value's fixed-width
// big-endian bytes. Tuple data is the concatenation of its columns'
// encodings in schema order. The codec is round-trip exact: decoding an
// encoded tuple under the same schema always reproduces the original
// values.
package tuple

import (
	"encoding/binary"
	"fmt"

	"github.com/relstore/relstore/internal/schema"
)

// Tuple pairs raw encoded bytes with the schema needed to interpret
// them. Per spec.md §9, the schema is carried only where convenient;
// downstream storage components (table page, B+tree page) treat Data as
// opaque bytes and rely on the caller to supply the matching Schema.
type Tuple struct {
	Schema *schema.Schema
	Data   []byte
}

// New builds a Tuple by encoding values in schema column order.
func New(s *schema.Schema, values []Value) (Tuple, error) {
	data, err := Encode(s, values)
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{Schema: s, Data: data}, nil
}

// Values decodes the tuple's values under its schema.
func (t Tuple) Values() ([]Value, error) {
	return Decode(t.Schema, t.Data)
}

// Empty returns the all-null tuple under s: the sentinel key stored in
// slot 0 of every B+tree internal page (spec.md §3, §4.8). Every column
// is encoded as null, including columns the schema marks non-nullable.
func Empty(s *schema.Schema) Tuple {
	data := make([]byte, 0, s.EncodedWidth())
	for _, col := range s.Columns {
		data = appendValue(data, col.Type, NullValue())
	}
	return Tuple{Schema: s, Data: data}
}

// Encode concatenates the big-endian encoding of each value, in schema
// column order, into a single byte slice.
func Encode(s *schema.Schema, values []Value) ([]byte, error) {
	if len(values) != len(s.Columns) {
		return nil, fmt.Errorf("tuple: schema has %d columns, got %d values", len(s.Columns), len(values))
	}
	buf := make([]byte, 0, s.EncodedWidth())
	for i, col := range s.Columns {
		v := values[i]
		if v.Null && !col.Nullable {
			return nil, fmt.Errorf("tuple: column %q is not nullable", col.Name)
		}
		buf = appendValue(buf, col.Type, v)
	}
	return buf, nil
}

func appendValue(buf []byte, t schema.ColType, v Value) []byte {
	if v.Null {
		buf = append(buf, 1)
		return append(buf, make([]byte, t.Width())...)
	}
	buf = append(buf, 0)
	var tmp [8]byte
	switch t {
	case schema.Bool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return append(buf, b)
	case schema.Int8:
		return append(buf, byte(v.Int))
	case schema.Int16:
		binary.BigEndian.PutUint16(tmp[:2], uint16(v.Int))
		return append(buf, tmp[:2]...)
	case schema.Int32:
		binary.BigEndian.PutUint32(tmp[:4], uint32(v.Int))
		return append(buf, tmp[:4]...)
	case schema.Int64:
		binary.BigEndian.PutUint64(tmp[:8], uint64(v.Int))
		return append(buf, tmp[:8]...)
	default:
		panic(fmt.Sprintf("tuple: unknown column type %d", t))
	}
}

// Decode splits data into one Value per schema column, in order.
func Decode(s *schema.Schema, data []byte) ([]Value, error) {
	values := make([]Value, len(s.Columns))
	off := 0
	for i, col := range s.Columns {
		width := 1 + col.Type.Width()
		if off+width > len(data) {
			return nil, fmt.Errorf("tuple: truncated data at column %d (%q)", i, col.Name)
		}
		v, err := decodeValue(col.Type, data[off:off+width])
		if err != nil {
			return nil, err
		}
		values[i] = v
		off += width
	}
	return values, nil
}

func decodeValue(t schema.ColType, raw []byte) (Value, error) {
	if raw[0] == 1 {
		return NullValue(), nil
	}
	if raw[0] != 0 {
		return Value{}, fmt.Errorf("tuple: invalid null flag 0x%02x", raw[0])
	}
	val := raw[1:]
	switch t {
	case schema.Bool:
		return BoolValue(val[0] != 0), nil
	case schema.Int8:
		return IntValue(int64(int8(val[0]))), nil
	case schema.Int16:
		return IntValue(int64(int16(binary.BigEndian.Uint16(val)))), nil
	case schema.Int32:
		return IntValue(int64(int32(binary.BigEndian.Uint32(val)))), nil
	case schema.Int64:
		return IntValue(int64(binary.BigEndian.Uint64(val))), nil
	default:
		return Value{}, fmt.Errorf("tuple: unknown column type %d", t)
	}
}

// Compare implements the tuple-order comparator (spec.md §4.5):
// lexicographic column-wise comparison using the schema's column types.
// Nulls compare equal to nulls and less than any non-null value.
// Returns <0, 0, >0 as a and b compare less, equal, greater.
func Compare(s *schema.Schema, a, b []byte) int {
	offA, offB := 0, 0
	for _, col := range s.Columns {
		width := 1 + col.Type.Width()
		va, _ := decodeValue(col.Type, a[offA:offA+width])
		vb, _ := decodeValue(col.Type, b[offB:offB+width])
		if c := compareValue(col.Type, va, vb); c != 0 {
			return c
		}
		offA += width
		offB += width
	}
	return 0
}

func compareValue(t schema.ColType, a, b Value) int {
	switch {
	case a.Null && b.Null:
		return 0
	case a.Null:
		return -1
	case b.Null:
		return 1
	}
	ai, bi := a.Int, b.Int
	if t == schema.Bool {
		ai, bi = boolInt(a.Bool), boolInt(b.Bool)
	}
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
