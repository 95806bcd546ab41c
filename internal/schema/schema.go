// Package schema describes the typed, nullable columns of a tuple.
//
// The storage core treats schema as an opaque descriptor (spec.md §3):
// it never interprets column names or business meaning, only the
// ordered list of column types needed to encode/decode/compare tuple
// bytes.
package schema

import "fmt"

// ColType is a fixed-width scalar column type. The storage core only
// ever encodes these five types (spec.md §6); richer SQL types are an
// external collaborator's concern.
type ColType uint8

const (
	Int8 ColType = iota
	Int16
	Int32
	Int64
	Bool
)

// Width returns the fixed encoded width of a value of this type, not
// counting the 1-byte null flag.
func (t ColType) Width() int {
	switch t {
	case Int8, Bool:
		return 1
	case Int16:
		return 2
	case Int32:
		return 4
	case Int64:
		return 8
	default:
		panic(fmt.Sprintf("schema: unknown column type %d", t))
	}
}

func (t ColType) String() string {
	switch t {
	case Int8:
		return "INT8"
	case Int16:
		return "INT16"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Bool:
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

// Column is a single typed, nullable field in a Schema.
type Column struct {
	Name     string
	Type     ColType
	Nullable bool
}

// Schema is an ordered sequence of columns. It provides field layout
// and tuple comparison for every other storage-core component; it is
// never mutated after construction.
type Schema struct {
	Columns []Column
}

// New builds a Schema from the given columns.
func New(cols ...Column) *Schema {
	cp := make([]Column, len(cols))
	copy(cp, cols)
	return &Schema{Columns: cp}
}

// ColumnCount returns the number of columns.
func (s *Schema) ColumnCount() int { return len(s.Columns) }

// EncodedWidth returns the total fixed byte width of a tuple under this
// schema: one null-flag byte plus the value width, per column.
func (s *Schema) EncodedWidth() int {
	n := 0
	for _, c := range s.Columns {
		n += 1 + c.Type.Width()
	}
	return n
}
