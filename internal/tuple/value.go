package tuple

import "fmt"

// Value is a single decoded column value. Null is true iff the column
// held SQL NULL; Int holds integer values (widened to int64) and Bool
// holds boolean values. Both are meaningless when Null is true.
type Value struct {
	Null bool
	Int  int64
	Bool bool
}

// NullValue returns a null Value.
func NullValue() Value { return Value{Null: true} }

// IntValue returns a non-null integer Value.
func IntValue(v int64) Value { return Value{Int: v} }

// BoolValue returns a non-null boolean Value.
func BoolValue(v bool) Value { return Value{Bool: v} }

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	return fmt.Sprintf("%d", v.Int)
}
