package tuple

import (
	"testing"

	"github.com/relstore/relstore/internal/schema"
)

func testSchema() *schema.Schema {
	return schema.New(
		schema.Column{Name: "a", Type: schema.Int32, Nullable: true},
		schema.Column{Name: "b", Type: schema.Int64},
		schema.Column{Name: "c", Type: schema.Bool, Nullable: true},
	)
}

func TestTuple_RoundTrip(t *testing.T) {
	s := testSchema()
	tests := []struct {
		name   string
		values []Value
	}{
		{"all-values", []Value{IntValue(42), IntValue(-100), BoolValue(true)}},
		{"null-first", []Value{NullValue(), IntValue(7), BoolValue(false)}},
		{"all-null-nullable", []Value{NullValue(), IntValue(0), NullValue()}},
		{"negative-32", []Value{IntValue(-1), IntValue(1), BoolValue(true)}},
		{"max-32", []Value{IntValue(2147483647), IntValue(9223372036854775807), BoolValue(false)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(s, tt.values)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(s, data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			for i := range tt.values {
				if got[i] != tt.values[i] {
					t.Errorf("[%d] got %+v, want %+v", i, got[i], tt.values[i])
				}
			}
		})
	}
}

func TestTuple_EncodedWidthFixed(t *testing.T) {
	s := testSchema()
	want := s.EncodedWidth()
	a, err := Encode(s, []Value{IntValue(1), IntValue(2), BoolValue(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != want {
		t.Fatalf("got width %d, want %d", len(a), want)
	}
	b, err := Encode(s, []Value{NullValue(), IntValue(2), NullValue()})
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != want {
		t.Fatalf("null-bearing tuple width %d, want %d (fixed width regardless of null)", len(b), want)
	}
}

func TestTuple_RejectsNonNullableNull(t *testing.T) {
	s := testSchema()
	_, err := Encode(s, []Value{IntValue(1), NullValue(), BoolValue(true)})
	if err == nil {
		t.Fatal("expected error encoding null into non-nullable column b")
	}
}

func TestTuple_EmptyIsAllNull(t *testing.T) {
	s := testSchema()
	empty := Empty(s)
	values, err := empty.Values()
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range values {
		if !v.Null {
			t.Errorf("column %d of empty sentinel tuple is not null: %+v", i, v)
		}
	}
}

func TestCompare_Ordering(t *testing.T) {
	s := schema.New(schema.Column{Name: "k", Type: schema.Int32, Nullable: true})

	mk := func(v Value) []byte {
		data, err := Encode(s, []Value{v})
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	null := mk(NullValue())
	neg := mk(IntValue(-5))
	zero := mk(IntValue(0))
	pos := mk(IntValue(5))

	cases := []struct {
		a, b []byte
		want int
	}{
		{null, null, 0},
		{null, neg, -1},
		{neg, null, 1},
		{neg, zero, -1},
		{zero, neg, 1},
		{zero, zero, 0},
		{zero, pos, -1},
	}
	for i, c := range cases {
		got := sign(Compare(s, c.a, c.b))
		if got != c.want {
			t.Errorf("case %d: Compare sign = %d, want %d", i, got, c.want)
		}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func TestCompare_SortsIntegerSequence(t *testing.T) {
	s := schema.New(schema.Column{Name: "k", Type: schema.Int64})
	vals := []int64{5, -3, 0, 100, -100, 1}
	encoded := make([][]byte, len(vals))
	for i, v := range vals {
		data, err := Encode(s, []Value{IntValue(v)})
		if err != nil {
			t.Fatal(err)
		}
		encoded[i] = data
	}
	for i := 0; i < len(encoded); i++ {
		for j := i + 1; j < len(encoded); j++ {
			want := sign(int(vals[i] - vals[j]))
			if vals[i] < vals[j] {
				want = -1
			} else if vals[i] > vals[j] {
				want = 1
			} else {
				want = 0
			}
			got := sign(Compare(s, encoded[i], encoded[j]))
			if got != want {
				t.Errorf("Compare(%d, %d) sign = %d, want %d", vals[i], vals[j], got, want)
			}
		}
	}
}
