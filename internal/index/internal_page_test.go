package index

import (
	"bytes"
	"testing"

	"github.com/relstore/relstore/internal/disk"
	"github.com/relstore/relstore/internal/schema"
	"github.com/relstore/relstore/internal/tuple"
)

func intKeySchema() *schema.Schema {
	return schema.New(schema.Column{Name: "k", Type: schema.Int32})
}

func intKey(s *schema.Schema, v int32) []byte {
	data, err := tuple.Encode(s, []tuple.Value{tuple.IntValue(int64(v))})
	if err != nil {
		panic(err)
	}
	return data
}

// TestInternalPage_InsertAndLookUp matches spec.md §8 scenario S3:
// max_size=5, sentinel pointing at pid 0, then keys 1..4 each pointing
// at their own page id.
func TestInternalPage_InsertAndLookUp(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 5)

	p.Insert(tuple.Empty(s).Data, 0)
	for k := int32(1); k <= 4; k++ {
		p.Insert(intKey(s, k), uint32(k))
	}

	if p.CurrentSize() != 5 {
		t.Fatalf("current_size = %d, want 5", p.CurrentSize())
	}

	cases := []struct {
		key     int32
		wantPid uint32
	}{
		{0, 0},
		{3, 3},
		{5, 4},
	}
	for _, c := range cases {
		got, err := p.LookUp(intKey(s, c.key))
		if err != nil {
			t.Fatalf("look_up(%d): %v", c.key, err)
		}
		if got != c.wantPid {
			t.Errorf("look_up(%d) = %d, want %d", c.key, got, c.wantPid)
		}
	}
}

func TestInternalPage_LookUpOnEmptyIsInternalError(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 5)
	if _, err := p.LookUp(intKey(s, 1)); err == nil {
		t.Fatal("expected an error looking up on an empty internal page")
	}
}

// TestInternalPage_Delete matches spec.md §8 scenario S5: starting from
// sentinel + keys 1..4, deleting key 2 leaves current_size=4 with slot 1
// holding key 1 and slot 2 holding key 3.
func TestInternalPage_Delete(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 5)

	p.Insert(tuple.Empty(s).Data, 0)
	for k := int32(1); k <= 4; k++ {
		p.Insert(intKey(s, k), uint32(k))
	}

	p.Delete(intKey(s, 2))

	if p.CurrentSize() != 4 {
		t.Fatalf("current_size = %d, want 4", p.CurrentSize())
	}
	if !bytes.Equal(p.KeyAt(1), intKey(s, 1)) {
		t.Errorf("slot 1 key = %v, want key(1)", p.KeyAt(1))
	}
	if !bytes.Equal(p.KeyAt(2), intKey(s, 3)) {
		t.Errorf("slot 2 key = %v, want key(3)", p.KeyAt(2))
	}
}

func TestInternalPage_WouldOverflow(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 2)

	p.Insert(tuple.Empty(s).Data, 0)
	if p.WouldOverflow() {
		t.Fatal("one entry on a max_size=2 page should not overflow on next insert")
	}
	p.Insert(intKey(s, 1), 1)
	if !p.WouldOverflow() {
		t.Fatal("a full page should overflow on the next insert")
	}
}

// TestInternalPage_DeleteByPageID_LeavesLoneSentinel checks that
// removing a child down to a single remaining entry leaves that entry
// in place (as the sentinel) rather than collapsing the page to
// current_size 0. The one-child state is what maybeCollapseRoot (for
// a root) or the next level's rebalance (for anyone else) expects.
func TestInternalPage_DeleteByPageID_LeavesLoneSentinel(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 5)

	p.Insert(tuple.Empty(s).Data, 10)
	p.Insert(intKey(s, 1), 20)

	p.DeleteByPageID(20)

	if p.CurrentSize() != 1 {
		t.Fatalf("current_size = %d, want 1", p.CurrentSize())
	}
	if p.PageIDAt(0) != 10 {
		t.Fatalf("surviving child pid = %d, want 10", p.PageIDAt(0))
	}
}

// TestInternalPage_DeleteByPageID_RemovingSentinelPromotesNext checks
// that deleting the sentinel's own child (slot 0) still leaves a
// well-formed lone sentinel over the other surviving child, rather
// than collapsing away.
func TestInternalPage_DeleteByPageID_RemovingSentinelPromotesNext(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 5)

	p.Insert(tuple.Empty(s).Data, 10)
	p.Insert(intKey(s, 1), 20)

	p.DeleteByPageID(10)

	if p.CurrentSize() != 1 {
		t.Fatalf("current_size = %d, want 1", p.CurrentSize())
	}
	if p.PageIDAt(0) != 20 {
		t.Fatalf("surviving child pid = %d, want 20", p.PageIDAt(0))
	}
}

func TestInternalPage_IsFull(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitInternalPage(buf, s, 3)

	p.Insert(tuple.Empty(s).Data, 0)
	p.Insert(intKey(s, 1), 1)
	p.Insert(intKey(s, 2), 2)
	if p.IsFull() {
		t.Fatal("page with current_size == max_size should not be full")
	}
	p.Insert(intKey(s, 3), 3)
	if !p.IsFull() {
		t.Fatal("page with current_size > max_size should be full")
	}
}
