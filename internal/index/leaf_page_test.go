package index

import (
	"testing"

	"github.com/relstore/relstore/internal/disk"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/tuple"
)

// TestLeafPage_InsertAndLookUp matches spec.md §8 scenario S4: max_size=5,
// keys 1..5 each with rid (k, k).
func TestLeafPage_InsertAndLookUp(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitLeafPage(buf, s, 5)

	for k := int32(1); k <= 5; k++ {
		p.Insert(intKey(s, k), heap.Rid{PageID: uint32(k), SlotNum: uint16(k)})
	}

	if p.CurrentSize() != 5 {
		t.Fatalf("current_size = %d, want 5", p.CurrentSize())
	}

	rid, ok := p.LookUp(intKey(s, 3))
	if !ok {
		t.Fatal("look_up(3): expected a match")
	}
	if rid != (heap.Rid{PageID: 3, SlotNum: 3}) {
		t.Fatalf("look_up(3) = %+v, want {3 3}", rid)
	}

	if _, ok := p.LookUp(intKey(s, 6)); ok {
		t.Fatal("look_up(6): expected no match")
	}
}

func TestLeafPage_InsertOutOfOrderStaysSorted(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitLeafPage(buf, s, 5)

	for _, k := range []int32{3, 1, 4, 2} {
		p.Insert(intKey(s, k), heap.Rid{PageID: uint32(k), SlotNum: uint16(k)})
	}

	for i, want := range []int32{1, 2, 3, 4} {
		vals, err := tuple.Decode(s, p.KeyAt(i))
		if err != nil {
			t.Fatal(err)
		}
		if got := int32(vals[0].Int); got != want {
			t.Errorf("slot %d = %d, want %d", i, got, want)
		}
	}
}

func TestLeafPage_Delete(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitLeafPage(buf, s, 5)

	for k := int32(1); k <= 3; k++ {
		p.Insert(intKey(s, k), heap.Rid{PageID: uint32(k), SlotNum: uint16(k)})
	}

	if !p.Delete(intKey(s, 2)) {
		t.Fatal("expected delete(2) to find a match")
	}
	if p.CurrentSize() != 2 {
		t.Fatalf("current_size = %d, want 2", p.CurrentSize())
	}
	if _, ok := p.LookUp(intKey(s, 2)); ok {
		t.Fatal("key 2 should no longer be present")
	}
	if p.Delete(intKey(s, 2)) {
		t.Fatal("deleting an absent key should report no match")
	}
}

func TestLeafPage_WouldOverflow(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitLeafPage(buf, s, 2)

	p.Insert(intKey(s, 1), heap.Rid{PageID: 1, SlotNum: 1})
	if p.WouldOverflow() {
		t.Fatal("one entry on a max_size=2 page should not overflow on next insert")
	}
	p.Insert(intKey(s, 2), heap.Rid{PageID: 2, SlotNum: 2})
	if !p.WouldOverflow() {
		t.Fatal("a full page should overflow on the next insert")
	}
}

func TestLeafPage_NextPageIDDefaultsInvalid(t *testing.T) {
	s := intKeySchema()
	buf := make([]byte, disk.PageSize)
	p := InitLeafPage(buf, s, 5)
	if p.NextPageID() != disk.InvalidPageID {
		t.Fatalf("next_page_id = %d, want InvalidPageID", p.NextPageID())
	}
	p.SetNextPageID(7)
	if p.NextPageID() != 7 {
		t.Fatalf("next_page_id = %d, want 7", p.NextPageID())
	}
}
