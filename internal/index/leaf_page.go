package index

import (
	"encoding/binary"

	"github.com/relstore/relstore/internal/disk"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/schema"
	"github.com/relstore/relstore/internal/tuple"
)

const leafHeaderSize = 16 // page_type(4) + current_size(4) + max_size(4) + next_page_id(4)

// LeafEntry is one (key, rid) pair stored in a leaf page.
type LeafEntry struct {
	Key []byte
	Rid heap.Rid
}

// LeafPage is a B+tree leaf page (C8): a header, then slots of
// (fixed-width key, rid). Leaves are singly linked via next_page_id
// for ordered range scans. Unlike InternalPage there is no sentinel:
// every slot in [0, current_size) is a live key.
type LeafPage struct {
	buf       []byte
	keySchema *schema.Schema
	keyWidth  int
}

func entrySizeLeaf(keyWidth int) int { return keyWidth + 8 } // key + rid.page_id(4) + rid.slot_num(4)

// WrapLeafPage views an existing page buffer as a LeafPage.
func WrapLeafPage(buf []byte, keySchema *schema.Schema) *LeafPage {
	return &LeafPage{buf: buf, keySchema: keySchema, keyWidth: keySchema.EncodedWidth()}
}

// InitLeafPage zero-initialises buf as an empty leaf page with the
// given capacity, unlinked from any sibling.
func InitLeafPage(buf []byte, keySchema *schema.Schema, maxSize uint32) *LeafPage {
	for i := range buf {
		buf[i] = 0
	}
	p := WrapLeafPage(buf, keySchema)
	binary.BigEndian.PutUint32(p.buf[0:4], uint32(PageTypeLeaf))
	p.setCurrentSize(0)
	binary.BigEndian.PutUint32(p.buf[8:12], maxSize)
	p.SetNextPageID(disk.InvalidPageID)
	return p
}

func (p *LeafPage) entrySize() int { return entrySizeLeaf(p.keyWidth) }

func (p *LeafPage) CurrentSize() int {
	return int(binary.BigEndian.Uint32(p.buf[4:8]))
}

func (p *LeafPage) setCurrentSize(n int) {
	binary.BigEndian.PutUint32(p.buf[4:8], uint32(n))
}

func (p *LeafPage) MaxSize() int {
	return int(binary.BigEndian.Uint32(p.buf[8:12]))
}

func (p *LeafPage) MinSize() int { return p.MaxSize() / 2 }

func (p *LeafPage) IsFull() bool { return p.CurrentSize() > p.MaxSize() }

// WouldOverflow reports whether inserting one more entry would leave
// the page over-full, without mutating it.
func (p *LeafPage) WouldOverflow() bool { return p.CurrentSize()+1 > p.MaxSize() }

func (p *LeafPage) NextPageID() uint32 {
	return binary.BigEndian.Uint32(p.buf[12:16])
}

func (p *LeafPage) SetNextPageID(pid uint32) {
	binary.BigEndian.PutUint32(p.buf[12:16], pid)
}

func (p *LeafPage) entryOffset(i int) int { return leafHeaderSize + i*p.entrySize() }

func (p *LeafPage) KeyAt(i int) []byte {
	off := p.entryOffset(i)
	return p.buf[off : off+p.keyWidth]
}

func (p *LeafPage) RidAt(i int) heap.Rid {
	off := p.entryOffset(i) + p.keyWidth
	return heap.Rid{
		PageID:  binary.BigEndian.Uint32(p.buf[off : off+4]),
		SlotNum: uint16(binary.BigEndian.Uint32(p.buf[off+4 : off+8])),
	}
}

func (p *LeafPage) setEntry(i int, key []byte, rid heap.Rid) {
	off := p.entryOffset(i)
	copy(p.buf[off:off+p.keyWidth], key)
	binary.BigEndian.PutUint32(p.buf[off+p.keyWidth:off+p.keyWidth+4], rid.PageID)
	binary.BigEndian.PutUint32(p.buf[off+p.keyWidth+4:off+p.keyWidth+8], uint32(rid.SlotNum))
}

// LookUp returns the rid stored for an exact match of key, or false.
func (p *LeafPage) LookUp(key []byte) (heap.Rid, bool) {
	i, ok := p.find(key)
	if !ok {
		return heap.Rid{}, false
	}
	return p.RidAt(i), true
}

// find does a binary search over [0, current_size) for key, returning
// the matching slot and true, or the insertion point and false.
func (p *LeafPage) find(key []byte) (int, bool) {
	lo, hi := 0, p.CurrentSize()
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := tuple.Compare(p.keySchema, key, p.KeyAt(mid))
		switch {
		case cmp == 0:
			return mid, true
		case cmp < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false
}

// Insert appends (key, rid) and re-sorts by key, matching the naive
// append-then-sort source behaviour.
func (p *LeafPage) Insert(key []byte, rid heap.Rid) {
	n := p.CurrentSize()
	p.setEntry(n, key, rid)
	p.setCurrentSize(n + 1)
	for i := 1; i < n+1; i++ {
		for j := i; j > 0 && tuple.Compare(p.keySchema, p.KeyAt(j), p.KeyAt(j-1)) < 0; j-- {
			p.swap(j, j-1)
		}
	}
}

func (p *LeafPage) swap(i, j int) {
	ki, ri := append([]byte(nil), p.KeyAt(i)...), p.RidAt(i)
	kj, rj := append([]byte(nil), p.KeyAt(j)...), p.RidAt(j)
	p.setEntry(i, kj, rj)
	p.setEntry(j, ki, ri)
}

func (p *LeafPage) removeAt(i int) {
	n := p.CurrentSize()
	for k := i; k < n-1; k++ {
		p.setEntry(k, append([]byte(nil), p.KeyAt(k+1)...), p.RidAt(k+1))
	}
	p.setCurrentSize(n - 1)
}

// Delete removes the slot matching key, if present, and reports
// whether it found one.
func (p *LeafPage) Delete(key []byte) bool {
	i, ok := p.find(key)
	if !ok {
		return false
	}
	p.removeAt(i)
	return true
}

// Entries returns a copy of every (key, rid) slot in [lo, hi).
func (p *LeafPage) Entries(lo, hi int) []LeafEntry {
	out := make([]LeafEntry, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, LeafEntry{Key: append([]byte(nil), p.KeyAt(i)...), Rid: p.RidAt(i)})
	}
	return out
}

// SplitOff removes slots [at, current_size) and returns them.
func (p *LeafPage) SplitOff(at int) []LeafEntry {
	out := p.Entries(at, p.CurrentSize())
	p.setCurrentSize(at)
	return out
}

// AppendEntries writes entries onto the end of this page's slot
// array without sorting, used to rebuild a page from entries already
// known to be in order.
func (p *LeafPage) AppendEntries(entries []LeafEntry) {
	n := p.CurrentSize()
	for i, e := range entries {
		p.setEntry(n+i, e.Key, e.Rid)
	}
	p.setCurrentSize(n + len(entries))
}
