// Package heap implements the append-only tuple heap (C6, C7): table
// pages laid out as slotted pages with per-slot TupleMeta, and a table
// heap that chains pages together via next_page_id.
package heap

import (
	"encoding/binary"

	"github.com/relstore/relstore/internal/dberr"
)

const (
	tableHeaderSize = 8  // next_page_id(4) + num_tuples(2) + num_deleted_tuples(2)
	tableSlotSize   = 16 // offset(2) + size(2) + insert_txn(4) + delete_txn(4) + is_deleted(4)
)

// Rid identifies a tuple's physical location: a page and a slot within
// it. Stable for the tuple's lifetime; dangling after deletion or
// compaction (compaction is not implemented).
type Rid struct {
	PageID  uint32
	SlotNum uint16
}

// TupleMeta carries the transaction bookkeeping for one heap slot.
type TupleMeta struct {
	InsertTxnID uint32
	DeleteTxnID uint32
	IsDeleted   bool
}

// TablePage wraps a raw 4096-byte page buffer as a slotted page of
// heap tuples. The header holds next_page_id and the two tuple
// counters; the slot directory grows forward from byte 8; payloads
// are stacked backward from the end of the page.
type TablePage struct {
	buf []byte
}

// WrapTablePage views an existing page buffer as a TablePage without
// copying it.
func WrapTablePage(buf []byte) *TablePage {
	return &TablePage{buf: buf}
}

// InitTablePage zero-initialises buf as an empty table page chained to
// nextPageID (INVALID_PAGE_ID if this is to be the heap's last page
// for now).
func InitTablePage(buf []byte, nextPageID uint32) *TablePage {
	for i := range buf {
		buf[i] = 0
	}
	tp := &TablePage{buf: buf}
	tp.setNextPageID(nextPageID)
	tp.setNumTuples(0)
	tp.setNumDeletedTuples(0)
	return tp
}

func (tp *TablePage) NextPageID() uint32 {
	return binary.BigEndian.Uint32(tp.buf[0:4])
}

func (tp *TablePage) setNextPageID(pid uint32) {
	binary.BigEndian.PutUint32(tp.buf[0:4], pid)
}

// SetNextPageID updates the forward link, used by TableHeap when it
// appends a new page.
func (tp *TablePage) SetNextPageID(pid uint32) { tp.setNextPageID(pid) }

func (tp *TablePage) NumTuples() int {
	return int(binary.BigEndian.Uint16(tp.buf[4:6]))
}

func (tp *TablePage) setNumTuples(n int) {
	binary.BigEndian.PutUint16(tp.buf[4:6], uint16(n))
}

func (tp *TablePage) NumDeletedTuples() int {
	return int(binary.BigEndian.Uint16(tp.buf[6:8]))
}

func (tp *TablePage) setNumDeletedTuples(n int) {
	binary.BigEndian.PutUint16(tp.buf[6:8], uint16(n))
}

func slotOffset(slot int) int { return tableHeaderSize + slot*tableSlotSize }

func (tp *TablePage) readSlot(slot int) (offset, size uint16, meta TupleMeta) {
	off := slotOffset(slot)
	offset = binary.BigEndian.Uint16(tp.buf[off : off+2])
	size = binary.BigEndian.Uint16(tp.buf[off+2 : off+4])
	meta.InsertTxnID = binary.BigEndian.Uint32(tp.buf[off+4 : off+8])
	meta.DeleteTxnID = binary.BigEndian.Uint32(tp.buf[off+8 : off+12])
	meta.IsDeleted = binary.BigEndian.Uint32(tp.buf[off+12:off+16]) != 0
	return
}

func (tp *TablePage) writeSlot(slot int, offset, size uint16, meta TupleMeta) {
	off := slotOffset(slot)
	binary.BigEndian.PutUint16(tp.buf[off:off+2], offset)
	binary.BigEndian.PutUint16(tp.buf[off+2:off+4], size)
	binary.BigEndian.PutUint32(tp.buf[off+4:off+8], meta.InsertTxnID)
	binary.BigEndian.PutUint32(tp.buf[off+8:off+12], meta.DeleteTxnID)
	isDeleted := uint32(0)
	if meta.IsDeleted {
		isDeleted = 1
	}
	binary.BigEndian.PutUint32(tp.buf[off+12:off+16], isDeleted)
}

// lastPayloadOffset returns the offset of the most recently inserted
// tuple's payload, or len(buf) if the page holds no tuples yet.
func (tp *TablePage) lastPayloadOffset() int {
	n := tp.NumTuples()
	if n == 0 {
		return len(tp.buf)
	}
	offset, _, _ := tp.readSlot(n - 1)
	return int(offset)
}

// nextTupleOffset returns the first byte at which a tuple of size
// dataLen could be placed without colliding with the slot directory
// that would result from adding one more slot, or -1 if it does not fit.
func (tp *TablePage) nextTupleOffset(dataLen int) int {
	minOffset := tableHeaderSize + (tp.NumTuples()+1)*tableSlotSize
	newOffset := tp.lastPayloadOffset() - dataLen
	if newOffset < minOffset {
		return -1
	}
	return newOffset
}

// InsertTuple appends data as a new slot with the given metadata,
// returning the new slot number. Returns ErrTupleTooLarge if data does
// not fit in the page's remaining space.
func (tp *TablePage) InsertTuple(meta TupleMeta, data []byte) (uint16, error) {
	offset := tp.nextTupleOffset(len(data))
	if offset < 0 {
		return 0, dberr.ErrTupleTooLarge
	}
	copy(tp.buf[offset:offset+len(data)], data)
	slot := tp.NumTuples()
	tp.writeSlot(slot, uint16(offset), uint16(len(data)), meta)
	tp.setNumTuples(slot + 1)
	if meta.IsDeleted {
		tp.setNumDeletedTuples(tp.NumDeletedTuples() + 1)
	}
	return uint16(slot), nil
}

// UpdateTupleMeta rewrites only slot's metadata, keeping its payload
// and offset untouched, and maintains the deleted-tuple counter.
func (tp *TablePage) UpdateTupleMeta(slot uint16, meta TupleMeta) error {
	if int(slot) >= tp.NumTuples() {
		return dberr.ErrInvalidRid
	}
	offset, size, old := tp.readSlot(int(slot))
	if old.IsDeleted != meta.IsDeleted {
		delta := 1
		if old.IsDeleted {
			delta = -1
		}
		tp.setNumDeletedTuples(tp.NumDeletedTuples() + delta)
	}
	tp.writeSlot(int(slot), offset, size, meta)
	return nil
}

// Tuple returns the metadata and raw payload bytes stored at slot. The
// returned slice aliases the page buffer and must not be retained past
// the caller's hold on the frame latch.
func (tp *TablePage) Tuple(slot uint16) (TupleMeta, []byte, error) {
	if int(slot) >= tp.NumTuples() {
		return TupleMeta{}, nil, dberr.ErrInvalidRid
	}
	offset, size, meta := tp.readSlot(int(slot))
	return meta, tp.buf[offset : offset+size], nil
}

// TupleMetaAt returns only the metadata stored at slot.
func (tp *TablePage) TupleMetaAt(slot uint16) (TupleMeta, error) {
	if int(slot) >= tp.NumTuples() {
		return TupleMeta{}, dberr.ErrInvalidRid
	}
	_, _, meta := tp.readSlot(int(slot))
	return meta, nil
}
