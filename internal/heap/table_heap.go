package heap

import (
	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/disk"
)

// TableHeap is an append-only linked list of table pages (C7). The
// first page is allocated at construction and is never removed;
// subsequent pages are appended as earlier ones fill up.
type TableHeap struct {
	pool        *buffer.Manager
	firstPageID uint32
	lastPageID  uint32
}

// NewTableHeap allocates the heap's first page and returns a heap
// positioned on it.
func NewTableHeap(pool *buffer.Manager) (*TableHeap, error) {
	pid, frame, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	frame.Lock()
	InitTablePage(frame.Data(), disk.InvalidPageID)
	frame.Unlock()
	if err := pool.UnpinPage(pid, true); err != nil {
		return nil, err
	}
	return &TableHeap{pool: pool, firstPageID: pid, lastPageID: pid}, nil
}

// OpenTableHeap resumes an existing heap whose first and last page ids
// are already known (e.g. read back from a catalog).
func OpenTableHeap(pool *buffer.Manager, firstPageID, lastPageID uint32) *TableHeap {
	return &TableHeap{pool: pool, firstPageID: firstPageID, lastPageID: lastPageID}
}

// FirstPageID returns the heap's permanent first page.
func (h *TableHeap) FirstPageID() uint32 { return h.firstPageID }

// LastPageID returns the page currently accepting inserts.
func (h *TableHeap) LastPageID() uint32 { return h.lastPageID }

// InsertTuple appends data with meta to the heap, allocating a new
// last page if the current one is full. Fails with ErrTupleTooLarge if
// data cannot fit even in a freshly initialised page.
func (h *TableHeap) InsertTuple(meta TupleMeta, data []byte) (Rid, error) {
	triedFreshPage := false
	for {
		frame, err := h.pool.FetchPage(h.lastPageID)
		if err != nil {
			return Rid{}, err
		}
		frame.Lock()
		tp := WrapTablePage(frame.Data())
		slot, insErr := tp.InsertTuple(meta, data)
		frame.Unlock()

		if insErr == nil {
			if err := h.pool.UnpinPage(h.lastPageID, true); err != nil {
				return Rid{}, err
			}
			return Rid{PageID: h.lastPageID, SlotNum: slot}, nil
		}

		if err := h.pool.UnpinPage(h.lastPageID, false); err != nil {
			return Rid{}, err
		}
		if triedFreshPage {
			// Did not fit even on a page that held nothing else.
			return Rid{}, insErr
		}
		triedFreshPage = true

		newPid, newFrame, err := h.pool.NewPage()
		if err != nil {
			return Rid{}, err
		}
		newFrame.Lock()
		InitTablePage(newFrame.Data(), disk.InvalidPageID)
		newFrame.Unlock()
		if err := h.pool.UnpinPage(newPid, true); err != nil {
			return Rid{}, err
		}

		prevFrame, err := h.pool.FetchPage(h.lastPageID)
		if err != nil {
			return Rid{}, err
		}
		prevFrame.Lock()
		WrapTablePage(prevFrame.Data()).SetNextPageID(newPid)
		prevFrame.Unlock()
		if err := h.pool.UnpinPage(h.lastPageID, true); err != nil {
			return Rid{}, err
		}

		h.lastPageID = newPid
		// Loop again to retry the insert on the freshly linked page.
	}
}

// UpdateTupleMeta rewrites only the metadata for rid.
func (h *TableHeap) UpdateTupleMeta(rid Rid, meta TupleMeta) error {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame.Lock()
	err = WrapTablePage(frame.Data()).UpdateTupleMeta(rid.SlotNum, meta)
	frame.Unlock()
	if unpinErr := h.pool.UnpinPage(rid.PageID, err == nil); unpinErr != nil {
		return unpinErr
	}
	return err
}

// Tuple returns the metadata and a copy of the payload bytes at rid.
func (h *TableHeap) Tuple(rid Rid) (TupleMeta, []byte, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return TupleMeta{}, nil, err
	}
	frame.RLock()
	meta, raw, tErr := WrapTablePage(frame.Data()).Tuple(rid.SlotNum)
	var data []byte
	if tErr == nil {
		data = append([]byte(nil), raw...)
	}
	frame.RUnlock()
	if unpinErr := h.pool.UnpinPage(rid.PageID, false); unpinErr != nil {
		return TupleMeta{}, nil, unpinErr
	}
	return meta, data, tErr
}

// TupleMetaAt returns only the metadata stored at rid.
func (h *TableHeap) TupleMetaAt(rid Rid) (TupleMeta, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return TupleMeta{}, err
	}
	frame.RLock()
	meta, mErr := WrapTablePage(frame.Data()).TupleMetaAt(rid.SlotNum)
	frame.RUnlock()
	if unpinErr := h.pool.UnpinPage(rid.PageID, false); unpinErr != nil {
		return TupleMeta{}, unpinErr
	}
	return meta, mErr
}

// nextPageID returns the page following rid's page.
func (h *TableHeap) nextPageID(pageID uint32) (uint32, error) {
	frame, err := h.pool.FetchPage(pageID)
	if err != nil {
		return disk.InvalidPageID, err
	}
	frame.RLock()
	next := WrapTablePage(frame.Data()).NextPageID()
	frame.RUnlock()
	if unpinErr := h.pool.UnpinPage(pageID, false); unpinErr != nil {
		return disk.InvalidPageID, unpinErr
	}
	return next, nil
}

// numTuples returns the tuple count of a given page, used by the
// iterator to skip over pages with no tuples at all.
func (h *TableHeap) numTuples(pageID uint32) (int, error) {
	frame, err := h.pool.FetchPage(pageID)
	if err != nil {
		return 0, err
	}
	frame.RLock()
	n := WrapTablePage(frame.Data()).NumTuples()
	frame.RUnlock()
	if unpinErr := h.pool.UnpinPage(pageID, false); unpinErr != nil {
		return 0, unpinErr
	}
	return n, nil
}

// Begin returns the rid of the first live tuple in the heap, or false
// if the heap holds none.
func (h *TableHeap) Begin() (Rid, bool, error) {
	return h.seekLive(Rid{PageID: h.firstPageID, SlotNum: 0})
}

// seekLive walks forward from seed (inclusive) until it lands on a
// non-deleted tuple, skipping slots past a page's tuple count and any
// number of consecutive empty or exhausted pages via next_page_id.
// Every hop pins only the page it is currently inspecting.
func (h *TableHeap) seekLive(seed Rid) (Rid, bool, error) {
	pageID, slot := seed.PageID, seed.SlotNum
	for pageID != disk.InvalidPageID {
		n, err := h.numTuples(pageID)
		if err != nil {
			return Rid{}, false, err
		}
		for int(slot) < n {
			rid := Rid{PageID: pageID, SlotNum: slot}
			meta, err := h.TupleMetaAt(rid)
			if err != nil {
				return Rid{}, false, err
			}
			if !meta.IsDeleted {
				return rid, true, nil
			}
			slot++
		}
		pageID, err = h.nextPageID(pageID)
		if err != nil {
			return Rid{}, false, err
		}
		slot = 0
	}
	return Rid{}, false, nil
}

// TableIterator is an externally-driven cursor over a TableHeap's live
// tuples. Holding an iterator pins no pages; each call to Next pins
// and unpins only the pages it touches.
type TableIterator struct {
	heap *TableHeap
	stop *Rid // exclusive bound; nil means scan to the end

	seed Rid // next candidate position to search forward from
	done bool
}

// Iterate returns an iterator starting at start (or the heap's first
// live tuple if start is nil) and stopping before stop (or the end of
// the heap if stop is nil).
func (h *TableHeap) Iterate(start, stop *Rid) *TableIterator {
	it := &TableIterator{heap: h, stop: stop}
	if start != nil {
		it.seed = *start
	} else {
		it.seed = Rid{PageID: h.firstPageID, SlotNum: 0}
	}
	return it
}

// Next returns the next live (rid, meta, data) triple, or ok=false once
// the iterator is exhausted.
func (it *TableIterator) Next() (Rid, TupleMeta, []byte, bool, error) {
	if it.done {
		return Rid{}, TupleMeta{}, nil, false, nil
	}

	rid, ok, err := it.heap.seekLive(it.seed)
	if err != nil {
		return Rid{}, TupleMeta{}, nil, false, err
	}
	if !ok {
		it.done = true
		return Rid{}, TupleMeta{}, nil, false, nil
	}
	if it.stop != nil && rid == *it.stop {
		it.done = true
		return Rid{}, TupleMeta{}, nil, false, nil
	}

	meta, data, err := it.heap.Tuple(rid)
	if err != nil {
		return Rid{}, TupleMeta{}, nil, false, err
	}
	it.seed = Rid{PageID: rid.PageID, SlotNum: rid.SlotNum + 1}
	return rid, meta, data, true, nil
}
