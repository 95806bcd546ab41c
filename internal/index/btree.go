package index

import (
	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/dberr"
	"github.com/relstore/relstore/internal/disk"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/schema"
	"github.com/relstore/relstore/internal/tuple"
)

// BTree is a B+tree index (C9) over a key schema, backed by a buffer
// pool shared with any other indexes or heaps on the same file.
// root_page_id == disk.InvalidPageID denotes an empty index. Writers
// are expected to be externally serialised (spec.md §5). Each page is
// latched only while it is read or modified: a writer keeps the pages
// of its descent pinned, not latched, and no latch is held across
// pages, so a reader running alongside a writer can observe a split
// or merge that is only partly applied.
type BTree struct {
	keySchema     *schema.Schema
	pool          *buffer.Manager
	rootPageID    uint32
	internalMaxSz uint32
	leafMaxSz     uint32
}

// NewBTree creates an empty index over keySchema.
func NewBTree(pool *buffer.Manager, keySchema *schema.Schema, internalMaxSize, leafMaxSize uint32) *BTree {
	return &BTree{
		keySchema:     keySchema,
		pool:          pool,
		rootPageID:    disk.InvalidPageID,
		internalMaxSz: internalMaxSize,
		leafMaxSz:     leafMaxSize,
	}
}

// OpenBTree resumes an existing index whose root page id is already
// known (e.g. read back from a catalog).
func OpenBTree(pool *buffer.Manager, keySchema *schema.Schema, rootPageID uint32, internalMaxSize, leafMaxSize uint32) *BTree {
	return &BTree{
		keySchema:     keySchema,
		pool:          pool,
		rootPageID:    rootPageID,
		internalMaxSz: internalMaxSize,
		leafMaxSz:     leafMaxSize,
	}
}

// RootPageID reports the index's current root, or disk.InvalidPageID
// if the index is empty.
func (t *BTree) RootPageID() uint32 { return t.rootPageID }

// IsEmpty reports whether the index currently holds no entries.
func (t *BTree) IsEmpty() bool { return t.rootPageID == disk.InvalidPageID }

// Get returns the rid stored for key, if any.
func (t *BTree) Get(key []byte) (heap.Rid, bool, error) {
	if t.IsEmpty() {
		return heap.Rid{}, false, nil
	}
	pageID := t.rootPageID
	for {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return heap.Rid{}, false, err
		}
		frame.RLock()
		pt := PeekPageType(frame.Data())
		var (
			rid     heap.Rid
			found   bool
			nextPid uint32
			isLeaf  = pt == PageTypeLeaf
			lookErr error
		)
		if isLeaf {
			rid, found = WrapLeafPage(frame.Data(), t.keySchema).LookUp(key)
		} else {
			nextPid, lookErr = WrapInternalPage(frame.Data(), t.keySchema).LookUp(key)
		}
		frame.RUnlock()
		if unpinErr := t.pool.UnpinPage(pageID, false); unpinErr != nil {
			return heap.Rid{}, false, unpinErr
		}
		if isLeaf {
			return rid, found, nil
		}
		if lookErr != nil {
			return heap.Rid{}, false, lookErr
		}
		pageID = nextPid
	}
}

// promoted describes a separator that must be inserted into a parent
// page after a child split.
type promoted struct {
	key   []byte
	pidR  uint32
	valid bool
}

// Insert adds (key, rid) to the index. Rejects an already-present key
// with ErrDuplicateKey (spec.md §9 open question, decided).
func (t *BTree) Insert(key []byte, rid heap.Rid) error {
	if t.IsEmpty() {
		pid, frame, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		frame.Lock()
		leaf := InitLeafPage(frame.Data(), t.keySchema, t.leafMaxSz)
		leaf.Insert(key, rid)
		frame.Unlock()
		if err := t.pool.UnpinPage(pid, true); err != nil {
			return err
		}
		t.rootPageID = pid
		return nil
	}

	if _, found, err := t.Get(key); err != nil {
		return err
	} else if found {
		return dberr.ErrDuplicateKey
	}

	path, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	defer t.unpinAll(path, true)

	leafFrame := path[len(path)-1]
	leafFrame.Lock()
	leaf := WrapLeafPage(leafFrame.Data(), t.keySchema)
	leaf.Insert(key, rid)
	var prom promoted
	if leaf.IsFull() {
		prom, err = t.splitLeaf(leaf, leafFrame.PageID())
		if err != nil {
			leafFrame.Unlock()
			return err
		}
	}
	leafFrame.Unlock()

	return t.propagate(path[:len(path)-1], prom)
}

// descendToLeaf fetches and pins every page from the root to the
// target leaf for key, returning the frames in root-to-leaf order.
// Each page is read-latched only while its child pointer is looked up;
// no latch is held when it returns. Caller must unpin every frame (see
// unpinAll).
func (t *BTree) descendToLeaf(key []byte) ([]*buffer.Frame, error) {
	var path []*buffer.Frame
	pageID := t.rootPageID
	for {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			t.unpinAll(path, false)
			return nil, err
		}
		path = append(path, frame)

		frame.RLock()
		pt := PeekPageType(frame.Data())
		var nextPid uint32
		var lookErr error
		if pt != PageTypeLeaf {
			nextPid, lookErr = WrapInternalPage(frame.Data(), t.keySchema).LookUp(key)
		}
		frame.RUnlock()

		if lookErr != nil {
			t.unpinAll(path, false)
			return nil, lookErr
		}
		if pt == PageTypeLeaf {
			return path, nil
		}
		pageID = nextPid
	}
}

func (t *BTree) unpinAll(path []*buffer.Frame, dirty bool) {
	for _, f := range path {
		t.pool.UnpinPage(f.PageID(), dirty)
	}
}

// propagate inserts prom (if any) into path's innermost remaining
// ancestor, splitting and recursing upward as needed, and grows the
// root when the propagation reaches it while over-full.
func (t *BTree) propagate(path []*buffer.Frame, prom promoted) error {
	if !prom.valid {
		return nil
	}
	if len(path) == 0 {
		// Propagation reached past the root: allocate a new root with
		// the sentinel pointing at the old root and one entry for the
		// promoted separator.
		newRootPid, newRootFrame, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		newRootFrame.Lock()
		newRoot := InitInternalPage(newRootFrame.Data(), t.keySchema, t.internalMaxSz)
		newRoot.Insert(tuple.Empty(t.keySchema).Data, t.rootPageID)
		newRoot.Insert(prom.key, prom.pidR)
		newRootFrame.Unlock()
		if err := t.pool.UnpinPage(newRootPid, true); err != nil {
			return err
		}
		t.rootPageID = newRootPid
		return nil
	}

	parentFrame := path[len(path)-1]
	parentFrame.Lock()
	parent := WrapInternalPage(parentFrame.Data(), t.keySchema)
	parent.Insert(prom.key, prom.pidR)
	var next promoted
	if parent.IsFull() {
		var err error
		next, err = t.splitInternal(parent)
		if err != nil {
			parentFrame.Unlock()
			return err
		}
	}
	parentFrame.Unlock()

	return t.propagate(path[:len(path)-1], next)
}

// Delete removes key from the index if present.
func (t *BTree) Delete(key []byte) error {
	if t.IsEmpty() {
		return nil
	}
	path, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}

	leafFrame := path[len(path)-1]
	leafFrame.Lock()
	leaf := WrapLeafPage(leafFrame.Data(), t.keySchema)
	leaf.Delete(key)
	empty := leaf.CurrentSize() == 0
	underfull := leaf.CurrentSize() < leaf.MinSize()
	leafFrame.Unlock()

	if len(path) == 1 {
		// The root is a leaf: there is no parent to rebalance against.
		// An emptied root leaf empties the whole index (spec.md §9).
		if empty {
			pid := leafFrame.PageID()
			if err := t.pool.UnpinPage(pid, true); err != nil {
				return err
			}
			if err := t.pool.DeletePage(pid); err != nil {
				return err
			}
			t.rootPageID = disk.InvalidPageID
			return nil
		}
		return t.pool.UnpinPage(leafFrame.PageID(), true)
	}
	if !underfull {
		t.unpinAll(path, true)
		return nil
	}
	return t.rebalanceAndUnpin(path)
}

// RangeIterator walks a leaf chain in key order, pinning only the leaf
// currently being read and releasing it between calls to Next, the
// same externally-driven cursor shape heap.TableIterator uses.
type RangeIterator struct {
	tree   *BTree
	hi     []byte
	pageID uint32
	slot   int
	done   bool
}

// RangeScan returns an iterator over every (key, rid) with key >= lo
// (or from the smallest key, if lo is nil) up to and including hi (or
// to the end of the index, if hi is nil).
func (t *BTree) RangeScan(lo, hi []byte) (*RangeIterator, error) {
	if t.IsEmpty() {
		return &RangeIterator{tree: t, hi: hi, done: true}, nil
	}

	pageID, err := t.seekLeafPage(lo)
	if err != nil {
		return nil, err
	}

	slot := 0
	if lo != nil {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return nil, err
		}
		frame.RLock()
		slot, _ = WrapLeafPage(frame.Data(), t.keySchema).find(lo)
		frame.RUnlock()
		if err := t.pool.UnpinPage(pageID, false); err != nil {
			return nil, err
		}
	}

	return &RangeIterator{tree: t, hi: hi, pageID: pageID, slot: slot}, nil
}

// seekLeafPage descends from the root to the leaf that would hold key,
// or the leftmost leaf if key is nil.
func (t *BTree) seekLeafPage(key []byte) (uint32, error) {
	pageID := t.rootPageID
	for {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return 0, err
		}
		frame.RLock()
		pt := PeekPageType(frame.Data())
		var nextPid uint32
		var lookErr error
		if pt == PageTypeLeaf {
			frame.RUnlock()
			if err := t.pool.UnpinPage(pageID, false); err != nil {
				return 0, err
			}
			return pageID, nil
		}
		internal := WrapInternalPage(frame.Data(), t.keySchema)
		if key == nil {
			nextPid = internal.PageIDAt(0)
		} else {
			nextPid, lookErr = internal.LookUp(key)
		}
		frame.RUnlock()
		if err := t.pool.UnpinPage(pageID, false); err != nil {
			return 0, err
		}
		if lookErr != nil {
			return 0, lookErr
		}
		pageID = nextPid
	}
}

// Next returns the next (key, rid) pair in ascending key order, or
// ok == false once the scan is exhausted or has passed hi.
func (it *RangeIterator) Next() ([]byte, heap.Rid, bool, error) {
	for {
		if it.done {
			return nil, heap.Rid{}, false, nil
		}

		frame, err := it.tree.pool.FetchPage(it.pageID)
		if err != nil {
			return nil, heap.Rid{}, false, err
		}
		frame.RLock()
		leaf := WrapLeafPage(frame.Data(), it.tree.keySchema)
		n := leaf.CurrentSize()

		if it.slot >= n {
			next := leaf.NextPageID()
			frame.RUnlock()
			if err := it.tree.pool.UnpinPage(it.pageID, false); err != nil {
				return nil, heap.Rid{}, false, err
			}
			if next == disk.InvalidPageID {
				it.done = true
				return nil, heap.Rid{}, false, nil
			}
			it.pageID, it.slot = next, 0
			continue
		}

		key := append([]byte(nil), leaf.KeyAt(it.slot)...)
		rid := leaf.RidAt(it.slot)
		frame.RUnlock()
		if err := it.tree.pool.UnpinPage(it.pageID, false); err != nil {
			return nil, heap.Rid{}, false, err
		}

		if it.hi != nil && tuple.Compare(it.tree.keySchema, key, it.hi) > 0 {
			it.done = true
			return nil, heap.Rid{}, false, nil
		}

		it.slot++
		return key, rid, true, nil
	}
}
