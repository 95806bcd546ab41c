package index

import (
	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/dberr"
	"github.com/relstore/relstore/internal/disk"
)

// rebalanceAndUnpin runs rebalance and then releases every frame in
// path, regardless of whether rebalance descended further up the tree
// and already released some of them — UnpinPage on an already-unpinned
// page is a cheap no-op error the caller never observes.
func (t *BTree) rebalanceAndUnpin(path []*buffer.Frame) error {
	err := t.rebalance(path)
	t.unpinAll(path, true)
	return err
}

// rebalance repairs an under-full page at the tail of path by
// borrowing from a sibling or merging with one, recursing to the
// parent as needed, and collapsing the root if it becomes trivial.
func (t *BTree) rebalance(path []*buffer.Frame) error {
	childFrame := path[len(path)-1]
	parentFrame := path[len(path)-2]

	parentFrame.Lock()
	parent := WrapInternalPage(parentFrame.Data(), t.keySchema)
	leftPid, rightPid, ok := siblingsOf(parent, childFrame.PageID())
	parentFrame.Unlock()
	if !ok {
		return dberr.Internalf("child page %d not found in parent %d", childFrame.PageID(), parentFrame.PageID())
	}

	childFrame.Lock()
	isLeaf := PeekPageType(childFrame.Data()) == PageTypeLeaf
	childFrame.Unlock()

	if isLeaf {
		return t.rebalanceLeaf(path, leftPid, rightPid)
	}
	return t.rebalanceInternal(path, leftPid, rightPid)
}

func siblingsOf(parent *InternalPage, pid uint32) (left, right uint32, ok bool) {
	left, right = disk.InvalidPageID, disk.InvalidPageID
	n := parent.CurrentSize()
	for i := 0; i < n; i++ {
		if parent.PageIDAt(i) == pid {
			if i > 0 {
				left = parent.PageIDAt(i - 1)
			}
			if i < n-1 {
				right = parent.PageIDAt(i + 1)
			}
			return left, right, true
		}
	}
	return left, right, false
}

func (t *BTree) rebalanceLeaf(path []*buffer.Frame, leftPid, rightPid uint32) error {
	childFrame := path[len(path)-1]
	parentFrame := path[len(path)-2]
	childPid := childFrame.PageID()

	if leftPid != disk.InvalidPageID {
		leftFrame, err := t.pool.FetchPage(leftPid)
		if err != nil {
			return err
		}
		leftFrame.Lock()
		left := WrapLeafPage(leftFrame.Data(), t.keySchema)
		if left.CurrentSize() > left.MinSize() {
			childFrame.Lock()
			child := WrapLeafPage(childFrame.Data(), t.keySchema)
			borrowed := left.SplitOff(left.CurrentSize() - 1)[0]
			child.Insert(borrowed.Key, borrowed.Rid)
			childFrame.Unlock()
			leftFrame.Unlock()
			if err := t.pool.UnpinPage(leftPid, true); err != nil {
				return err
			}
			parentFrame.Lock()
			WrapInternalPage(parentFrame.Data(), t.keySchema).ReplaceKeyForChild(childPid, borrowed.Key)
			parentFrame.Unlock()
			return nil
		}
		leftFrame.Unlock()
		if err := t.pool.UnpinPage(leftPid, false); err != nil {
			return err
		}
	}

	if rightPid != disk.InvalidPageID {
		rightFrame, err := t.pool.FetchPage(rightPid)
		if err != nil {
			return err
		}
		rightFrame.Lock()
		right := WrapLeafPage(rightFrame.Data(), t.keySchema)
		if right.CurrentSize() > right.MinSize() {
			childFrame.Lock()
			child := WrapLeafPage(childFrame.Data(), t.keySchema)
			entries := right.Entries(0, right.CurrentSize())
			borrowed := entries[0]
			right.removeAt(0)
			child.Insert(borrowed.Key, borrowed.Rid)
			newRightFirst := append([]byte(nil), right.KeyAt(0)...)
			childFrame.Unlock()
			rightFrame.Unlock()
			if err := t.pool.UnpinPage(rightPid, true); err != nil {
				return err
			}
			parentFrame.Lock()
			WrapInternalPage(parentFrame.Data(), t.keySchema).ReplaceKeyForChild(rightPid, newRightFirst)
			parentFrame.Unlock()
			return nil
		}
		rightFrame.Unlock()
		if err := t.pool.UnpinPage(rightPid, false); err != nil {
			return err
		}
	}

	// No sibling can lend: merge with whichever neighbour exists.
	if leftPid != disk.InvalidPageID {
		return t.mergeLeaves(path, leftPid, childPid)
	}
	return t.mergeLeaves(path, childPid, rightPid)
}

func (t *BTree) mergeLeaves(path []*buffer.Frame, leftPid, rightPid uint32) error {
	parentFrame := path[len(path)-2]
	onPathPid := path[len(path)-1].PageID()

	leftFrame, err := t.pool.FetchPage(leftPid)
	if err != nil {
		return err
	}
	rightFrame, err := t.pool.FetchPage(rightPid)
	if err != nil {
		t.pool.UnpinPage(leftPid, false)
		return err
	}

	leftFrame.Lock()
	rightFrame.Lock()
	left := WrapLeafPage(leftFrame.Data(), t.keySchema)
	right := WrapLeafPage(rightFrame.Data(), t.keySchema)
	left.AppendEntries(right.Entries(0, right.CurrentSize()))
	left.SetNextPageID(right.NextPageID())
	rightFrame.Unlock()
	leftFrame.Unlock()

	if err := t.pool.UnpinPage(leftPid, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(rightPid, false); err != nil {
		return err
	}
	if rightPid == onPathPid {
		// The descent path still holds its own pin on rightPid (nothing
		// unpins path frames until rebalanceAndUnpin runs, after this
		// whole call returns): drop it now so DeletePage's pinCount == 0
		// precondition holds. unpinAll's later pass over this pid is a
		// harmless no-op once the page is gone.
		if err := t.pool.UnpinPage(rightPid, false); err != nil {
			return err
		}
	}
	if err := t.pool.DeletePage(rightPid); err != nil {
		return err
	}

	parentFrame.Lock()
	parent := WrapInternalPage(parentFrame.Data(), t.keySchema)
	parent.DeleteByPageID(rightPid)
	parentUnderfull := len(path) > 2 && parent.CurrentSize() < parent.MinSize()
	parentIsRoot := len(path) == 2
	parentFrame.Unlock()

	if parentIsRoot {
		return t.maybeCollapseRoot(parentFrame)
	}
	if parentUnderfull {
		return t.rebalance(path[:len(path)-1])
	}
	return nil
}

// rebalanceInternal repairs an under-full internal page by merging it
// with a sibling (preferring the right sibling, falling back to the
// left). Internal pages only ever reach current_size < min_size right
// after a merge one level down, where the two combined sizes are
// guaranteed to fit in one page (each was already below min_size), so
// merge alone is always sufficient here; borrowing between internal
// siblings is not implemented since it is never required for
// correctness, only for keeping pages fuller than the minimum.
func (t *BTree) rebalanceInternal(path []*buffer.Frame, leftPid, rightPid uint32) error {
	childPid := path[len(path)-1].PageID()
	if rightPid != disk.InvalidPageID {
		return t.mergeInternals(path, childPid, rightPid)
	}
	return t.mergeInternals(path, leftPid, childPid)
}

func (t *BTree) mergeInternals(path []*buffer.Frame, leftPid, rightPid uint32) error {
	parentFrame := path[len(path)-2]
	onPathPid := path[len(path)-1].PageID()

	parentFrame.Lock()
	separatorKey := WrapInternalPage(parentFrame.Data(), t.keySchema).KeyForChild(rightPid)
	parentFrame.Unlock()

	leftFrame, err := t.pool.FetchPage(leftPid)
	if err != nil {
		return err
	}
	rightFrame, err := t.pool.FetchPage(rightPid)
	if err != nil {
		t.pool.UnpinPage(leftPid, false)
		return err
	}

	leftFrame.Lock()
	rightFrame.Lock()
	left := WrapInternalPage(leftFrame.Data(), t.keySchema)
	right := WrapInternalPage(rightFrame.Data(), t.keySchema)
	// right's slot 0 is its own sentinel (no real separating key); once
	// folded into left it needs the parent's separator for rightPid so
	// its leftmost subtree still sorts correctly among left's entries.
	rightEntries := right.Entries(0, right.CurrentSize())
	if len(rightEntries) > 0 && separatorKey != nil {
		rightEntries[0].Key = separatorKey
	}
	left.AppendEntries(rightEntries)
	rightFrame.Unlock()
	leftFrame.Unlock()

	if err := t.pool.UnpinPage(leftPid, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(rightPid, false); err != nil {
		return err
	}
	if rightPid == onPathPid {
		// Same descent-path pin issue as mergeLeaves: rightPid is still
		// held once more by the path itself.
		if err := t.pool.UnpinPage(rightPid, false); err != nil {
			return err
		}
	}
	if err := t.pool.DeletePage(rightPid); err != nil {
		return err
	}

	parentFrame.Lock()
	parent := WrapInternalPage(parentFrame.Data(), t.keySchema)
	parent.DeleteByPageID(rightPid)
	parentUnderfull := len(path) > 2 && parent.CurrentSize() < parent.MinSize()
	parentIsRoot := len(path) == 2
	parentFrame.Unlock()

	if parentIsRoot {
		return t.maybeCollapseRoot(parentFrame)
	}
	if parentUnderfull {
		return t.rebalance(path[:len(path)-1])
	}
	return nil
}

// maybeCollapseRoot implements the root-shrink rule: if the root is
// internal with current_size == 1 after a merge, its only child
// becomes the new root and the old root page is freed.
func (t *BTree) maybeCollapseRoot(rootFrame *buffer.Frame) error {
	rootFrame.Lock()
	root := WrapInternalPage(rootFrame.Data(), t.keySchema)
	collapse := root.CurrentSize() == 1
	var onlyChild uint32
	if collapse {
		onlyChild = root.PageIDAt(0)
	}
	rootFrame.Unlock()
	if !collapse {
		return nil
	}

	oldRootPid := rootFrame.PageID()
	// The descent path still holds its own pin on the root (nothing
	// unpins path frames until rebalanceAndUnpin runs, after this whole
	// call returns): drop it now so DeletePage's pinCount == 0
	// precondition holds.
	if err := t.pool.UnpinPage(oldRootPid, false); err != nil {
		return err
	}
	if err := t.pool.DeletePage(oldRootPid); err != nil {
		return err
	}
	t.rootPageID = onlyChild
	return nil
}
