package index

import "github.com/relstore/relstore/internal/tuple"

// splitLeaf splits an over-full leaf at ceil(current_size/2), chains
// the new right leaf in, and returns the separator to propagate up.
// A BufferPoolExhausted failure allocating the new page propagates to
// the caller unchanged (spec.md §4.4/§7): an over-full leaf left
// unsplit is an invariant violation, not something to paper over.
func (t *BTree) splitLeaf(leaf *LeafPage, leftPid uint32) (promoted, error) {
	rightPid, rightFrame, err := t.pool.NewPage()
	if err != nil {
		return promoted{}, err
	}

	n := leaf.CurrentSize()
	at := (n + 1) / 2
	moved := leaf.SplitOff(at)

	rightFrame.Lock()
	right := InitLeafPage(rightFrame.Data(), t.keySchema, t.leafMaxSz)
	right.AppendEntries(moved)
	right.SetNextPageID(leaf.NextPageID())
	rightFrame.Unlock()
	if err := t.pool.UnpinPage(rightPid, true); err != nil {
		return promoted{}, err
	}

	leaf.SetNextPageID(rightPid)

	return promoted{key: moved[0].Key, pidR: rightPid, valid: true}, nil
}

// splitInternal splits an over-full internal page at
// ceil(current_size/2), promoting the median's key to the caller. Same
// BufferPoolExhausted propagation rule as splitLeaf.
func (t *BTree) splitInternal(p *InternalPage) (promoted, error) {
	rightPid, rightFrame, err := t.pool.NewPage()
	if err != nil {
		return promoted{}, err
	}

	n := p.CurrentSize()
	at := (n + 1) / 2
	moved := p.SplitOff(at)

	promotedKey := moved[0].Key
	rightEntries := moved[1:]

	rightFrame.Lock()
	right := InitInternalPage(rightFrame.Data(), t.keySchema, t.internalMaxSz)
	right.Insert(tuple.Empty(t.keySchema).Data, moved[0].PageID)
	right.AppendEntries(rightEntries)
	rightFrame.Unlock()
	if err := t.pool.UnpinPage(rightPid, true); err != nil {
		return promoted{}, err
	}

	return promoted{key: promotedKey, pidR: rightPid, valid: true}, nil
}
