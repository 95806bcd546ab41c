// Package index implements the B+tree index pages (C8) and the tree
// operations built on top of them (C9): point lookup, insert with
// split propagation, delete with borrow/merge, and ordered range scan.
package index

import "encoding/binary"

// PageType distinguishes an index page's on-disk tag byte from the
// B+tree internal/leaf variants.
type PageType uint32

const (
	PageTypeInternal PageType = 0
	PageTypeLeaf     PageType = 1
)

// PeekPageType reads the page_type tag from a raw index page buffer
// without otherwise interpreting it, so a caller can choose whether to
// wrap the page as an InternalPage or a LeafPage.
func PeekPageType(buf []byte) PageType {
	return PageType(binary.BigEndian.Uint32(buf[0:4]))
}
