// Package index implements a variable-fanout on-disk B+Tree over pages
// obtained from the buffer pool, with optimistic/pessimistic latch
// crabbing on insert and delete.
package index

import "github.com/Jclennon97/bustub-jc/util"

// PageType tags a B+Tree page's on-disk role.
type PageType int32

const (
	InvalidPageType PageType = iota
	LeafPageType
	InternalPageType
)

// HeaderPageID is the fixed page id an index's header page is registered
// under; callers pass it to NewBPlusTree, which initializes the header
// page on first use. The tree fetches the header page per operation and
// does not keep it pinned.
const HeaderPageID int64 = 0

// RID identifies a tuple's physical location: the page holding it and its
// slot within that page. It is the ValueType every leaf page stores.
type RID struct {
	PageId  int64
	SlotNum int32
}

// headerPage is the on-disk payload of the index's header page: just the
// current root, or disk.INVALID_PAGE_ID for an empty tree.
type headerPage struct {
	RootPageId int64
}

// minInternalSize is ceil(maxSize/2); minLeafSize is ceil((maxSize-1)/2).
// The root is exempt from both.
func minInternalSize(maxSize int) int {
	return (maxSize + 1) / 2
}

func minLeafSize(maxSize int) int {
	return maxSize / 2
}

// pageTag is the only field descent needs before it knows which of
// leafPage/internalPage to fully decode a fetched page into. msgpack
// encodes every page struct here as a map keyed by field name, so
// decoding into this lone-field struct just ignores the rest of the map.
type pageTag struct {
	PageType PageType
}

func peekPageType(data []byte) (PageType, error) {
	tag, err := util.ToStruct[pageTag](data)
	if err != nil {
		return InvalidPageType, err
	}
	return tag.PageType, nil
}
