package index

import (
	"cmp"

	"github.com/pkg/errors"

	"github.com/Jclennon97/bustub-jc/buffer"
	"github.com/Jclennon97/bustub-jc/storage/disk"
	"github.com/Jclennon97/bustub-jc/util"
)

// BPlusTree is a variable-fanout on-disk B+Tree. Point lookups and
// writes crab latches page by page: GetValue takes a read guard on a
// child before releasing the parent's; writes take a write guard on a
// child and, once the child is known "safe" (won't split/merge further
// up), release every ancestor still held in the Context's write-set.
// Begin/BeginAt locate their starting leaf one page at a time, dropping
// each page's guard before fetching its child.
type BPlusTree[K cmp.Ordered, V any] struct {
	indexName       string
	bpm             *buffer.BufferpoolManager
	headerPageId    int64
	leafMaxSize     int
	internalMaxSize int
}

// NewBPlusTree creates (or reopens) the index rooted at headerPageId,
// which the caller allocates and owns — composing multiple indexes over
// one buffer pool means each needs a fixed, distinct header page id.
func NewBPlusTree[K cmp.Ordered, V any](name string, bpm *buffer.BufferpoolManager, headerPageId int64, leafMaxSize, internalMaxSize int) (*BPlusTree[K, V], error) {
	guard, ok, err := bpm.FetchPageWrite(headerPageId)
	if err != nil {
		return nil, errors.Wrap(err, "fetching header page")
	}
	if !ok {
		return nil, errors.New("bufferpool exhausted creating index header")
	}

	// A freshly allocated page reads back as all zero bytes, which
	// doesn't decode as a valid header — that's the signal this is a
	// brand new index rather than a reopened one. An already-initialized
	// header (even with an empty root) decodes fine and is left alone.
	if _, err := util.ToStruct[headerPage](guard.GetData()); err != nil {
		data, encErr := util.ToByteSlice(headerPage{RootPageId: disk.INVALID_PAGE_ID})
		if encErr != nil {
			guard.Drop()
			return nil, errors.Wrap(encErr, "encoding header page")
		}
		copy(guard.AsMut(), data)
	}
	guard.Drop()

	return &BPlusTree[K, V]{
		indexName:       name,
		bpm:             bpm,
		headerPageId:    headerPageId,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}, nil
}

// GetRootPageId returns the current root, or disk.INVALID_PAGE_ID for an
// empty tree.
func (t *BPlusTree[K, V]) GetRootPageId() (int64, error) {
	guard, ok, err := t.bpm.FetchPageRead(t.headerPageId)
	if err != nil {
		return disk.INVALID_PAGE_ID, errors.Wrap(err, "fetching header page")
	}
	if !ok {
		return disk.INVALID_PAGE_ID, errors.New("bufferpool exhausted fetching header page")
	}
	defer guard.Drop()

	hp, err := util.ToStruct[headerPage](guard.GetData())
	if err != nil {
		return disk.INVALID_PAGE_ID, errors.Wrap(err, "decoding header page")
	}
	return hp.RootPageId, nil
}

func (t *BPlusTree[K, V]) IsEmpty() (bool, error) {
	rootId, err := t.GetRootPageId()
	if err != nil {
		return false, err
	}
	return rootId == disk.INVALID_PAGE_ID, nil
}

func (t *BPlusTree[K, V]) setRootPageId(headerGuard *buffer.WritePageGuard, rootId int64) error {
	data, err := util.ToByteSlice(headerPage{RootPageId: rootId})
	if err != nil {
		return errors.Wrap(err, "encoding header page")
	}
	copy(headerGuard.AsMut(), data)
	return nil
}

func (t *BPlusTree[K, V]) peekTag(pageId int64) (PageType, error) {
	guard, ok, err := t.bpm.FetchPageRead(pageId)
	if err != nil {
		return InvalidPageType, errors.Wrapf(err, "fetching page %d", pageId)
	}
	if !ok {
		return InvalidPageType, errors.Errorf("bufferpool exhausted fetching page %d", pageId)
	}
	defer guard.Drop()
	return peekPageType(guard.GetData())
}

// GetValue reads the root id under a short-lived header read guard, then
// descends with read-crabbing: from the root down, a child is fetched and
// latched before its parent's guard is dropped, so no writer can splice a
// page out of the path this call is walking.
func (t *BPlusTree[K, V]) GetValue(key K) (V, bool, error) {
	var zero V
	rootId, err := t.GetRootPageId()
	if err != nil {
		return zero, false, err
	}
	if rootId == disk.INVALID_PAGE_ID {
		return zero, false, nil
	}

	pageId := rootId
	var parent *buffer.ReadPageGuard
	defer func() {
		if parent != nil {
			parent.Drop()
		}
	}()
	for {
		tag, err := t.peekTag(pageId)
		if err != nil {
			return zero, false, err
		}
		if tag == LeafPageType {
			guard, ok, err := t.bpm.FetchPageRead(pageId)
			if err != nil {
				return zero, false, errors.Wrapf(err, "fetching leaf page %d", pageId)
			}
			if !ok {
				return zero, false, errors.New("bufferpool exhausted fetching leaf")
			}
			lp, err := util.ToStruct[leafPage[K, V]](guard.GetData())
			guard.Drop()
			if err != nil {
				return zero, false, errors.Wrapf(err, "decoding leaf page %d", pageId)
			}
			v, found := lp.ValueAtKey(key)
			return v, found, nil
		}

		guard, ok, err := t.bpm.FetchPageRead(pageId)
		if err != nil {
			return zero, false, errors.Wrapf(err, "fetching internal page %d", pageId)
		}
		if !ok {
			return zero, false, errors.New("bufferpool exhausted fetching internal page")
		}
		if parent != nil {
			parent.Drop()
		}
		parent = &guard
		ip, err := util.ToStruct[internalPage[K]](guard.GetData())
		if err != nil {
			return zero, false, errors.Wrapf(err, "decoding internal page %d", pageId)
		}
		pageId = ip.ValueAt(ip.GetKeyIndex(key))
	}
}

// Insert crabs a write-path down from the header page. Each internal
// page fetched along the way is pushed onto the Context's write-set;
// once an internal page is known not to split (size < max before this
// insert, so at most max after it), every ancestor still held is
// released in one sweep.
func (t *BPlusTree[K, V]) Insert(key K, value V) (bool, error) {
	headerGuard, ok, err := t.bpm.FetchPageWrite(t.headerPageId)
	if err != nil {
		return false, errors.Wrap(err, "fetching header page")
	}
	if !ok {
		return false, errors.New("bufferpool exhausted fetching header page")
	}
	ctx := &crabContext{headerGuard: &headerGuard}
	defer ctx.drop()

	hp, err := util.ToStruct[headerPage](headerGuard.GetData())
	if err != nil {
		return false, errors.Wrap(err, "decoding header page")
	}
	ctx.rootPageId = hp.RootPageId

	if hp.RootPageId == disk.INVALID_PAGE_ID {
		pageId := t.bpm.NewPageId()
		leafGuard, ok, err := t.bpm.FetchPageWrite(pageId)
		if err != nil {
			return false, errors.Wrapf(err, "fetching new leaf page %d", pageId)
		}
		if !ok {
			return false, errors.New("bufferpool exhausted creating root leaf")
		}
		lp := newLeafPage[K, V](t.leafMaxSize)
		lp.Insert(key, value)
		err = t.writeLeaf(&leafGuard, lp)
		leafGuard.Drop()
		if err != nil {
			return false, err
		}

		if err := t.setRootPageId(ctx.headerGuard, pageId); err != nil {
			return false, err
		}
		return true, nil
	}

	pageId := hp.RootPageId
	for {
		tag, err := t.peekTag(pageId)
		if err != nil {
			return false, err
		}
		if tag == LeafPageType {
			break
		}

		guard, ok, err := t.bpm.FetchPageWrite(pageId)
		if err != nil {
			return false, errors.Wrapf(err, "fetching page %d", pageId)
		}
		if !ok {
			return false, errors.New("bufferpool exhausted descending for insert")
		}
		ip, err := util.ToStruct[internalPage[K]](guard.GetData())
		if err != nil {
			guard.Drop()
			return false, errors.Wrapf(err, "decoding internal page %d", pageId)
		}

		if ip.GetSize() < ip.GetMaxSize() {
			ctx.releaseAncestors()
		}
		pageId = ip.ValueAt(ip.GetKeyIndex(key))
		ctx.push(guard)
	}

	leafGuard, ok, err := t.bpm.FetchPageWrite(pageId)
	if err != nil {
		return false, errors.Wrapf(err, "fetching leaf page %d", pageId)
	}
	if !ok {
		return false, errors.New("bufferpool exhausted fetching leaf for insert")
	}
	lp, err := util.ToStruct[leafPage[K, V]](leafGuard.GetData())
	if err != nil {
		leafGuard.Drop()
		return false, errors.Wrapf(err, "decoding leaf page %d", pageId)
	}

	if !lp.Insert(key, value) {
		leafGuard.Drop()
		return false, nil
	}

	if lp.GetSize() < lp.GetMaxSize() {
		err := t.writeLeaf(&leafGuard, &lp)
		leafGuard.Drop()
		return err == nil, err
	}

	newLeafId := t.bpm.NewPageId()
	newLeafGuard, ok, err := t.bpm.FetchPageWrite(newLeafId)
	if err != nil {
		leafGuard.Drop()
		return false, errors.Wrapf(err, "fetching new leaf page %d", newLeafId)
	}
	if !ok {
		leafGuard.Drop()
		return false, errors.New("bufferpool exhausted splitting leaf")
	}
	newLeaf := newLeafPage[K, V](t.leafMaxSize)
	separator := lp.Split(newLeaf)
	newLeaf.NextPageId = lp.NextPageId
	lp.NextPageId = newLeafId

	errLeft := t.writeLeaf(&leafGuard, &lp)
	errRight := t.writeLeaf(&newLeafGuard, newLeaf)
	leafGuard.Drop()
	newLeafGuard.Drop()
	if errLeft != nil {
		return false, errLeft
	}
	if errRight != nil {
		return false, errRight
	}

	return true, t.insertIntoParent(ctx, pageId, separator, newLeafId)
}

// insertIntoParent propagates a split upward, pulling ancestor write
// guards off ctx's write-set (pushed on the way down) instead of
// re-fetching them. An empty write-set means the split page was the
// root, so a fresh internal root is created.
func (t *BPlusTree[K, V]) insertIntoParent(ctx *crabContext, leftId int64, key K, rightId int64) error {
	parentGuard, ok := ctx.pop()
	if !ok {
		newRootId := t.bpm.NewPageId()
		guard, ok, err := t.bpm.FetchPageWrite(newRootId)
		if err != nil {
			return errors.Wrapf(err, "fetching new root page %d", newRootId)
		}
		if !ok {
			return errors.New("bufferpool exhausted creating new root")
		}
		ip := newInternalPage[K](t.internalMaxSize)
		ip.CreateNewRoot(key, leftId, rightId)
		err = t.writeInternal(&guard, ip)
		guard.Drop()
		if err != nil {
			return err
		}
		return t.setRootPageId(ctx.headerGuard, newRootId)
	}
	defer parentGuard.Drop()

	ip, err := util.ToStruct[internalPage[K]](parentGuard.GetData())
	if err != nil {
		return errors.Wrap(err, "decoding parent internal page")
	}
	ip.Insert(key, rightId)

	if ip.GetSize() <= ip.GetMaxSize() {
		return t.writeInternal(&parentGuard, &ip)
	}

	newInternalId := t.bpm.NewPageId()
	newInternalGuard, ok, err := t.bpm.FetchPageWrite(newInternalId)
	if err != nil {
		return errors.Wrapf(err, "fetching new internal page %d", newInternalId)
	}
	if !ok {
		return errors.New("bufferpool exhausted splitting internal page")
	}
	defer newInternalGuard.Drop()

	newInternal := newInternalPage[K](t.internalMaxSize)
	separator := ip.Split(newInternal)

	if err := t.writeInternal(&parentGuard, &ip); err != nil {
		return err
	}
	if err := t.writeInternal(&newInternalGuard, newInternal); err != nil {
		return err
	}

	parentId := parentGuard.PageId()
	return t.insertIntoParent(ctx, parentId, separator, newInternalId)
}

func (t *BPlusTree[K, V]) writeLeaf(guard *buffer.WritePageGuard, lp *leafPage[K, V]) error {
	data, err := util.ToByteSlice(*lp)
	if err != nil {
		return errors.Wrap(err, "encoding leaf page")
	}
	copy(guard.AsMut(), data)
	return nil
}

func (t *BPlusTree[K, V]) writeInternal(guard *buffer.WritePageGuard, ip *internalPage[K]) error {
	data, err := util.ToByteSlice(*ip)
	if err != nil {
		return errors.Wrap(err, "encoding internal page")
	}
	copy(guard.AsMut(), data)
	return nil
}

// Remove crabs a write-path down exactly as Insert does, but the "safe"
// predicate is size > min_size before removal (so at least min_size
// after it, no merge/borrow needed), since shrinking below min_size is
// what propagates the rebalance upward.
func (t *BPlusTree[K, V]) Remove(key K) error {
	headerGuard, ok, err := t.bpm.FetchPageWrite(t.headerPageId)
	if err != nil {
		return errors.Wrap(err, "fetching header page")
	}
	if !ok {
		return errors.New("bufferpool exhausted fetching header page")
	}
	ctx := &crabContext{headerGuard: &headerGuard}
	defer ctx.drop()

	hp, err := util.ToStruct[headerPage](headerGuard.GetData())
	if err != nil {
		return errors.Wrap(err, "decoding header page")
	}
	ctx.rootPageId = hp.RootPageId
	if hp.RootPageId == disk.INVALID_PAGE_ID {
		return nil
	}

	pageId := hp.RootPageId
	for {
		tag, err := t.peekTag(pageId)
		if err != nil {
			return err
		}
		if tag == LeafPageType {
			break
		}

		guard, ok, err := t.bpm.FetchPageWrite(pageId)
		if err != nil {
			return errors.Wrapf(err, "fetching page %d", pageId)
		}
		if !ok {
			return errors.New("bufferpool exhausted descending for remove")
		}
		ip, err := util.ToStruct[internalPage[K]](guard.GetData())
		if err != nil {
			guard.Drop()
			return errors.Wrapf(err, "decoding internal page %d", pageId)
		}

		if ip.GetSize() > ip.GetMinSize() {
			ctx.releaseAncestors()
		}
		pageId = ip.ValueAt(ip.GetKeyIndex(key))
		ctx.push(guard)
	}

	leafGuard, ok, err := t.bpm.FetchPageWrite(pageId)
	if err != nil {
		return errors.Wrapf(err, "fetching leaf page %d", pageId)
	}
	if !ok {
		return errors.New("bufferpool exhausted fetching leaf for remove")
	}
	lp, err := util.ToStruct[leafPage[K, V]](leafGuard.GetData())
	if err != nil {
		leafGuard.Drop()
		return errors.Wrapf(err, "decoding leaf page %d", pageId)
	}

	if !lp.RemoveRecord(key) {
		leafGuard.Drop()
		return nil
	}
	if err := t.writeLeaf(&leafGuard, &lp); err != nil {
		leafGuard.Drop()
		return err
	}
	leafPageId := pageId
	leafSize := lp.GetSize()
	leafMinSize := lp.GetMinSize()
	leafGuard.Drop()

	if ctx.isRootPage(leafPageId) {
		return t.adjustRoot(ctx, leafPageId)
	}
	if leafSize >= leafMinSize {
		return nil
	}
	return t.mergeOrRedistribute(ctx, leafPageId)
}

// mergeOrRedistribute handles a page (leaf or internal, named by id)
// that fell under its min size. It pulls the parent off ctx's write-set,
// locates the sibling with findSibling, and either redistributes one
// entry or merges the pair, recursing on the parent if the merge shrank
// it below min size too.
func (t *BPlusTree[K, V]) mergeOrRedistribute(ctx *crabContext, pageId int64) error {
	parentGuard, ok := ctx.pop()
	if !ok {
		return t.adjustRoot(ctx, pageId)
	}

	parentIp, err := util.ToStruct[internalPage[K]](parentGuard.GetData())
	if err != nil {
		parentGuard.Drop()
		return errors.Wrap(err, "decoding parent internal page")
	}
	index := parentIp.ValueIndex(pageId)
	siblingIndex, isPrev := findSibling(index)
	siblingId := parentIp.ValueAt(siblingIndex)

	tag, err := t.peekTag(pageId)
	if err != nil {
		parentGuard.Drop()
		return err
	}

	siblingGuard, ok, err := t.bpm.FetchPageWrite(siblingId)
	if err != nil {
		parentGuard.Drop()
		return errors.Wrapf(err, "fetching sibling page %d", siblingId)
	}
	if !ok {
		parentGuard.Drop()
		return errors.New("bufferpool exhausted fetching sibling")
	}

	var mergedAway bool
	if tag == LeafPageType {
		mergedAway, err = t.mergeOrRedistributeLeaf(&parentGuard, &parentIp, &siblingGuard, pageId, index, siblingIndex, isPrev)
	} else {
		mergedAway, err = t.mergeOrRedistributeInternal(&parentGuard, &parentIp, &siblingGuard, pageId, index, siblingIndex, isPrev)
	}
	siblingGuard.Drop()
	if err != nil {
		parentGuard.Drop()
		return err
	}

	if !mergedAway {
		parentGuard.Drop()
		return nil
	}

	parentId := parentGuard.PageId()
	parentSize := parentIp.GetSize()
	parentMinSize := parentIp.GetMinSize()
	parentGuard.Drop()

	if ctx.isRootPage(parentId) || parentSize >= parentMinSize {
		return t.adjustRoot(ctx, parentId)
	}
	return t.mergeOrRedistribute(ctx, parentId)
}

// findSibling prefers the left neighbor (isPrev=true) so a merge always
// folds the higher-indexed child into the lower one, matching the
// leaf/internal MoveAll convention of moving into the left recipient.
func findSibling(index int) (siblingIndex int, isPrev bool) {
	if index == 0 {
		return 1, false
	}
	return index - 1, true
}

func (t *BPlusTree[K, V]) mergeOrRedistributeLeaf(parentGuard *buffer.WritePageGuard, parentIp *internalPage[K], siblingGuard *buffer.WritePageGuard, pageId int64, index, siblingIndex int, isPrev bool) (bool, error) {
	pageGuard, ok, err := t.bpm.FetchPageWrite(pageId)
	if err != nil {
		return false, errors.Wrapf(err, "fetching leaf page %d", pageId)
	}
	if !ok {
		return false, errors.New("bufferpool exhausted fetching leaf")
	}
	defer pageGuard.Drop()

	page, err := util.ToStruct[leafPage[K, V]](pageGuard.GetData())
	if err != nil {
		return false, errors.Wrapf(err, "decoding leaf page %d", pageId)
	}
	sibling, err := util.ToStruct[leafPage[K, V]](siblingGuard.GetData())
	if err != nil {
		return false, errors.Wrap(err, "decoding sibling leaf page")
	}

	if sibling.GetSize()+page.GetSize() <= sibling.GetMaxSize() {
		if isPrev {
			page.MoveAll(&sibling)
			parentIp.Remove(index)
		} else {
			sibling.MoveAll(&page)
			parentIp.Remove(siblingIndex)
		}
		if err := t.writeLeaf(&pageGuard, &page); err != nil {
			return false, err
		}
		if err := t.writeLeaf(siblingGuard, &sibling); err != nil {
			return false, err
		}
		return true, t.writeInternal(parentGuard, parentIp)
	}

	if isPrev {
		newKey := sibling.MoveEndTo(&page)
		parentIp.SetKeyAt(index, newKey)
	} else {
		newKey := sibling.MoveFrontTo(&page)
		parentIp.SetKeyAt(siblingIndex, newKey)
	}
	if err := t.writeLeaf(&pageGuard, &page); err != nil {
		return false, err
	}
	if err := t.writeLeaf(siblingGuard, &sibling); err != nil {
		return false, err
	}
	return false, t.writeInternal(parentGuard, parentIp)
}

func (t *BPlusTree[K, V]) mergeOrRedistributeInternal(parentGuard *buffer.WritePageGuard, parentIp *internalPage[K], siblingGuard *buffer.WritePageGuard, pageId int64, index, siblingIndex int, isPrev bool) (bool, error) {
	pageGuard, ok, err := t.bpm.FetchPageWrite(pageId)
	if err != nil {
		return false, errors.Wrapf(err, "fetching internal page %d", pageId)
	}
	if !ok {
		return false, errors.New("bufferpool exhausted fetching internal page")
	}
	defer pageGuard.Drop()

	page, err := util.ToStruct[internalPage[K]](pageGuard.GetData())
	if err != nil {
		return false, errors.Wrapf(err, "decoding internal page %d", pageId)
	}
	sibling, err := util.ToStruct[internalPage[K]](siblingGuard.GetData())
	if err != nil {
		return false, errors.Wrap(err, "decoding sibling internal page")
	}

	if sibling.GetSize()+page.GetSize() <= sibling.GetMaxSize() {
		if isPrev {
			page.MoveAll(&sibling, index, parentIp)
			parentIp.Remove(index)
		} else {
			sibling.MoveAll(&page, siblingIndex, parentIp)
			parentIp.Remove(siblingIndex)
		}
		if err := t.writeInternal(&pageGuard, &page); err != nil {
			return false, err
		}
		if err := t.writeInternal(siblingGuard, &sibling); err != nil {
			return false, err
		}
		return true, t.writeInternal(parentGuard, parentIp)
	}

	if isPrev {
		newKey := sibling.MoveEndTo(&page, parentIp.KeyAt(index))
		parentIp.SetKeyAt(index, newKey)
	} else {
		newKey := sibling.MoveFrontTo(&page, parentIp.KeyAt(siblingIndex))
		parentIp.SetKeyAt(siblingIndex, newKey)
	}
	if err := t.writeInternal(&pageGuard, &page); err != nil {
		return false, err
	}
	if err := t.writeInternal(siblingGuard, &sibling); err != nil {
		return false, err
	}
	return false, t.writeInternal(parentGuard, parentIp)
}

// adjustRoot handles pageId being the root: an internal root with a
// single remaining child is replaced by that child, and a leaf root
// emptied by a remove tears the tree down to empty.
func (t *BPlusTree[K, V]) adjustRoot(ctx *crabContext, pageId int64) error {
	tag, err := t.peekTag(pageId)
	if err != nil {
		return err
	}

	if tag == LeafPageType {
		guard, ok, err := t.bpm.FetchPageRead(pageId)
		if err != nil {
			return errors.Wrapf(err, "fetching leaf page %d", pageId)
		}
		if !ok {
			return errors.New("bufferpool exhausted checking root leaf")
		}
		lp, err := util.ToStruct[leafPage[K, V]](guard.GetData())
		guard.Drop()
		if err != nil {
			return errors.Wrapf(err, "decoding leaf page %d", pageId)
		}
		if lp.GetSize() > 0 {
			return nil
		}
		return t.setRootPageId(ctx.headerGuard, disk.INVALID_PAGE_ID)
	}

	guard, ok, err := t.bpm.FetchPageRead(pageId)
	if err != nil {
		return errors.Wrapf(err, "fetching internal page %d", pageId)
	}
	if !ok {
		return errors.New("bufferpool exhausted checking root internal page")
	}
	ip, err := util.ToStruct[internalPage[K]](guard.GetData())
	guard.Drop()
	if err != nil {
		return errors.Wrapf(err, "decoding internal page %d", pageId)
	}
	if ip.GetSize() > 1 {
		return nil
	}
	return t.setRootPageId(ctx.headerGuard, ip.ValueAt(0))
}

// Begin returns an iterator positioned at the first key in the tree, or
// End() for an empty tree.
func (t *BPlusTree[K, V]) Begin() (*IndexIterator[K, V], error) {
	rootId, err := t.GetRootPageId()
	if err != nil {
		return nil, err
	}
	if rootId == disk.INVALID_PAGE_ID {
		return t.End(), nil
	}

	leafId, err := t.descendToLeaf(rootId, func(ip *internalPage[K]) int { return 0 })
	if err != nil {
		return nil, err
	}
	return t.iteratorAtLeaf(leafId, 0)
}

// BeginAt returns an iterator positioned at the first key >= key (Go has
// no overloading, so this is spec's "Begin(key)").
func (t *BPlusTree[K, V]) BeginAt(key K) (*IndexIterator[K, V], error) {
	rootId, err := t.GetRootPageId()
	if err != nil {
		return nil, err
	}
	if rootId == disk.INVALID_PAGE_ID {
		return t.End(), nil
	}

	leafId, err := t.descendToLeaf(rootId, func(ip *internalPage[K]) int { return ip.GetKeyIndex(key) })
	if err != nil {
		return nil, err
	}

	guard, ok, err := t.bpm.FetchPageBasic(leafId)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching leaf page %d", leafId)
	}
	if !ok {
		return nil, errors.New("bufferpool exhausted creating iterator")
	}
	lp, err := util.ToStruct[leafPage[K, V]](guard.GetData())
	if err != nil {
		guard.Drop()
		return nil, errors.Wrapf(err, "decoding leaf page %d", leafId)
	}
	idx := lp.lowerBound(key)
	if idx >= lp.GetSize() {
		guard.Drop()
		nextId := lp.NextPageId
		if nextId == disk.INVALID_PAGE_ID {
			return t.End(), nil
		}
		return t.iteratorAtLeaf(nextId, 0)
	}
	return &IndexIterator[K, V]{bpm: t.bpm, guard: &guard, page: &lp, index: idx}, nil
}

// End returns the terminal iterator position: IsEnd() is always true.
func (t *BPlusTree[K, V]) End() *IndexIterator[K, V] {
	return &IndexIterator[K, V]{bpm: t.bpm}
}

// descendToLeaf walks from pageId (assumed an internal or leaf page) down
// to a leaf, using childIndex to pick which child to descend into at
// every internal level, and returns the leaf's page id.
func (t *BPlusTree[K, V]) descendToLeaf(pageId int64, childIndex func(*internalPage[K]) int) (int64, error) {
	for {
		tag, err := t.peekTag(pageId)
		if err != nil {
			return disk.INVALID_PAGE_ID, err
		}
		if tag == LeafPageType {
			return pageId, nil
		}

		guard, ok, err := t.bpm.FetchPageRead(pageId)
		if err != nil {
			return disk.INVALID_PAGE_ID, errors.Wrapf(err, "fetching internal page %d", pageId)
		}
		if !ok {
			return disk.INVALID_PAGE_ID, errors.New("bufferpool exhausted descending to leaf")
		}
		ip, err := util.ToStruct[internalPage[K]](guard.GetData())
		guard.Drop()
		if err != nil {
			return disk.INVALID_PAGE_ID, errors.Wrapf(err, "decoding internal page %d", pageId)
		}
		pageId = ip.ValueAt(childIndex(&ip))
	}
}

// iteratorAtLeaf builds an iterator pinned on leafId at index, basic
// (pin-only) per spec.md §4.5's iteration semantics.
func (t *BPlusTree[K, V]) iteratorAtLeaf(leafId int64, index int) (*IndexIterator[K, V], error) {
	guard, ok, err := t.bpm.FetchPageBasic(leafId)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching leaf page %d", leafId)
	}
	if !ok {
		return nil, errors.New("bufferpool exhausted creating iterator")
	}
	lp, err := util.ToStruct[leafPage[K, V]](guard.GetData())
	if err != nil {
		guard.Drop()
		return nil, errors.Wrapf(err, "decoding leaf page %d", leafId)
	}
	if index >= lp.GetSize() {
		guard.Drop()
		return t.End(), nil
	}
	return &IndexIterator[K, V]{bpm: t.bpm, guard: &guard, page: &lp, index: index}, nil
}
