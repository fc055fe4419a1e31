package index

import (
	"cmp"

	"github.com/pkg/errors"

	"github.com/Jclennon97/bustub-jc/buffer"
	"github.com/Jclennon97/bustub-jc/storage/disk"
	"github.com/Jclennon97/bustub-jc/util"
)

// IndexIterator walks a leaf chain left to right. It holds a basic
// (pin-only) guard on its current leaf and an index into it, per
// spec.md §4.5: iterators are not latch-safe against concurrent
// structural modification of their current leaf, which is acceptable
// for the teaching engine.
type IndexIterator[K cmp.Ordered, V any] struct {
	bpm   *buffer.BufferpoolManager
	guard *buffer.BasicPageGuard
	page  *leafPage[K, V]
	index int
}

// IsEnd reports whether the iterator has advanced past the final leaf's
// last entry.
func (it *IndexIterator[K, V]) IsEnd() bool {
	return it.page == nil
}

// Next returns the key/value pair at the iterator's current position and
// advances it by one, crossing into the next leaf (dropping this one's
// guard) if this was the last entry in the current leaf.
func (it *IndexIterator[K, V]) Next() (K, V, error) {
	var zeroK K
	var zeroV V
	if it.IsEnd() {
		return zeroK, zeroV, errors.New("index iterator exhausted")
	}

	key, val := it.page.PairAt(it.index)
	it.index++

	if it.index >= it.page.GetSize() {
		nextId := it.page.NextPageId
		it.guard.Drop()
		it.guard = nil
		it.page = nil

		if nextId != disk.INVALID_PAGE_ID {
			guard, ok, err := it.bpm.FetchPageBasic(nextId)
			if err != nil {
				return key, val, errors.Wrapf(err, "fetching leaf page %d", nextId)
			}
			if ok {
				nextPage, err := util.ToStruct[leafPage[K, V]](guard.GetData())
				if err != nil {
					guard.Drop()
					return key, val, errors.Wrapf(err, "decoding leaf page %d", nextId)
				}
				it.guard = &guard
				it.page = &nextPage
				it.index = 0
			}
		}
	}

	return key, val, nil
}

// Drop releases the iterator's pin on its current leaf, if any. Callers
// that do not exhaust the iterator (break out of a range loop early)
// must call this to avoid leaking a pin.
func (it *IndexIterator[K, V]) Drop() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
		it.page = nil
	}
}
