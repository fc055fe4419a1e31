package index

import "cmp"

// internalPage is an array of (key, child_page_id) entries. Slot 0's key
// is an unused sentinel; keys from slot 1 onward are sorted; child i
// routes every key in [Keys[i], Keys[i+1]).
type internalPage[K cmp.Ordered] struct {
	PageType PageType
	Size     int32
	MaxSize  int32
	Keys     []K
	Values   []int64
}

func newInternalPage[K cmp.Ordered](maxSize int) *internalPage[K] {
	return &internalPage[K]{
		PageType: InternalPageType,
		MaxSize:  int32(maxSize),
		Keys:     make([]K, 0, maxSize+1),
		Values:   make([]int64, 0, maxSize+1),
	}
}

func (p *internalPage[K]) GetSize() int    { return int(p.Size) }
func (p *internalPage[K]) GetMaxSize() int { return int(p.MaxSize) }
func (p *internalPage[K]) GetMinSize() int { return minInternalSize(int(p.MaxSize)) }

func (p *internalPage[K]) KeyAt(idx int) K       { return p.Keys[idx] }
func (p *internalPage[K]) SetKeyAt(idx int, k K) { p.Keys[idx] = k }
func (p *internalPage[K]) ValueAt(idx int) int64 { return p.Values[idx] }

// GetKeyIndex returns upper_bound(key) - 1 over slots [1, size) — the
// child that routes key.
func (p *internalPage[K]) GetKeyIndex(key K) int {
	lo, hi := 1, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] > key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}

// Insert places (key, childId) at upper_bound over [1, size), shifting the
// tail right.
func (p *internalPage[K]) Insert(key K, childId int64) {
	lo, hi := 1, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] > key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	idx := lo

	p.Keys = append(p.Keys, key)
	p.Values = append(p.Values, childId)
	copy(p.Keys[idx+1:], p.Keys[idx:len(p.Keys)-1])
	copy(p.Values[idx+1:], p.Values[idx:len(p.Values)-1])
	p.Keys[idx] = key
	p.Values[idx] = childId
	p.Size++
}

// Split moves the upper half, including slot min_size's child pointer,
// into newPage. The promoted separator is newPage's new slot-0 key
// (sentinel value, unused by routing but carried for symmetry with the
// leaf's Split).
func (p *internalPage[K]) Split(newPage *internalPage[K]) K {
	minSize := p.GetMinSize()
	newPage.Keys = append(newPage.Keys, p.Keys[minSize:]...)
	newPage.Values = append(newPage.Values, p.Values[minSize:]...)
	newPage.Size = int32(len(newPage.Keys))

	p.Keys = p.Keys[:minSize]
	p.Values = p.Values[:minSize]
	p.Size = int32(minSize)

	return newPage.KeyAt(0)
}

// CreateNewRoot seeds slot 0 (sentinel key, leftId) and slot 1 (key,
// rightId).
func (p *internalPage[K]) CreateNewRoot(key K, leftId, rightId int64) {
	var sentinel K
	p.Keys = append(p.Keys[:0], sentinel, key)
	p.Values = append(p.Values[:0], leftId, rightId)
	p.Size = 2
}

// ValueIndex linear-searches for childId's slot, or -1.
func (p *internalPage[K]) ValueIndex(childId int64) int {
	for i, v := range p.Values {
		if v == childId {
			return i
		}
	}
	return -1
}

// Remove deletes the entry at index, shifting the tail left.
func (p *internalPage[K]) Remove(index int) {
	p.Keys = append(p.Keys[:index], p.Keys[index+1:]...)
	p.Values = append(p.Values[:index], p.Values[index+1:]...)
	p.Size--
}

// MoveAll appends this page's entries onto recipient, rewriting this
// page's former slot-0 sentinel with the separator key pulled from the
// parent at index. This page becomes empty.
func (p *internalPage[K]) MoveAll(recipient *internalPage[K], index int, parent *internalPage[K]) {
	p.SetKeyAt(0, parent.KeyAt(index))
	recipient.Keys = append(recipient.Keys, p.Keys...)
	recipient.Values = append(recipient.Values, p.Values...)
	recipient.Size += p.Size

	p.Keys = p.Keys[:0]
	p.Values = p.Values[:0]
	p.Size = 0
}

// MoveFrontTo rotates this page's first entry onto the end of page (its
// left neighbor), writing parentKey as that entry's new separator key;
// returns this page's new slot-0 key for the parent to adopt.
func (p *internalPage[K]) MoveFrontTo(page *internalPage[K], parentKey K) K {
	page.Keys = append(page.Keys, parentKey)
	page.Values = append(page.Values, p.Values[0])
	page.Size++

	p.Keys = p.Keys[1:]
	p.Values = p.Values[1:]
	p.Size--

	return p.Keys[0]
}

// MoveEndTo rotates this page's last entry onto the front of page (its
// right neighbor), pushing page's old sentinel slot to index 1 with key
// parentKey. Returns the moved key — the new separator for the parent.
func (p *internalPage[K]) MoveEndTo(page *internalPage[K], parentKey K) K {
	last := len(p.Keys) - 1
	movedKey, movedVal := p.Keys[last], p.Values[last]

	page.Keys = append([]K{movedKey}, page.Keys...)
	page.Values = append([]int64{movedVal}, page.Values...)
	if len(page.Keys) > 1 {
		page.Keys[1] = parentKey
	}
	page.Size++

	p.Keys = p.Keys[:last]
	p.Values = p.Values[:last]
	p.Size--

	return movedKey
}
