package index

import "cmp"

// leafPage is a sorted array of (key, value) pairs plus the page id of the
// next leaf to its right, INVALID_PAGE_ID terminating the chain.
type leafPage[K cmp.Ordered, V any] struct {
	PageType   PageType
	Size       int32
	MaxSize    int32
	NextPageId int64
	Keys       []K
	Values     []V
}

func newLeafPage[K cmp.Ordered, V any](maxSize int) *leafPage[K, V] {
	return &leafPage[K, V]{
		PageType:   LeafPageType,
		MaxSize:    int32(maxSize),
		NextPageId: -1,
		Keys:       make([]K, 0, maxSize+1),
		Values:     make([]V, 0, maxSize+1),
	}
}

func (p *leafPage[K, V]) GetSize() int    { return int(p.Size) }
func (p *leafPage[K, V]) GetMaxSize() int { return int(p.MaxSize) }
func (p *leafPage[K, V]) GetMinSize() int { return minLeafSize(int(p.MaxSize)) }

func (p *leafPage[K, V]) KeyAt(idx int) K   { return p.Keys[idx] }
func (p *leafPage[K, V]) ValueAt(idx int) V { return p.Values[idx] }

func (p *leafPage[K, V]) PairAt(idx int) (K, V) {
	return p.Keys[idx], p.Values[idx]
}

// keyIndex returns the upper-bound slot for key: the first index whose key
// is strictly greater than key, i.e. where key would be inserted to keep
// the array sorted.
func (p *leafPage[K, V]) keyIndex(key K) int {
	lo, hi := 0, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] > key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// lowerBound returns the first index whose key is >= key, i.e. where an
// iterator positioned "at key" should start.
func (p *leafPage[K, V]) lowerBound(key K) int {
	lo, hi := 0, p.GetSize()
	for lo < hi {
		mid := (lo + hi) / 2
		if p.Keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ValueAtKey returns the value stored under key, if present.
func (p *leafPage[K, V]) ValueAtKey(key K) (V, bool) {
	idx := p.keyIndex(key)
	if idx == 0 || p.Keys[idx-1] != key {
		var zero V
		return zero, false
	}
	return p.Values[idx-1], true
}

// Insert rejects a duplicate key, otherwise shifts the tail right and
// places the pair at its sorted slot.
func (p *leafPage[K, V]) Insert(key K, value V) bool {
	idx := p.keyIndex(key)
	if idx > 0 && p.Keys[idx-1] == key {
		return false
	}
	p.Keys = append(p.Keys, key)
	p.Values = append(p.Values, value)
	copy(p.Keys[idx+1:], p.Keys[idx:len(p.Keys)-1])
	copy(p.Values[idx+1:], p.Values[idx:len(p.Values)-1])
	p.Keys[idx] = key
	p.Values[idx] = value
	p.Size++
	return true
}

// RemoveRecord deletes key, shifting the tail left. Returns whether key
// was present.
func (p *leafPage[K, V]) RemoveRecord(key K) bool {
	idx := p.keyIndex(key)
	if idx == 0 || p.Keys[idx-1] != key {
		return false
	}
	at := idx - 1
	p.Keys = append(p.Keys[:at], p.Keys[at+1:]...)
	p.Values = append(p.Values[:at], p.Values[at+1:]...)
	p.Size--
	return true
}

// Split moves the upper half (max_size - min_size entries, starting at
// min_size) into newLeaf, fixes both sizes, and returns the separator: the
// first key of newLeaf.
func (p *leafPage[K, V]) Split(newLeaf *leafPage[K, V]) K {
	minSize := p.GetMinSize()
	newLeaf.Keys = append(newLeaf.Keys, p.Keys[minSize:]...)
	newLeaf.Values = append(newLeaf.Values, p.Values[minSize:]...)
	newLeaf.Size = int32(len(newLeaf.Keys))

	p.Keys = p.Keys[:minSize]
	p.Values = p.Values[:minSize]
	p.Size = int32(minSize)

	return newLeaf.Keys[0]
}

// MoveAll appends this leaf's entries onto recipient (its left neighbor)
// and hands over its next_page_id link; this leaf becomes empty.
func (p *leafPage[K, V]) MoveAll(recipient *leafPage[K, V]) {
	recipient.Keys = append(recipient.Keys, p.Keys...)
	recipient.Values = append(recipient.Values, p.Values...)
	recipient.NextPageId = p.NextPageId
	recipient.Size += p.Size

	p.Keys = p.Keys[:0]
	p.Values = p.Values[:0]
	p.Size = 0
}

// MoveFrontTo rotates this leaf's first entry onto the end of page (its
// left neighbor in the parent's child order), returning the new first key
// of this leaf — the updated separator.
func (p *leafPage[K, V]) MoveFrontTo(page *leafPage[K, V]) K {
	page.Keys = append(page.Keys, p.Keys[0])
	page.Values = append(page.Values, p.Values[0])
	page.Size++

	p.Keys = p.Keys[1:]
	p.Values = p.Values[1:]
	p.Size--

	return p.Keys[0]
}

// MoveEndTo rotates this leaf's last entry onto the front of page (its
// right neighbor in the parent's child order), returning the new first key
// of page — the updated separator.
func (p *leafPage[K, V]) MoveEndTo(page *leafPage[K, V]) K {
	last := len(p.Keys) - 1
	page.Keys = append([]K{p.Keys[last]}, page.Keys...)
	page.Values = append([]V{p.Values[last]}, page.Values...)
	page.Size++

	p.Keys = p.Keys[:last]
	p.Values = p.Values[:last]
	p.Size--

	return page.Keys[0]
}
