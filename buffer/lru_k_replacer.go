package buffer

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// lrukReplacer chooses eviction victims among a fixed set of frame ids
// using the LRU-K policy: frames with fewer than k recorded accesses sit
// in a FIFO history pool; once a frame accumulates k accesses it moves
// into a cache pool ordered by its backward k-distance, smallest (oldest)
// first. Evict always prefers the history pool over the cache pool.
type lrukReplacer struct {
	mu sync.Mutex

	k                int
	replacerSize     int
	currentTimestamp int64
	evictableCount   int
	nodeStore        map[int]*lrukNode
	historyPool      *list.List
	historyElemByID  map[int]*list.Element
	cachePool        *list.List
	cacheElemByID    map[int]*list.Element
}

// NewLrukReplacer builds a replacer tracking up to capacity frames, each
// remembering its last k accesses.
func NewLrukReplacer(capacity, k int) *lrukReplacer {
	return &lrukReplacer{
		k:               k,
		replacerSize:    capacity,
		nodeStore:       make(map[int]*lrukNode),
		historyPool:     list.New(),
		historyElemByID: make(map[int]*list.Element),
		cachePool:       list.New(),
		cacheElemByID:   make(map[int]*list.Element),
	}
}

// recordAccess stamps frameId's access history with a fresh timestamp,
// promoting it from the history pool to the cache pool on its k-th access.
func (lru *lrukReplacer) recordAccess(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.currentTimestamp++

	node, ok := lru.nodeStore[frameId]
	if !ok {
		node = newLrukNode(frameId, lru.k)
		lru.nodeStore[frameId] = node
		node.addTimestamp(lru.currentTimestamp)
		lru.historyElemByID[frameId] = lru.historyPool.PushBack(frameId)
		return
	}

	node.addTimestamp(lru.currentTimestamp)

	if elem, inHistory := lru.historyElemByID[frameId]; inHistory {
		if node.hasKAccesses() {
			lru.historyPool.Remove(elem)
			delete(lru.historyElemByID, frameId)
			lru.insertIntoCachePool(node)
		}
		return
	}

	// Already in the cache pool: its backward k-distance changed, so it
	// must be re-sorted.
	if elem, inCache := lru.cacheElemByID[frameId]; inCache {
		lru.cachePool.Remove(elem)
		delete(lru.cacheElemByID, frameId)
		lru.insertIntoCachePool(node)
	}
}

// insertIntoCachePool places node's frame into the cache pool, keeping
// the pool sorted ascending by backward k-distance; ties break by
// insertion order (behind any equal existing entry, ahead of the first
// larger one).
func (lru *lrukReplacer) insertIntoCachePool(node *lrukNode) {
	dist := node.backwardKDistance()

	for elem := lru.cachePool.Front(); elem != nil; elem = elem.Next() {
		other := lru.nodeStore[elem.Value.(int)]
		if dist < other.backwardKDistance() {
			lru.cacheElemByID[node.frameId] = lru.cachePool.InsertBefore(node.frameId, elem)
			return
		}
	}
	lru.cacheElemByID[node.frameId] = lru.cachePool.PushBack(node.frameId)
}

// setEvictable toggles frameId's eviction eligibility. Unknown frames are
// a no-op.
func (lru *lrukReplacer) setEvictable(frameId int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.nodeStore[frameId]
	if !ok {
		return
	}

	if node.isEvictable == evictable {
		return
	}

	node.isEvictable = evictable
	if evictable {
		lru.evictableCount++
	} else {
		lru.evictableCount--
	}
}

// evict picks a victim: the oldest evictable frame in the history pool if
// any exists (conceptually infinite backward distance), else the frame
// with the oldest backward k-distance in the cache pool. Returns
// (INVALID_FRAME_ID, false) if nothing is evictable.
func (lru *lrukReplacer) evict() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if lru.evictableCount == 0 {
		return INVALID_FRAME_ID, false
	}

	for elem := lru.historyPool.Front(); elem != nil; elem = elem.Next() {
		frameId := elem.Value.(int)
		if lru.nodeStore[frameId].isEvictable {
			lru.removeHistoryElem(frameId, elem)
			lru.evictableCount--
			return frameId, true
		}
	}

	for elem := lru.cachePool.Front(); elem != nil; elem = elem.Next() {
		frameId := elem.Value.(int)
		if lru.nodeStore[frameId].isEvictable {
			lru.removeCacheElem(frameId, elem)
			lru.evictableCount--
			return frameId, true
		}
	}

	return INVALID_FRAME_ID, false
}

// remove forcibly drops a known frame's bookkeeping. It is only valid to
// call on a frame that is evictable (spec.md §4.1); a non-evictable frame
// is still pinned and the caller has no business stripping its history
// out from under it.
func (lru *lrukReplacer) remove(frameId int) error {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.nodeStore[frameId]
	if !ok {
		return nil
	}

	if !node.isEvictable {
		err := errors.Errorf("remove called on non-evictable frame %d", frameId)
		log.WithError(err).Error("replacer invariant violated")
		return err
	}

	if elem, inHistory := lru.historyElemByID[frameId]; inHistory {
		lru.removeHistoryElem(frameId, elem)
		lru.evictableCount--
		return nil
	}
	if elem, inCache := lru.cacheElemByID[frameId]; inCache {
		lru.removeCacheElem(frameId, elem)
		lru.evictableCount--
	}
	return nil
}

func (lru *lrukReplacer) removeHistoryElem(frameId int, elem *list.Element) {
	lru.historyPool.Remove(elem)
	delete(lru.historyElemByID, frameId)
	delete(lru.nodeStore, frameId)
}

func (lru *lrukReplacer) removeCacheElem(frameId int, elem *list.Element) {
	lru.cachePool.Remove(elem)
	delete(lru.cacheElemByID, frameId)
	delete(lru.nodeStore, frameId)
}

// size returns the number of frames currently eligible for eviction.
func (lru *lrukReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.evictableCount
}
