// Package buffer implements the Buffer Pool Manager: the cache of fixed
// size disk pages that every higher layer (B+Tree, lock manager's row
// data) reads and writes through. It owns the LRU-K replacement policy
// and hands out scoped PageGuards that tie a page's pin/latch lifetime to
// Go's explicit Drop rather than RAII.
package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Jclennon97/bustub-jc/storage/disk"
)

// BufferpoolManager maps page ids to frames, pins/unpins pages on behalf
// of guards, and evicts via the LRU-K replacer when the pool is full.
// Every public operation is serialized under mu; a finer latching scheme
// is possible but this coarse one keeps the pin/evict/free-list
// invariants trivially correct, which is the point for a teaching engine.
type BufferpoolManager struct {
	mu sync.Mutex
	cv sync.Cond

	frames        []*frame
	pageTable     map[int64]int
	freeFrames    []int
	replacer      *lrukReplacer
	diskScheduler *disk.DiskScheduler
	nextPageId    atomic.Int64
}

// NewBufferpoolManager builds a pool of size frames backed by replacer
// for eviction decisions and diskScheduler for reads/writes-through.
func NewBufferpoolManager(size int, replacer *lrukReplacer, diskScheduler *disk.DiskScheduler) *BufferpoolManager {
	frames := make([]*frame, size)
	freeFrames := make([]int, size)
	for i := 0; i < size; i++ {
		frames[i] = newFrame(i)
		freeFrames[i] = i
	}

	bpm := &BufferpoolManager{
		frames:        frames,
		pageTable:     make(map[int64]int),
		freeFrames:    freeFrames,
		replacer:      replacer,
		diskScheduler: diskScheduler,
	}
	bpm.cv.L = &bpm.mu
	return bpm
}

// NewPage allocates a fresh page id, pins it into a frame and returns
// that frame. Returns (disk.INVALID_PAGE_ID, nil) if every resident frame
// is pinned and the free list is empty.
func (b *BufferpoolManager) NewPage() (int64, *frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.acquireFrame()
	if f == nil {
		return disk.INVALID_PAGE_ID, nil
	}

	pageId := b.nextPageId.Add(1)
	b.installFrame(f, pageId)
	f.reset()
	f.pageId = pageId
	f.pin()
	b.replacer.recordAccess(f.id)
	b.replacer.setEvictable(f.id, false)

	return pageId, f
}

// FetchPage returns the frame holding pageId, reading it from disk on a
// miss. Returns nil if the pool is exhausted.
func (b *BufferpoolManager) FetchPage(pageId int64) (*frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable[pageId]; ok {
		f := b.frames[frameId]
		f.pin()
		b.replacer.recordAccess(f.id)
		b.replacer.setEvictable(f.id, false)
		return f, nil
	}

	f := b.acquireFrame()
	if f == nil {
		return nil, nil
	}

	b.installFrame(f, pageId)
	f.reset()
	f.pageId = pageId

	respCh := b.diskScheduler.Schedule(disk.NewRequest(pageId, nil, false))
	resp := <-respCh
	if !resp.Success {
		return nil, errors.Errorf("fetching page %d from disk failed", pageId)
	}
	copy(f.data, resp.Data)

	f.pin()
	b.replacer.recordAccess(f.id)
	b.replacer.setEvictable(f.id, false)

	return f, nil
}

// UnpinPage decrements pageId's pin count and ORs isDirty into the
// frame's dirty bit. Returns false if the page is not resident or its
// pin count was already zero.
func (b *BufferpoolManager) UnpinPage(pageId int64, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}
	f := b.frames[frameId]
	if f.pinCount() <= 0 {
		return false
	}

	f.dirty = f.dirty || isDirty
	if f.unpin() == 0 {
		b.replacer.setEvictable(f.id, true)
		b.cv.Signal()
	}

	return true
}

// FlushPage writes pageId to disk unconditionally and clears its dirty
// bit.
func (b *BufferpoolManager) FlushPage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return false
	}
	b.flushFrame(b.frames[frameId])
	return true
}

// FlushAllPages flushes every resident page.
func (b *BufferpoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, frameId := range b.pageTable {
		b.flushFrame(b.frames[frameId])
	}
}

// DeletePage removes pageId from the pool and returns its frame to the
// free list. A page that is still pinned cannot be deleted.
func (b *BufferpoolManager) DeletePage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable[pageId]
	if !ok {
		return true
	}

	f := b.frames[frameId]
	if f.pinCount() > 0 {
		return false
	}

	delete(b.pageTable, pageId)
	if err := b.replacer.remove(f.id); err != nil {
		log.WithError(err).WithField("page_id", pageId).Error("replacer bookkeeping corrupted on delete")
	}
	f.reset()
	b.freeFrames = append(b.freeFrames, f.id)
	b.cv.Signal()

	return true
}

// NewPageId reserves the next monotonic page id without installing it in
// any frame; used by callers (the B+Tree) that need an id before they are
// ready to pin a frame for it.
func (b *BufferpoolManager) NewPageId() int64 {
	return b.nextPageId.Add(1)
}

// acquireFrame returns a frame from the free list, or evicts one via the
// replacer (flushing it first if dirty). Returns nil if the pool is
// exhausted: every frame is resident and pinned.
func (b *BufferpoolManager) acquireFrame() *frame {
	if len(b.freeFrames) > 0 {
		id := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return b.frames[id]
	}

	frameId, ok := b.replacer.evict()
	if !ok {
		return nil
	}

	f := b.frames[frameId]
	if f.dirty {
		b.flushFrame(f)
	}
	delete(b.pageTable, f.pageId)
	return f
}

// installFrame maps pageId onto f's slot in the page table.
func (b *BufferpoolManager) installFrame(f *frame, pageId int64) {
	b.pageTable[pageId] = f.id
}

// flushFrame writes f to disk unconditionally and clears its dirty bit.
func (b *BufferpoolManager) flushFrame(f *frame) {
	if f.pageId == disk.INVALID_PAGE_ID {
		return
	}

	respCh := b.diskScheduler.Schedule(disk.NewRequest(f.pageId, f.data, true))
	<-respCh
	f.dirty = false
}
