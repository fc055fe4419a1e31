package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/Jclennon97/bustub-jc/storage/disk"
)

// frame is a fixed slot in the buffer pool. Its latch guards concurrent
// readers/writers of data once a caller holds a Read/WritePageGuard; pins
// and dirty are managed by the BufferpoolManager under its own pool latch.
type frame struct {
	latch  sync.RWMutex
	id     int
	data   []byte
	pins   atomic.Int32
	dirty  bool
	pageId int64
}

func newFrame(id int) *frame {
	return &frame{
		id:     id,
		data:   make([]byte, disk.PAGE_SIZE),
		pageId: disk.INVALID_PAGE_ID,
	}
}

func (f *frame) pin() {
	f.pins.Add(1)
}

// unpin decrements the pin count and returns the count after decrementing.
func (f *frame) unpin() int32 {
	return f.pins.Add(-1)
}

func (f *frame) pinCount() int32 {
	return f.pins.Load()
}

// reset clears a frame's contents and metadata before it is reused for a
// different page id.
func (f *frame) reset() {
	f.dirty = false
	f.pins.Store(0)
	for i := range f.data {
		f.data[i] = 0
	}
	f.pageId = disk.INVALID_PAGE_ID
}
