package buffer

// BasicPageGuard pins pageId for its lifetime and unpins it exactly once,
// on Drop. It takes no latch on the frame's data; callers that need
// concurrency safety want a ReadPageGuard or WritePageGuard instead.
type BasicPageGuard struct {
	bpm     *BufferpoolManager
	frame   *frame
	pageId  int64
	isDirty bool
	dropped bool
}

func newBasicPageGuard(bpm *BufferpoolManager, f *frame, pageId int64) BasicPageGuard {
	return BasicPageGuard{bpm: bpm, frame: f, pageId: pageId}
}

// PageId returns the id of the page this guard pins.
func (g *BasicPageGuard) PageId() int64 {
	return g.pageId
}

// GetData returns the frame's page bytes for reading.
func (g *BasicPageGuard) GetData() []byte {
	return g.frame.data
}

// AsMut marks the page dirty and returns its bytes for in-place mutation.
func (g *BasicPageGuard) AsMut() []byte {
	g.isDirty = true
	return g.frame.data
}

// Drop unpins the page, propagating whatever dirty bit AsMut accumulated.
// Safe to call more than once; only the first call has an effect. Go has
// no destructors, so callers are responsible for calling Drop (typically
// via defer) when the guard goes out of scope.
func (g *BasicPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.bpm.UnpinPage(g.pageId, g.isDirty)
}

// ReadPageGuard holds a BasicPageGuard plus the frame's read latch. Only
// GetData is available; there is no AsMut on a read guard.
type ReadPageGuard struct {
	guard BasicPageGuard
}

func newReadPageGuard(bpm *BufferpoolManager, f *frame, pageId int64) ReadPageGuard {
	f.latch.RLock()
	return ReadPageGuard{guard: newBasicPageGuard(bpm, f, pageId)}
}

func (g *ReadPageGuard) PageId() int64 {
	return g.guard.PageId()
}

func (g *ReadPageGuard) GetData() []byte {
	return g.guard.GetData()
}

// Drop releases the read latch before unpinning, matching the write
// guard's symmetric unlatch-then-unpin order.
func (g *ReadPageGuard) Drop() {
	if g.guard.dropped {
		return
	}
	g.guard.frame.latch.RUnlock()
	g.guard.Drop()
}

// WritePageGuard holds a BasicPageGuard plus the frame's exclusive latch.
// AsMut marks the page dirty for the eventual Drop/UnpinPage.
type WritePageGuard struct {
	guard BasicPageGuard
}

func newWritePageGuard(bpm *BufferpoolManager, f *frame, pageId int64) WritePageGuard {
	f.latch.Lock()
	return WritePageGuard{guard: newBasicPageGuard(bpm, f, pageId)}
}

func (g *WritePageGuard) PageId() int64 {
	return g.guard.PageId()
}

func (g *WritePageGuard) GetData() []byte {
	return g.guard.GetData()
}

func (g *WritePageGuard) AsMut() []byte {
	return g.guard.AsMut()
}

// Drop releases the write latch before unpinning.
func (g *WritePageGuard) Drop() {
	if g.guard.dropped {
		return
	}
	g.guard.frame.latch.Unlock()
	g.guard.Drop()
}

// NewPageGuarded allocates a fresh page and returns it already wrapped in
// a BasicPageGuard. Returns false if the pool is exhausted.
func (b *BufferpoolManager) NewPageGuarded() (BasicPageGuard, bool) {
	pageId, f := b.NewPage()
	if f == nil {
		return BasicPageGuard{}, false
	}
	return newBasicPageGuard(b, f, pageId), true
}

// FetchPageBasic fetches pageId and wraps it in a BasicPageGuard. ok is
// false if the pool is exhausted; a disk read failure is returned as err.
func (b *BufferpoolManager) FetchPageBasic(pageId int64) (guard BasicPageGuard, ok bool, err error) {
	f, err := b.FetchPage(pageId)
	if err != nil {
		return BasicPageGuard{}, false, err
	}
	if f == nil {
		return BasicPageGuard{}, false, nil
	}
	return newBasicPageGuard(b, f, pageId), true, nil
}

// FetchPageRead fetches pageId and returns it read-latched. ok is false
// if the pool is exhausted; a disk read failure is returned as err.
func (b *BufferpoolManager) FetchPageRead(pageId int64) (guard ReadPageGuard, ok bool, err error) {
	f, err := b.FetchPage(pageId)
	if err != nil {
		return ReadPageGuard{}, false, err
	}
	if f == nil {
		return ReadPageGuard{}, false, nil
	}
	return newReadPageGuard(b, f, pageId), true, nil
}

// FetchPageWrite fetches pageId and returns it write-latched. ok is false
// if the pool is exhausted; a disk read failure is returned as err.
func (b *BufferpoolManager) FetchPageWrite(pageId int64) (guard WritePageGuard, ok bool, err error) {
	f, err := b.FetchPage(pageId)
	if err != nil {
		return WritePageGuard{}, false, err
	}
	if f == nil {
		return WritePageGuard{}, false, nil
	}
	return newWritePageGuard(b, f, pageId), true, nil
}
