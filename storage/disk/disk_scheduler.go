package disk

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// DiskReq is a single read or write request, dispatched asynchronously
// through the scheduler and answered on RespCh.
type DiskReq struct {
	PageId int
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

// DiskResp carries the outcome of a DiskReq: the read bytes on success,
// or Success=false on failure.
type DiskResp struct {
	Success bool
	Data    []byte
}

// NewRequest builds a read (isWrite=false) or write (isWrite=true, data
// as payload) request for pageId with a fresh response channel.
func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	return DiskReq{
		PageId: int(pageId),
		Data:   data,
		Write:  isWrite,
		RespCh: make(chan DiskResp),
	}
}

// DiskScheduler serializes concurrent requests for the same page onto a
// single worker goroutine per page, while letting requests for distinct
// pages proceed in parallel against the underlying DiskManager.
type DiskScheduler struct {
	reqCh       chan DiskReq
	diskManager *DiskManager

	pageQueue   map[int]chan DiskReq
	pageQueueMu sync.Mutex

	done chan struct{}
}

// NewDiskScheduler starts the dispatch loop that fans requests out to
// per-page workers.
func NewDiskScheduler(diskManager *DiskManager) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:       make(chan DiskReq, 100),
		pageQueue:   make(map[int]chan DiskReq),
		diskManager: diskManager,
		done:        make(chan struct{}),
	}

	go ds.dispatch()
	return ds
}

// Schedule enqueues req and returns immediately; the caller receives the
// result on req.RespCh once the page's worker processes it.
func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// Shutdown stops accepting new requests. In-flight per-page workers drain
// their queues and exit on their own.
func (ds *DiskScheduler) Shutdown() {
	close(ds.done)
	close(ds.reqCh)
}

func (ds *DiskScheduler) dispatch() {
	for req := range ds.reqCh {
		ds.pageQueueMu.Lock()
		queue, ok := ds.pageQueue[req.PageId]
		if !ok {
			queue = make(chan DiskReq, 10)
			ds.pageQueue[req.PageId] = queue
		}
		ds.pageQueueMu.Unlock()

		queue <- req

		if !ok {
			go ds.pageWorker(req.PageId, queue)
		}
	}
}

func (ds *DiskScheduler) pageWorker(pageId int, reqQueue chan DiskReq) {
	for {
		select {
		case req := <-reqQueue:
			ds.handle(req)
		default:
			// No more queued work for this page right now; retire the
			// worker. A future request re-creates the queue and worker.
			ds.pageQueueMu.Lock()
			delete(ds.pageQueue, pageId)
			ds.pageQueueMu.Unlock()
			return
		}
	}
}

func (ds *DiskScheduler) handle(req DiskReq) {
	if req.Write {
		if err := ds.diskManager.writePage(req.PageId, req.Data); err != nil {
			log.WithError(err).WithField("page_id", req.PageId).Warn("disk write failed")
			req.RespCh <- DiskResp{Success: false}
			return
		}
		req.RespCh <- DiskResp{Success: true}
		return
	}

	data, err := ds.diskManager.readPage(req.PageId)
	if err != nil {
		log.WithError(err).WithField("page_id", req.PageId).Warn("disk read failed")
		req.RespCh <- DiskResp{Success: false}
		return
	}
	req.RespCh <- DiskResp{Success: true, Data: data}
}
