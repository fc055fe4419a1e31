package buffer

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Jclennon97/bustub-jc/storage/disk"
)

func TestBufferPoolManager(t *testing.T) {
	t.Run("NewPage pins a fresh frame and FetchPage finds it without touching disk", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		pageId, f := bpm.NewPage()
		assert.NotNil(t, f)
		assert.Equal(t, int32(1), f.pinCount())

		f2, err := bpm.FetchPage(pageId)
		assert.NoError(t, err)
		assert.Same(t, f, f2)
		assert.Equal(t, int32(2), f2.pinCount())

		bpm.UnpinPage(pageId, false)
		bpm.UnpinPage(pageId, false)
	})

	t.Run("FetchPage reads an unpinned page in from disk", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		data := make([]byte, disk.PAGE_SIZE)
		copy(data, []byte("hello, world!"))
		syncWrite(1, data, diskScheduler)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		f, err := bpm.FetchPage(1)
		assert.NoError(t, err)
		assert.Equal(t, data, f.data)
		bpm.UnpinPage(1, false)
	})

	t.Run("NewPage returns nil once every frame is pinned and the free list is empty", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(2, NewLrukReplacer(2, 2), diskScheduler)

		_, f1 := bpm.NewPage()
		_, f2 := bpm.NewPage()
		assert.NotNil(t, f1)
		assert.NotNil(t, f2)

		_, f3 := bpm.NewPage()
		assert.Nil(t, f3)
	})

	t.Run("evicts the unpinned page whose k-th most recent access is oldest", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		content := []string{"1", "2", "3"}
		for pageId, d := range content {
			data := make([]byte, disk.PAGE_SIZE)
			copy(data, []byte(d))
			syncWrite(pageId+1, data, diskScheduler)
		}

		bpm := NewBufferpoolManager(2, NewLrukReplacer(2, 2), diskScheduler)

		for i := 0; i < 5; i++ {
			f, err := bpm.FetchPage(2)
			assert.NoError(t, err)
			bpm.UnpinPage(2, false)
			_ = f
		}

		f1, err := bpm.FetchPage(1)
		assert.NoError(t, err)
		bpm.UnpinPage(1, false)
		_ = f1

		for i := 0; i < len(content); i++ {
			f, err := bpm.FetchPage(int64(i + 1))
			assert.NoError(t, err)
			assert.Equal(t, content[i], string(bytes.Trim(f.data, "\x00")))
			bpm.UnpinPage(int64(i+1), false)
		}

		// Before page 3 is fetched, page 2's two latest accesses are at
		// t=5 and t=8 and page 1's at t=6 and t=7; page 2's 2nd-most-recent
		// access is the older one, so LRU-K (K=2) evicts page 2.
		assert.Equal(t, int64(3), bpm.frames[0].pageId)
		assert.Equal(t, int64(1), bpm.frames[1].pageId)

		_, ok := bpm.pageTable[2]
		assert.False(t, ok)
	})

	t.Run("UnpinPage reports false for a page that is not resident", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)
		assert.False(t, bpm.UnpinPage(42, false))
	})

	t.Run("FlushPage writes the page even when it is not dirty", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		pageId, f := bpm.NewPage()
		copy(f.data, []byte("not marked dirty"))
		assert.False(t, f.dirty)

		ok := bpm.FlushPage(pageId)
		assert.True(t, ok)
		assert.False(t, f.dirty)

		onDisk := syncRead(int(pageId), diskScheduler)
		assert.Equal(t, "not marked dirty", string(bytes.Trim(onDisk, "\x00")))
		bpm.UnpinPage(pageId, false)
	})

	t.Run("DeletePage refuses a pinned page and succeeds once unpinned", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)
		pageId, f := bpm.NewPage()

		assert.False(t, bpm.DeletePage(pageId))

		bpm.UnpinPage(pageId, false)
		assert.True(t, bpm.DeletePage(pageId))

		_, ok := bpm.pageTable[pageId]
		assert.False(t, ok)

		replacer := bpm.replacer
		_, stillTracked := replacer.nodeStore[f.id]
		assert.False(t, stillTracked, "DeletePage must strip the frame from the replacer's bookkeeping")
		_, inHistory := replacer.historyElemByID[f.id]
		assert.False(t, inHistory)
		_, inCache := replacer.cacheElemByID[f.id]
		assert.False(t, inCache)
	})

	t.Run("FlushAllPages flushes every resident page", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		id1, f1 := bpm.NewPage()
		id2, f2 := bpm.NewPage()
		copy(f1.data, []byte("one"))
		copy(f2.data, []byte("two"))
		f1.dirty = true
		f2.dirty = true

		bpm.FlushAllPages()

		assert.False(t, f1.dirty)
		assert.False(t, f2.dirty)
		assert.Equal(t, "one", string(bytes.Trim(syncRead(int(id1), diskScheduler), "\x00")))
		assert.Equal(t, "two", string(bytes.Trim(syncRead(int(id2), diskScheduler), "\x00")))

		bpm.UnpinPage(id1, false)
		bpm.UnpinPage(id2, false)
	})
}

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}

	_ = os.Truncate(file.Name(), disk.PAGE_SIZE)
	fileInfo, err := os.Stat(file.Name())
	assert.NoError(t, err)
	assert.Equal(t, int64(disk.PAGE_SIZE), fileInfo.Size())
	return file
}

func syncWrite(pageId int, data []byte, diskScheduler *disk.DiskScheduler) {
	resCh := make(chan disk.DiskResp)
	writeReq := disk.DiskReq{
		PageId: pageId,
		Write:  true,
		Data:   data,
		RespCh: resCh,
	}
	diskScheduler.Schedule(writeReq)
	<-resCh
}

func syncRead(pageId int, diskScheduler *disk.DiskScheduler) []byte {
	readReq := disk.NewRequest(int64(pageId), nil, false)
	respCh := diskScheduler.Schedule(readReq)
	res := <-respCh
	return res.Data
}
