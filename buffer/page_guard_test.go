package buffer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Jclennon97/bustub-jc/storage/disk"
)

func TestPageGuard(t *testing.T) {
	t.Run("BasicPageGuard unpins on Drop and is idempotent", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		guard, ok := bpm.NewPageGuarded()
		assert.True(t, ok)
		pageId := guard.PageId()

		f := bpm.frames[bpm.pageTable[pageId]]
		assert.Equal(t, int32(1), f.pinCount())

		guard.Drop()
		assert.Equal(t, int32(0), f.pinCount())

		guard.Drop()
		assert.Equal(t, int32(0), f.pinCount())
	})

	t.Run("AsMut marks the page dirty for Drop's UnpinPage call", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		guard, ok := bpm.NewPageGuarded()
		assert.True(t, ok)
		copy(guard.AsMut(), []byte("mutated"))

		f := bpm.frames[bpm.pageTable[guard.PageId()]]
		guard.Drop()
		assert.True(t, f.dirty)
	})

	t.Run("ReadPageGuard releases the read latch before unpinning", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		data := make([]byte, disk.PAGE_SIZE)
		copy(data, []byte("hello, world!"))
		syncWrite(1, data, diskScheduler)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		guard, ok, err := bpm.FetchPageRead(1)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, data, guard.GetData())

		guard.Drop()

		f := bpm.frames[bpm.pageTable[1]]
		assert.Equal(t, int32(0), f.pinCount())

		// the latch must be free again: a write latch can be acquired.
		f.latch.Lock()
		f.latch.Unlock()
	})

	t.Run("WritePageGuard serializes against concurrent readers until Drop", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(5, NewLrukReplacer(5, 2), diskScheduler)

		guard, ok, err := bpm.FetchPageWrite(1)
		assert.NoError(t, err)
		assert.True(t, ok)
		copy(guard.AsMut(), []byte("written"))

		acquired := make(chan struct{})
		go func() {
			f := bpm.frames[bpm.pageTable[1]]
			f.latch.RLock()
			f.latch.RUnlock()
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("reader acquired the latch while the writer still held it")
		case <-time.After(20 * time.Millisecond):
		}

		guard.Drop()
		<-acquired

		f := bpm.frames[bpm.pageTable[1]]
		assert.Equal(t, "written", string(bytes.Trim(f.data, "\x00")))
	})

	t.Run("FetchPageRead reports !ok when the pool is exhausted", func(t *testing.T) {
		file := createDbFile(t)
		diskMgr := disk.NewDiskManager(file)
		diskScheduler := disk.NewDiskScheduler(diskMgr)
		t.Cleanup(diskScheduler.Shutdown)

		bpm := NewBufferpoolManager(1, NewLrukReplacer(1, 2), diskScheduler)

		held, ok := bpm.NewPageGuarded()
		assert.True(t, ok)
		defer held.Drop()

		_, ok, err := bpm.FetchPageRead(99)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}
