package index

import (
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jclennon97/bustub-jc/buffer"
	"github.com/Jclennon97/bustub-jc/storage/disk"
)

func TestBPlusTree(t *testing.T) {
	t.Run("stored values can be retrieved", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[string, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		register := map[string]int{"john": 25, "doe": 45, "jane": 40}
		for k, v := range register {
			inserted, err := tree.Insert(k, v)
			require.NoError(t, err)
			assert.True(t, inserted)
		}

		for k, v := range register {
			val, found, err := tree.GetValue(k)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, v, val)
		}
	})

	t.Run("duplicate insert is rejected", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		inserted, err := tree.Insert(1, 100)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = tree.Insert(1, 200)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("empty tree: GetValue false, Begin equals End", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		_, found, err := tree.GetValue(42)
		require.NoError(t, err)
		assert.False(t, found)

		isEmpty, err := tree.IsEmpty()
		require.NoError(t, err)
		assert.True(t, isEmpty)

		begin, err := tree.Begin()
		require.NoError(t, err)
		assert.True(t, begin.IsEnd())
		assert.True(t, tree.End().IsEnd())
	})

	t.Run("can store more items than a page's max size", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		for i := 100; i >= 0; i-- {
			inserted, err := tree.Insert(i, i*10)
			require.NoError(t, err)
			require.True(t, inserted)
		}

		for i := 0; i < 101; i++ {
			val, found, err := tree.GetValue(i)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, i*10, val)
		}
	})

	t.Run("iteration yields ascending keys across leaf boundaries", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		for i := 100; i >= 0; i-- {
			_, err := tree.Insert(i, i)
			require.NoError(t, err)
		}

		iter, err := tree.Begin()
		require.NoError(t, err)

		got := []int{}
		for !iter.IsEnd() {
			key, _, err := iter.Next()
			require.NoError(t, err)
			got = append(got, key)
		}

		want := make([]int, 101)
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, got)
	})

	t.Run("canonical scenario: leaf_max=4, internal_max=3, insert then iterate", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 3)
		require.NoError(t, err)

		for _, k := range []int{5, 1, 3, 8, 2, 6, 4, 7} {
			inserted, err := tree.Insert(k, k)
			require.NoError(t, err)
			require.True(t, inserted)
		}

		iter, err := tree.Begin()
		require.NoError(t, err)
		got := []int{}
		for !iter.IsEnd() {
			key, _, err := iter.Next()
			require.NoError(t, err)
			got = append(got, key)
		}
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, got)

		for _, k := range []int{3, 5, 8, 1} {
			require.NoError(t, tree.Remove(k))
		}

		iter, err = tree.Begin()
		require.NoError(t, err)
		got = []int{}
		for !iter.IsEnd() {
			key, _, err := iter.Next()
			require.NoError(t, err)
			got = append(got, key)
		}
		assert.Equal(t, []int{2, 4, 6, 7}, got)
	})

	t.Run("BeginAt starts at the first key >= the given key", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		for _, k := range []int{1, 2, 3, 4, 5, 6} {
			_, err := tree.Insert(k, k)
			require.NoError(t, err)
		}

		iter, err := tree.BeginAt(4)
		require.NoError(t, err)
		got := []int{}
		for !iter.IsEnd() {
			key, _, err := iter.Next()
			require.NoError(t, err)
			got = append(got, key)
		}
		assert.Equal(t, []int{4, 5, 6}, got)
	})

	t.Run("GetKeyRange is bounded at both ends", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			_, err := tree.Insert(i, i*2)
			require.NoError(t, err)
		}

		vals, err := tree.GetKeyRange(5, 9)
		require.NoError(t, err)
		assert.Equal(t, []int{10, 12, 14, 16, 18}, vals)
	})

	t.Run("remove collapses a leaf root to an empty tree", func(t *testing.T) {
		bpm := newTestBpm(t)
		tree, err := NewBPlusTree[int, int]("test", bpm, HeaderPageID, 4, 4)
		require.NoError(t, err)

		_, err = tree.Insert(1, 1)
		require.NoError(t, err)
		require.NoError(t, tree.Remove(1))

		isEmpty, err := tree.IsEmpty()
		require.NoError(t, err)
		assert.True(t, isEmpty)
	})
}

func newTestBpm(t *testing.T) *buffer.BufferpoolManager {
	t.Helper()
	file := createDbFile(t)
	replacer := buffer.NewLrukReplacer(16, 2)
	diskMgr := disk.NewDiskManager(file)
	diskScheduler := disk.NewDiskScheduler(diskMgr)
	return buffer.NewBufferpoolManager(16, replacer, diskScheduler)
}

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbPath := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}
	require.NoError(t, os.Truncate(file.Name(), disk.PAGE_SIZE))
	t.Cleanup(func() {
		_ = file.Close()
		_ = os.Remove(file.Name())
	})
	return file
}
