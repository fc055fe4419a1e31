package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockTableBasicGrantAndCompatibility(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)

	ok, err := lm.LockTable(t1, Shared, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lm.LockTable(t2, Shared, 100)
	require.NoError(t, err)
	assert.True(t, ok, "S and S are compatible")

	done := make(chan bool, 1)
	go func() {
		ok, err := lm.LockTable(t2, Exclusive, 200)
		done <- ok && err == nil
	}()

	select {
	case ok := <-done:
		assert.True(t, ok, "X on a fresh table should grant immediately regardless of unrelated locks")
	case <-time.After(200 * time.Millisecond):
		t.Fatal("X on a fresh table should grant immediately regardless of unrelated locks")
	}
}

func TestLockTableUpgradePriorityOverWaiter(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)

	ok, err := lm.LockTable(t1, Shared, 1)
	require.NoError(t, err)
	require.True(t, ok)

	t2Granted := make(chan bool, 1)
	go func() {
		ok, _ := lm.LockTable(t2, Exclusive, 1)
		t2Granted <- ok
	}()
	time.Sleep(20 * time.Millisecond)

	t1Upgraded := make(chan bool, 1)
	go func() {
		ok, err := lm.LockTable(t1, Exclusive, 1)
		t1Upgraded <- ok && err == nil
	}()

	select {
	case ok := <-t1Upgraded:
		assert.True(t, ok, "T1's upgrade must be granted ahead of T2's waiting request")
	case <-time.After(200 * time.Millisecond):
		t.Fatal("upgrade never granted: T2's waiting request must not starve the upgrader")
	}

	select {
	case <-t2Granted:
		t.Fatal("T2 must still be waiting for T1 to release X")
	case <-time.After(20 * time.Millisecond):
	}

	ok, err = lm.UnlockTable(t1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case ok := <-t2Granted:
		assert.True(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("T2 should be granted X once T1 releases")
	}
}

func TestLockTableIncompatibleUpgradeAborts(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	txn := NewTransaction(1, RepeatableRead)

	_, err := lm.LockTable(txn, IntentionShared, 1)
	require.NoError(t, err)

	_, err = lm.LockTable(txn, Shared, 1)
	require.NoError(t, err)

	_, err = lm.LockTable(txn, IntentionExclusive, 1)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, IncompatibleUpgrade, abortErr.Reason)
	assert.Equal(t, Aborted, txn.State())
}

func TestLockTableReadUncommittedRejectsSharedModes(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	txn := NewTransaction(1, ReadUncommitted)

	_, err := lm.LockTable(txn, Shared, 1)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, LockSharedOnReadUncommitted, abortErr.Reason)
}

func TestLockTableShrinkingUnderRepeatableReadAborts(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	txn := NewTransaction(1, RepeatableRead)

	_, err := lm.LockTable(txn, Shared, 1)
	require.NoError(t, err)
	_, err = lm.UnlockTable(txn, 1)
	require.NoError(t, err)
	require.Equal(t, Shrinking, txn.State())

	_, err = lm.LockTable(txn, Shared, 2)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, LockOnShrinking, abortErr.Reason)
}

func TestLockRowRequiresTableIntentionLock(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	txn := NewTransaction(1, RepeatableRead)

	_, err := lm.LockRow(txn, Exclusive, 1, RID{PageId: 1, SlotNum: 0})
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, TableLockNotPresent, abortErr.Reason)
}

func TestLockRowIntentionModeRejected(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	txn := NewTransaction(1, RepeatableRead)

	_, err := lm.LockTable(txn, IntentionExclusive, 1)
	require.NoError(t, err)

	_, err = lm.LockRow(txn, IntentionExclusive, 1, RID{PageId: 1, SlotNum: 0})
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, AttemptedIntentionLockOnRow, abortErr.Reason)
}

func TestUnlockTableBeforeRowsAborts(t *testing.T) {
	lm := NewLockManager(50 * time.Millisecond)
	txn := NewTransaction(1, RepeatableRead)

	_, err := lm.LockTable(txn, IntentionExclusive, 1)
	require.NoError(t, err)
	_, err = lm.LockRow(txn, Exclusive, 1, RID{PageId: 1, SlotNum: 0})
	require.NoError(t, err)

	_, err = lm.UnlockTable(txn, 1)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, TableUnlockedBeforeUnlockingRows, abortErr.Reason)
}

func TestDeadlockDetectorAbortsYoungestInCycle(t *testing.T) {
	lm := NewLockManager(20 * time.Millisecond)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)

	ok, err := lm.LockTable(t1, Shared, 100)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = lm.LockTable(t2, Shared, 200)
	require.NoError(t, err)
	require.True(t, ok)

	t1Result := make(chan bool, 1)
	go func() {
		ok, _ := lm.LockTable(t1, Exclusive, 200)
		t1Result <- ok
	}()
	t2Result := make(chan bool, 1)
	go func() {
		ok, _ := lm.LockTable(t2, Exclusive, 100)
		t2Result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	lm.RunCycleDetection()

	assert.Equal(t, Aborted, t2.State(), "the higher-id transaction in the cycle must be the victim")

	select {
	case ok := <-t2Result:
		assert.False(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("aborted victim's waiting acquire must wake up and return false")
	}

	// Rolling back the victim releases its S on table 200, which is what
	// T1's X request on 200 is waiting behind.
	lm.UnlockAll(t2)
	select {
	case ok := <-t1Result:
		assert.True(t, ok)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("survivor's upgrade/acquire should eventually succeed")
	}
}

func TestGetEdgeListReflectsWaiters(t *testing.T) {
	lm := NewLockManager(time.Second)
	t1 := NewTransaction(1, RepeatableRead)
	t2 := NewTransaction(2, RepeatableRead)

	_, err := lm.LockTable(t1, Exclusive, 1)
	require.NoError(t, err)

	waiting := make(chan struct{})
	go func() {
		close(waiting)
		_, _ = lm.LockTable(t2, Shared, 1)
	}()
	<-waiting
	time.Sleep(20 * time.Millisecond)

	edges := lm.GetEdgeList()
	assert.Contains(t, edges, [2]TxnID{2, 1})

	_, _ = lm.UnlockTable(t1, 1)
}
