package concurrency

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LockManager implements hierarchical table/row two-phase locking: five
// lock modes, upgrade handling, isolation-level policy enforcement, and
// (via deadlock_detector.go) background cycle-based deadlock detection.
// Lock order, per spec.md §5: map latch before queue latch, never the
// reverse.
type LockManager struct {
	tableMapMu sync.Mutex
	tableMap   map[TableOID]*lockRequestQueue

	rowMapMu sync.Mutex
	rowMap   map[RID]*lockRequestQueue

	txnMu    sync.Mutex
	txnTable map[TxnID]*Transaction

	detectorInterval time.Duration
	enableDetection  bool
	detectionMu      sync.Mutex
	stopCh           chan struct{}
	doneCh           chan struct{}
}

// NewLockManager builds a lock manager whose deadlock detector, once
// started, ticks every interval.
func NewLockManager(interval time.Duration) *LockManager {
	return &LockManager{
		tableMap:         map[TableOID]*lockRequestQueue{},
		rowMap:           map[RID]*lockRequestQueue{},
		txnTable:         map[TxnID]*Transaction{},
		detectorInterval: interval,
	}
}

func (lm *LockManager) registerTxn(txn *Transaction) {
	lm.txnMu.Lock()
	defer lm.txnMu.Unlock()
	lm.txnTable[txn.ID()] = txn
}

// GetTransaction looks up a registered transaction by id, for the
// deadlock detector to mark victims ABORTED.
func (lm *LockManager) GetTransaction(id TxnID) (*Transaction, bool) {
	lm.txnMu.Lock()
	defer lm.txnMu.Unlock()
	txn, ok := lm.txnTable[id]
	return txn, ok
}

func (lm *LockManager) tableQueue(oid TableOID) *lockRequestQueue {
	lm.tableMapMu.Lock()
	defer lm.tableMapMu.Unlock()
	q, ok := lm.tableMap[oid]
	if !ok {
		q = newLockRequestQueue()
		lm.tableMap[oid] = q
	}
	return q
}

func (lm *LockManager) rowQueue(rid RID) *lockRequestQueue {
	lm.rowMapMu.Lock()
	defer lm.rowMapMu.Unlock()
	q, ok := lm.rowMap[rid]
	if !ok {
		q = newLockRequestQueue()
		lm.rowMap[rid] = q
	}
	return q
}

func abort(txn *Transaction, reason AbortReason) error {
	txn.SetState(Aborted)
	log.WithFields(log.Fields{"txn": txn.ID(), "reason": reason}).Warn("lock manager aborting transaction")
	return &AbortError{TxnID: txn.ID(), Reason: reason}
}

// checkTableLockPolicy enforces spec.md §4.6's isolation-level table
// below for table-level requests.
func checkTableLockPolicy(txn *Transaction, mode LockMode) error {
	level := txn.IsolationLevel()
	state := txn.State()

	if state == Shrinking {
		switch level {
		case RepeatableRead:
			return abort(txn, LockOnShrinking)
		case ReadCommitted:
			if mode == Exclusive || mode == IntentionExclusive || mode == SharedIntentionExclusive {
				return abort(txn, LockOnShrinking)
			}
		case ReadUncommitted:
			if mode == Exclusive || mode == IntentionExclusive {
				return abort(txn, LockOnShrinking)
			}
			return abort(txn, LockSharedOnReadUncommitted)
		}
	}
	if level == ReadUncommitted {
		if mode == Shared || mode == IntentionShared || mode == SharedIntentionExclusive {
			return abort(txn, LockSharedOnReadUncommitted)
		}
	}
	return nil
}

// checkRowLockPolicy enforces the row-level analog of the above, plus
// the intention-lock-on-row and table-lock-present preconditions.
func checkRowLockPolicy(txn *Transaction, mode LockMode, oid TableOID) error {
	if mode == IntentionShared || mode == IntentionExclusive || mode == SharedIntentionExclusive {
		return abort(txn, AttemptedIntentionLockOnRow)
	}

	level := txn.IsolationLevel()
	state := txn.State()

	if state == Shrinking {
		switch level {
		case RepeatableRead:
			return abort(txn, LockOnShrinking)
		case ReadCommitted:
			if mode == Exclusive {
				return abort(txn, LockOnShrinking)
			}
		case ReadUncommitted:
			if mode == Exclusive {
				return abort(txn, LockOnShrinking)
			}
			return abort(txn, LockSharedOnReadUncommitted)
		}
	}
	if level == ReadUncommitted && mode == Shared {
		return abort(txn, LockSharedOnReadUncommitted)
	}

	if !checkAppropriateLockOnTable(txn, oid, mode) {
		return abort(txn, TableLockNotPresent)
	}
	return nil
}

// checkAppropriateLockOnTable is the row-X-needs-IX/X/SIX, row-S-needs-any
// rule from spec.md §4.6.
func checkAppropriateLockOnTable(txn *Transaction, oid TableOID, rowMode LockMode) bool {
	tableMode, held := txn.tableLockMode(oid)
	if !held {
		return false
	}
	if rowMode == Exclusive {
		return tableMode == IntentionExclusive || tableMode == Exclusive || tableMode == SharedIntentionExclusive
	}
	return true
}

// LockTable acquires mode on oid for txn, blocking until granted,
// refused by policy (returns an *AbortError), or the transaction is
// chosen as a deadlock victim while waiting (returns false, nil). A
// request for the mode txn already holds on oid also returns false, nil.
func (lm *LockManager) LockTable(txn *Transaction, mode LockMode, oid TableOID) (bool, error) {
	lm.registerTxn(txn)
	if err := checkTableLockPolicy(txn, mode); err != nil {
		return false, err
	}

	q := lm.tableQueue(oid)
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.findByTxn(txn.ID()); i >= 0 {
		existing := q.requests[i]
		if existing.mode == mode {
			return false, nil
		}
		if q.upgrading != InvalidTxnID {
			return false, abort(txn, UpgradeConflict)
		}
		if !canUpgrade(existing.mode, mode) {
			return false, abort(txn, IncompatibleUpgrade)
		}
		txn.deleteTableLock(existing.mode, oid)
		q.removeAt(i)
		pos := q.firstUngranted()
		req := &lockRequest{txnId: txn.ID(), mode: mode, oid: oid}
		q.requests = append(q.requests, nil)
		copy(q.requests[pos+1:], q.requests[pos:])
		q.requests[pos] = req
		q.upgrading = txn.ID()
	} else {
		q.requests = append(q.requests, &lockRequest{txnId: txn.ID(), mode: mode, oid: oid})
	}

	myIdx := q.findByTxn(txn.ID())
	for !q.grantLock(myIdx) {
		q.cond.Wait()
		if txn.State() == Aborted {
			if i := q.findByTxn(txn.ID()); i >= 0 {
				q.removeAt(i)
			}
			q.cond.Broadcast()
			return false, nil
		}
		myIdx = q.findByTxn(txn.ID())
	}
	if txn.State() == Aborted {
		return false, nil
	}

	q.requests[myIdx].granted = true
	if q.upgrading == txn.ID() {
		q.upgrading = InvalidTxnID
	}
	q.grantNewLocksIfPossible()
	q.cond.Broadcast()
	txn.insertTableLock(mode, oid)
	log.WithFields(log.Fields{"txn": txn.ID(), "oid": oid, "mode": mode}).Debug("table lock granted")
	return true, nil
}

// UnlockTable releases txn's lock on oid. Precondition: every row lock
// txn holds on oid has already been released.
func (lm *LockManager) UnlockTable(txn *Transaction, oid TableOID) (bool, error) {
	mode, held := txn.tableLockMode(oid)
	if !held {
		return false, abort(txn, AttemptedUnlockButNoLockHeld)
	}
	if txn.rowLocksHeld(oid) > 0 {
		return false, abort(txn, TableUnlockedBeforeUnlockingRows)
	}

	q := lm.tableQueue(oid)
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.findByTxn(txn.ID()); i >= 0 {
		changeTxnStateOnUnlock(txn, mode)
		txn.deleteTableLock(mode, oid)
		q.removeAt(i)
	}
	q.cond.Broadcast()
	log.WithFields(log.Fields{"txn": txn.ID(), "oid": oid, "mode": mode}).Debug("table lock released")
	return true, nil
}

// LockRow is LockTable's row-level analog; see spec.md §4.6.
func (lm *LockManager) LockRow(txn *Transaction, mode LockMode, oid TableOID, rid RID) (bool, error) {
	lm.registerTxn(txn)
	if err := checkRowLockPolicy(txn, mode, oid); err != nil {
		return false, err
	}

	q := lm.rowQueue(rid)
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.findByTxn(txn.ID()); i >= 0 {
		existing := q.requests[i]
		if existing.mode == mode {
			return false, nil
		}
		if q.upgrading != InvalidTxnID {
			return false, abort(txn, UpgradeConflict)
		}
		if !canUpgrade(existing.mode, mode) {
			return false, abort(txn, IncompatibleUpgrade)
		}
		txn.deleteRowLock(existing.mode, oid, rid)
		q.removeAt(i)
		pos := q.firstUngranted()
		req := &lockRequest{txnId: txn.ID(), mode: mode, oid: oid, rid: rid, isRow: true}
		q.requests = append(q.requests, nil)
		copy(q.requests[pos+1:], q.requests[pos:])
		q.requests[pos] = req
		q.upgrading = txn.ID()
	} else {
		q.requests = append(q.requests, &lockRequest{txnId: txn.ID(), mode: mode, oid: oid, rid: rid, isRow: true})
	}

	myIdx := q.findByTxn(txn.ID())
	for !q.grantLock(myIdx) {
		q.cond.Wait()
		if txn.State() == Aborted {
			if i := q.findByTxn(txn.ID()); i >= 0 {
				q.removeAt(i)
			}
			q.cond.Broadcast()
			return false, nil
		}
		myIdx = q.findByTxn(txn.ID())
	}
	if txn.State() == Aborted {
		return false, nil
	}

	q.requests[myIdx].granted = true
	if q.upgrading == txn.ID() {
		q.upgrading = InvalidTxnID
	}
	q.grantNewLocksIfPossible()
	q.cond.Broadcast()
	txn.insertRowLock(mode, oid, rid)
	log.WithFields(log.Fields{"txn": txn.ID(), "oid": oid, "rid": rid, "mode": mode}).Debug("row lock granted")
	return true, nil
}

// UnlockRow releases txn's lock on rid. With force=true (used during
// abort-driven cleanup) the GROWING→SHRINKING transition is skipped.
func (lm *LockManager) UnlockRow(txn *Transaction, oid TableOID, rid RID, force bool) (bool, error) {
	mode, held := txn.rowLockMode(oid, rid)
	if !held {
		return false, abort(txn, AttemptedUnlockButNoLockHeld)
	}

	q := lm.rowQueue(rid)
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.findByTxn(txn.ID()); i >= 0 {
		if !force {
			changeTxnStateOnUnlock(txn, mode)
		}
		txn.deleteRowLock(mode, oid, rid)
		q.removeAt(i)
	}
	q.cond.Broadcast()
	return true, nil
}

// changeTxnStateOnUnlock implements spec.md §9's Open Question
// resolution: releasing S or X always transitions GROWING→SHRINKING;
// releasing an intention-only lock does not, except under
// REPEATABLE_READ, where any release transitions.
func changeTxnStateOnUnlock(txn *Transaction, mode LockMode) {
	if txn.State() != Growing {
		return
	}
	if mode == Shared || mode == Exclusive {
		txn.SetState(Shrinking)
		return
	}
	if txn.IsolationLevel() == RepeatableRead {
		txn.SetState(Shrinking)
	}
}

// UnlockAll releases every table and row lock txn holds, without
// transitioning its state — used by the (out-of-scope) transaction
// manager while rolling back an aborted transaction.
func (lm *LockManager) UnlockAll(txn *Transaction) {
	for _, mode := range []LockMode{Shared, Exclusive} {
		txn.mu.Lock()
		rowSet := txn.rowSetFor(mode)
		oids := make([]TableOID, 0, len(rowSet))
		for oid := range rowSet {
			oids = append(oids, oid)
		}
		txn.mu.Unlock()
		for _, oid := range oids {
			txn.mu.Lock()
			rids := make([]RID, 0, len(rowSet[oid]))
			for rid := range rowSet[oid] {
				rids = append(rids, rid)
			}
			txn.mu.Unlock()
			for _, rid := range rids {
				_, _ = lm.UnlockRow(txn, oid, rid, true)
			}
		}
	}
	for _, mode := range []LockMode{IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive} {
		txn.mu.Lock()
		tableSet := txn.tableSetFor(mode)
		oids := make([]TableOID, 0, len(tableSet))
		for oid := range tableSet {
			oids = append(oids, oid)
		}
		txn.mu.Unlock()
		for _, oid := range oids {
			q := lm.tableQueue(oid)
			q.mu.Lock()
			if i := q.findByTxn(txn.ID()); i >= 0 {
				txn.deleteTableLock(mode, oid)
				q.removeAt(i)
			}
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}
