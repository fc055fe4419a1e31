// Package concurrency implements the Lock Manager: hierarchical
// table/row two-phase locking with five lock modes, upgrade handling,
// isolation-level policy enforcement and a background cycle-based
// deadlock detector. The B+Tree and Buffer Pool Manager never call into
// this package directly — it is what the (out-of-scope) executors sit
// on top of, guarding the rows and tables those lower layers touch.
package concurrency

import "fmt"

// TxnID identifies a transaction. IDs are assigned monotonically by the
// (out-of-scope) transaction manager; the lock manager only ever
// compares and orders them.
type TxnID int64

// InvalidTxnID marks the absence of an upgrading transaction on a queue.
const InvalidTxnID TxnID = -1

// TableOID identifies a table; the (out-of-scope) catalog is the
// authority on the mapping from table name to oid.
type TableOID int64

// RID identifies a tuple's physical location: the page holding it and
// its slot within that page. Mirrors index.RID's shape — the lock
// manager is a peer of the B+Tree, not a client of it, so it keeps its
// own copy rather than importing the index package for one struct.
type RID struct {
	PageId  int64
	SlotNum int32
}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageId, r.SlotNum)
}

// LockMode is one of the five lock modes a transaction can hold on a
// table, or (S/X only) on a row.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return "UNKNOWN"
	}
}

// compatibilityMatrix[held][requested] is the holder\requested table
// from spec.md §4.6.
var compatibilityMatrix = [5][5]bool{
	IntentionShared:          {true, true, true, true, false},
	IntentionExclusive:       {true, true, false, false, false},
	Shared:                   {true, false, true, false, false},
	SharedIntentionExclusive: {true, false, false, false, false},
	Exclusive:                {false, false, false, false, false},
}

func compatible(held, requested LockMode) bool {
	return compatibilityMatrix[held][requested]
}

// upgradeMatrix[from] is the set of modes `from` may legally upgrade to.
var upgradeMatrix = map[LockMode]map[LockMode]bool{
	IntentionShared:          {Shared: true, Exclusive: true, IntentionExclusive: true, SharedIntentionExclusive: true},
	Shared:                   {Exclusive: true, SharedIntentionExclusive: true},
	IntentionExclusive:       {Exclusive: true, SharedIntentionExclusive: true},
	SharedIntentionExclusive: {Exclusive: true},
}

func canUpgrade(from, to LockMode) bool {
	return upgradeMatrix[from] != nil && upgradeMatrix[from][to]
}

// TxnState mirrors the four-state machine from spec.md §3.
type TxnState int

const (
	Growing TxnState = iota
	Shrinking
	Committed
	Aborted
)

// IsolationLevel selects the acquire/release policy enforced on every
// lock request; see spec.md §4.6.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// AbortReason tags why the lock manager forced a transaction into the
// ABORTED state, per spec.md §7's typed-abort table.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	LockSharedOnReadUncommitted
	UpgradeConflict
	IncompatibleUpgrade
	AttemptedUnlockButNoLockHeld
	TableUnlockedBeforeUnlockingRows
	AttemptedIntentionLockOnRow
	TableLockNotPresent
	Deadlock
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case LockSharedOnReadUncommitted:
		return "LOCK_SHARED_ON_READ_UNCOMMITTED"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	case Deadlock:
		return "DEADLOCK"
	default:
		return "UNKNOWN_ABORT_REASON"
	}
}

// AbortError is the typed abort spec.md §7 describes: the caller unwinds
// and the (out-of-scope) transaction manager interprets it to drive
// rollback. It is returned, not thrown — see spec.md §9's "exceptions as
// control flow" note on expressing this as a discriminated result rather
// than a panic.
type AbortError struct {
	TxnID  TxnID
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("txn %d aborted: %s", e.TxnID, e.Reason)
}
