package concurrency

import "sync"

// Transaction is the record spec.md §3 describes: a txn id, its current
// state and isolation level, and the locks it currently holds, indexed
// by oid/rid per mode. The (out-of-scope) transaction manager owns
// creation, commit and rollback; the lock manager only reads and
// mutates the lock sets and state of a Transaction handed to it.
type Transaction struct {
	mu sync.Mutex

	id             TxnID
	state          TxnState
	isolationLevel IsolationLevel

	sharedTableLocks             map[TableOID]bool
	intentionSharedTableLocks    map[TableOID]bool
	exclusiveTableLocks          map[TableOID]bool
	intentionExclusiveTableLocks map[TableOID]bool
	sharedIntentionExclusiveTableLocks map[TableOID]bool

	sharedRowLocks    map[TableOID]map[RID]bool
	exclusiveRowLocks map[TableOID]map[RID]bool
}

// NewTransaction creates a fresh GROWING transaction at the given
// isolation level.
func NewTransaction(id TxnID, level IsolationLevel) *Transaction {
	return &Transaction{
		id:                                 id,
		state:                              Growing,
		isolationLevel:                     level,
		sharedTableLocks:                   map[TableOID]bool{},
		intentionSharedTableLocks:          map[TableOID]bool{},
		exclusiveTableLocks:                map[TableOID]bool{},
		intentionExclusiveTableLocks:       map[TableOID]bool{},
		sharedIntentionExclusiveTableLocks: map[TableOID]bool{},
		sharedRowLocks:                     map[TableOID]map[RID]bool{},
		exclusiveRowLocks:                  map[TableOID]map[RID]bool{},
	}
}

func (t *Transaction) ID() TxnID                      { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolationLevel }

func (t *Transaction) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s TxnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) tableSetFor(mode LockMode) map[TableOID]bool {
	switch mode {
	case IntentionShared:
		return t.intentionSharedTableLocks
	case IntentionExclusive:
		return t.intentionExclusiveTableLocks
	case Shared:
		return t.sharedTableLocks
	case SharedIntentionExclusive:
		return t.sharedIntentionExclusiveTableLocks
	case Exclusive:
		return t.exclusiveTableLocks
	default:
		return nil
	}
}

// tableLockMode reports the mode txn currently holds on oid, if any.
func (t *Transaction) tableLockMode(oid TableOID) (LockMode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, mode := range []LockMode{IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive} {
		if t.tableSetFor(mode)[oid] {
			return mode, true
		}
	}
	return 0, false
}

func (t *Transaction) insertTableLock(mode LockMode, oid TableOID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tableSetFor(mode)[oid] = true
}

func (t *Transaction) deleteTableLock(mode LockMode, oid TableOID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tableSetFor(mode), oid)
}

func (t *Transaction) rowSetFor(mode LockMode) map[TableOID]map[RID]bool {
	switch mode {
	case Shared:
		return t.sharedRowLocks
	case Exclusive:
		return t.exclusiveRowLocks
	default:
		return nil
	}
}

func (t *Transaction) rowLockMode(oid TableOID, rid RID) (LockMode, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, mode := range []LockMode{Shared, Exclusive} {
		if t.rowSetFor(mode)[oid][rid] {
			return mode, true
		}
	}
	return 0, false
}

func (t *Transaction) insertRowLock(mode LockMode, oid TableOID, rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.rowSetFor(mode)
	if set[oid] == nil {
		set[oid] = map[RID]bool{}
	}
	set[oid][rid] = true
}

func (t *Transaction) deleteRowLock(mode LockMode, oid TableOID, rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rowSetFor(mode)[oid], rid)
}

// rowLocksHeld returns the number of rows this txn holds any lock on for
// oid — used by UnlockTable's precondition check.
func (t *Transaction) rowLocksHeld(oid TableOID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sharedRowLocks[oid]) + len(t.exclusiveRowLocks[oid])
}
