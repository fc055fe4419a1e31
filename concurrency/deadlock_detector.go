package concurrency

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// waitForGraph is the directed multiset edges: txn -> set<txn> from
// spec.md §3, rebuilt from scratch every detector tick.
type waitForGraph struct {
	edges map[TxnID]map[TxnID]bool
}

func newWaitForGraph() *waitForGraph {
	return &waitForGraph{edges: map[TxnID]map[TxnID]bool{}}
}

func (g *waitForGraph) addEdge(from, to TxnID) {
	if g.edges[from] == nil {
		g.edges[from] = map[TxnID]bool{}
	}
	g.edges[from][to] = true
}

func (g *waitForGraph) removeTxn(id TxnID) {
	delete(g.edges, id)
	for _, dests := range g.edges {
		delete(dests, id)
	}
}

// sortedSources returns every txn with at least one outgoing edge,
// ascending by id — the DFS start order spec.md §4.6 requires.
func (g *waitForGraph) sortedSources() []TxnID {
	ids := make([]TxnID, 0, len(g.edges))
	for id, dests := range g.edges {
		if len(dests) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g *waitForGraph) neighbors(id TxnID) []TxnID {
	dests := g.edges[id]
	out := make([]TxnID, 0, len(dests))
	for d := range dests {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// findCycle runs a DFS from start, exploring neighbors in ascending id
// order, and returns the first cycle found as the path from its
// repeated node onward (so the caller can pick the youngest member).
func (g *waitForGraph) findCycle(start TxnID) ([]TxnID, bool) {
	var path []TxnID
	onPath := map[TxnID]int{}

	var visit func(id TxnID) ([]TxnID, bool)
	visit = func(id TxnID) ([]TxnID, bool) {
		if idx, seen := onPath[id]; seen {
			return path[idx:], true
		}
		onPath[id] = len(path)
		path = append(path, id)
		for _, next := range g.neighbors(id) {
			if cycle, ok := visit(next); ok {
				return cycle, true
			}
		}
		delete(onPath, id)
		path = path[:len(path)-1]
		return nil, false
	}
	return visit(start)
}

// findAnyCycle tries every source in ascending id order and returns the
// first cycle discovered, per spec.md §4.6 step 2's tie-break.
func (g *waitForGraph) findAnyCycle() ([]TxnID, bool) {
	for _, start := range g.sortedSources() {
		if cycle, ok := g.findCycle(start); ok {
			return cycle, true
		}
	}
	return nil, false
}

// youngest returns the largest id in ids.
func youngest(ids []TxnID) TxnID {
	max := ids[0]
	for _, id := range ids[1:] {
		if id > max {
			max = id
		}
	}
	return max
}

// GetEdgeList returns the current wait-for graph's edges, for tests and
// introspection.
func (lm *LockManager) GetEdgeList() [][2]TxnID {
	g := lm.buildWaitForGraph()
	var edges [][2]TxnID
	for from, dests := range g.edges {
		for to := range dests {
			edges = append(edges, [2]TxnID{from, to})
		}
	}
	return edges
}

// buildWaitForGraph implements spec.md §4.6 step 1: under both map
// latches, every ungranted request waits for every granted request in
// the same queue.
func (lm *LockManager) buildWaitForGraph() *waitForGraph {
	g := newWaitForGraph()

	lm.tableMapMu.Lock()
	for _, q := range lm.tableMap {
		q.mu.Lock()
		addQueueEdges(g, q)
		q.mu.Unlock()
	}
	lm.tableMapMu.Unlock()

	lm.rowMapMu.Lock()
	for _, q := range lm.rowMap {
		q.mu.Lock()
		addQueueEdges(g, q)
		q.mu.Unlock()
	}
	lm.rowMapMu.Unlock()

	return g
}

func addQueueEdges(g *waitForGraph, q *lockRequestQueue) {
	var granted, ungranted []TxnID
	for _, r := range q.requests {
		if r.granted {
			granted = append(granted, r.txnId)
		} else {
			ungranted = append(ungranted, r.txnId)
		}
	}
	for _, waiter := range ungranted {
		for _, holder := range granted {
			g.addEdge(waiter, holder)
		}
	}
}

// StartDeadlockDetection launches the background detector goroutine.
// It runs until StopDeadlockDetection is called.
func (lm *LockManager) StartDeadlockDetection() {
	lm.detectionMu.Lock()
	if lm.enableDetection {
		lm.detectionMu.Unlock()
		return
	}
	lm.enableDetection = true
	lm.stopCh = make(chan struct{})
	lm.doneCh = make(chan struct{})
	lm.detectionMu.Unlock()

	go lm.runCycleDetection()
}

// StopDeadlockDetection clears the enable flag and joins the detector.
func (lm *LockManager) StopDeadlockDetection() {
	lm.detectionMu.Lock()
	if !lm.enableDetection {
		lm.detectionMu.Unlock()
		return
	}
	lm.enableDetection = false
	close(lm.stopCh)
	done := lm.doneCh
	lm.detectionMu.Unlock()
	<-done
}

// runCycleDetection is the detector thread body: sleep, rebuild the
// wait-for graph, abort victims until the graph is acyclic, repeat.
func (lm *LockManager) runCycleDetection() {
	defer close(lm.doneCh)
	ticker := time.NewTicker(lm.detectorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lm.stopCh:
			return
		case <-ticker.C:
			lm.RunCycleDetection()
		}
	}
}

// RunCycleDetection runs a single detection tick: rebuild the graph,
// then repeatedly find and abort a cycle's youngest member until none
// remain, per spec.md §4.6.
func (lm *LockManager) RunCycleDetection() {
	g := lm.buildWaitForGraph()
	for {
		cycle, ok := g.findAnyCycle()
		if !ok {
			return
		}
		victimID := youngest(cycle)
		victim, found := lm.GetTransaction(victimID)
		if !found {
			g.removeTxn(victimID)
			continue
		}
		victim.SetState(Aborted)
		log.WithFields(log.Fields{"txn": victimID, "cycle": cycle}).Warn("deadlock detected, aborting victim")
		lm.notifyQueuesContaining(victimID)
		g.removeTxn(victimID)
	}
}

// notifyQueuesContaining wakes every queue holding a request for txnID
// so its waiting goroutine observes ABORTED and unwinds.
func (lm *LockManager) notifyQueuesContaining(txnID TxnID) {
	lm.tableMapMu.Lock()
	tables := make([]*lockRequestQueue, 0, len(lm.tableMap))
	for _, q := range lm.tableMap {
		tables = append(tables, q)
	}
	lm.tableMapMu.Unlock()
	for _, q := range tables {
		q.mu.Lock()
		if q.findByTxn(txnID) >= 0 {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}

	lm.rowMapMu.Lock()
	rows := make([]*lockRequestQueue, 0, len(lm.rowMap))
	for _, q := range lm.rowMap {
		rows = append(rows, q)
	}
	lm.rowMapMu.Unlock()
	for _, q := range rows {
		q.mu.Lock()
		if q.findByTxn(txnID) >= 0 {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}
