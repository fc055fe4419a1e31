package buffer

// INVALID_FRAME_ID is returned by Evict when the replacer has no
// evictable frame to give up.
const INVALID_FRAME_ID = -1

// lrukNode tracks a frame's bounded access history: the timestamps of
// its last up to k accesses, oldest first, plus whether it is currently
// eligible for eviction.
type lrukNode struct {
	frameId     int
	k           int
	history     []int64
	isEvictable bool
}

func newLrukNode(frameId, k int) *lrukNode {
	return &lrukNode{frameId: frameId, k: k, history: make([]int64, 0, k)}
}

// hasKAccesses reports whether the node has accumulated a full k-window,
// i.e. whether it belongs in the cache pool rather than the history pool.
func (n *lrukNode) hasKAccesses() bool {
	return len(n.history) == n.k
}

// backwardKDistance is the timestamp of the k-th most recent access —
// the oldest entry in a full k-window. Only meaningful once hasKAccesses
// is true; smaller values mean a larger (older) backward distance.
func (n *lrukNode) backwardKDistance() int64 {
	if len(n.history) == 0 {
		return 0
	}
	return n.history[0]
}

// addTimestamp records a fresh access, evicting the oldest entry from the
// window once it reaches capacity k.
func (n *lrukNode) addTimestamp(timestamp int64) {
	if len(n.history) < n.k {
		n.history = append(n.history, timestamp)
		return
	}

	n.history = append(n.history[1:], timestamp)
}
