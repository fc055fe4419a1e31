package index

import "github.com/Jclennon97/bustub-jc/buffer"

// crabContext carries the state a single Insert/Remove call threads
// through latch crabbing: the still-held header write guard, a write-set
// of guards held along the current root-to-leaf path, and the ids a split
// or merge is currently propagating.
type crabContext struct {
	headerGuard *buffer.WritePageGuard
	writeSet    []buffer.WritePageGuard
	rootPageId  int64
	pageId      int64
	siblingId   int64
}

func (ctx *crabContext) isRootPage(pageId int64) bool {
	return pageId == ctx.rootPageId
}

func (ctx *crabContext) push(g buffer.WritePageGuard) {
	ctx.writeSet = append(ctx.writeSet, g)
}

// pop removes and returns the most recently pushed guard, without
// dropping it — the caller decides when to release it.
func (ctx *crabContext) pop() (buffer.WritePageGuard, bool) {
	if len(ctx.writeSet) == 0 {
		return buffer.WritePageGuard{}, false
	}
	g := ctx.writeSet[len(ctx.writeSet)-1]
	ctx.writeSet = ctx.writeSet[:len(ctx.writeSet)-1]
	return g, true
}

// releaseAncestors drops every guard currently in the write-set, oldest
// first, and the header guard along with them — the header is the root's
// parent in this scheme, so it is released at the same moment as every
// other ancestor once a descendant is known "safe" and nothing above it
// can be touched by this operation any longer. A call site that still
// needs the header (no descendant has been proven safe yet) finds it
// untouched.
func (ctx *crabContext) releaseAncestors() {
	for i := range ctx.writeSet {
		ctx.writeSet[i].Drop()
	}
	ctx.writeSet = ctx.writeSet[:0]
	if ctx.headerGuard != nil {
		ctx.headerGuard.Drop()
		ctx.headerGuard = nil
	}
}

// drop releases every guard still held by ctx, including the header.
func (ctx *crabContext) drop() {
	ctx.releaseAncestors()
}
