// Package walker offers the teacher's Walker[T] shape -- one handle
// bundling a log with its current checkout -- for callers who'd rather
// not juggle an OpLog and a Branch separately. It adds nothing the
// oplog/branch split doesn't already provide; every method here is a
// thin call-through.
package walker

import (
	"github.com/waka/crdt-eg-walker/branch"
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/oplog"
)

// Walker bundles an OpLog with the Branch checked out at its heads,
// kept in sync on every local edit the same way document.Document does
// (§4.3, §4.6). Unlike the teacher's Walker[T], remote ops never arrive
// through Integrate one at a time -- they come in through Merge, which
// calls MergeFrom on the embedded log and then updates the branch.
type Walker[T any] struct {
	Log    *oplog.OpLog[T]
	Branch *branch.Branch[T]
}

// NewWalker returns an empty Walker (mirrors the teacher's NewWalker).
func NewWalker[T any]() *Walker[T] {
	return &Walker[T]{Log: oplog.New[T](), Branch: branch.CreateEmptyBranch[T]()}
}

// FromLog builds a Walker around an already-populated log, checking it
// out in full.
func FromLog[T any](log *oplog.OpLog[T]) (*Walker[T], error) {
	b, err := branch.Checkout(log)
	if err != nil {
		return nil, err
	}
	return &Walker[T]{Log: log, Branch: b}, nil
}

// LocalInsert mirrors the teacher's Walker.LocalInsert: appends an
// insert op and folds it into the checked-out branch immediately.
func (w *Walker[T]) LocalInsert(agent causalgraph.AgentID, pos int, content ...T) (causalgraph.LV, error) {
	lv, err := w.Log.LocalInsert(agent, pos, content...)
	if err != nil {
		return -1, err
	}
	return lv, branch.MergeChangesIntoBranch(w.Log, w.Branch, w.Log.Heads())
}

// LocalDelete mirrors the teacher's Walker.LocalDelete.
func (w *Walker[T]) LocalDelete(agent causalgraph.AgentID, pos, n int) (causalgraph.LV, error) {
	lv, err := w.Log.LocalDelete(agent, pos, n)
	if err != nil {
		return -1, err
	}
	return lv, branch.MergeChangesIntoBranch(w.Log, w.Branch, w.Log.Heads())
}

// Merge ingests other's ops into w.Log and brings w.Branch up to the
// resulting heads, in place of the teacher's Integrate-per-op loop.
func (w *Walker[T]) Merge(other *oplog.OpLog[T]) error {
	if err := w.Log.MergeFrom(other); err != nil {
		return err
	}
	return branch.MergeChangesIntoBranch(w.Log, w.Branch, w.Log.Heads())
}

// Checkout returns the branch's current snapshot (mirrors the
// teacher's Walker.Checkout, minus the arbitrary-targetVersion
// parameter -- w.Branch always tracks w.Log's heads here).
func (w *Walker[T]) Checkout() []T {
	return w.Branch.Snapshot
}

// GetVersion mirrors the teacher's Walker.GetVersion.
func (w *Walker[T]) GetVersion() []causalgraph.LV {
	return w.Branch.Version
}

// GetOps mirrors the teacher's Walker.GetOps.
func (w *Walker[T]) GetOps() []oplog.ListOp[T] {
	return w.Log.Ops
}

// GetCG mirrors the teacher's Walker.GetCG.
func (w *Walker[T]) GetCG() *causalgraph.CausalGraph {
	return &w.Log.CG
}
