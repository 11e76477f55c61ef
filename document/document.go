// Package document implements the mutable document façade (§3
// "Document", §4.7): OpLog + snapshot + frontier kept in sync on every
// local edit, falling back to the replay engine only when a remote
// merge actually crosses a concurrent branch.
//
// The teacher repo has no equivalent -- its Walker[T] exposes Checkout
// but nothing persistent across edits -- so this package is new,
// grounded directly on §4.7 and built from branch/egwalker/oplog the
// way the teacher's own packages are layered on causalgraph.
package document

import (
	"github.com/google/uuid"

	"github.com/waka/crdt-eg-walker/branch"
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
	"github.com/waka/crdt-eg-walker/oplog"
)

// Document wraps an OpLog together with the Branch it keeps eagerly in
// sync: local edits maintain `branch.Snapshot == checkout(log)` directly,
// merges restore it (§3, §4.7).
type Document[T any] struct {
	Log    *oplog.OpLog[T]
	Branch *branch.Branch[T]
}

// NewAgent returns a random agent id suitable for an anonymous ephemeral
// peer. The core API never requires this -- every operation below takes
// a caller-supplied agent string -- it exists only as convenience sugar
// for embedders that don't have a stable identity to hand.
func NewAgent() string {
	return uuid.NewString()
}

// CreateDocument returns a fresh empty Document (§6 "createDocument").
func CreateDocument[T any]() *Document[T] {
	return &Document[T]{Log: oplog.New[T](), Branch: branch.CreateEmptyBranch[T]()}
}

// OpenDocument builds a Document from an existing OpLog via a full
// replay (§6 "openDocument").
func OpenDocument[T any](log *oplog.OpLog[T]) (*Document[T], error) {
	b, err := branch.Checkout(log)
	if err != nil {
		return nil, err
	}
	return &Document[T]{Log: log, Branch: b}, nil
}

// RestoreDocument rebuilds a Document from a previously persisted
// snapshot and version with no replay (§6 "restoreDocument", O(copy)).
// The caller is responsible for snapshot/version having actually come
// from log at that version; this does not re-verify the invariant.
func RestoreDocument[T any](log *oplog.OpLog[T], snapshot []T, version []causalgraph.LV) *Document[T] {
	snap := append([]T(nil), snapshot...)
	ver := append([]causalgraph.LV(nil), version...)
	return &Document[T]{Log: log, Branch: &branch.Branch[T]{Snapshot: snap, Version: ver}}
}

// GetContent returns the document's current snapshot (§6 "getContent").
func (d *Document[T]) GetContent() []T {
	return d.Branch.Snapshot
}

// spliceInsert/spliceDelete mirror a local edit's visibility change into
// the eagerly-maintained snapshot, the same splice egwalker's sliceSplice
// performs during a replay.
func spliceInsert[T any](s []T, pos int, vs ...T) []T {
	out := make([]T, 0, len(s)+len(vs))
	out = append(out, s[:pos]...)
	out = append(out, vs...)
	out = append(out, s[pos:]...)
	return out
}

func spliceDelete[T any](s []T, pos, n int) []T {
	out := make([]T, 0, len(s)-n)
	out = append(out, s[:pos]...)
	out = append(out, s[pos+n:]...)
	return out
}

// DocInsert performs a local insert of content at pos: allocates the op
// in the log, then splices it directly into the snapshot and advances
// the frontier (§4.7 "docInsert").
func (d *Document[T]) DocInsert(agent causalgraph.AgentID, pos int, content ...T) error {
	if _, err := d.Log.LocalInsert(agent, pos, content...); err != nil {
		return err
	}
	d.Branch.Snapshot = spliceInsert(d.Branch.Snapshot, pos, content...)
	d.Branch.Version = d.Log.Heads()
	return nil
}

// DocDelete performs a local delete of n elements starting at pos
// (n defaults to 1 at the call site per §4.7 "docDelete"). n must be
// >= 1 (§7 InvalidLength, surfaced by the underlying LocalDelete call).
func (d *Document[T]) DocDelete(agent causalgraph.AgentID, pos, n int) error {
	if _, err := d.Log.LocalDelete(agent, pos, n); err != nil {
		return err
	}
	d.Branch.Snapshot = spliceDelete(d.Branch.Snapshot, pos, n)
	d.Branch.Version = d.Log.Heads()
	return nil
}

// CanFastForward is the document façade's merge test (§4.7, §9): true
// when frontier and heads are the same set, or when every LV in heads
// is a descendant of every LV in frontier. It is strictly stronger than
// causalgraph.IsFastForward (which only checks that frontier has
// nothing heads doesn't already dominate) -- the extra check rules out
// frontiers that subsume each other in the diff sense while still
// having a concurrent branch between them that needs Fugue resolution,
// which IsFastForward alone would miss. See DESIGN.md.
func CanFastForward(cg *causalgraph.CausalGraph, frontier, heads []causalgraph.LV) (bool, error) {
	if frontierEqual(frontier, heads) {
		return true, nil
	}
	for _, h := range heads {
		for _, v := range frontier {
			contains, err := causalgraph.VersionContainsLV(cg, []causalgraph.LV{h}, v)
			if err != nil {
				return false, err
			}
			if !contains {
				return false, nil
			}
		}
	}
	return true, nil
}

func frontierEqual(a, b []causalgraph.LV) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[causalgraph.LV]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}

// MergeRemote ingests every op remote has that d.Log doesn't, then
// brings d's snapshot/frontier up to date: positionally, if
// CanFastForward holds for d's current version against remote's heads;
// otherwise by discarding the snapshot and invoking a full replay
// (branch.Checkout) over the combined log (§4.7).
func (d *Document[T]) MergeRemote(remote *oplog.OpLog[T]) error {
	before := append([]causalgraph.LV(nil), d.Branch.Version...)
	if err := d.Log.MergeFrom(remote); err != nil {
		return err
	}
	heads := d.Log.Heads()

	ff, err := CanFastForward(&d.Log.CG, before, heads)
	if err != nil {
		return err
	}
	if ff {
		_, bOnly, err := causalgraph.DiffFrontiers(&d.Log.CG, before, heads)
		if err != nil {
			return err
		}
		snap := d.Branch.Snapshot
		for _, r := range bOnly {
			for lv := r.Start; lv < r.End; lv++ {
				if int(lv) < 0 || int(lv) >= len(d.Log.Ops) {
					return egerr.WithLV(egerr.InvalidVersion, int(lv), "MergeRemote: fast-forward op not found")
				}
				op := d.Log.Ops[lv]
				switch op.Type {
				case oplog.OpInsert:
					snap = spliceInsert(snap, op.Pos, op.Content)
				case oplog.OpDelete:
					snap = spliceDelete(snap, op.Pos, 1)
				}
			}
		}
		d.Branch.Snapshot = snap
		d.Branch.Version = heads
		return nil
	}

	b, err := branch.Checkout(d.Log)
	if err != nil {
		return err
	}
	d.Branch = b
	return nil
}
