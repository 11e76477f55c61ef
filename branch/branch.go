// Package branch implements the snapshot + frontier façade (§3 "Branch",
// §4.6): a full checkout of an OpLog, and an incremental merge that
// either fast-forwards positionally or replays the conflicting region
// through the edit context.
//
// Grounded on the teacher's egwalker.Checkout/Branch[T], which bundles a
// Walker's full merge-then-snapshot into one call; this package pulls
// that into a standalone type that document builds on, and adds the
// fast-forward path and the placeholder-free conflict replay §4.6
// describes (see DESIGN.md for the seeding strategy).
package branch

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
	"github.com/waka/crdt-eg-walker/egwalker"
	"github.com/waka/crdt-eg-walker/oplog"
)

// Branch is a materialized document: a snapshot plus the frontier it
// reflects (§3). The invariant `snapshot == checkout(oplog) at version`
// is maintained by every mutator in this package.
type Branch[T any] struct {
	Snapshot []T
	Version  []causalgraph.LV
}

// CreateEmptyBranch returns a Branch with an empty snapshot at the root
// version (§4.6).
func CreateEmptyBranch[T any]() *Branch[T] {
	return &Branch[T]{Snapshot: []T{}, Version: []causalgraph.LV{}}
}

// Checkout computes a full document snapshot for log from scratch and
// wraps it as a Branch at log's current heads (§4.6).
func Checkout[T any](log *oplog.OpLog[T]) (*Branch[T], error) {
	snap, ver, err := egwalker.Checkout(log)
	if err != nil {
		return nil, err
	}
	return &Branch[T]{Snapshot: snap, Version: ver}, nil
}

// CheckoutSimpleString specializes Checkout to T=rune, concatenating the
// resulting snapshot into a string (§4.6 "checkoutSimpleString").
func CheckoutSimpleString(log *oplog.OpLog[rune]) (string, []causalgraph.LV, error) {
	snap, ver, err := egwalker.Checkout(log)
	if err != nil {
		return "", nil, err
	}
	return string(snap), ver, nil
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

// applyPositional applies a single ListOp directly to snap at its
// recorded position: an insert splices Content in, a delete removes the
// one element at Pos. Used by the fast-forward merge path, which never
// needs Fugue integration because there is no concurrent branch to
// resolve against (§4.6).
func applyPositional[T any](snap *[]T, op oplog.ListOp[T]) {
	s := *snap
	switch op.Type {
	case oplog.OpInsert:
		s = append(s, op.Content)
		copy(s[op.Pos+1:], s[op.Pos:])
		s[op.Pos] = op.Content
	case oplog.OpDelete:
		copy(s[op.Pos:], s[op.Pos+1:])
		s = s[:len(s)-1]
	}
	*snap = s
}

// MergeChangesIntoBranch brings b up to mergeVersion (b's log's current
// heads if mergeVersion is nil), mutating b.Snapshot and b.Version in
// place (§4.6).
//
// If causalgraph.IsFastForward(b.Version, mergeVersion) holds and, in
// addition, every head of mergeVersion is a descendant of every element
// of b.Version (the same condition document.CanFastForward checks), the
// unseen ops are applied positionally with no Fugue integration. The
// loose IsFastForward test alone also accepts merges that bring in a
// branch concurrent with b's own history, whose ops cannot be spliced in
// positionally (see DESIGN.md).
//
// Otherwise, it finds the common ancestor of b.Version and mergeVersion,
// seeds a fresh edit context with that ancestor's exact document state
// (egwalker.SeedAncestors), replays b's own unseen-by-merge ops into the
// context with no snapshot output (it's already reflected in
// b.Snapshot), then replays the merge's unseen ops into b.Snapshot.
func MergeChangesIntoBranch[T any](log *oplog.OpLog[T], b *Branch[T], mergeVersion []causalgraph.LV) error {
	if mergeVersion == nil {
		mergeVersion = log.Heads()
	}
	if frontierEqual(b.Version, mergeVersion) {
		return nil
	}

	ff, err := causalgraph.IsFastForward(&log.CG, b.Version, mergeVersion)
	if err != nil {
		return err
	}
	for _, h := range mergeVersion {
		for _, v := range b.Version {
			if !ff {
				break
			}
			contains, err := causalgraph.VersionContainsLV(&log.CG, []causalgraph.LV{h}, v)
			if err != nil {
				return err
			}
			ff = contains
		}
	}
	if ff {
		_, bOnly, err := causalgraph.DiffFrontiers(&log.CG, b.Version, mergeVersion)
		if err != nil {
			return err
		}
		for _, r := range bOnly {
			for lv := r.Start; lv < r.End; lv++ {
				if int(lv) < 0 || int(lv) >= len(log.Ops) {
					return egerr.WithLV(egerr.InvalidVersion, int(lv), "MergeChangesIntoBranch: fast-forward op not found")
				}
				applyPositional(&b.Snapshot, log.Ops[lv])
			}
		}
		dom, err := causalgraph.FindDominators(&log.CG, append(append([]causalgraph.LV(nil), b.Version...), mergeVersion...))
		if err != nil {
			return err
		}
		b.Version = dom
		return nil
	}

	var conflictOpsRev, newOpsRev []causalgraph.LVRange
	commonAncestor, err := causalgraph.FindConflictingVisit(&log.CG, b.Version, mergeVersion, func(r causalgraph.LVRange, flag causalgraph.Flag) error {
		switch flag {
		case causalgraph.FlagOnlyA:
			conflictOpsRev = append(conflictOpsRev, r)
		case causalgraph.FlagOnlyB:
			newOpsRev = append(newOpsRev, r)
		}
		return nil
	})
	if err != nil {
		return err
	}
	conflictOps := reverseRanges(conflictOpsRev)
	newOps := reverseRanges(newOpsRev)

	closure, err := causalgraph.AncestorsOf(&log.CG, commonAncestor)
	if err != nil {
		return err
	}
	ctx := egwalker.NewContext()
	if err := egwalker.SeedAncestors(ctx, log, closure, commonAncestor); err != nil {
		return err
	}

	for _, r := range conflictOps {
		if err := egwalker.TraverseAndApply(ctx, log, nil, r.Start, r.End); err != nil {
			return err
		}
	}
	for _, r := range newOps {
		if err := egwalker.TraverseAndApply(ctx, log, &b.Snapshot, r.Start, r.End); err != nil {
			return err
		}
	}

	dom, err := causalgraph.FindDominators(&log.CG, append(append([]causalgraph.LV(nil), b.Version...), mergeVersion...))
	if err != nil {
		return err
	}
	b.Version = dom
	return nil
}

func reverseRanges(rs []causalgraph.LVRange) []causalgraph.LVRange {
	out := make([]causalgraph.LVRange, len(rs))
	for i, r := range rs {
		out[len(rs)-1-i] = r
	}
	return out
}
