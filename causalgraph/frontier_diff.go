package causalgraph

import (
	"sort"

	"github.com/waka/crdt-eg-walker/egerr"
)

// DiffFrontiers computes, for two frontiers a and b, the versions
// reachable only from a (aOnly) and only from b (bOnly) -- the literal
// §4.2 diff(a, b). This is the frontier-vs-frontier form used by the
// replay walk (traverseAndApply diffs ctx.curVersion against each CG
// entry's parents) and by IsFastForward; it is distinct from Diff, which
// compares a frontier against an already-summarized VersionSummary (the
// form FindConflicting uses).
//
// Uses the max-heap from heap.go, seeded with a flagged FlagOnlyA and b
// flagged FlagOnlyB: popping the highest pending LV and pushing its
// parents under the same flag guarantees parents are only visited after
// every one of their descendants already queued has been processed,
// since a CGEntry's parents are always strictly smaller than its version.
// A version reachable from both sides is promoted to FlagShared in the
// queue; once popped it is recorded in neither list, but its parents are
// still pushed as FlagShared, so an older version already queued under
// one side's flag is promoted when the shared walk reaches it. The walk
// stops once every queued version is shared.
func DiffFrontiers(cg *CausalGraph, a, b []LV) (aOnly, bOnly []LVRange, err error) {
	q := newFlagQueue()
	for _, v := range a {
		if v < 0 || v >= cg.NextLV {
			return nil, nil, egerr.WithLV(egerr.InvalidVersion, int(v), "DiffFrontiers: LV in 'a' not found in graph")
		}
		q.push(v, FlagOnlyA)
	}
	for _, v := range b {
		if v < 0 || v >= cg.NextLV {
			return nil, nil, egerr.WithLV(egerr.InvalidVersion, int(v), "DiffFrontiers: LV in 'b' not found in graph")
		}
		q.push(v, FlagOnlyB)
	}

	var aOnlyLVs, bOnlyLVs []LV
	for q.len() > 0 && !q.allShared() {
		lv, flag := q.pop()
		switch flag {
		case FlagOnlyA:
			aOnlyLVs = append(aOnlyLVs, lv)
		case FlagOnlyB:
			bOnlyLVs = append(bOnlyLVs, lv)
		case FlagShared:
			// Shared ancestry: nothing to record, but keep marking parents shared.
		}

		entry, offset, found := findEntryContaining(cg, lv)
		if !found {
			return nil, nil, egerr.WithLV(egerr.InvalidVersion, int(lv), "DiffFrontiers: LV not found in graph")
		}
		for _, p := range parentsOf(entry, offset, lv) {
			if p >= 0 {
				q.push(p, flag)
			}
		}
	}

	return lvsToRanges(aOnlyLVs), lvsToRanges(bOnlyLVs), nil
}

func lvsToRanges(lvs []LV) []LVRange {
	if len(lvs) == 0 {
		return nil
	}
	sort.Slice(lvs, func(i, j int) bool { return lvs[i] < lvs[j] })
	ranges := []LVRange{{Start: lvs[0], End: lvs[0] + 1}}
	for _, v := range lvs[1:] {
		last := &ranges[len(ranges)-1]
		if v == last.End {
			last.End = v + 1
		} else if v > last.End {
			ranges = append(ranges, LVRange{Start: v, End: v + 1})
		}
		// v < last.End means a duplicate LV; already covered, skip.
	}
	return ranges
}

// IsFastForward reports whether every LV reachable from `from` is still
// reachable from `to` -- i.e. `to` is a pure continuation of `from` with
// nothing held only by `from` (§4.2). This is the loose form; see
// DESIGN.md for the distinction from the stricter canFastForward the
// document façade uses.
func IsFastForward(cg *CausalGraph, from, to []LV) (bool, error) {
	aOnly, _, err := DiffFrontiers(cg, from, to)
	if err != nil {
		return false, err
	}
	return len(aOnly) == 0, nil
}

// AncestorsOf returns every LV reachable backward from frontier
// (frontier's members included), ascending. Used by branch.
// MergeChangesIntoBranch to seed a fresh replay context with the exact
// pre-merge document state at the common ancestor, rather than the
// over-allocating placeholder range §4.6 describes as the default (see
// DESIGN.md for why a precise closure is used here instead).
func AncestorsOf(cg *CausalGraph, frontier []LV) ([]LV, error) {
	visited := make(map[LV]struct{})
	queue := append([]LV(nil), frontier...)
	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if v < 0 {
			continue
		}
		if _, ok := visited[v]; ok {
			continue
		}
		entry, offset, found := findEntryContaining(cg, v)
		if !found {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "AncestorsOf: LV not found in graph")
		}
		visited[v] = struct{}{}
		for _, p := range parentsOf(entry, offset, v) {
			if p >= 0 {
				if _, seen := visited[p]; !seen {
					queue = append(queue, p)
				}
			}
		}
	}
	out := make([]LV, 0, len(visited))
	for v := range visited {
		out = append(out, v)
	}
	return sortLVsAndDedup(out), nil
}

// FindConflictingVisit walks both frontiers backward through the causal
// graph, invoking visit(range, flag) for each contiguous run that is
// OnlyA, OnlyB, or Shared, in descending LV order, down to and including
// the runs that cross into the common ancestor. It returns the common
// ancestor frontier (§4.2).
//
// Unlike DiffFrontiers (which only returns the final aOnly/bOnly sets),
// it reports each run's flag as the walk reaches it and returns the
// common ancestor, which branch.MergeChangesIntoBranch uses to split the
// OnlyA and OnlyB runs and to seed its replay context. Shared runs are
// visited too; branch ignores them.
func FindConflictingVisit(cg *CausalGraph, a, b []LV, visit func(r LVRange, flag Flag) error) ([]LV, error) {
	q := newFlagQueue()
	for _, v := range a {
		if v < 0 || v >= cg.NextLV {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "FindConflictingVisit: LV in 'a' not found in graph")
		}
		q.push(v, FlagOnlyA)
	}
	for _, v := range b {
		if v < 0 || v >= cg.NextLV {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "FindConflictingVisit: LV in 'b' not found in graph")
		}
		q.push(v, FlagOnlyB)
	}

	var sharedBoundary []LV
	// runStart/runEnd/runFlag accumulate a contiguous descending run of
	// same-flag LVs so visit() is called per-run rather than per-LV.
	runFlag := Flag(0)
	runStart, runEnd := LV(-1), LV(-1)
	flushRun := func() error {
		if runFlag == 0 {
			return nil
		}
		err := visit(LVRange{Start: runStart, End: runEnd}, runFlag)
		runFlag = 0
		return err
	}

	for q.len() > 0 {
		lv, flag := q.pop()

		if flag == FlagShared {
			sharedBoundary = append(sharedBoundary, lv)
		}
		if flag == runFlag && lv+1 == runStart {
			runStart = lv
		} else {
			if err := flushRun(); err != nil {
				return nil, err
			}
			runFlag, runStart, runEnd = flag, lv, lv+1
		}

		if flag == FlagShared && q.allShared() {
			// Everything still queued is common history too: the walk has
			// reached the common ancestor.
			sharedBoundary = append(sharedBoundary, q.heap...)
			break
		}

		entry, offset, found := findEntryContaining(cg, lv)
		if !found {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(lv), "FindConflictingVisit: LV not found in graph")
		}
		for _, p := range parentsOf(entry, offset, lv) {
			if p >= 0 {
				q.push(p, flag)
			}
		}
	}
	if err := flushRun(); err != nil {
		return nil, err
	}

	if len(sharedBoundary) == 0 {
		return []LV{}, nil
	}
	return FindDominators(cg, sharedBoundary)
}

// SerializeDiff produces the wire form of a list of LVRanges: one
// SerializedCGEntry per contiguous same-agent run, each carrying its
// RawVersion parents (§4.2, §6).
func SerializeDiff(cg *CausalGraph, ranges []LVRange) ([]SerializedCGEntry, error) {
	var out []SerializedCGEntry
	for _, r := range ranges {
		lv := r.Start
		for lv < r.End {
			entry, offset, found := findEntryContaining(cg, lv)
			if !found {
				return nil, egerr.WithLV(egerr.InvalidVersion, int(lv), "SerializeDiff: LV not found in graph")
			}
			segEnd := entry.VEnd
			if r.End < segEnd {
				segEnd = r.End
			}
			length := int(segEnd - lv)

			var parents []RawVersion
			var err error
			if offset == 0 {
				parents, err = LVToRawList(cg, entry.Parents)
			} else {
				parents, err = LVToRawList(cg, []LV{lv - 1})
			}
			if err != nil {
				return nil, err
			}

			out = append(out, SerializedCGEntry{
				Agent:   entry.Agent,
				Seq:     entry.Seq + offset,
				Len:     length,
				Parents: parents,
			})
			lv = segEnd
		}
	}
	return out, nil
}

// MergePartialVersions ingests a serialized diff (as produced by
// SerializeDiff) via AddRaw, and returns the [startLV, endLV) range that
// was actually added to cg (§4.2, §8's "(De)serialization round-trip").
func MergePartialVersions(cg *CausalGraph, entries []SerializedCGEntry) (LVRange, error) {
	start := cg.NextLV
	for _, e := range entries {
		if _, err := AddRaw(cg, RawVersion{Agent: e.Agent, Seq: e.Seq}, e.Len, e.Parents); err != nil {
			return LVRange{}, err
		}
	}
	return LVRange{Start: start, End: cg.NextLV}, nil
}
