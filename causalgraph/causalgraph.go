// Package causalgraph implements the run-length-encoded causal graph:
// storage of (agent, seq) -> local version with parent pointers, and the
// ancestry queries (diff, dominators, fast-forward test, conflict walk,
// version-contains, summary intersection) built on top of it.
package causalgraph

import (
	"sort"

	"github.com/waka/crdt-eg-walker/egerr"
)

// CreateCG creates and returns a new, empty CausalGraph.
func CreateCG() *CausalGraph {
	return &CausalGraph{
		AgentToVersion: make(map[AgentID][]ClientEntry),
	}
}

// NextLV returns the next available local version (LV) in the graph.
func NextLV(cg *CausalGraph) LV {
	return cg.NextLV
}

// NextSeqForAgent returns the next sequence number for a given agent.
// If the agent is new, it returns 0.
func NextSeqForAgent(cg *CausalGraph, agent AgentID) int {
	if entries, ok := cg.AgentToVersion[agent]; ok && len(entries) > 0 {
		return entries[len(entries)-1].SeqEnd
	}
	return 0
}

// HasVersion reports whether (agent, seq) is already known to the graph.
func HasVersion(cg *CausalGraph, agent AgentID, seq int) bool {
	_, _, found := findEntryContainingRaw(cg, agent, seq)
	return found
}

// LvCmp is the total order over LVs used as a deterministic tie-break
// for concurrent integration: compares the RawVersions the two LVs map
// to, agent lexicographically first, then seq numerically.
func LvCmp(cg *CausalGraph, a, b LV) (int, error) {
	ra, ok := LVToRaw(cg, a)
	if !ok {
		return 0, egerr.WithLV(egerr.InvalidVersion, int(a), "LvCmp: unknown LV")
	}
	rb, ok := LVToRaw(cg, b)
	if !ok {
		return 0, egerr.WithLV(egerr.InvalidVersion, int(b), "LvCmp: unknown LV")
	}
	if ra.Agent != rb.Agent {
		if ra.Agent < rb.Agent {
			return -1, nil
		}
		return 1, nil
	}
	switch {
	case ra.Seq < rb.Seq:
		return -1, nil
	case ra.Seq > rb.Seq:
		return 1, nil
	default:
		return 0, nil
	}
}

// findEntryContainingRaw finds the CGEntry that contains the given RawVersion (agent, seq).
func findEntryContainingRaw(cg *CausalGraph, agent AgentID, seq int) (*CGEntry, int, bool) {
	clientEntries, ok := cg.AgentToVersion[agent]
	if !ok {
		return nil, -1, false
	}

	idx := sort.Search(len(clientEntries), func(i int) bool {
		return clientEntries[i].SeqEnd > seq
	})

	if idx < len(clientEntries) && clientEntries[idx].Seq <= seq {
		entryLV := clientEntries[idx].Version
		for i := range cg.Entries {
			if cg.Entries[i].Version == entryLV {
				offset := seq - cg.Entries[i].Seq
				if seq >= cg.Entries[i].Seq && seq < (cg.Entries[i].Seq+int(cg.Entries[i].VEnd-cg.Entries[i].Version)) {
					return &cg.Entries[i], offset, true
				}
			}
		}
	}
	return nil, -1, false
}

// findEntryContaining finds the CGEntry that contains the given LV.
func findEntryContaining(cg *CausalGraph, v LV) (*CGEntry, int, bool) {
	if v < 0 || v >= cg.NextLV {
		return nil, -1, false
	}

	idx := sort.Search(len(cg.Entries), func(i int) bool {
		return cg.Entries[i].VEnd > v
	})

	if idx < len(cg.Entries) && cg.Entries[idx].Version <= v {
		entry := &cg.Entries[idx]
		offset := int(v - entry.Version)
		return entry, offset, true
	}
	return nil, -1, false
}

// FindEntryContaining is the exported form of findEntryContaining (§4.1).
func FindEntryContaining(cg *CausalGraph, v LV) (CGEntry, int, bool) {
	entry, offset, found := findEntryContaining(cg, v)
	if !found {
		return CGEntry{}, -1, false
	}
	return *entry, offset, true
}

// parentsOf returns the logical parents of lv: the entry's own Parents if
// lv sits at the entry's start, otherwise the implicit single parent lv-1.
func parentsOf(entry *CGEntry, offset int, lv LV) []LV {
	if offset == 0 {
		return entry.Parents
	}
	return []LV{lv - 1}
}

// LVToRaw converts an LV to its corresponding RawVersion (agent, seq).
func LVToRaw(cg *CausalGraph, v LV) (RawVersion, bool) {
	entry, offset, found := findEntryContaining(cg, v)
	if !found {
		return RawVersion{}, false
	}
	return RawVersion{Agent: entry.Agent, Seq: entry.Seq + offset}, true
}

// LVToRawWithParents converts an LV to its RawVersion and also returns its parents.
func LVToRawWithParents(cg *CausalGraph, v LV) (AgentID, int, []LV, bool) {
	entry, offset, found := findEntryContaining(cg, v)
	if !found {
		return "", -1, nil, false
	}
	return entry.Agent, entry.Seq + offset, parentsOf(entry, offset, v), true
}

// RawToLV converts a RawVersion (agent, seq) to its corresponding LV.
func RawToLV(cg *CausalGraph, agent AgentID, seq int) (LV, error) {
	entry, offset, found := findEntryContainingRaw(cg, agent, seq)
	if !found || entry == nil {
		return -1, egerr.WithRawf(egerr.InvalidVersion, string(agent), seq, "raw version not found in causal graph")
	}
	return entry.Version + LV(offset), nil
}

// LVToRawList converts a list of LVs to a list of RawVersions.
func LVToRawList(cg *CausalGraph, lvs []LV) ([]RawVersion, error) {
	if len(lvs) == 0 {
		// Non-nil, so AddRaw reads it as "no parents" rather than "use heads".
		return []RawVersion{}, nil
	}
	raws := make([]RawVersion, len(lvs))
	for i, lv := range lvs {
		rv, found := LVToRaw(cg, lv)
		if !found {
			return nil, egerr.WithLVf(egerr.InvalidVersion, int(lv), "failed to convert LV to RawVersion")
		}
		raws[i] = rv
	}
	return raws, nil
}

// AdvanceFrontier removes any element of f that appears in parents, then
// appends vLast and re-sorts ascending (§4.1). It never checks ancestry
// transitively: correctness relies on ops arriving in causal order, so
// parents are always already present in the frontier being advanced.
func AdvanceFrontier(f []LV, vLast LV, parents []LV) []LV {
	isParent := make(map[LV]bool, len(parents))
	for _, p := range parents {
		isParent[p] = true
	}
	next := make([]LV, 0, len(f)+1)
	for _, h := range f {
		if !isParent[h] {
			next = append(next, h)
		}
	}
	next = append(next, vLast)
	return sortLVsAndDedup(next)
}

// AddRaw adds a new version span to the causal graph, starting at RawVersion
// id and running for length versions. If rawParents is nil, the current
// graph heads are used. Any prefix of [id.Seq, id.Seq+length) already known
// for id.Agent is skipped (§4.1's "add skips any prefix already known");
// if the entire span is already known, AddRaw returns (nil, nil) and
// performs no mutation.
func AddRaw(cg *CausalGraph, id RawVersion, length int, rawParents []RawVersion) (*CGEntry, error) {
	if length <= 0 {
		return nil, egerr.New(egerr.InvalidLength, "AddRaw: length must be positive")
	}

	knownEnd := NextSeqForAgent(cg, id.Agent)
	seqStart, seqEnd := id.Seq, id.Seq+length
	if seqEnd <= knownEnd {
		return nil, nil // Entirely known already.
	}

	var parentLVs []LV
	if seqStart < knownEnd {
		// A prefix of this span is already known: the true start of the
		// new entry is knownEnd, and its parent is whatever LV precedes it
		// for this agent, not the caller-supplied parents (which describe
		// the original span's start).
		seqStart = knownEnd
		priorLV, err := RawToLV(cg, id.Agent, knownEnd-1)
		if err != nil {
			return nil, egerr.Newf(egerr.InvariantBroken, "AddRaw: could not resolve prefix boundary for agent %s: %v", id.Agent, err)
		}
		parentLVs = []LV{priorLV}
	} else if rawParents == nil {
		parentLVs = append([]LV(nil), cg.Heads...)
	} else {
		parentLVs = make([]LV, 0, len(rawParents))
		for _, rp := range rawParents {
			lv, err := RawToLV(cg, rp.Agent, rp.Seq)
			if err != nil {
				return nil, egerr.WithRawf(egerr.InvalidVersion, string(rp.Agent), rp.Seq, "AddRaw: parent not found")
			}
			parentLVs = append(parentLVs, lv)
		}
	}
	parentLVs = sortLVsAndDedup(parentLVs)

	newLength := seqEnd - seqStart
	startLV := cg.NextLV
	endLV := startLV + LV(newLength)

	newEntry := CGEntry{
		Agent:   id.Agent,
		Seq:     seqStart,
		Version: startLV,
		VEnd:    endLV,
		Parents: parentLVs,
	}
	cg.Entries = append(cg.Entries, newEntry)
	cg.NextLV = endLV

	clientEntries := cg.AgentToVersion[id.Agent]
	clientEntries = append(clientEntries, ClientEntry{
		Seq:     seqStart,
		SeqEnd:  seqEnd,
		Version: startLV,
	})
	sort.Slice(clientEntries, func(i, j int) bool { return clientEntries[i].Seq < clientEntries[j].Seq })
	cg.AgentToVersion[id.Agent] = clientEntries

	// Only the final version of the new run can be a genuine head; earlier
	// versions in the run are the implicit parent of the next one.
	newHeads := make([]LV, 0, len(cg.Heads)+1)
	isParent := make(map[LV]bool, len(parentLVs))
	for _, p := range parentLVs {
		isParent[p] = true
	}
	for _, h := range cg.Heads {
		if !isParent[h] {
			newHeads = append(newHeads, h)
		}
	}
	newHeads = append(newHeads, endLV-1)
	cg.Heads = sortLVsAndDedup(newHeads)

	return &cg.Entries[len(cg.Entries)-1], nil
}

// Add is the LV-parented counterpart of AddRaw (§4.1): it takes parents as
// LVs directly rather than RawVersions, for callers that have already
// resolved them (e.g. local op assignment against the current frontier).
func Add(cg *CausalGraph, agent AgentID, seqStart, seqEnd int, parents []LV) (*CGEntry, error) {
	if seqEnd <= seqStart {
		return nil, egerr.New(egerr.InvalidLength, "Add: seqEnd must be greater than seqStart")
	}
	rawParents, err := LVToRawList(cg, parents)
	if err != nil {
		return nil, err
	}
	return AddRaw(cg, RawVersion{Agent: agent, Seq: seqStart}, seqEnd-seqStart, rawParents)
}

func sortLVsAndDedup(lvs []LV) []LV {
	if len(lvs) <= 1 {
		return lvs
	}
	sort.Slice(lvs, func(i, j int) bool { return lvs[i] < lvs[j] })
	j := 1
	for i := 1; i < len(lvs); i++ {
		if lvs[i] != lvs[i-1] {
			lvs[j] = lvs[i]
			j++
		}
	}
	return lvs[:j]
}

// VersionContainsLV checks if targetLV is an ancestor of (or equal to) any LV in frontier.
// Walks backward from frontier one entry at a time: whenever the current
// LV's containing entry starts at or below targetLV, targetLV must lie in
// that same contiguous run (since the run itself is an uninterrupted chain
// of single-parent versions), so membership is decided immediately instead
// of stepping through the run one LV at a time (§4.2's pruning rule).
func VersionContainsLV(cg *CausalGraph, frontier []LV, targetLV LV) (bool, error) {
	if targetLV < 0 || targetLV >= cg.NextLV {
		return false, egerr.WithLVf(egerr.InvalidVersion, int(targetLV), "targetLV out of bounds for graph with %d LVs", cg.NextLV)
	}
	if len(frontier) == 0 {
		return false, nil
	}

	queue := append([]LV(nil), frontier...)
	visited := make(map[LV]struct{})

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]

		if curr < 0 {
			continue
		}
		if _, ok := visited[curr]; ok {
			continue
		}
		visited[curr] = struct{}{}

		if curr < targetLV {
			continue
		}
		if curr == targetLV {
			return true, nil
		}

		entry, offset, found := findEntryContaining(cg, curr)
		if !found {
			return false, egerr.WithLV(egerr.InvalidVersion, int(curr), "VersionContainsLV: LV not found in graph")
		}
		if entry.Version <= targetLV {
			// targetLV, if reachable at all from curr, lies within this same
			// contiguous run (curr's run starts at or before it).
			return true, nil
		}

		for _, p := range parentsOf(entry, offset, curr) {
			if p >= 0 {
				if _, seen := visited[p]; !seen {
					queue = append(queue, p)
				}
			}
		}
	}
	return false, nil
}

// SummarizeVersion creates a VersionSummary for a given frontier (§6).
func SummarizeVersion(cg *CausalGraph, frontier []LV) (VersionSummary, error) {
	summary := make(VersionSummary)
	if len(frontier) == 0 {
		return summary, nil
	}
	for _, fv := range frontier {
		if fv < 0 || fv >= cg.NextLV {
			return nil, egerr.WithLVf(egerr.InvalidVersion, int(fv), "frontier LV out of bounds for graph with %d LVs", cg.NextLV)
		}
	}

	allHistoryLVs := make(map[LV]struct{})
	queue := append([]LV(nil), frontier...)
	visited := make(map[LV]struct{})

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if curr < 0 {
			continue
		}
		if _, ok := visited[curr]; ok {
			continue
		}
		visited[curr] = struct{}{}
		allHistoryLVs[curr] = struct{}{}

		entry, offset, found := findEntryContaining(cg, curr)
		if !found {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(curr), "SummarizeVersion: LV not found in graph")
		}
		for _, p := range parentsOf(entry, offset, curr) {
			if p >= 0 {
				if _, seen := visited[p]; !seen {
					queue = append(queue, p)
				}
			}
		}
	}

	agentSeqPairs := make(map[AgentID][]int)
	for lv := range allHistoryLVs {
		raw, found := LVToRaw(cg, lv)
		if !found {
			return nil, egerr.WithLV(egerr.InvariantBroken, int(lv), "SummarizeVersion: failed to convert LV to RawVersion")
		}
		agentSeqPairs[raw.Agent] = append(agentSeqPairs[raw.Agent], raw.Seq)
	}

	for agent, seqs := range agentSeqPairs {
		sort.Ints(seqs)
		ranges := make([][2]int, 0, len(seqs))
		for _, s := range seqs {
			if n := len(ranges); n > 0 && ranges[n-1][1] == s {
				ranges[n-1][1] = s + 1
				continue
			}
			ranges = append(ranges, [2]int{s, s + 1})
		}
		summary[agent] = ranges
	}
	return summary, nil
}

// Diff calculates the versions in `from` that are not covered by the
// VersionSummary `to`. This is the summary-relative diff FindConflicting
// uses, with a summary of the known common ancestors as `to`.
func Diff(cg *CausalGraph, from []LV, to VersionSummary) ([]LVRange, error) {
	result := []LVRange{}
	visitedForTraversal := make(map[LV]struct{})

	queue := sortLVsAndDedup(append([]LV(nil), from...))
	processedInQueue := make(map[LV]struct{})

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		if _, ok := visitedForTraversal[v]; ok {
			continue
		}

		entry, _, found := findEntryContaining(cg, v)
		if !found {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "Diff: LV not found in graph")
		}

		for lvInEntry := entry.Version; lvInEntry < entry.VEnd; lvInEntry++ {
			visitedForTraversal[lvInEntry] = struct{}{}
		}

		isEntireEntryCoveredByTo := true
		currentRunStartLV := LV(-1)

		for lvIter := entry.Version; lvIter < entry.VEnd; lvIter++ {
			seqIter := entry.Seq + int(lvIter-entry.Version)
			isLVCoveredByTo := false
			if ranges, ok := to[entry.Agent]; ok {
				for _, r := range ranges {
					if seqIter >= r[0] && seqIter < r[1] {
						isLVCoveredByTo = true
						break
					}
				}
			}

			if !isLVCoveredByTo {
				isEntireEntryCoveredByTo = false
				if currentRunStartLV == -1 {
					currentRunStartLV = lvIter
				}
			} else if currentRunStartLV != -1 {
				result = append(result, LVRange{Start: currentRunStartLV, End: lvIter})
				currentRunStartLV = -1
			}
		}
		if currentRunStartLV != -1 {
			result = append(result, LVRange{Start: currentRunStartLV, End: entry.VEnd})
		}

		if !isEntireEntryCoveredByTo {
			for _, p := range entry.Parents {
				if _, qProc := processedInQueue[p]; !qProc && p >= 0 {
					pIsCoveredByTo := false
					if pRaw, pFound := LVToRaw(cg, p); pFound {
						if ranges, ok := to[pRaw.Agent]; ok {
							for _, r := range ranges {
								if pRaw.Seq >= r[0] && pRaw.Seq < r[1] {
									pIsCoveredByTo = true
									break
								}
							}
						}
					}
					if !pIsCoveredByTo {
						queue = append(queue, p)
						processedInQueue[p] = struct{}{}
					}
				}
			}
		}
	}

	return mergeLVRanges(result), nil
}

func mergeLVRanges(result []LVRange) []LVRange {
	if len(result) == 0 {
		return result
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	merged := []LVRange{result[0]}
	for i := 1; i < len(result); i++ {
		last := &merged[len(merged)-1]
		current := result[i]
		if current.Start <= last.End {
			if current.End > last.End {
				last.End = current.End
			}
		} else {
			merged = append(merged, current)
		}
	}
	return merged
}

// FindDominators finds the subset of `versions` whose members are not
// ancestors of any other member (§4.2).
func FindDominators(cg *CausalGraph, versions []LV) ([]LV, error) {
	if len(versions) == 0 {
		return []LV{}, nil
	}
	uniqueVersions := sortLVsAndDedup(append([]LV(nil), versions...))
	if len(uniqueVersions) == 1 {
		v := uniqueVersions[0]
		if v < 0 || v >= cg.NextLV {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "FindDominators: version not found in graph")
		}
		return []LV{v}, nil
	}

	ancestorSets := make([]map[LV]struct{}, len(uniqueVersions))
	for i, v := range uniqueVersions {
		if v < 0 || v >= cg.NextLV {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "FindDominators: version not found in graph")
		}
		set := make(map[LV]struct{})
		q := []LV{v}
		visitedInSet := make(map[LV]struct{})
		for len(q) > 0 {
			curr := q[0]
			q = q[1:]
			if _, ok := visitedInSet[curr]; ok {
				continue
			}
			visitedInSet[curr] = struct{}{}
			set[curr] = struct{}{}

			entry, offset, found := findEntryContaining(cg, curr)
			if !found {
				return nil, egerr.WithLV(egerr.InvalidVersion, int(curr), "FindDominators: LV not found in graph")
			}
			for _, p := range parentsOf(entry, offset, curr) {
				if p >= 0 {
					if _, seen := visitedInSet[p]; !seen {
						q = append(q, p)
					}
				}
			}
		}
		ancestorSets[i] = set
	}

	common := make(map[LV]struct{}, len(uniqueVersions))
	for _, lv := range uniqueVersions {
		common[lv] = struct{}{}
	}

	dominators := make([]LV, 0, len(common))
	for ca := range common {
		isAncestorOfAnother := false
		for otherCa := range common {
			if ca == otherCa {
				continue
			}
			caIsAncestor, err := VersionContainsLV(cg, []LV{otherCa}, ca)
			if err != nil {
				return nil, err
			}
			if caIsAncestor {
				isAncestorOfAnother = true
				break
			}
		}
		if !isAncestorOfAnother {
			dominators = append(dominators, ca)
		}
	}
	return sortLVsAndDedup(dominators), nil
}

// FindConflicting returns operations in `versions` that are not descendants
// of `commonAncestors`, given the common ancestors are already known.
// See FindConflictingVisit for the spec's version that computes the
// common ancestors itself while visiting runs.
func FindConflicting(cg *CausalGraph, versions []LV, commonAncestors []LV) ([]LVRange, error) {
	summary, err := SummarizeVersion(cg, commonAncestors)
	if err != nil {
		return nil, err
	}
	return Diff(cg, versions, summary)
}

// Relation defines the relationship between two versions.
type Relation string

const (
	RelationEqual      Relation = "eq"
	RelationAncestor   Relation = "ancestor"
	RelationDescendant Relation = "descendant"
	RelationConcurrent Relation = "concurrent"
)

// CompareVersions determines the relationship between two LVs, a and b.
func CompareVersions(cg *CausalGraph, a, b LV) (Relation, error) {
	if a == b {
		return RelationEqual, nil
	}
	aIsAncestor, err := VersionContainsLV(cg, []LV{b}, a)
	if err != nil {
		return "", err
	}
	if aIsAncestor {
		return RelationAncestor, nil
	}
	bIsAncestor, err := VersionContainsLV(cg, []LV{a}, b)
	if err != nil {
		return "", err
	}
	if bIsAncestor {
		return RelationDescendant, nil
	}
	return RelationConcurrent, nil
}

// iterVersionsBetweenBP is a helper for IterVersionsBetween.
func iterVersionsBetweenBP(cg *CausalGraph, from []LV, to LV,
	fn func(v LV, isParentOfPrev bool, isMerge bool) (stop bool, err error)) error {
	type frame struct {
		v              LV
		isParentOfPrev bool
	}
	queue := []frame{{v: to, isParentOfPrev: false}}
	visited := make(map[LV]struct{})
	for _, fv := range from {
		visited[fv] = struct{}{}
	}
	for _, fv := range from {
		if fv == to {
			return nil
		}
	}

	for len(queue) > 0 {
		item := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		v := item.v

		if _, ok := visited[v]; ok {
			continue
		}

		entry, offset, found := findEntryContaining(cg, v)
		if !found {
			return egerr.WithLV(egerr.InvalidVersion, int(v), "IterVersionsBetween: LV not found in CG")
		}

		stop, err := fn(v, item.isParentOfPrev, isMergeFlag(entry, offset))
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		visited[v] = struct{}{}

		parentsToVisit := parentsOf(entry, offset, v)
		for i := len(parentsToVisit) - 1; i >= 0; i-- {
			p := parentsToVisit[i]
			if _, seen := visited[p]; !seen && p >= 0 {
				queue = append(queue, frame{p, i == 0 && len(parentsToVisit) > 0})
			}
		}
	}
	return nil
}

func isMergeFlag(entry *CGEntry, offset int) bool {
	return offset == 0 && len(entry.Parents) > 1
}

// IterVersionsBetween iterates over LVs in the range (from, to] (§4.1).
func IterVersionsBetween(cg *CausalGraph, from []LV, to LV,
	fn func(v LV, isParentOfPrev bool, isMerge bool) (stop bool, err error)) error {

	if to < 0 || to >= cg.NextLV {
		if !(cg.NextLV == 0 && to == 0) {
			return egerr.WithLVf(egerr.InvalidVersion, int(to), "IterVersionsBetween: 'to' out of bounds for graph with %d LVs", cg.NextLV)
		}
	}
	for _, fv := range from {
		if fv < 0 || fv >= cg.NextLV {
			if !(cg.NextLV == 0 && fv == 0) {
				return egerr.WithLVf(egerr.InvalidVersion, int(fv), "IterVersionsBetween: 'from' out of bounds for graph with %d LVs", cg.NextLV)
			}
		}
		if fv == to {
			return nil
		}
		isToAncestorOfFrom, err := VersionContainsLV(cg, []LV{fv}, to)
		if err != nil {
			return err
		}
		if isToAncestorOfFrom {
			return nil
		}
	}
	return iterVersionsBetweenBP(cg, from, to, fn)
}

// IntersectWithSummaryFull finds the CGEntry runs reachable from cg.Heads
// that are not covered by summary.
func IntersectWithSummaryFull(cg *CausalGraph, summary VersionSummary) ([]CGEntry, error) {
	result := []CGEntry{}
	visitedLVs := make(map[LV]struct{})

	queue := sortLVsAndDedup(append([]LV(nil), cg.Heads...))
	processedEntries := make(map[LV]struct{})

	for len(queue) > 0 {
		v := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if v < 0 {
			continue
		}
		if _, ok := visitedLVs[v]; ok {
			continue
		}

		entry, _, found := findEntryContaining(cg, v)
		if !found {
			return nil, egerr.WithLV(egerr.InvalidVersion, int(v), "IntersectWithSummaryFull: LV not found in CG")
		}
		if _, ok := processedEntries[entry.Version]; ok {
			continue
		}

		currentRunStartLV := LV(-1)
		var currentRunParents []LV

		for lvIter := entry.VEnd - 1; lvIter >= entry.Version; lvIter-- {
			if _, ok := visitedLVs[lvIter]; ok {
				if currentRunStartLV != -1 {
					startSeq := entry.Seq + int((lvIter+1)-entry.Version)
					result = append(result, CGEntry{Agent: entry.Agent, Seq: startSeq, Version: lvIter + 1, VEnd: currentRunStartLV + 1, Parents: currentRunParents})
					currentRunStartLV = -1
				}
				continue
			}

			seqIter := entry.Seq + int(lvIter-entry.Version)
			isCovered := false
			if ranges, ok := summary[entry.Agent]; ok {
				for _, r := range ranges {
					if seqIter >= r[0] && seqIter < r[1] {
						isCovered = true
						break
					}
				}
			}

			if !isCovered {
				if currentRunStartLV == -1 {
					currentRunStartLV = lvIter
				}
				if lvIter == entry.Version {
					currentRunParents = entry.Parents
				} else {
					currentRunParents = []LV{lvIter - 1}
				}
			} else {
				if currentRunStartLV != -1 {
					startSeq := entry.Seq + int((lvIter+1)-entry.Version)
					result = append(result, CGEntry{Agent: entry.Agent, Seq: startSeq, Version: lvIter + 1, VEnd: currentRunStartLV + 1, Parents: currentRunParents})
					currentRunStartLV = -1
				}
				visitedLVs[lvIter] = struct{}{}
			}
		}

		if currentRunStartLV != -1 {
			result = append(result, CGEntry{Agent: entry.Agent, Seq: entry.Seq, Version: entry.Version, VEnd: currentRunStartLV + 1, Parents: entry.Parents})
		}

		processedEntries[entry.Version] = struct{}{}
		for _, p := range entry.Parents {
			if p >= 0 {
				if _, seen := visitedLVs[p]; !seen {
					queue = append(queue, p)
				}
			}
		}
	}

	for _, rEntry := range result {
		for v := rEntry.Version; v < rEntry.VEnd; v++ {
			visitedLVs[v] = struct{}{}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Version != result[j].Version {
			return result[i].Version < result[j].Version
		}
		return result[i].Agent < result[j].Agent
	})
	return result, nil
}

// IntersectWithSummary flattens IntersectWithSummaryFull's entries into
// LV ranges, sorted ascending with adjacent ranges coalesced.
func IntersectWithSummary(cg *CausalGraph, summary VersionSummary) ([]LVRange, error) {
	entries, err := IntersectWithSummaryFull(cg, summary)
	if err != nil {
		return nil, err
	}
	ranges := make([]LVRange, 0, len(entries))
	for _, entry := range entries {
		ranges = append(ranges, LVRange{Start: entry.Version, End: entry.VEnd})
	}
	return mergeLVRanges(ranges), nil
}
