package causalgraph

import (
	"reflect"
	"sort"
	"testing"

	"github.com/waka/crdt-eg-walker/egerr"
)

func compareLVSlices(a, b []LV) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	acopy := append([]LV(nil), a...)
	bcopy := append([]LV(nil), b...)
	sort.Slice(acopy, func(i, j int) bool { return acopy[i] < acopy[j] })
	sort.Slice(bcopy, func(i, j int) bool { return bcopy[i] < bcopy[j] })
	return reflect.DeepEqual(acopy, bcopy)
}

func compareLVRangeSlices(t *testing.T, got, want []LVRange) {
	t.Helper()
	sort.Slice(got, func(i, j int) bool { return got[i].Start < got[j].Start })
	sort.Slice(want, func(i, j int) bool { return want[i].Start < want[j].Start })
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LVRange slice mismatch:\ngot:  %v\nwant: %v", got, want)
	}
}

// setupTestGraphG1 builds:
//
//	A0(0) -> B0(1) -> C0(3)
//	     \-> A1(2) /
//
// Heads: [3]
func setupTestGraphG1(t *testing.T) *CausalGraph {
	t.Helper()
	cg := CreateCG()
	agentA, agentB, agentC := AgentID("agentA"), AgentID("agentB"), AgentID("agentC")

	if _, err := AddRaw(cg, RawVersion{agentA, 0}, 1, nil); err != nil {
		t.Fatalf("G1 setup: AddRaw(A0) failed: %v", err)
	}
	if _, err := AddRaw(cg, RawVersion{agentB, 0}, 1, []RawVersion{{agentA, 0}}); err != nil {
		t.Fatalf("G1 setup: AddRaw(B0) failed: %v", err)
	}
	if _, err := AddRaw(cg, RawVersion{agentA, 1}, 1, []RawVersion{{agentA, 0}}); err != nil {
		t.Fatalf("G1 setup: AddRaw(A1) failed: %v", err)
	}
	if _, err := AddRaw(cg, RawVersion{agentC, 0}, 1, []RawVersion{{agentB, 0}, {agentA, 1}}); err != nil {
		t.Fatalf("G1 setup: AddRaw(C0) failed: %v", err)
	}
	return cg
}

// setupTestGraphG2 builds a chain of run-length-encoded spans:
// A0-2(0,1,2) -> B0-1(3,4). Heads: [4]
func setupTestGraphG2(t *testing.T) *CausalGraph {
	t.Helper()
	cg := CreateCG()
	agentA, agentB := AgentID("agentA"), AgentID("agentB")
	if _, err := AddRaw(cg, RawVersion{agentA, 0}, 3, nil); err != nil {
		t.Fatalf("G2 setup: AddRaw(A0-2) failed: %v", err)
	}
	if _, err := AddRaw(cg, RawVersion{agentB, 0}, 2, []RawVersion{{agentA, 2}}); err != nil {
		t.Fatalf("G2 setup: AddRaw(B0-1) failed: %v", err)
	}
	return cg
}

// setupTestGraphG4 builds two independent single-entry branches: A0(0), B0(1).
func setupTestGraphG4(t *testing.T) *CausalGraph {
	t.Helper()
	cg := CreateCG()
	agentA, agentB := AgentID("agentA"), AgentID("agentB")
	if _, err := AddRaw(cg, RawVersion{agentA, 0}, 1, []RawVersion{}); err != nil {
		t.Fatalf("G4 setup: AddRaw(A0) failed: %v", err)
	}
	if _, err := AddRaw(cg, RawVersion{agentB, 0}, 1, []RawVersion{}); err != nil {
		t.Fatalf("G4 setup: AddRaw(B0) failed: %v", err)
	}
	return cg
}

func TestCreateCG(t *testing.T) {
	cg := CreateCG()
	if len(cg.Heads) != 0 || len(cg.Entries) != 0 || len(cg.AgentToVersion) != 0 {
		t.Errorf("expected a fresh CausalGraph to be empty, got %+v", cg)
	}
}

func TestAddRaw_SingleEntry(t *testing.T) {
	cg := CreateCG()
	agentA := AgentID("agentA")

	entry, err := AddRaw(cg, RawVersion{Agent: agentA, Seq: 0}, 1, nil)
	if err != nil {
		t.Fatalf("AddRaw failed: %v", err)
	}
	if entry.Agent != agentA || entry.Seq != 0 || entry.Version != 0 || entry.VEnd != 1 {
		t.Errorf("unexpected entry fields: %+v", entry)
	}
	if len(entry.Parents) != 0 {
		t.Errorf("expected empty parents for first entry, got %v", entry.Parents)
	}
	if !compareLVSlices(cg.Heads, []LV{0}) {
		t.Errorf("expected Heads [0], got %v", cg.Heads)
	}
	if NextLV(cg) != 1 {
		t.Errorf("expected NextLV 1, got %d", NextLV(cg))
	}
	if NextSeqForAgent(cg, agentA) != 1 {
		t.Errorf("expected NextSeqForAgent 1, got %d", NextSeqForAgent(cg, agentA))
	}
}

func TestAddRaw_AlreadyKnownSpanIsANoOp(t *testing.T) {
	// Re-adding a span AddRaw already fully covers is idempotent: no error,
	// no mutation, nil entry. This is what lets oplog.MergeFrom call AddRaw
	// twice with overlapping knowledge of the same remote history.
	agentA := AgentID("agentA")
	cg := CreateCG()
	if _, err := AddRaw(cg, RawVersion{agentA, 0}, 3, nil); err != nil {
		t.Fatalf("initial AddRaw failed: %v", err)
	}
	before := NextSeqForAgent(cg, agentA)
	entriesBefore := len(cg.Entries)

	entry, err := AddRaw(cg, RawVersion{agentA, 1}, 1, nil)
	if err != nil {
		t.Fatalf("expected no error re-adding a known subset, got %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil entry for an already-known span, got %+v", entry)
	}
	if NextSeqForAgent(cg, agentA) != before || len(cg.Entries) != entriesBefore {
		t.Errorf("AddRaw mutated the graph on an already-known span")
	}
}

func TestAddRaw_SkipsKnownPrefix(t *testing.T) {
	// AddRaw(id, len) may overlap a prefix already known for id.Agent; only
	// the unknown suffix gets appended, parented on whatever preceded it.
	agentA := AgentID("agentA")
	cg := CreateCG()
	if _, err := AddRaw(cg, RawVersion{agentA, 0}, 1, nil); err != nil {
		t.Fatalf("seed AddRaw failed: %v", err)
	}

	entry, err := AddRaw(cg, RawVersion{agentA, 0}, 2, nil) // seq [0,2): seq 0 already known
	if err != nil {
		t.Fatalf("AddRaw failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a new entry for the unknown suffix, got nil")
	}
	if entry.Agent != agentA || entry.Seq != 1 || entry.Version != 1 || entry.VEnd != 2 {
		t.Errorf("unexpected suffix entry: %+v", entry)
	}
	if !compareLVSlices(entry.Parents, []LV{0}) {
		t.Errorf("expected suffix entry parented on LV0, got %v", entry.Parents)
	}
	if NextSeqForAgent(cg, agentA) != 2 {
		t.Errorf("expected NextSeqForAgent 2, got %d", NextSeqForAgent(cg, agentA))
	}
}

func TestAddRaw_InvalidLength(t *testing.T) {
	cg := CreateCG()
	agentA := AgentID("agentA")
	for _, length := range []int{0, -1} {
		_, err := AddRaw(cg, RawVersion{agentA, 0}, length, nil)
		if err == nil {
			t.Fatalf("expected an error for length %d, got nil", length)
		}
		if !egerr.Is(err, egerr.InvalidLength) {
			t.Errorf("expected egerr.InvalidLength for length %d, got %v", length, err)
		}
	}
}

func TestAddRaw_UnknownParentIsInvalidVersion(t *testing.T) {
	cg := CreateCG()
	agentA, agentB := AgentID("agentA"), AgentID("agentB")
	_, err := AddRaw(cg, RawVersion{agentA, 0}, 1, []RawVersion{{agentB, 0}})
	if err == nil {
		t.Fatal("expected an error for an unresolvable parent")
	}
	if !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion, got %v", err)
	}
}

func TestAddRaw_MultipleParents(t *testing.T) {
	cg := CreateCG()
	agentA, agentB, agentC := AgentID("agentA"), AgentID("agentB"), AgentID("agentC")

	entryA, err := AddRaw(cg, RawVersion{agentA, 0}, 1, nil)
	if err != nil {
		t.Fatalf("AddRaw(A0) failed: %v", err)
	}
	entryB, err := AddRaw(cg, RawVersion{agentB, 0}, 1, []RawVersion{})
	if err != nil {
		t.Fatalf("AddRaw(B0) failed: %v", err)
	}
	entryC, err := AddRaw(cg, RawVersion{agentC, 0}, 1, []RawVersion{{agentA, 0}, {agentB, 0}})
	if err != nil {
		t.Fatalf("AddRaw(C0) failed: %v", err)
	}
	if !compareLVSlices(entryC.Parents, []LV{entryA.Version, entryB.Version}) {
		t.Errorf("C0 parents = %v, want [%d,%d]", entryC.Parents, entryA.Version, entryB.Version)
	}
	if !compareLVSlices(cg.Heads, []LV{entryC.Version}) {
		t.Errorf("Heads after C0 = %v, want [%d]", cg.Heads, entryC.Version)
	}
}

func TestHasVersion(t *testing.T) {
	cg := setupTestGraphG1(t)
	agentA := AgentID("agentA")

	if !HasVersion(cg, agentA, 0) {
		t.Error("expected HasVersion(agentA, 0) to be true")
	}
	if !HasVersion(cg, agentA, 1) {
		t.Error("expected HasVersion(agentA, 1) to be true")
	}
	if HasVersion(cg, agentA, 2) {
		t.Error("expected HasVersion(agentA, 2) to be false: agentA only has seq 0 and 1")
	}
	if HasVersion(cg, AgentID("ghost"), 0) {
		t.Error("expected HasVersion for an unknown agent to be false")
	}
}

func TestLvCmp(t *testing.T) {
	cg := setupTestGraphG1(t)

	// LV0=agentA:0, LV1=agentB:0, LV2=agentA:1.
	if got, err := LvCmp(cg, 0, 1); err != nil || got >= 0 {
		t.Errorf("expected agentA < agentB lexicographically, got cmp=%d err=%v", got, err)
	}
	if got, err := LvCmp(cg, 1, 0); err != nil || got <= 0 {
		t.Errorf("expected LvCmp(1,0) > 0, got %d err=%v", got, err)
	}
	if got, err := LvCmp(cg, 0, 0); err != nil || got != 0 {
		t.Errorf("expected LvCmp(0,0) == 0, got %d err=%v", got, err)
	}
	if got, err := LvCmp(cg, 0, 2); err != nil || got >= 0 {
		t.Errorf("expected agentA:0 < agentA:1, got %d err=%v", got, err)
	}

	if _, err := LvCmp(cg, 0, 100); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for an unknown LV, got %v", err)
	}
}

func TestRawToLV(t *testing.T) {
	cg := setupTestGraphG1(t)
	agentA := AgentID("agentA")

	lv, err := RawToLV(cg, agentA, 1)
	if err != nil || lv != 2 {
		t.Errorf("RawToLV(agentA, 1) = (%d, %v), want (2, nil)", lv, err)
	}

	if _, err := RawToLV(cg, AgentID("ghost"), 0); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for an unknown agent, got %v", err)
	}
	if _, err := RawToLV(cg, agentA, 99); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for an out-of-range seq, got %v", err)
	}
	if _, err := RawToLV(cg, agentA, -1); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for a negative seq, got %v", err)
	}
}

func TestLVToRaw_RoundTrip(t *testing.T) {
	cg := setupTestGraphG1(t)
	for lv := LV(0); lv < 4; lv++ {
		raw, ok := LVToRaw(cg, lv)
		if !ok {
			t.Fatalf("LVToRaw(%d) not found", lv)
		}
		back, err := RawToLV(cg, raw.Agent, raw.Seq)
		if err != nil || back != lv {
			t.Errorf("round trip failed for LV %d: raw=%+v, back=%d, err=%v", lv, raw, back, err)
		}
	}
	if _, ok := LVToRaw(cg, 100); ok {
		t.Error("expected LVToRaw(100) not found")
	}
}

func TestSummarizeVersion(t *testing.T) {
	cg := setupTestGraphG1(t)
	agentA, agentB := AgentID("agentA"), AgentID("agentB")

	summary, err := SummarizeVersion(cg, []LV{1, 2}) // B0, A1
	if err != nil {
		t.Fatalf("SummarizeVersion failed: %v", err)
	}
	want := VersionSummary{
		agentA: [][2]int{{0, 2}},
		agentB: [][2]int{{0, 1}},
	}
	if !reflect.DeepEqual(summary, want) {
		t.Errorf("SummarizeVersion([1,2]) = %v, want %v", summary, want)
	}

	empty, err := SummarizeVersion(cg, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("SummarizeVersion(nil) = (%v, %v), want empty summary, nil err", empty, err)
	}

	if _, err := SummarizeVersion(cg, []LV{100}); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for an out-of-graph frontier LV, got %v", err)
	}
}

func TestDiff(t *testing.T) {
	g1 := setupTestGraphG1(t)
	g2 := setupTestGraphG2(t)
	agentA, agentB := AgentID("agentA"), AgentID("agentB")

	tests := []struct {
		name    string
		cg      *CausalGraph
		from    []LV
		to      VersionSummary
		want    []LVRange
		wantErr bool
	}{
		{name: "fully covered", cg: g1, from: []LV{0}, to: VersionSummary{agentA: {{0, 1}}}, want: []LVRange{}},
		{name: "one item missing", cg: g1, from: []LV{1}, to: VersionSummary{agentA: {{0, 1}}}, want: []LVRange{{Start: 1, End: 2}}},
		{name: "merge point vs root", cg: g1, from: []LV{3}, to: VersionSummary{agentA: {{0, 1}}}, want: []LVRange{{Start: 1, End: 4}}},
		{name: "empty to summary", cg: g1, from: []LV{0}, to: VersionSummary{}, want: []LVRange{{Start: 0, End: 1}}},
		{name: "empty from frontier", cg: g1, from: []LV{}, to: VersionSummary{agentA: {{0, 1}}}, want: []LVRange{}},
		{name: "run-length entries", cg: g2, from: []LV{4}, to: VersionSummary{agentA: {{0, 2}}}, want: []LVRange{{Start: 2, End: 5}}},
		{name: "unknown from LV", cg: g1, from: []LV{100}, to: VersionSummary{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Diff(tt.cg, tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Diff() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				compareLVRangeSlices(t, got, tt.want)
			} else if !egerr.Is(err, egerr.InvalidVersion) {
				t.Errorf("expected egerr.InvalidVersion, got %v", err)
			}
		})
	}
}

func TestFindDominators(t *testing.T) {
	g1 := setupTestGraphG1(t)
	g4 := setupTestGraphG4(t)

	tests := []struct {
		name     string
		cg       *CausalGraph
		versions []LV
		want     []LV
		wantErr  bool
	}{
		{name: "single version", cg: g1, versions: []LV{0}, want: []LV{0}},
		{name: "concurrent siblings both dominate", cg: g1, versions: []LV{1, 2}, want: []LV{1, 2}},
		{name: "merge point dominates its own parents", cg: g1, versions: []LV{3, 1}, want: []LV{3}},
		{name: "empty input", cg: g1, versions: []LV{}, want: []LV{}},
		{name: "unknown version", cg: g1, versions: []LV{0, 100}, wantErr: true},
		{name: "independent branches both dominate", cg: g4, versions: []LV{0, 1}, want: []LV{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindDominators(tt.cg, tt.versions)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindDominators() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !compareLVSlices(got, tt.want) {
				t.Errorf("FindDominators() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	g1 := setupTestGraphG1(t)
	g4 := setupTestGraphG4(t)

	tests := []struct {
		name string
		cg   *CausalGraph
		a, b LV
		want Relation
	}{
		{"equal", g1, 1, 1, RelationEqual},
		{"ancestor", g1, 0, 3, RelationAncestor},
		{"descendant", g1, 3, 0, RelationDescendant},
		{"concurrent siblings", g1, 1, 2, RelationConcurrent},
		{"concurrent independent branches", g4, 0, 1, RelationConcurrent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CompareVersions(tt.cg, tt.a, tt.b)
			if err != nil {
				t.Fatalf("CompareVersions() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CompareVersions(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if _, err := CompareVersions(g1, 100, 0); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for an unknown LV, got %v", err)
	}
}

func TestFindConflicting(t *testing.T) {
	g1 := setupTestGraphG1(t)

	got, err := FindConflicting(g1, []LV{1, 2}, []LV{0}) // B0, A1 vs common ancestor A0
	if err != nil {
		t.Fatalf("FindConflicting() error = %v", err)
	}
	compareLVRangeSlices(t, got, []LVRange{{Start: 1, End: 3}})

	if got2, err := FindConflicting(g1, []LV{3}, []LV{3}); err != nil || len(got2) != 0 {
		t.Errorf("FindConflicting(self, self) = (%v, %v), want (empty, nil)", got2, err)
	}
}

func TestFindConflictingVisit(t *testing.T) {
	g1 := setupTestGraphG1(t) // A0(0) -> B0(1), A0(0) -> A1(2), {B0,A1} -> C0(3)

	type visited struct {
		r    LVRange
		flag Flag
	}
	var got []visited
	commonAncestor, err := FindConflictingVisit(g1, []LV{1}, []LV{2}, func(r LVRange, f Flag) error {
		got = append(got, visited{r, f})
		return nil
	})
	if err != nil {
		t.Fatalf("FindConflictingVisit() error = %v", err)
	}
	want := []visited{
		{LVRange{Start: 2, End: 3}, FlagOnlyB},  // A1, visited first (higher LV)
		{LVRange{Start: 1, End: 2}, FlagOnlyA},  // B0
		{LVRange{Start: 0, End: 1}, FlagShared}, // A0, the fork point
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FindConflictingVisit runs = %+v, want %+v", got, want)
	}
	if !compareLVSlices(commonAncestor, []LV{0}) {
		t.Errorf("FindConflictingVisit common ancestor = %v, want [0]", commonAncestor)
	}

	// An error from the visit callback aborts the walk and surfaces unchanged.
	boom := egerr.New(egerr.InvariantBroken, "boom")
	if _, err := FindConflictingVisit(g1, []LV{1}, []LV{2}, func(LVRange, Flag) error { return boom }); err != boom {
		t.Errorf("expected the visit callback's error to propagate unchanged, got %v", err)
	}
}

func TestAncestorsOf(t *testing.T) {
	g1 := setupTestGraphG1(t)

	got, err := AncestorsOf(g1, []LV{3}) // C0's full causal closure
	if err != nil {
		t.Fatalf("AncestorsOf() error = %v", err)
	}
	if !compareLVSlices(got, []LV{0, 1, 2, 3}) {
		t.Errorf("AncestorsOf([3]) = %v, want [0,1,2,3]", got)
	}

	if got2, err := AncestorsOf(g1, []LV{0}); err != nil || !compareLVSlices(got2, []LV{0}) {
		t.Errorf("AncestorsOf([0]) = (%v, %v), want ([0], nil)", got2, err)
	}

	if _, err := AncestorsOf(g1, []LV{100}); err == nil || !egerr.Is(err, egerr.InvalidVersion) {
		t.Errorf("expected egerr.InvalidVersion for an unknown frontier LV, got %v", err)
	}
}

func TestIterVersionsBetween(t *testing.T) {
	g1 := setupTestGraphG1(t)

	type item struct {
		lv             LV
		isParentOfPrev bool
		isMerge        bool
	}
	var got []item
	err := IterVersionsBetween(g1, []LV{0}, 3, func(v LV, isParentOfPrev, isMerge bool) (bool, error) {
		got = append(got, item{v, isParentOfPrev, isMerge})
		return false, nil
	})
	if err != nil {
		t.Fatalf("IterVersionsBetween() error = %v", err)
	}
	want := []item{
		{3, false, true},  // C0, a merge of B0 and A1
		{1, true, false},  // B0
		{2, false, false}, // A1
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("IterVersionsBetween iteration = %+v, want %+v", got, want)
	}

	if err := IterVersionsBetween(g1, []LV{100}, 3, func(LV, bool, bool) (bool, error) { return false, nil }); err == nil {
		t.Error("expected an error when 'from' contains an unknown LV")
	}
}

func TestIntersectWithSummary(t *testing.T) {
	g1 := setupTestGraphG1(t)

	full, err := IntersectWithSummary(g1, VersionSummary{})
	if err != nil {
		t.Fatalf("IntersectWithSummary(empty) error = %v", err)
	}
	compareLVRangeSlices(t, full, []LVRange{{Start: 0, End: 4}})

	none, err := IntersectWithSummary(g1, VersionSummary{
		"agentA": {{0, 2}},
		"agentB": {{0, 1}},
		"agentC": {{0, 1}},
	})
	if err != nil {
		t.Fatalf("IntersectWithSummary(full) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("IntersectWithSummary(full) = %v, want empty", none)
	}
}

func TestIntersectWithSummaryFull(t *testing.T) {
	g1 := setupTestGraphG1(t)
	agentA := AgentID("agentA")

	got, err := IntersectWithSummaryFull(g1, VersionSummary{agentA: {{0, 1}}})
	if err != nil {
		t.Fatalf("IntersectWithSummaryFull() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 remaining entries (B0, A1, C0), got %d: %+v", len(got), got)
	}
	for _, e := range got {
		if e.Agent == agentA && e.Seq == 0 {
			t.Errorf("A0 should have been excluded by the summary, got it in result: %+v", e)
		}
	}
}
