// Package oplog implements the append-only operation log that pairs a
// flat list of ListOps with the causal graph describing how they relate
// (§3's OpLog, §4.3).
//
// Grounded on the teacher's egwalker.ListOpLog/Walker.Integrate, which
// bundled op storage and replay together; this package pulls just the
// log half out so branch/egwalker can share a read path into it without
// also inheriting a single EditContext, matching §2's C4/C6 split.
package oplog

import (
	"github.com/pkg/errors"

	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
)

// OpType tags a ListOp as an insertion or a deletion.
type OpType string

const (
	OpInsert OpType = "ins"
	OpDelete OpType = "del"
)

// ListOp is one single-element operation: an insertion of Content at
// Pos, or a deletion of the one visible item at Pos (author's view at
// the time of issue). A multi-element localInsert/localDelete call
// pushes one ListOp per element (§4.3).
type ListOp[T any] struct {
	Type    OpType
	Pos     int
	Content T // insert only.
}

// OpLog is the append-only pairing of operations with the causal graph
// that orders them (§3). Ops[i] is always the operation whose LV is i;
// len(Ops) == causalgraph.NextLV(&CG) is an invariant maintained by every
// mutator in this package.
type OpLog[T any] struct {
	Ops []ListOp[T]
	CG  causalgraph.CausalGraph
}

// New returns an empty OpLog.
func New[T any]() *OpLog[T] {
	return &OpLog[T]{CG: *causalgraph.CreateCG()}
}

func (o *OpLog[T]) checkInvariant() error {
	if len(o.Ops) != int(causalgraph.NextLV(&o.CG)) {
		return egerr.Newf(egerr.InvariantBroken, "oplog: len(ops)=%d diverged from cg.nextLV=%d", len(o.Ops), causalgraph.NextLV(&o.CG))
	}
	return nil
}

// appendLocal allocates the next seq for agent, adds one CG entry
// parented on the log's current heads, and appends op.
func (o *OpLog[T]) appendLocal(agent causalgraph.AgentID, op ListOp[T]) (causalgraph.LV, error) {
	if err := o.checkInvariant(); err != nil {
		return -1, err
	}
	seq := causalgraph.NextSeqForAgent(&o.CG, agent)
	parents, err := causalgraph.LVToRawList(&o.CG, o.CG.Heads)
	if err != nil {
		return -1, errors.Wrap(err, "oplog: appendLocal: resolve heads to raw parents")
	}
	entry, err := causalgraph.AddRaw(&o.CG, causalgraph.RawVersion{Agent: agent, Seq: seq}, 1, parents)
	if err != nil {
		return -1, err
	}
	if entry == nil {
		return -1, egerr.WithRaw(egerr.DuplicateAgentSeq, string(agent), seq, "oplog: appendLocal: (agent, seq) already present")
	}
	o.Ops = append(o.Ops, op)
	return entry.Version, nil
}

// LocalInsert allocates a new agent seq range and pushes one ins op per
// element of content, at pos, pos+1, ... (§4.3). Returns the LV of the
// first op pushed.
func (o *OpLog[T]) LocalInsert(agent causalgraph.AgentID, pos int, content ...T) (causalgraph.LV, error) {
	first := causalgraph.LV(-1)
	for i, c := range content {
		lv, err := o.appendLocal(agent, ListOp[T]{Type: OpInsert, Pos: pos + i, Content: c})
		if err != nil {
			return -1, err
		}
		if i == 0 {
			first = lv
		}
	}
	return first, nil
}

// LocalDelete allocates seqs and pushes n del ops, all at pos (deleting
// each successive item that slides into pos as the previous one is
// removed). n must be >= 1 (§7 InvalidLength).
func (o *OpLog[T]) LocalDelete(agent causalgraph.AgentID, pos int, n int) (causalgraph.LV, error) {
	if n <= 0 {
		return -1, egerr.New(egerr.InvalidLength, "oplog: LocalDelete: length must be >= 1")
	}
	first := causalgraph.LV(-1)
	for i := 0; i < n; i++ {
		lv, err := o.appendLocal(agent, ListOp[T]{Type: OpDelete, Pos: pos})
		if err != nil {
			return -1, err
		}
		if i == 0 {
			first = lv
		}
	}
	return first, nil
}

// PushOp ingests a single remotely-authored op with an explicit raw
// identity and parents (§4.3). Returns ok=false without error if
// (id.Agent, id.Seq) is already known -- a no-op, not a failure.
func (o *OpLog[T]) PushOp(id causalgraph.RawVersion, rawParents []causalgraph.RawVersion, typ OpType, pos int, content T, hasContent bool) (ok bool, err error) {
	if causalgraph.HasVersion(&o.CG, id.Agent, id.Seq) {
		return false, nil
	}
	if typ == OpInsert && !hasContent {
		return false, egerr.WithRaw(egerr.MissingContent, string(id.Agent), id.Seq, "oplog: PushOp: ins without content")
	}
	entry, err := causalgraph.AddRaw(&o.CG, id, 1, rawParents)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	if int(entry.Version) != len(o.Ops) {
		return false, egerr.WithLVf(egerr.InvariantBroken, int(entry.Version), "oplog: PushOp: new CG entry LV %d != ops.length %d", entry.Version, len(o.Ops))
	}
	o.Ops = append(o.Ops, ListOp[T]{Type: typ, Pos: pos, Content: content})
	return true, nil
}

// Heads returns the log's current frontier.
func (o *OpLog[T]) Heads() []causalgraph.LV {
	h := make([]causalgraph.LV, len(o.CG.Heads))
	copy(h, o.CG.Heads)
	return h
}

// NextLV returns the next LV this log would assign.
func (o *OpLog[T]) NextLV() causalgraph.LV {
	return causalgraph.NextLV(&o.CG)
}

// MergeFrom ingests every op and CG entry that other has but o doesn't,
// by summarizing o's known versions, intersecting other's CG against
// that summary, serializing the unseen region, and ingesting it via
// MergePartialVersions (§4.2, §4.3, §6), then appending the
// corresponding op slice. Idempotent: merging the same source twice is
// a no-op the second time. other must be causally consistent with o
// (same agents produce identical ops for identical (agent, seq), which
// this does not itself verify).
func (o *OpLog[T]) MergeFrom(other *OpLog[T]) error {
	summary, err := causalgraph.SummarizeVersion(&o.CG, o.CG.Heads)
	if err != nil {
		return errors.Wrap(err, "oplog: MergeFrom: summarize")
	}
	missing, err := causalgraph.IntersectWithSummary(&other.CG, summary)
	if err != nil {
		return errors.Wrap(err, "oplog: MergeFrom: intersect")
	}
	if len(missing) == 0 {
		return nil
	}

	serialized, err := causalgraph.SerializeDiff(&other.CG, missing)
	if err != nil {
		return errors.Wrap(err, "oplog: MergeFrom: serialize diff")
	}

	added, err := causalgraph.MergePartialVersions(&o.CG, serialized)
	if err != nil {
		return errors.Wrap(err, "oplog: MergeFrom: merge partial versions")
	}

	// SerializeDiff walks `missing` in ascending LV order and
	// MergePartialVersions adds the runs to o's CG in that same order, so
	// appending other's ops in that order puts each one at the LV o just
	// assigned to it (checked against added.End below).
	for _, r := range missing {
		for lv := r.Start; lv < r.End; lv++ {
			o.Ops = append(o.Ops, other.Ops[lv])
		}
	}
	if len(o.Ops) != int(added.End) {
		return egerr.Newf(egerr.InvariantBroken, "oplog: MergeFrom: ops/cg length mismatch after merge (ops=%d, cg=%d)", len(o.Ops), added.End)
	}
	return o.checkInvariant()
}
