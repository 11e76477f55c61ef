package causalgraph

import "container/heap"

// lvHeap is a max-heap of LVs, used by the DiffFrontiers and
// FindConflictingVisit ancestry walks, which must always process the highest (most recent)
// pending LV first: since every CGEntry's parents are strictly less than
// its own version, popping in descending order guarantees a version's
// parents are only queued after the version itself has been handled.
//
// Grounded on §9's "binary-heap with a caller-supplied comparator" and
// §4.2's description of diff/dominators/findConflicting; the teacher's own
// causalgraph.go instead re-sorts a plain slice on every push, which is
// the thing this replaces.
type lvHeap []LV

func (h lvHeap) Len() int            { return len(h) }
func (h lvHeap) Less(i, j int) bool  { return h[i] > h[j] } // max-heap
func (h lvHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *lvHeap) Push(x interface{}) { *h = append(*h, x.(LV)) }
func (h *lvHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// flagQueue pairs an lvHeap with a map from LV to its accumulated Flag,
// so pushing the same LV twice with different flags promotes it to
// FlagShared in place rather than creating a duplicate heap entry.
type flagQueue struct {
	heap  lvHeap
	flags map[LV]Flag
}

func newFlagQueue() *flagQueue {
	return &flagQueue{flags: make(map[LV]Flag)}
}

// push enqueues lv tagged with f, merging flags if lv is already queued.
func (q *flagQueue) push(lv LV, f Flag) {
	if cur, ok := q.flags[lv]; ok {
		q.flags[lv] = cur | f
		return
	}
	q.flags[lv] = f
	heap.Push(&q.heap, lv)
}

func (q *flagQueue) len() int { return q.heap.Len() }

// pop removes and returns the highest remaining LV along with its flag.
func (q *flagQueue) pop() (LV, Flag) {
	lv := heap.Pop(&q.heap).(LV)
	f := q.flags[lv]
	delete(q.flags, lv)
	return lv, f
}

// allShared reports whether every currently-queued LV has been promoted
// to FlagShared, i.e. there is nothing left that's exclusive to one side.
func (q *flagQueue) allShared() bool {
	for _, f := range q.flags {
		if f != FlagShared {
			return false
		}
	}
	return true
}
