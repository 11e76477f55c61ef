package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
	"github.com/waka/crdt-eg-walker/ost"
)

// integrate implements the Fugue/YjsMod concurrency resolution (§4.5):
// given a new item whose originLeft/rightParent are already set and a
// cursor (idx, endPos) from findByCurPos, it returns the (idx, endPos)
// the item should actually be inserted at, resolving ties against any
// concurrently not-yet-inserted items sitting at that cursor. endPos is
// threaded through and advanced past every EndState==Inserted item the
// scan passes over, since those items are invisible right now (that's
// why they're eligible to scan past at all) but do occupy a slot in the
// converged document the snapshot must account for.
//
// If the item at idx is not NotYetInserted, idx/endPos are already
// unambiguous and returned unchanged -- this is the common case for a
// local edit, where there's nothing concurrent to race against.
func integrate(cg *causalgraph.CausalGraph, tree *ost.Tree, newItem ost.Item, idx, endPos int) (int, int, error) {
	if first, ok := tree.GetByIndex(idx); !ok || first.CurState != ost.NotYetInserted {
		return idx, endPos, nil
	}

	leftIdx, err := indexOfOrBoundary(tree, newItem.OriginLeft, -1)
	if err != nil {
		return 0, 0, err
	}
	rightIdx, err := indexOfOrBoundary(tree, newItem.RightParent, tree.Len())
	if err != nil {
		return 0, 0, err
	}

	scanIdx := idx
	resultIdx := idx
	scanEndPos := endPos
	resultEndPos := endPos
	scanning := false
	for {
		other, ok := tree.GetByIndex(scanIdx)
		if !ok || other.CurState != ost.NotYetInserted {
			break
		}

		oLeftIdx, err := indexOfOrBoundary(tree, other.OriginLeft, -1)
		if err != nil {
			return 0, 0, err
		}
		if oLeftIdx < leftIdx {
			break
		}
		if oLeftIdx == leftIdx {
			oRightIdx, err := indexOfOrBoundary(tree, other.RightParent, tree.Len())
			if err != nil {
				return 0, 0, err
			}
			if oRightIdx == rightIdx {
				cmp, err := causalgraph.LvCmp(cg, newItem.OpID, other.OpID)
				if err != nil {
					return 0, 0, err
				}
				if cmp < 0 {
					break
				}
				scanning = false
			} else {
				scanning = oRightIdx < rightIdx
			}
		}
		// oLeftIdx > leftIdx: other's origin sits further right than ours;
		// it neither ends the scan nor changes which side of the conflict
		// block we're tentatively committing to.

		if other.EndState == ost.Inserted {
			scanEndPos++
		}
		scanIdx++
		if !scanning {
			resultIdx = scanIdx
			resultEndPos = scanEndPos
		}
	}
	return resultIdx, resultEndPos, nil
}

// indexOfOrBoundary resolves an OpID (-1 meaning "no item") to a tree
// index, returning boundary when the OpID is -1.
func indexOfOrBoundary(tree *ost.Tree, opID causalgraph.LV, boundary int) (int, error) {
	if opID < 0 {
		return boundary, nil
	}
	idx, ok := tree.IndexOfItem(opID)
	if !ok {
		return 0, egerr.WithLV(egerr.InvariantBroken, int(opID), "integrate: referenced item not found in tree")
	}
	return idx, nil
}
