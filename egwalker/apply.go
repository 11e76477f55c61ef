package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
	"github.com/waka/crdt-eg-walker/oplog"
	"github.com/waka/crdt-eg-walker/ost"
)

// spliceFn mutates a snapshot slice in place for apply1 to call as items
// enter or leave visibility; nil means "don't materialize", the
// path used when replaying the conflicting region with only the OST as
// output (§4.6 "Replay conflictOps ranges with a null snapshot").
type spliceFn[T any] interface {
	insert(pos int, v T)
	remove(pos int)
}

// sliceSplice adapts a *[]T to spliceFn.
type sliceSplice[T any] struct{ s *[]T }

func (sp sliceSplice[T]) insert(pos int, v T) {
	s := *sp.s
	s = append(s, v)
	copy(s[pos+1:], s[pos:])
	s[pos] = v
	*sp.s = s
}

func (sp sliceSplice[T]) remove(pos int) {
	s := *sp.s
	copy(s[pos:], s[pos+1:])
	*sp.s = s[:len(s)-1]
}

// apply1 applies the single op at opID to ctx, optionally mirroring the
// visibility change into out (§4.5 "apply1").
func apply1[T any](ctx *Context, log *oplog.OpLog[T], opID causalgraph.LV, out spliceFn[T]) error {
	if int(opID) < 0 || int(opID) >= len(log.Ops) {
		return egerr.WithLV(egerr.InvalidVersion, int(opID), "apply1: op not found")
	}
	op := log.Ops[opID]

	switch op.Type {
	case oplog.OpDelete:
		idx, endPos := ctx.Tree.FindByCurPos(op.Pos, ctx.hint)
		for {
			it, ok := ctx.Tree.GetByIndex(idx)
			if !ok {
				return egerr.WithLV(egerr.InvariantBroken, int(opID), "apply1: delete ran past end of document looking for a visible item")
			}
			if it.CurState == ost.Inserted {
				break
			}
			if it.EndState == ost.Inserted {
				endPos++
			}
			idx++
		}
		target, _ := ctx.Tree.GetByIndex(idx)
		wasEndInserted := target.EndState == ost.Inserted
		ctx.Tree.MutateItem(target.OpID, func(i *ost.Item) {
			i.CurState = ost.Deleted
			i.EndState = ost.Deleted
		})
		if wasEndInserted && out != nil {
			out.remove(endPos)
		}
		ctx.DelTargets[opID] = target.OpID
		ctx.invalidateHint()

	case oplog.OpInsert:
		idx, endPos := ctx.Tree.FindByCurPos(op.Pos, ctx.hint)

		originLeft := causalgraph.LV(-1)
		if idx > 0 {
			prev, ok := ctx.Tree.GetByIndex(idx - 1)
			if !ok {
				return egerr.WithLV(egerr.InvariantBroken, int(opID), "apply1: insert cursor has no predecessor at idx>0")
			}
			originLeft = prev.OpID
		}

		rightParent := causalgraph.LV(-1)
		for scan := idx; ; scan++ {
			it, ok := ctx.Tree.GetByIndex(scan)
			if !ok {
				break
			}
			if it.CurState != ost.NotYetInserted {
				if it.OriginLeft == originLeft {
					rightParent = it.OpID
				}
				break
			}
		}

		newItem := ost.Item{
			OpID:        opID,
			CurState:    ost.Inserted,
			EndState:    ost.Inserted,
			OriginLeft:  originLeft,
			RightParent: rightParent,
		}
		finalIdx, finalEndPos, err := integrate(&log.CG, ctx.Tree, newItem, idx, endPos)
		if err != nil {
			return err
		}
		ctx.Tree.InsertAt(finalIdx, newItem)
		if out != nil {
			out.insert(finalEndPos, op.Content)
		}
		ctx.hint = &ost.Hint{Pos: op.Pos + 1, Idx: finalIdx + 1, EndPos: finalEndPos + 1}
	}
	return nil
}

// retreat1 moves an item's curState one step back: an insert goes
// Inserted -> NotYetInserted; a delete decrements its target's Deleted
// count, bottoming at Inserted (§4.5 "retreat1").
func retreat1[T any](ctx *Context, log *oplog.OpLog[T], opID causalgraph.LV) error {
	if int(opID) < 0 || int(opID) >= len(log.Ops) {
		return egerr.WithLV(egerr.InvalidVersion, int(opID), "retreat1: op not found")
	}
	op := log.Ops[opID]

	switch op.Type {
	case oplog.OpInsert:
		it, ok := ctx.Tree.Item(opID)
		if !ok {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "retreat1: insert's item missing from tree")
		}
		if it.CurState != ost.Inserted {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "retreat1: insert item not in Inserted state")
		}
		ctx.Tree.MutateItem(opID, func(i *ost.Item) { i.CurState = ost.NotYetInserted })

	case oplog.OpDelete:
		target, recorded := ctx.DelTargets[opID]
		if !recorded {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "retreat1: delete has no recorded target")
		}
		it, ok := ctx.Tree.Item(target)
		if !ok {
			return egerr.WithLV(egerr.InvariantBroken, int(target), "retreat1: delete target missing from tree")
		}
		if it.CurState < ost.Deleted {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "retreat1: delete target not in Deleted state")
		}
		ctx.Tree.MutateItem(target, func(i *ost.Item) {
			if i.CurState == ost.Deleted {
				i.CurState = ost.Inserted
			} else {
				i.CurState--
			}
		})
	}
	ctx.invalidateHint()
	return nil
}

// advance1 is the inverse of retreat1 (§4.5).
func advance1[T any](ctx *Context, log *oplog.OpLog[T], opID causalgraph.LV) error {
	if int(opID) < 0 || int(opID) >= len(log.Ops) {
		return egerr.WithLV(egerr.InvalidVersion, int(opID), "advance1: op not found")
	}
	op := log.Ops[opID]

	switch op.Type {
	case oplog.OpInsert:
		it, ok := ctx.Tree.Item(opID)
		if !ok {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "advance1: insert's item missing from tree")
		}
		if it.CurState != ost.NotYetInserted {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "advance1: insert item not in NotYetInserted state")
		}
		ctx.Tree.MutateItem(opID, func(i *ost.Item) { i.CurState = ost.Inserted })

	case oplog.OpDelete:
		target, recorded := ctx.DelTargets[opID]
		if !recorded {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "advance1: delete has no recorded target")
		}
		it, ok := ctx.Tree.Item(target)
		if !ok {
			return egerr.WithLV(egerr.InvariantBroken, int(target), "advance1: delete target missing from tree")
		}
		if it.CurState < ost.Inserted {
			return egerr.WithLV(egerr.InvariantBroken, int(opID), "advance1: delete target below Inserted state")
		}
		ctx.Tree.MutateItem(target, func(i *ost.Item) { i.CurState++ })
	}
	ctx.invalidateHint()
	return nil
}
