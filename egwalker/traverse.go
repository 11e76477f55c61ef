package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/oplog"
)

// TraverseAndApply walks every CG entry slice within [fromOp, toOp),
// retreating/advancing ctx to each slice's parents before applying its
// ops, and leaves ctx.CurVersion at the last op applied (§4.5). snap, if
// non-nil, receives every visibility change in the walked range; pass
// nil to replay into the OST only (the conflicting-region pass of
// mergeChangesIntoBranch).
func TraverseAndApply[T any](ctx *Context, log *oplog.OpLog[T], snap *[]T, fromOp, toOp causalgraph.LV) error {
	var out spliceFn[T]
	if snap != nil {
		out = sliceSplice[T]{s: snap}
	}

	lv := fromOp
	for lv < toOp {
		entry, offset, found := causalgraph.FindEntryContaining(&log.CG, lv)
		if !found {
			return invalidVersionf(lv, "TraverseAndApply: lv not found in graph")
		}
		vStart := lv
		vEnd := entry.VEnd
		if vEnd > toOp {
			vEnd = toOp
		}

		var parents []causalgraph.LV
		if offset == 0 {
			parents = entry.Parents
		} else {
			parents = []causalgraph.LV{vStart - 1}
		}

		aOnly, bOnly, err := causalgraph.DiffFrontiers(&log.CG, ctx.CurVersion, parents)
		if err != nil {
			return err
		}
		if len(aOnly) > 0 || len(bOnly) > 0 {
			ctx.invalidateHint()
		}
		for i := len(aOnly) - 1; i >= 0; i-- {
			r := aOnly[i]
			for v := r.End - 1; v >= r.Start; v-- {
				if err := retreat1(ctx, log, v); err != nil {
					return err
				}
			}
		}
		for _, r := range bOnly {
			for v := r.Start; v < r.End; v++ {
				if err := advance1(ctx, log, v); err != nil {
					return err
				}
			}
		}

		for v := vStart; v < vEnd; v++ {
			if err := apply1(ctx, log, v, out); err != nil {
				return err
			}
		}
		ctx.CurVersion = []causalgraph.LV{vEnd - 1}
		lv = vEnd
	}
	return nil
}
