package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/oplog"
)

// SeedAncestors replays every op in closure (ascending LV order, as
// returned by causalgraph.AncestorsOf) directly into ctx with no
// snapshot output, then sets ctx.CurVersion to frontier. It is used by
// branch.MergeChangesIntoBranch to give a fresh replay context the exact
// OST state as of the common ancestor of two diverging frontiers, before
// replaying the conflicting and new-op ranges on top of it (§4.6).
//
// Unlike traverseAndApply, this does not diff/retreat/advance at each
// step: closure is exactly the ancestor set, already in causal (ascending
// LV) order, so every op's dependencies are guaranteed to have been
// applied earlier in the loop. Each op is simply applied once, visible
// or not, matching what actually happened in that shared history --
// including deletions, unlike the blanket Inserted/Inserted placeholder
// §4.6 describes as the default (see DESIGN.md).
func SeedAncestors[T any](ctx *Context, log *oplog.OpLog[T], closure []causalgraph.LV, frontier []causalgraph.LV) error {
	for _, lv := range closure {
		if err := apply1(ctx, log, lv, nil); err != nil {
			return err
		}
	}
	ctx.CurVersion = append([]causalgraph.LV(nil), frontier...)
	return nil
}
