package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/oplog"
)

// Checkout computes a full document snapshot for log from scratch: a
// fresh Context, replayed over every op in [0, nextLV) (§4.6
// "checkout(oplog)"). Returns the snapshot and the frontier it reflects
// (a clone of log's heads).
func Checkout[T any](log *oplog.OpLog[T]) ([]T, []causalgraph.LV, error) {
	ctx := NewContext()
	snap := make([]T, 0, len(log.Ops))
	if err := TraverseAndApply(ctx, log, &snap, 0, log.NextLV()); err != nil {
		return nil, nil, err
	}
	return snap, log.Heads(), nil
}
