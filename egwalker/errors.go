package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
)

func invalidVersionf(lv causalgraph.LV, msg string) error {
	return egerr.WithLV(egerr.InvalidVersion, int(lv), msg)
}
