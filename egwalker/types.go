// Package egwalker implements the edit context and replay walk: the
// Fugue/YjsMod integration algorithm that reconstructs a document
// snapshot from an OpLog by walking its causal graph (§4.5).
//
// Grounded on the teacher's egwalker.go (EditContext/Walker), whose flat
// []Item slice and single-LV-frontier retreat/merge this package
// replaces with an OST-backed context and a real frontier-to-frontier
// traversal, per §4.4/§4.5 and §9's note that a flat slice makes every
// op O(n). The concurrency resolution itself (integrate's originLeft/
// rightParent scan) has no teacher counterpart at all -- the teacher's
// applyOp does plain positional insertion with no tie-break -- so it is
// built fresh from §4.5's algorithm description, in this module's error-
// handling idiom (egerr, wrapped with github.com/pkg/errors).
package egwalker

import (
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/ost"
)

// Context holds the transient state of one replay walk: an OST of Items
// in document order, the delete-target map, and the frontier the OST
// currently reflects. Scoped to one checkout or mergeChangesIntoBranch
// call and discarded when it returns (§5).
type Context struct {
	Tree       *ost.Tree
	DelTargets map[causalgraph.LV]causalgraph.LV
	CurVersion []causalgraph.LV
	hint       *ost.Hint
}

// NewContext returns a fresh, empty edit context.
func NewContext() *Context {
	return &Context{
		Tree:       ost.New(),
		DelTargets: make(map[causalgraph.LV]causalgraph.LV),
		CurVersion: []causalgraph.LV{},
	}
}

func (c *Context) invalidateHint() { c.hint = nil }
