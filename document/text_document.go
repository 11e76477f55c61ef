package document

import (
	"github.com/waka/crdt-eg-walker/branch"
	"github.com/waka/crdt-eg-walker/causalgraph"
	"github.com/waka/crdt-eg-walker/egerr"
	"github.com/waka/crdt-eg-walker/oplog"
)

// TextDocument is the string-specialized Document (§4.7): it keeps its
// snapshot as a plain string rather than a []rune, so GetTextDocText is
// an O(1) assignment instead of a materialization pass. Local edits and
// fast-forward merges do string-slice-and-concat directly; anything that
// needs the Fugue replay engine falls back to the same rune-level
// checkout TextDocument's Document sibling uses.
type TextDocument struct {
	Log     *oplog.OpLog[rune]
	Text    string
	Version []causalgraph.LV
}

// CreateTextDocument returns a fresh empty TextDocument (§6
// "createTextDocument").
func CreateTextDocument() *TextDocument {
	return &TextDocument{Log: oplog.New[rune](), Text: "", Version: []causalgraph.LV{}}
}

// OpenTextDocument builds a TextDocument from an existing OpLog via a
// full replay (§6 "openTextDocument").
func OpenTextDocument(log *oplog.OpLog[rune]) (*TextDocument, error) {
	text, ver, err := branch.CheckoutSimpleString(log)
	if err != nil {
		return nil, err
	}
	return &TextDocument{Log: log, Text: text, Version: ver}, nil
}

// RestoreTextDocument rebuilds a TextDocument from a persisted snapshot
// and version with no replay (§6 "restoreTextDocument").
func RestoreTextDocument(log *oplog.OpLog[rune], text string, version []causalgraph.LV) *TextDocument {
	return &TextDocument{Log: log, Text: text, Version: append([]causalgraph.LV(nil), version...)}
}

// GetTextDocText returns the document's current text (§6
// "getTextDocText").
func (d *TextDocument) GetTextDocText() string {
	return d.Text
}

// TextDocInsert performs a local insert of s at the rune position pos
// (§4.7 "textDocInsert").
func (d *TextDocument) TextDocInsert(agent causalgraph.AgentID, pos int, s string) error {
	content := []rune(s)
	if _, err := d.Log.LocalInsert(agent, pos, content...); err != nil {
		return err
	}
	r := []rune(d.Text)
	r = spliceInsert(r, pos, content...)
	d.Text = string(r)
	d.Version = d.Log.Heads()
	return nil
}

// TextDocDelete performs a local delete of n runes starting at the rune
// position pos (n defaults to 1 at the call site per §4.7
// "textDocDelete").
func (d *TextDocument) TextDocDelete(agent causalgraph.AgentID, pos, n int) error {
	if _, err := d.Log.LocalDelete(agent, pos, n); err != nil {
		return err
	}
	r := []rune(d.Text)
	r = spliceDelete(r, pos, n)
	d.Text = string(r)
	d.Version = d.Log.Heads()
	return nil
}

// MergeTextRemote is TextDocument's MergeRemote (§4.7 "mergeTextRemote"):
// fast-forward path splices runes directly into Text; otherwise it falls
// back to a full checkoutSimpleString over the combined log.
func (d *TextDocument) MergeTextRemote(remote *oplog.OpLog[rune]) error {
	before := append([]causalgraph.LV(nil), d.Version...)
	if err := d.Log.MergeFrom(remote); err != nil {
		return err
	}
	heads := d.Log.Heads()

	ff, err := CanFastForward(&d.Log.CG, before, heads)
	if err != nil {
		return err
	}
	if ff {
		_, bOnly, err := causalgraph.DiffFrontiers(&d.Log.CG, before, heads)
		if err != nil {
			return err
		}
		r := []rune(d.Text)
		for _, rg := range bOnly {
			for lv := rg.Start; lv < rg.End; lv++ {
				if int(lv) < 0 || int(lv) >= len(d.Log.Ops) {
					return egerr.WithLV(egerr.InvalidVersion, int(lv), "MergeTextRemote: fast-forward op not found")
				}
				op := d.Log.Ops[lv]
				switch op.Type {
				case oplog.OpInsert:
					r = spliceInsert(r, op.Pos, op.Content)
				case oplog.OpDelete:
					r = spliceDelete(r, op.Pos, 1)
				}
			}
		}
		d.Text = string(r)
		d.Version = heads
		return nil
	}

	text, ver, err := branch.CheckoutSimpleString(d.Log)
	if err != nil {
		return err
	}
	d.Text = text
	d.Version = ver
	return nil
}
