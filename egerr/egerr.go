// Package egerr defines the fatal error kinds shared across the causal
// graph, op log and replay engine.
//
// Every kind here is non-recoverable at the CRDT boundary (§7 of the
// spec this module implements): a caller that sees one of these must
// discard whatever transient state it was building and retry from a
// known-good Document. Each error carries the offending LV/RawVersion
// for diagnostics, wrapped with github.com/pkg/errors so a caller that
// logs it gets a stack trace pinned to the call that detected the
// corruption.
package egerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of the spec's fatal error categories occurred.
type Kind string

const (
	// InvalidVersion: a RawVersion or LV is not present in the causal graph.
	InvalidVersion Kind = "invalid_version"
	// InvalidLength: localDelete was called with len == 0.
	InvalidLength Kind = "invalid_length"
	// MissingContent: pushOp of type ins without content.
	MissingContent Kind = "missing_content"
	// InvariantBroken: a state precondition failed in retreat/advance/apply/integrate,
	// or the CG and OpLog lengths diverged.
	InvariantBroken Kind = "invariant_broken"
	// DuplicateAgentSeq: assignLocal given a seq below nextSeqForAgent.
	DuplicateAgentSeq Kind = "duplicate_agent_seq"
)

// Error is the concrete error type raised for every fatal condition in
// this module. LV and Agent/Seq are populated when the triggering value
// is known; otherwise LV is -1 and Agent is empty.
type Error struct {
	Kind Kind
	// LV is the offending local version, or -1 if not applicable.
	LV int
	// Agent/Seq are the offending RawVersion, or the zero value if not applicable.
	Agent string
	Seq   int
	msg   string
}

func (e *Error) Error() string {
	switch {
	case e.LV >= 0 && e.Agent != "":
		return fmt.Sprintf("%s: %s (lv=%d, raw=%s:%d)", e.Kind, e.msg, e.LV, e.Agent, e.Seq)
	case e.LV >= 0:
		return fmt.Sprintf("%s: %s (lv=%d)", e.Kind, e.msg, e.LV)
	case e.Agent != "":
		return fmt.Sprintf("%s: %s (raw=%s:%d)", e.Kind, e.msg, e.Agent, e.Seq)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.msg)
	}
}

// New builds a Kind error with no associated version, wrapped with a stack trace.
func New(kind Kind, msg string) error {
	return errors.WithStack(&Error{Kind: kind, LV: -1, msg: msg})
}

// Newf is New with Printf-style formatting.
func Newf(kind Kind, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, LV: -1, msg: fmt.Sprintf(format, args...)})
}

// WithLV builds a Kind error tagged with the offending local version.
func WithLV(kind Kind, lv int, msg string) error {
	return errors.WithStack(&Error{Kind: kind, LV: lv, msg: msg})
}

// WithLVf is WithLV with Printf-style formatting.
func WithLVf(kind Kind, lv int, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, LV: lv, msg: fmt.Sprintf(format, args...)})
}

// WithRaw builds a Kind error tagged with the offending RawVersion.
func WithRaw(kind Kind, agent string, seq int, msg string) error {
	return errors.WithStack(&Error{Kind: kind, LV: -1, Agent: agent, Seq: seq, msg: msg})
}

// WithRawf is WithRaw with Printf-style formatting.
func WithRawf(kind Kind, agent string, seq int, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, LV: -1, Agent: agent, Seq: seq, msg: fmt.Sprintf(format, args...)})
}

// Is reports whether err (or something it wraps) is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
