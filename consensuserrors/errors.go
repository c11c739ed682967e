// Package consensuserrors defines the typed error kinds of spec.md §7 and
// their propagation rules. Every error the core surfaces across component
// boundaries is one of these kinds so callers can dispatch on Kind without
// string matching, mirroring the teacher's core.AppError pattern
// generalized from a bare numeric code to a closed set of named kinds.
package consensuserrors

import (
	"errors"
	"fmt"
)

// Kind names one of the error categories of spec.md §7.
type Kind string

const (
	// KindValidation: block rejected pre-insert (signature, structure,
	// epoch, equivocation). Local to the validate caller; never mutates
	// state; logged at debug level to avoid flooding.
	KindValidation Kind = "validation"

	// KindMissingParent: block is well-formed but needs sync. Deferred
	// to the synchronizer, not a hard error.
	KindMissingParent Kind = "missing_parent"

	// KindStore: I/O or corruption failure in the consensus store.
	// Fatal — the caller must halt the engine; no in-engine retry.
	KindStore Kind = "store"

	// KindNetwork: transient per-peer failure. Triggers peer scoring
	// demotion and retry on an alternate peer, bounded by an attempt
	// counter.
	KindNetwork Kind = "network"

	// KindProtocol: an invariant violation indicating a bug or
	// malicious peer. The offending peer, if identified, is named in the
	// error; the core itself keeps no ban list. The engine continues.
	KindProtocol Kind = "protocol"

	// KindShuttingDown: cooperative cancellation. Callers return
	// promptly.
	KindShuttingDown Kind = "shutting_down"
)

// Fatal reports whether an error of this kind must halt the engine
// (spec.md §7: "StoreError ... Fatal").
func (k Kind) Fatal() bool { return k == KindStore }

// Error is a typed consensus error carrying its Kind, an optional peer
// identity (for Network/Protocol errors), and a wrapped cause.
type Error struct {
	Kind Kind
	Peer string // empty if not peer-attributable
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s: %s (peer=%s): %v", e.Kind, e.Msg, e.Peer, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is comparisons against a bare Kind-tagged sentinel,
// e.g. errors.Is(err, &Error{Kind: KindStore}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func WithPeer(kind Kind, peer string, msg string, err error) *Error {
	return &Error{Kind: kind, Peer: peer, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsFatal reports whether err demands an engine halt.
func IsFatal(err error) bool {
	k, ok := KindOf(err)
	return ok && k.Fatal()
}
