// Package duelerr defines the error kinds shared by the lobby, duel and orchestrator packages.
//
// Every failure surfaced to a player belongs to one of four kinds. Callers classify with errors.Is:
//
//	if errors.Is(err, duelerr.NotFound) { ... }
package duelerr

import (
	"errors"
	"fmt"
	"strings"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

// Kind sentinels.
var (
	NotFound            error = staticErr("not found")
	InvalidParticipant  error = staticErr("invalid participant")
	IllegalState        error = staticErr("illegal state")
	CollaboratorFailure error = staticErr("collaborator failure")
)

// Error carries a kind plus the operation that produced it.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newErr(kind error, op, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func NotFoundf(op, format string, args ...any) error {
	return newErr(NotFound, op, format, args...)
}

func InvalidParticipantf(op, format string, args ...any) error {
	return newErr(InvalidParticipant, op, format, args...)
}

func IllegalStatef(op, format string, args ...any) error {
	return newErr(IllegalState, op, format, args...)
}

// Collaborator wraps a failure from an external dependency (rating store, catalog, evaluator).
func Collaborator(op string, err error) error {
	return &Error{Kind: CollaboratorFailure, Op: op, Err: err}
}

// KindOf returns the kind sentinel for err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, k := range []error{NotFound, InvalidParticipant, IllegalState, CollaboratorFailure} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
