// Package apperr carries the typed failure taxonomy shared by every phivault
// component. Errors keep the operation and the ids involved so callers can
// trace a failure without the message ever containing plaintext or key material.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hengadev/errsx"
)

// Error is a taxonomy-tagged failure.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	IDs    map[string]string
	Err    error
}

// Sentinels for errors.Is matching on Kind alone.
var (
	ErrInvalidInput          = &Error{Kind: KindInvalidInput}
	ErrAccessDenied          = &Error{Kind: KindAccessDenied}
	ErrIntegrityViolation    = &Error{Kind: KindIntegrityViolation}
	ErrDuplicateEntity       = &Error{Kind: KindDuplicateEntity}
	ErrExpired               = &Error{Kind: KindExpired}
	ErrInsufficientApprovals = &Error{Kind: KindInsufficientApprovals}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrAlreadyExecuted       = &Error{Kind: KindAlreadyExecuted}
	ErrRoleMismatch          = &Error{Kind: KindRoleMismatch}
)

// New returns an error of the given kind raised by op.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap tags err with kind. The wrapped error stays reachable through errors.Unwrap.
func Wrap(kind Kind, op string, err error) *Error {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return &Error{Kind: kind, Op: op, Reason: reason, Err: err}
}

// With records an id involved in the failure and returns e for chaining.
func (e *Error) With(name, id string) *Error {
	if e.IDs == nil {
		e.IDs = map[string]string{}
	}
	e.IDs[name] = id
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.IDs) > 0 {
		names := make([]string, 0, len(e.IDs))
		for name := range e.IDs {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString(" (")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", name, e.IDs[name])
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the taxonomy tag from err. ok is false for untagged errors.
func KindOf(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Invalid converts a collected set of field problems into an InvalidInput
// error, or returns nil when nothing was collected.
func Invalid(op string, errs errsx.Map) error {
	if errs.IsEmpty() {
		return nil
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Error{
		Kind:   KindInvalidInput,
		Op:     op,
		Reason: "invalid " + strings.Join(keys, ", "),
		Err:    errs.AsError(),
	}
}
