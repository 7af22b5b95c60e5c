// Package coreerr defines the error taxonomy shared by every orchestration
// core component: a small set of sentinel errors plus a *CoreError wrapper
// that carries a Kind so callers can branch on failure category without
// string matching.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind categorises a core failure. See spec §7 for the full propagation
// policy of each kind.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidInput     Kind = "invalid_input"
	KindTimeout          Kind = "timeout"
	KindUnauthorized     Kind = "unauthorized"
	KindInvalidNonce     Kind = "invalid_nonce"
	KindExpired          Kind = "expired"
	KindInternal         Kind = "internal"
)

// Sentinel errors for the conditions callers most often test with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTimeout          = errors.New("timeout")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrExpired          = errors.New("expired")
	ErrInternal         = errors.New("internal error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindInvalidInput:
		return ErrInvalidInput
	case KindTimeout:
		return ErrTimeout
	case KindUnauthorized:
		return ErrUnauthorized
	case KindInvalidNonce:
		return ErrInvalidNonce
	case KindExpired:
		return ErrExpired
	default:
		return ErrInternal
	}
}

// CoreError is the structured error type every component returns for
// taxonomy-classified failures.
type CoreError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelFor(e.Kind)
}

// New builds a CoreError of the given kind with a message.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap builds a CoreError of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// NotFound is a convenience constructor for the most common kind.
func NotFound(name string) *CoreError {
	return &CoreError{Kind: KindNotFound, Message: name + " not found"}
}

// PermissionDenied is a convenience constructor for policy/gating failures.
func PermissionDenied(reason string) *CoreError {
	return &CoreError{Kind: KindPermissionDenied, Message: reason}
}

// InvalidInput is a convenience constructor for schema/argument failures.
func InvalidInput(msg string) *CoreError {
	return &CoreError{Kind: KindInvalidInput, Message: msg}
}

// TimeoutErr is a convenience constructor; named to avoid colliding with the
// Timeout sentinel.
func TimeoutErr(ms int64) *CoreError {
	return &CoreError{Kind: KindTimeout, Message: fmt.Sprintf("timed out after %dms", ms)}
}

// Of reports the Kind of err, defaulting to KindInternal when err does not
// wrap a *CoreError.
func Of(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// Is reports whether err is a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
