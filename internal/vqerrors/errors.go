// Package vqerrors defines the typed error kinds shared across the
// analysis pipeline, per the error handling design in the spec: every
// component surfaces one of these instead of an ad-hoc string.
package vqerrors

import "errors"

// Kind identifies one of the error categories a component can raise.
type Kind string

const (
	KindConfigInvalid        Kind = "config_invalid"
	KindConfigDuplicateType  Kind = "config_duplicate_type"
	KindTimeout              Kind = "timeout"
	KindProviderTransient    Kind = "provider_transient"
	KindProviderPermanent    Kind = "provider_permanent"
	KindQueueUnavailable     Kind = "queue_unavailable"
	KindNotFound             Kind = "not_found"
	KindAuthError            Kind = "auth_error"
	KindClientError          Kind = "client_error"
	KindServerError          Kind = "server_error"
	KindStateConflict        Kind = "state_conflict"
	KindCancelled            Kind = "cancelled"
)

// Error wraps an underlying cause with a Kind so callers can classify it
// with errors.As without parsing message text.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, vqerrors.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Retryable reports whether an error of this kind is worth retrying at a
// calling boundary (the external job client's retry policy per spec §7).
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindServerError, KindQueueUnavailable, KindProviderTransient:
		return true
	default:
		return false
	}
}

// IsKind reports whether the first *Error in err's chain (found with
// errors.As) has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
