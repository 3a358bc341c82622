package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures so the transport layer can map them to
// status codes without string matching.
type Kind string

const (
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindNotFound          Kind = "NOT_FOUND"
	KindWrongEvent        Kind = "WRONG_EVENT"
	KindUnavailable       Kind = "UNAVAILABLE"
	KindForbidden         Kind = "FORBIDDEN"
	KindRetryableConflict Kind = "RETRYABLE_CONFLICT"
	KindStateMismatch     Kind = "STATE_MISMATCH"
	KindInfraUnavailable  Kind = "INFRA_UNAVAILABLE"
)

// Error is the typed failure returned by every engine operation.  Labels
// carries the seat labels that caused an UNAVAILABLE failure so callers can
// surface which seats lost the race.
type Error struct {
	Kind    Kind
	Message string
	Labels  []string
}

func (e *Error) Error() string { return e.Message }

// Errf builds an Error with a formatted message.
func Errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Unavailable builds the UNAVAILABLE error for the given seat labels.
func Unavailable(labels []string) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Message: "Seats not available: " + strings.Join(labels, ", "),
		Labels:  labels,
	}
}

// KindOf extracts the Kind from err, or empty when err is not an engine
// error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// LabelsOf returns the offending seat labels attached to err, if any.
func LabelsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Labels
	}
	return nil
}
