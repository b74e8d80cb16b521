// Package orgerr implements the error taxonomy from spec.md §7: a small set
// of typed kinds that the engine dispatches on to decide whether a failure
// is fatal, retryable, or terminal for the surrounding component.
package orgerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the error classes named in spec.md §7.
type Kind string

const (
	ConfigInvalid        Kind = "config_invalid"
	SourceTransient      Kind = "source_transient"
	SourceFatal          Kind = "source_fatal"
	TransformError       Kind = "transform_error"
	DeliveryRejected     Kind = "delivery_rejected"
	DeliveryError        Kind = "delivery_error"
	BusCorruption        Kind = "bus_corruption"
	CheckpointWriteError Kind = "checkpoint_write_error"
)

// Fatal reports whether an error of this kind should halt engine startup or
// the whole process, per the propagation rules in spec.md §7: only
// BusCorruption and ConfigInvalid are fatal.
func (k Kind) Fatal() bool {
	return k == BusCorruption || k == ConfigInvalid
}

// Error is a typed, wrapped error carrying a Kind for dispatch and an
// optional component/identifier for log context.
type Error struct {
	kind      Kind
	component string
	id        string
	cause     error
}

func New(kind Kind, component, id string, cause error) *Error {
	return &Error{kind: kind, component: component, id: id, cause: cause}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.id != "" {
		return fmt.Sprintf("%s[%s:%s]: %v", e.kind, e.component, e.id, e.cause)
	}
	return fmt.Sprintf("%s[%s]: %v", e.kind, e.component, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap annotates cause with a stack trace (via github.com/pkg/errors) and a
// Kind, the style the teacher's broker core uses to keep error context alive
// across goroutine boundaries.
func Wrap(kind Kind, component, id string, cause error) *Error {
	return New(kind, component, id, errors.WithStack(cause))
}

// As extracts the Kind of err, defaulting to "" (unknown) if err is not one
// of ours.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}
