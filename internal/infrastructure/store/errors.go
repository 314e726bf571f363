package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/servicedesk/requests/internal/core/domain"
)

// ErrUnknownIndex is returned when a lookup names a field without a declared index.
var ErrUnknownIndex = errors.New("unknown index")

// Error wraps a sentinel with the operation context and the original cause,
// so callers can use errors.Is(err, domain.ErrConstraintViolation) for simple
// checks or inspect Field/Value for the offending key.
type Error struct {
	Op         string
	Collection string
	Sentinel   error
	Cause      error
	Field      string
	Value      string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Sentinel)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s=%q)", e.Field, e.Value)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *Error) Unwrap() error        { return e.Cause }

func notFound(op, collection string) error {
	return &Error{Op: op, Collection: collection, Sentinel: domain.ErrNotFound}
}

func conflict(op, collection, field, value string) error {
	return &Error{Op: op, Collection: collection, Sentinel: domain.ErrConstraintViolation, Field: field, Value: value}
}

func unavailable(op, collection string, cause error) error {
	return &Error{Op: op, Collection: collection, Sentinel: domain.ErrStorageUnavailable, Cause: cause}
}

// ctxErr maps a finished context onto the failure taxonomy: deadlines become
// domain.ErrTimeout, cancellation is passed through.
func ctxErr(ctx context.Context, op, collection string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, Collection: collection, Sentinel: domain.ErrTimeout, Cause: err}
	}
	return &Error{Op: op, Collection: collection, Sentinel: err}
}
