package api

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
)

// Category groups every user-visible failure into one of three kinds.
type Category string

const (
	CategoryCredentials Category = "credentials"
	CategoryValidation  Category = "validation"
	CategoryServer      Category = "server"
)

// Message is what a UI shows for a failed operation.
type Message struct {
	Category Category
	Text     string
}

// Describe maps err onto exactly one category with a fixed, human-readable
// text. Validation details written by the services are kept; internal error
// strings never are. Unexpected errors are logged with their real cause.
func Describe(log zerolog.Logger, err error) Message {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return Message{CategoryCredentials, "invalid email or password"}
	case errors.Is(err, domain.ErrExpiredSession), errors.Is(err, domain.ErrSessionNotFound):
		return Message{CategoryCredentials, "your session has expired, please log in again"}
	case errors.Is(err, domain.ErrForbidden):
		return Message{CategoryCredentials, "access forbidden"}

	case errors.Is(err, domain.ErrEmailTaken):
		return Message{CategoryValidation, "this email is already registered"}
	case errors.Is(err, domain.ErrConstraintViolation):
		return Message{CategoryValidation, "a record with the same value already exists"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return Message{CategoryValidation, "the request cannot move to that status"}
	case errors.Is(err, domain.ErrValidation):
		return Message{CategoryValidation, validationText(err)}
	case errors.Is(err, domain.ErrUserNotFound):
		return Message{CategoryValidation, "user not found"}
	case errors.Is(err, domain.ErrServiceNotFound):
		return Message{CategoryValidation, "service not found"}
	case errors.Is(err, domain.ErrRequestNotFound):
		return Message{CategoryValidation, "request not found"}
	case errors.Is(err, domain.ErrNotFound):
		return Message{CategoryValidation, "not found"}

	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Message{CategoryServer, "the data took too long to load, please try again"}
	case errors.Is(err, domain.ErrStorageUnavailable):
		return Message{CategoryServer, "storage is unavailable"}
	}

	log.Error().Err(err).Msg("unhandled error")
	return Message{CategoryServer, "internal error"}
}

// validationText keeps the field messages after the sentinel's text.
func validationText(err error) string {
	msg := err.Error()
	marker := domain.ErrValidation.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return "invalid input"
}
