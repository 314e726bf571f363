package domain

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by the store engine and the services.
var (
	ErrNotFound            = errors.New("not found")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrExpiredSession      = errors.New("session expired")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("access forbidden")
	ErrTimeout            = errors.New("operation timed out")
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrServiceNotFound = fmt.Errorf("service %w", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("request %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

	ErrEmailTaken = fmt.Errorf("email already registered: %w", ErrConstraintViolation)
)
