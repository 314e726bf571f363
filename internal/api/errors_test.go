package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		cat  Category
		text string
	}{
		{"credentials", domain.ErrInvalidCredentials, CategoryCredentials, "invalid email or password"},
		{"expired", fmt.Errorf("wrap: %w", domain.ErrExpiredSession), CategoryCredentials, "your session has expired, please log in again"},
		{"forbidden", domain.ErrForbidden, CategoryCredentials, "access forbidden"},
		{"email taken", domain.ErrEmailTaken, CategoryValidation, "this email is already registered"},
		{"transition", fmt.Errorf("update: %w: completed -> pending", domain.ErrInvalidTransition), CategoryValidation, "the request cannot move to that status"},
		{"validation detail", fmt.Errorf("%w: name is required", domain.ErrValidation), CategoryValidation, "name is required"},
		{"request not found", fmt.Errorf("get: %w", domain.ErrRequestNotFound), CategoryValidation, "request not found"},
		{"timeout", domain.ErrTimeout, CategoryServer, "the data took too long to load, please try again"},
		{"storage", domain.ErrStorageUnavailable, CategoryServer, "storage is unavailable"},
		{"unexpected", errors.New("boom: secret internals"), CategoryServer, "internal error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Describe(zerolog.Nop(), tc.err)
			if got.Category != tc.cat || got.Text != tc.text {
				t.Fatalf("expected %s/%q, got %s/%q", tc.cat, tc.text, got.Category, got.Text)
			}
		})
	}
}
