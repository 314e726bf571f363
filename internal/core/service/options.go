package service

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Option tunes a service at construction time.
type Option func(*settings)

type settings struct {
	now        func() time.Time
	newToken   func() string
	bcryptCost int
}

func newSettings(opts []Option) settings {
	s := settings{
		now:        func() time.Time { return time.Now().UTC() },
		newToken:   uuid.NewString,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithClock replaces the wall clock. Used by tests to move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenSource replaces the session token generator.
func WithTokenSource(gen func() string) Option {
	return func(s *settings) {
		if gen != nil {
			s.newToken = gen
		}
	}
}

// WithBcryptCost sets the cost used when hashing passwords. Values outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *settings) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}
