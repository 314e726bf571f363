package domain

import "time"

// DefaultSessionTTL is the lifetime of a freshly issued session.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Session binds an opaque token to a user until ExpiresAt.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) GetID() int64   { return s.ID }
func (s *Session) SetID(id int64) { s.ID = id }

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
