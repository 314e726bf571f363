package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/pkg/metrics"
)

// maxTokenAttempts bounds how often Issue regenerates a colliding token.
const maxTokenAttempts = 5

// SessionService is the session manager: it verifies credentials, issues
// tokens and validates them on demand. Expired sessions are deleted lazily
// when they are next validated, or in bulk by PurgeExpired.
type SessionService struct {
	sessions ports.SessionRepository
	users    ports.UserRepository
	ttl      time.Duration
	now      func() time.Time
	newToken func() string
	log      zerolog.Logger
}

var _ ports.SessionManager = (*SessionService)(nil)

func NewSessionService(sessions ports.SessionRepository, users ports.UserRepository, ttl time.Duration, log zerolog.Logger, opts ...Option) *SessionService {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	st := newSettings(opts)
	return &SessionService{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		now:      st.now,
		newToken: st.newToken,
		log:      log,
	}
}

// Issue creates a session for an existing user. A token that collides with
// a stored one is regenerated.
func (s *SessionService) Issue(ctx context.Context, userID int64) (*domain.Session, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, fmt.Errorf("issue session: %w", notFoundAs(err, domain.ErrUserNotFound))
	}

	now := s.now()
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		sess, err := s.sessions.Create(ctx, &domain.Session{
			UserID:    userID,
			Token:     s.newToken(),
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		})
		if err == nil {
			metrics.SessionsTotal.WithLabelValues("issued").Inc()
			s.log.Info().Int64("user_id", userID).Int64("session_id", sess.ID).Msg("session issued")
			return sess, nil
		}
		if !errors.Is(err, domain.ErrConstraintViolation) {
			return nil, fmt.Errorf("issue session: %w", err)
		}
		s.log.Warn().Int64("user_id", userID).Int("attempt", attempt+1).Msg("session token collision, regenerating")
	}
	return nil, fmt.Errorf("issue session: no unique token after %d attempts: %w", maxTokenAttempts, domain.ErrConstraintViolation)
}

// Validate reports whether token is a live session of userID. Storage
// failures are the only errors; an unknown, foreign or expired token is
// simply invalid.
func (s *SessionService) Validate(ctx context.Context, userID int64, token string) (bool, error) {
	sess, err := s.Authenticate(ctx, token)
	switch {
	case err == nil:
		return sess.UserID == userID, nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrExpiredSession):
		return false, nil
	default:
		return false, err
	}
}

// Authenticate resolves token to its session. It returns
// domain.ErrSessionNotFound for an unknown token and domain.ErrExpiredSession
// once the session has expired, deleting the expired record first.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrSessionNotFound
	}
	sess, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", notFoundAs(err, domain.ErrSessionNotFound))
	}
	if !sess.Expired(s.now()) {
		return sess, nil
	}

	if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn().Err(err).Int64("session_id", sess.ID).Msg("failed to delete expired session")
	} else {
		metrics.SessionsTotal.WithLabelValues("expired").Inc()
		s.log.Debug().Int64("session_id", sess.ID).Int64("user_id", sess.UserID).Msg("expired session removed")
	}
	return nil, domain.ErrExpiredSession
}

// VerifyCredentials returns the user owning email when password matches its
// stored hash. The returned user never carries the hash. Unknown emails and
// wrong passwords both yield domain.ErrInvalidCredentials.
func (s *SessionService) VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		metrics.LoginFailuresTotal.Inc()
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.LoginFailuresTotal.Inc()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		metrics.LoginFailuresTotal.Inc()
		s.log.Debug().Int64("user_id", user.ID).Msg("password mismatch")
		return nil, domain.ErrInvalidCredentials
	}
	return user.Public(), nil
}

// Revoke deletes the session holding token. Revoking an unknown token is not
// an error, so logout is idempotent.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	metrics.SessionsTotal.WithLabelValues("revoked").Inc()
	s.log.Info().Int64("user_id", sess.UserID).Int64("session_id", sess.ID).Msg("session revoked")
	return nil
}

// PurgeExpired deletes every expired session and returns how many went.
func (s *SessionService) PurgeExpired(ctx context.Context) (int, error) {
	all, err := s.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}

	now := s.now()
	purged := 0
	for _, sess := range all {
		if !sess.Expired(now) {
			continue
		}
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return purged, fmt.Errorf("purge sessions: %w", err)
		}
		purged++
	}

	metrics.SessionsTotal.WithLabelValues("purged").Add(float64(purged))
	s.log.Info().Int("purged", purged).Int("scanned", len(all)).Msg("expired sessions purged")
	return purged, nil
}

// RevokeUser deletes every session of userID and returns how many it
// removed.
func (s *SessionService) RevokeUser(ctx context.Context, userID int64) (int, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	revoked := 0
	for _, sess := range sessions {
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return revoked, fmt.Errorf("revoke sessions: %w", err)
		}
		revoked++
	}

	metrics.SessionsTotal.WithLabelValues("revoked").Add(float64(revoked))
	s.log.Info().Int64("user_id", userID).Int("revoked", revoked).Msg("user sessions revoked")
	return revoked, nil
}

// notFoundAs replaces a generic not-found failure with the entity flavoured
// sentinel and passes every other error through.
func notFoundAs(err, sentinel error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return sentinel
	}
	return err
}
