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
)

// AuthService implements registration, login and logout.
type AuthService struct {
	users    ports.UserRepository
	sessions *SessionService
	cost     int
	now      func() time.Time
	log      zerolog.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(users ports.UserRepository, sessions *SessionService, log zerolog.Logger, opts ...Option) *AuthService {
	st := newSettings(opts)
	return &AuthService{users: users, sessions: sessions, cost: st.bcryptCost, now: st.now, log: log}
}

// Register creates a viewer account. The role is never taken from the
// caller; other roles are granted only through UserService.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := hashPassword(in.Password, s.cost)
	if err != nil {
		return nil, err
	}

	created, err := s.users.Create(ctx, &domain.User{
		Name:      in.Name,
		Email:     in.Email,
		Password:  hash,
		Role:      domain.RoleViewer,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConstraintViolation) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Int64("user_id", created.ID).Msg("user registered")
	return created.Public(), nil
}

// Login verifies the credentials and issues a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	user, err := s.sessions.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &ports.LoginResult{User: user, Session: sess}, nil
}

// Logout deletes the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// UpdateProfile changes the name and email of the user's own account. Role,
// password and stats are kept.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, in ports.ProfileInput) (*domain.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	updated, err := s.users.Update(ctx, userID, func(u *domain.User) error {
		u.Name = in.Name
		u.Email = in.Email
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConstraintViolation) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("update profile: %w", notFoundAs(err, domain.ErrUserNotFound))
	}

	s.log.Info().Int64("user_id", userID).Msg("profile updated")
	return updated.Public(), nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", invalid("password is too long")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
