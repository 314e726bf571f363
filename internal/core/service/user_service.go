package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
)

// UserService is the administrative path over accounts: the only place a
// role other than viewer is assigned.
type UserService struct {
	users ports.UserRepository
	cost  int
	now   func() time.Time
	log   zerolog.Logger
}

var _ ports.UserAdmin = (*UserService)(nil)

func NewUserService(users ports.UserRepository, log zerolog.Logger, opts ...Option) *UserService {
	st := newSettings(opts)
	return &UserService{users: users, cost: st.bcryptCost, now: st.now, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, in ports.UserInput) (*domain.User, error) {
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
		Role:      in.Role,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConstraintViolation) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int64("user_id", created.ID).Str("role", string(created.Role)).Msg("user created")
	return created.Public(), nil
}

// UpdateUser changes name, email and role. Password and stats are kept.
func (s *UserService) UpdateUser(ctx context.Context, id int64, in ports.UserUpdateInput) (*domain.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	updated, err := s.users.Update(ctx, id, func(u *domain.User) error {
		u.Name = in.Name
		u.Email = in.Email
		u.Role = in.Role
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConstraintViolation) {
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("update user: %w", notFoundAs(err, domain.ErrUserNotFound))
	}

	s.log.Info().Int64("user_id", id).Str("role", string(updated.Role)).Msg("user updated")
	return updated.Public(), nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", notFoundAs(err, domain.ErrUserNotFound))
	}
	return u.Public(), nil
}

// ListUsers returns every user, or the holders of role when it is set,
// without password hashes.
func (s *UserService) ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	var (
		all []*domain.User
		err error
	)
	switch {
	case role == "":
		all, err = s.users.List(ctx)
	case role.Valid():
		all, err = s.users.ListByRole(ctx, role)
	default:
		return nil, invalid("role must be one of: admin viewer user")
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*domain.User, len(all))
	for i, u := range all {
		out[i] = u.Public()
	}
	return out, nil
}
