package api

import (
	"context"
	"fmt"

	"github.com/servicedesk/requests/internal/core/domain"
)

// Principal is the authenticated caller of a Desk operation. Role comes from
// the stored user, never from the caller's snapshot.
type Principal struct {
	UserID int64
	Role   domain.Role
	Token  string
}

var (
	adminOnly  = []domain.Role{domain.RoleAdmin}
	requesters = domain.RequesterRoles
)

// authorize resolves token to a live session and its user, then enforces
// role-based access control.
func (d *Desk) authorize(ctx context.Context, token string, allowedRoles []domain.Role) (*Principal, error) {
	sess, err := d.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := d.users.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	for _, r := range allowedRoles {
		if user.Role == r {
			return &Principal{UserID: user.ID, Role: user.Role, Token: token}, nil
		}
	}
	d.log.Warn().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("forbidden")
	return nil, domain.ErrForbidden
}
