package store

import (
	"context"
	"strconv"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
)

// Indexed field names.
const (
	FieldEmail     = "email"
	FieldRole      = "role"
	FieldCategory  = "category"
	FieldUserID    = "userId"
	FieldServiceID = "serviceId"
	FieldStatus    = "status"
	FieldToken     = "token"
)

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

var (
	UserSchema = Schema[domain.User]{
		Name: Users,
		Indexes: []Index[domain.User]{
			{Field: FieldEmail, Unique: true, Key: func(u *domain.User) string { return u.Email }},
			{Field: FieldRole, Key: func(u *domain.User) string { return string(u.Role) }},
		},
	}
	ServiceSchema = Schema[domain.Service]{
		Name: Services,
		Indexes: []Index[domain.Service]{
			{Field: FieldCategory, Key: func(s *domain.Service) string { return s.Category }},
		},
	}
	RequestSchema = Schema[domain.Request]{
		Name: Requests,
		Indexes: []Index[domain.Request]{
			{Field: FieldUserID, Key: func(r *domain.Request) string { return idKey(r.UserID) }},
			{Field: FieldServiceID, Key: func(r *domain.Request) string { return idKey(r.ServiceID) }},
			{Field: FieldStatus, Key: func(r *domain.Request) string { return string(r.Status) }},
		},
	}
	SessionSchema = Schema[domain.Session]{
		Name: Sessions,
		Indexes: []Index[domain.Session]{
			{Field: FieldToken, Unique: true, Key: func(s *domain.Session) string { return s.Token }},
			{Field: FieldUserID, Key: func(s *domain.Session) string { return idKey(s.UserID) }},
		},
	}
)

// UserRepository implements ports.UserRepository.
type UserRepository struct {
	*Collection[domain.User, *domain.User]
}

func (r UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.GetBy(ctx, FieldEmail, email)
}

func (r UserRepository) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return r.ListWhere(ctx, FieldRole, string(role))
}

// ServiceRepository implements ports.ServiceRepository.
type ServiceRepository struct {
	*Collection[domain.Service, *domain.Service]
}

func (r ServiceRepository) ListByCategory(ctx context.Context, category string) ([]*domain.Service, error) {
	return r.ListWhere(ctx, FieldCategory, category)
}

// RequestRepository implements ports.RequestRepository.
type RequestRepository struct {
	*Collection[domain.Request, *domain.Request]
}

func (r RequestRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Request, error) {
	return r.ListWhere(ctx, FieldUserID, idKey(userID))
}

func (r RequestRepository) ListByService(ctx context.Context, serviceID int64) ([]*domain.Request, error) {
	return r.ListWhere(ctx, FieldServiceID, idKey(serviceID))
}

func (r RequestRepository) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.Request, error) {
	return r.ListWhere(ctx, FieldStatus, string(status))
}

// SessionRepository implements ports.SessionRepository.
type SessionRepository struct {
	*Collection[domain.Session, *domain.Session]
}

func (r SessionRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	return r.GetBy(ctx, FieldToken, token)
}

func (r SessionRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	return r.ListWhere(ctx, FieldUserID, idKey(userID))
}

// Repositories bundles the four collections of the application database.
type Repositories struct {
	Engine   *Engine
	Users    UserRepository
	Services ServiceRepository
	Requests RequestRepository
	Sessions SessionRepository
}

// OpenAll opens the users, services, requests and sessions collections.
func OpenAll(ctx context.Context, e *Engine) (*Repositories, error) {
	users, err := Open[domain.User](ctx, e, UserSchema)
	if err != nil {
		return nil, err
	}
	services, err := Open[domain.Service](ctx, e, ServiceSchema)
	if err != nil {
		return nil, err
	}
	requests, err := Open[domain.Request](ctx, e, RequestSchema)
	if err != nil {
		return nil, err
	}
	sessions, err := Open[domain.Session](ctx, e, SessionSchema)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Engine:   e,
		Users:    UserRepository{users},
		Services: ServiceRepository{services},
		Requests: RequestRepository{requests},
		Sessions: SessionRepository{sessions},
	}, nil
}

// ReplaceDataset makes ds the whole content of the users, services and
// requests collections and drops every session, in one batch.
func (r *Repositories) ReplaceDataset(ctx context.Context, ds ports.Dataset) error {
	var b Batch
	r.Users.StageReplace(&b, ds.Users)
	r.Services.StageReplace(&b, ds.Services)
	r.Requests.StageReplace(&b, ds.Requests)
	r.Sessions.StageReplace(&b, nil)
	return r.Engine.Apply(ctx, &b)
}

// MergeDataset upserts ds by id and drops the sessions of revokeUsers, in one
// batch.
func (r *Repositories) MergeDataset(ctx context.Context, ds ports.Dataset, revokeUsers []int64) error {
	var b Batch
	r.Users.StageUpsert(&b, ds.Users)
	r.Services.StageUpsert(&b, ds.Services)
	r.Requests.StageUpsert(&b, ds.Requests)
	if len(revokeUsers) > 0 {
		keys := make([]string, 0, len(revokeUsers))
		for _, id := range revokeUsers {
			keys = append(keys, idKey(id))
		}
		r.Sessions.StageDeleteWhere(&b, FieldUserID, keys...)
	}
	return r.Engine.Apply(ctx, &b)
}

var _ ports.DatasetStore = (*Repositories)(nil)
