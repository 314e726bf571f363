package ports

import (
	"context"

	"github.com/servicedesk/requests/internal/core/domain"
)

// UserRepository persists users. Email is unique.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Put(ctx context.Context, user *domain.User) (*domain.User, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Update(ctx context.Context, id int64, patch func(*domain.User) error) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// ServiceRepository persists the service catalog.
type ServiceRepository interface {
	Create(ctx context.Context, svc *domain.Service) (*domain.Service, error)
	Put(ctx context.Context, svc *domain.Service) (*domain.Service, error)
	Get(ctx context.Context, id int64) (*domain.Service, error)
	ListByCategory(ctx context.Context, category string) ([]*domain.Service, error)
	List(ctx context.Context) ([]*domain.Service, error)
	Update(ctx context.Context, id int64, patch func(*domain.Service) error) (*domain.Service, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// RequestRepository persists service requests, indexed by owner, service and
// status.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) (*domain.Request, error)
	Put(ctx context.Context, req *domain.Request) (*domain.Request, error)
	Get(ctx context.Context, id int64) (*domain.Request, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Request, error)
	ListByService(ctx context.Context, serviceID int64) ([]*domain.Request, error)
	ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.Request, error)
	List(ctx context.Context) ([]*domain.Request, error)
	Update(ctx context.Context, id int64, patch func(*domain.Request) error) (*domain.Request, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Dataset is the content of the users, services and requests collections.
type Dataset struct {
	Users    []*domain.User
	Services []*domain.Service
	Requests []*domain.Request
}

// DatasetStore writes a whole Dataset as one unit: either every record lands
// or the store is left as it was.
type DatasetStore interface {
	// ReplaceDataset makes ds the whole content of the three collections and
	// drops every session.
	ReplaceDataset(ctx context.Context, ds Dataset) error
	// MergeDataset upserts ds by id, creating records without one, and drops
	// the sessions of revokeUsers.
	MergeDataset(ctx context.Context, ds Dataset, revokeUsers []int64) error
}

// SessionRepository persists sessions. Token is unique.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error)
	List(ctx context.Context) ([]*domain.Session, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// Locker serializes operations sharing a key. The returned function releases
// the lock and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
