package ports

import (
	"context"
	"io"
	"time"

	"github.com/servicedesk/requests/internal/core/domain"
)

// RegisterInput carries a self-registration form.
type RegisterInput struct {
	Name            string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

// LoginResult is returned by a successful login. User never carries the
// password hash.
type LoginResult struct {
	User    *domain.User
	Session *domain.Session
}

// ProfileInput carries the fields a user may change on their own account.
type ProfileInput struct {
	Name  string `validate:"required"`
	Email string `validate:"required,email"`
}

// AuthService covers the requester-facing account flows.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*domain.User, error)
}

// SessionManager issues and validates session tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID int64) (*domain.Session, error)
	Validate(ctx context.Context, userID int64, token string) (bool, error)
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
	VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error)
	Revoke(ctx context.Context, token string) error
	RevokeUser(ctx context.Context, userID int64) (int, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// StatsReconciler recomputes a user's request aggregate.
type StatsReconciler interface {
	Reconcile(ctx context.Context, userID int64) (domain.Stats, error)
	ReconcileAll(ctx context.Context) (int, error)
}

// CreateRequestInput carries everything needed to file a request.
// Priority accepts the canonical values and their legacy aliases.
type CreateRequestInput struct {
	UserID        int64  `validate:"gt=0"`
	ServiceID     int64  `validate:"gt=0"`
	Title         string `validate:"required"`
	Description   string
	RequestedDate time.Time
	Priority      string `validate:"required"`
}

// RequestView is a request enriched with the name of its service.
type RequestView struct {
	domain.Request
	ServiceName string
}

// Period limits a listing to recently created requests.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// RequestFilter narrows a request listing. Zero fields match everything.
type RequestFilter struct {
	Status    domain.RequestStatus
	ServiceID int64
	Period    Period
}

// RequestLifecycle creates requests and moves them through their states.
type RequestLifecycle interface {
	CreateRequest(ctx context.Context, in CreateRequestInput) (*domain.Request, error)
	UpdateStatus(ctx context.Context, requestID int64, status domain.RequestStatus, comment string) (*domain.Request, error)
	Cancel(ctx context.Context, requestID int64) (*domain.Request, error)
	Get(ctx context.Context, requestID int64) (*domain.Request, error)
	ListForUser(ctx context.Context, userID int64, f RequestFilter) ([]RequestView, error)
	ListAll(ctx context.Context, f RequestFilter) ([]RequestView, error)
	Delete(ctx context.Context, requestID int64) error
}

// UserInput carries an administrator-created account.
type UserInput struct {
	Name     string      `validate:"required"`
	Email    string      `validate:"required,email"`
	Password string      `validate:"required"`
	Role     domain.Role `validate:"required,oneof=admin viewer user"`
}

// UserUpdateInput carries the fields an administrator may change. Password
// and stats are never touched by an update.
type UserUpdateInput struct {
	Name  string      `validate:"required"`
	Email string      `validate:"required,email"`
	Role  domain.Role `validate:"required,oneof=admin viewer user"`
}

// UserAdmin is the administrative path over accounts.
type UserAdmin interface {
	CreateUser(ctx context.Context, in UserInput) (*domain.User, error)
	UpdateUser(ctx context.Context, id int64, in UserUpdateInput) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	// ListUsers lists every user, or only those holding role when it is set.
	ListUsers(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

// ServiceInput carries a catalog entry.
type ServiceInput struct {
	Name        string `validate:"required"`
	Description string `validate:"required"`
	Category    string
	Price       float64 `validate:"gte=0"`
	Active      bool
	Image       string
}

// Catalog manages the service catalog.
type Catalog interface {
	SeedDefaults(ctx context.Context) (int, error)
	CreateService(ctx context.Context, in ServiceInput) (*domain.Service, error)
	UpdateService(ctx context.Context, id int64, in ServiceInput) (*domain.Service, error)
	DeleteService(ctx context.Context, id int64) error
	GetService(ctx context.Context, id int64) (*domain.Service, error)
	ListServices(ctx context.Context) ([]*domain.Service, error)
	// ListActive lists active services, restricted to category when set.
	ListActive(ctx context.Context, category string) ([]*domain.Service, error)
}

// ImportMode selects how an imported document meets existing data.
type ImportMode string

const (
	ImportReplace ImportMode = "replace"
	ImportMerge   ImportMode = "merge"
)

// ImportReport counts what an import wrote.
type ImportReport struct {
	Users      int
	Services   int
	Requests   int
	Reconciled int
}

// Transfer moves the users, services and requests collections in and out
// as a single JSON document.
type Transfer interface {
	Export(ctx context.Context, w io.Writer) error
	Import(ctx context.Context, r io.Reader, mode ImportMode) (*ImportReport, error)
}
