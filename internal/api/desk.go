// Package api is the only surface UI collaborators call. Every operation
// other than registration and login takes the caller's session token, which
// is validated and role-checked before anything else happens.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
)

// ErrNotLoggedIn is returned by CurrentUser whenever no live session backs
// the snapshot.
var ErrNotLoggedIn = fmt.Errorf("not logged in: %w", domain.ErrExpiredSession)

// Desk bundles the core services behind session and role checks.
type Desk struct {
	auth      ports.AuthService
	sessions  ports.SessionManager
	requests  ports.RequestLifecycle
	users     ports.UserAdmin
	catalog   ports.Catalog
	transfer  ports.Transfer
	stats     ports.StatsReconciler
	snapshots *SnapshotCodec
	log       zerolog.Logger
}

// Services carries the collaborators of a Desk.
type Services struct {
	Auth      ports.AuthService
	Sessions  ports.SessionManager
	Requests  ports.RequestLifecycle
	Users     ports.UserAdmin
	Catalog   ports.Catalog
	Transfer  ports.Transfer
	Stats     ports.StatsReconciler
	Snapshots *SnapshotCodec
}

func NewDesk(s Services, log zerolog.Logger) *Desk {
	return &Desk{
		auth:      s.Auth,
		sessions:  s.Sessions,
		requests:  s.Requests,
		users:     s.Users,
		catalog:   s.Catalog,
		transfer:  s.Transfer,
		stats:     s.Stats,
		snapshots: s.Snapshots,
		log:       log,
	}
}

// Login is a successful login together with the tab-local snapshot.
type Login struct {
	User     *domain.User
	Session  *domain.Session
	Snapshot string
}

// --- Account ---

func (d *Desk) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	return d.auth.Register(ctx, in)
}

func (d *Desk) Login(ctx context.Context, email, password string) (*Login, error) {
	res, err := d.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	snap, err := d.snapshots.Encode(res.User, res.Session)
	if err != nil {
		return nil, fmt.Errorf("login: snapshot: %w", err)
	}
	return &Login{User: res.User, Session: res.Session, Snapshot: snap}, nil
}

func (d *Desk) Logout(ctx context.Context, token string) error {
	return d.auth.Logout(ctx, token)
}

// UpdateProfile changes the caller's own name and email.
func (d *Desk) UpdateProfile(ctx context.Context, token string, in ports.ProfileInput) (*domain.User, error) {
	p, err := d.authorize(ctx, token, requesters)
	if err != nil {
		return nil, err
	}
	return d.auth.UpdateProfile(ctx, p.UserID, in)
}

// CurrentUser resolves a tab-local snapshot to the logged-in user. The
// snapshot only names the session; the session itself is validated and the
// user re-read, so a stale or forged snapshot yields ErrNotLoggedIn.
func (d *Desk) CurrentUser(ctx context.Context, snapshot string) (*domain.User, error) {
	snap, err := d.snapshots.Decode(snapshot)
	if err != nil {
		d.log.Debug().Err(err).Msg("snapshot rejected")
		return nil, ErrNotLoggedIn
	}

	ok, err := d.sessions.Validate(ctx, snap.UserID, snap.Token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotLoggedIn
	}

	user, err := d.users.GetUser(ctx, snap.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	return user, nil
}

// --- Requester operations ---

// Catalog lists the services a requester may file against. An empty
// category lists them all.
func (d *Desk) Catalog(ctx context.Context, token, category string) ([]*domain.Service, error) {
	if _, err := d.authorize(ctx, token, requesters); err != nil {
		return nil, err
	}
	return d.catalog.ListActive(ctx, category)
}

// FileRequest files a request owned by the caller. in.UserID is ignored.
func (d *Desk) FileRequest(ctx context.Context, token string, in ports.CreateRequestInput) (*domain.Request, error) {
	p, err := d.authorize(ctx, token, requesters)
	if err != nil {
		return nil, err
	}
	in.UserID = p.UserID
	return d.requests.CreateRequest(ctx, in)
}

// MyRequests lists the caller's requests matching f.
func (d *Desk) MyRequests(ctx context.Context, token string, f ports.RequestFilter) ([]ports.RequestView, error) {
	p, err := d.authorize(ctx, token, requesters)
	if err != nil {
		return nil, err
	}
	return d.requests.ListForUser(ctx, p.UserID, f)
}

// CancelRequest cancels one of the caller's pending requests. Admins may
// cancel any request.
func (d *Desk) CancelRequest(ctx context.Context, token string, requestID int64) (*domain.Request, error) {
	p, err := d.authorize(ctx, token, requesters)
	if err != nil {
		return nil, err
	}
	if p.Role != domain.RoleAdmin {
		req, err := d.requests.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req.UserID != p.UserID {
			return nil, domain.ErrForbidden
		}
	}
	return d.requests.Cancel(ctx, requestID)
}

// --- Admin operations ---

func (d *Desk) AllRequests(ctx context.Context, token string, f ports.RequestFilter) ([]ports.RequestView, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.requests.ListAll(ctx, f)
}

func (d *Desk) UpdateRequestStatus(ctx context.Context, token string, requestID int64, status domain.RequestStatus, comment string) (*domain.Request, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.requests.UpdateStatus(ctx, requestID, status, comment)
}

func (d *Desk) DeleteRequest(ctx context.Context, token string, requestID int64) error {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return err
	}
	return d.requests.Delete(ctx, requestID)
}

// Users lists accounts, only those holding role when it is set.
func (d *Desk) Users(ctx context.Context, token string, role domain.Role) ([]*domain.User, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.users.ListUsers(ctx, role)
}

func (d *Desk) CreateUser(ctx context.Context, token string, in ports.UserInput) (*domain.User, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.users.CreateUser(ctx, in)
}

func (d *Desk) UpdateUser(ctx context.Context, token string, id int64, in ports.UserUpdateInput) (*domain.User, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.users.UpdateUser(ctx, id, in)
}

func (d *Desk) Services(ctx context.Context, token string) ([]*domain.Service, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.catalog.ListServices(ctx)
}

func (d *Desk) CreateService(ctx context.Context, token string, in ports.ServiceInput) (*domain.Service, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.catalog.CreateService(ctx, in)
}

func (d *Desk) UpdateService(ctx context.Context, token string, id int64, in ports.ServiceInput) (*domain.Service, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.catalog.UpdateService(ctx, id, in)
}

func (d *Desk) DeleteService(ctx context.Context, token string, id int64) error {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return err
	}
	return d.catalog.DeleteService(ctx, id)
}

func (d *Desk) Export(ctx context.Context, token string, w io.Writer) error {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return err
	}
	return d.transfer.Export(ctx, w)
}

func (d *Desk) Import(ctx context.Context, token string, r io.Reader, mode ports.ImportMode) (*ports.ImportReport, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return nil, err
	}
	return d.transfer.Import(ctx, r, mode)
}

// Reconcile recomputes one user's stats on demand.
func (d *Desk) Reconcile(ctx context.Context, token string, userID int64) (domain.Stats, error) {
	if _, err := d.authorize(ctx, token, adminOnly); err != nil {
		return domain.Stats{}, err
	}
	return d.stats.Reconcile(ctx, userID)
}

// Describe maps err onto a user-facing message.
func (d *Desk) Describe(err error) Message {
	return Describe(d.log, err)
}
