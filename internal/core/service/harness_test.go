package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/infrastructure/lock"
	"github.com/servicedesk/requests/internal/infrastructure/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// harness wires every service over an in-memory store.
type harness struct {
	repos      *store.Repositories
	clock      *fakeClock
	sessions   *SessionService
	reconciler *Reconciler
	requests   *RequestService
	auth       *AuthService
	users      *UserService
	catalog    *CatalogService
	transfer   *TransferService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, store.NewMemoryBackend())
}

func newHarnessOn(t *testing.T, backend store.Backend) *harness {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	repos, err := store.OpenAll(ctx, store.NewEngine(backend, log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Engine.Close() })

	clock := newFakeClock()
	opts := []Option{WithClock(clock.Now), WithBcryptCost(bcrypt.MinCost)}
	locker := lock.NewStriped(8)

	h := &harness{repos: repos, clock: clock}
	h.sessions = NewSessionService(repos.Sessions, repos.Users, 0, log, opts...)
	h.reconciler = NewReconciler(repos.Users, repos.Requests, locker, log)
	h.requests = NewRequestService(repos.Requests, repos.Services, repos.Users, h.reconciler, locker, log, opts...)
	h.auth = NewAuthService(repos.Users, h.sessions, log, opts...)
	h.users = NewUserService(repos.Users, log, opts...)
	h.catalog = NewCatalogService(repos.Services, 0, log, opts...)
	h.transfer = NewTransferService(repos.Users, repos.Services, repos.Requests, repos, h.reconciler, log, opts...)
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	n, err := h.catalog.SeedDefaults(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(DefaultServices), n)
}

func (h *harness) register(t *testing.T, name, email string) *domain.User {
	t.Helper()
	u, err := h.auth.Register(context.Background(), ports.RegisterInput{
		Name:            name,
		Email:           email,
		Password:        "password123",
		ConfirmPassword: "password123",
	})
	require.NoError(t, err)
	return u
}

func (h *harness) file(t *testing.T, userID, serviceID int64, priority string) *domain.Request {
	t.Helper()
	req, err := h.requests.CreateRequest(context.Background(), ports.CreateRequestInput{
		UserID:    userID,
		ServiceID: serviceID,
		Title:     "Laptop does not boot",
		Priority:  priority,
	})
	require.NoError(t, err)
	return req
}

func (h *harness) stats(t *testing.T, userID int64) domain.Stats {
	t.Helper()
	u, err := h.repos.Users.Get(context.Background(), userID)
	require.NoError(t, err)
	return u.Stats
}
