// Package app assembles the service desk from configuration: storage backend,
// locks, services and the Desk facade.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/api"
	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/core/service"
	"github.com/servicedesk/requests/internal/infrastructure/db/mongo"
	"github.com/servicedesk/requests/internal/infrastructure/db/redis"
	"github.com/servicedesk/requests/internal/infrastructure/db/sqlite"
	"github.com/servicedesk/requests/internal/infrastructure/lock"
	"github.com/servicedesk/requests/internal/infrastructure/store"
	"github.com/servicedesk/requests/internal/pkg/config"
)

const lockStripes = 64

// App holds every wired component. Close releases the backend and the Redis
// client.
type App struct {
	Config *config.Config
	Repos  *store.Repositories

	Sessions   *service.SessionService
	Auth       *service.AuthService
	Users      *service.UserService
	Catalog    *service.CatalogService
	Reconciler *service.Reconciler
	Requests   *service.RequestService
	Transfer   *service.TransferService
	Desk       *api.Desk

	advisory *redis.AdvisoryLocker
	log      zerolog.Logger
}

// Option adjusts how New builds the application.
type Option func(*options)

type options struct {
	backend store.Backend
	now     func() time.Time
	service []service.Option
}

// WithBackend overrides the configured store driver.
func WithBackend(b store.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithClock replaces the wall clock of the services and the snapshot codec.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
		o.service = append(o.service, service.WithClock(now))
	}
}

// WithServiceOptions forwards options to every service constructor.
func WithServiceOptions(opts ...service.Option) Option {
	return func(o *options) { o.service = append(o.service, opts...) }
}

// New opens storage, loads every collection and wires the services. Storage
// failures are reported as domain.ErrStorageUnavailable.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		b, err := openBackend(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		backend = b
	}

	loadCtx, cancel := context.WithTimeout(ctx, cfg.Store.LoadTimeout)
	defer cancel()

	engine := store.NewEngine(backend, log.With().Str("component", "store").Logger())
	repos, err := store.OpenAll(loadCtx, engine)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	a := &App{Config: cfg, Repos: repos, log: log}
	component := func(name string) zerolog.Logger {
		return log.With().Str("component", name).Logger()
	}

	var locker ports.Locker = lock.NewStriped(lockStripes)
	if cfg.Redis.Addr != "" {
		advisory, err := redis.Open(ctx, redis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, LockTTL: cfg.Redis.LockTTL}, component("lock"))
		if err != nil {
			// The local lock still serializes this process.
			log.Warn().Err(err).Msg("advisory lock disabled")
		} else {
			a.advisory = advisory
			locker = lock.NewChain(locker, advisory, component("lock"))
		}
	}

	svcOpts := append([]service.Option{service.WithBcryptCost(cfg.BcryptCost)}, o.service...)

	a.Sessions = service.NewSessionService(repos.Sessions, repos.Users, cfg.Session.TTL, component("sessions"), svcOpts...)
	a.Auth = service.NewAuthService(repos.Users, a.Sessions, component("auth"), svcOpts...)
	a.Users = service.NewUserService(repos.Users, component("users"), svcOpts...)
	a.Catalog = service.NewCatalogService(repos.Services, cfg.Store.LoadTimeout, component("catalog"), svcOpts...)
	a.Reconciler = service.NewReconciler(repos.Users, repos.Requests, locker, component("reconciler"))
	a.Requests = service.NewRequestService(repos.Requests, repos.Services, repos.Users, a.Reconciler, locker, component("requests"), svcOpts...)
	a.Transfer = service.NewTransferService(repos.Users, repos.Services, repos.Requests, repos, a.Reconciler, component("transfer"), svcOpts...)

	snapshots, err := api.NewSnapshotCodec(cfg.Session.SnapshotSecret, o.now)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Desk = api.NewDesk(api.Services{
		Auth:      a.Auth,
		Sessions:  a.Sessions,
		Requests:  a.Requests,
		Users:     a.Users,
		Catalog:   a.Catalog,
		Transfer:  a.Transfer,
		Stats:     a.Reconciler,
		Snapshots: snapshots,
	}, component("desk"))

	if cfg.SeedDefaultServices {
		if _, err := a.Catalog.SeedDefaults(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	log.Info().
		Str("driver", cfg.Store.Driver).
		Bool("advisory_lock", a.advisory != nil).
		Strs("collections", engine.Collections()).
		Msg("service desk ready")
	return a, nil
}

// Close releases storage and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.advisory != nil {
		errs = append(errs, a.advisory.Close())
	}
	errs = append(errs, a.Repos.Engine.Close())
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemoryBackend(), nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, sqlite.Config{Path: cfg.Store.SQLitePath, Debug: cfg.LogLevel == "trace"}, log)
	case config.DriverMongo:
		return mongo.Open(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, Timeout: cfg.Store.LoadTimeout})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
