package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/pkg/metrics"
)

// Reconciler rewrites a user's stats from the live set of their requests.
// It is the only writer of domain.User.Stats.
type Reconciler struct {
	users    ports.UserRepository
	requests ports.RequestRepository
	locker   ports.Locker
	log      zerolog.Logger
}

var _ ports.StatsReconciler = (*Reconciler)(nil)

func NewReconciler(users ports.UserRepository, requests ports.RequestRepository, locker ports.Locker, log zerolog.Logger) *Reconciler {
	return &Reconciler{users: users, requests: requests, locker: locker, log: log}
}

// userLockKey is the lock every mutation of a user's request set holds.
func userLockKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

// Reconcile recomputes and persists userID's stats under the user's lock.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (domain.Stats, error) {
	unlock, err := r.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		return domain.Stats{}, fmt.Errorf("reconcile user %d: lock: %w", userID, err)
	}
	defer unlock()
	return r.recompute(ctx, userID)
}

// ReconcileAll reconciles every user and returns how many were rewritten.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	users, err := r.users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile all: %w", err)
	}
	for i, u := range users {
		if _, err := r.Reconcile(ctx, u.ID); err != nil {
			return i, err
		}
	}
	return len(users), nil
}

// recompute must be called with userLockKey(userID) held.
func (r *Reconciler) recompute(ctx context.Context, userID int64) (domain.Stats, error) {
	requests, err := r.requests.ListByUser(ctx, userID)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return domain.Stats{}, fmt.Errorf("reconcile user %d: %w", userID, err)
	}
	stats := domain.StatsFor(requests)

	_, err = r.users.Update(ctx, userID, func(u *domain.User) error {
		u.Stats = stats
		return nil
	})
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return domain.Stats{}, fmt.Errorf("reconcile user %d: %w", userID, notFoundAs(err, domain.ErrUserNotFound))
	}

	metrics.ReconciliationsTotal.WithLabelValues("ok").Inc()
	r.log.Debug().
		Int64("user_id", userID).
		Int("total", stats.TotalRequests).
		Int("pending", stats.PendingRequests).
		Int("completed", stats.CompletedRequests).
		Msg("stats reconciled")
	return stats, nil
}
