package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
	"github.com/servicedesk/requests/internal/pkg/metrics"
)

// UnavailableServiceName labels requests whose service no longer exists.
const UnavailableServiceName = "service unavailable"

// RequestService is the request lifecycle controller. Every mutation of a
// user's request set runs under that user's lock and is followed by a stats
// recomputation before it reports success.
type RequestService struct {
	requests   ports.RequestRepository
	services   ports.ServiceRepository
	users      ports.UserRepository
	reconciler *Reconciler
	locker     ports.Locker
	now        func() time.Time
	log        zerolog.Logger
}

var _ ports.RequestLifecycle = (*RequestService)(nil)

func NewRequestService(
	requests ports.RequestRepository,
	services ports.ServiceRepository,
	users ports.UserRepository,
	reconciler *Reconciler,
	locker ports.Locker,
	log zerolog.Logger,
	opts ...Option,
) *RequestService {
	st := newSettings(opts)
	return &RequestService{
		requests:   requests,
		services:   services,
		users:      users,
		reconciler: reconciler,
		locker:     locker,
		now:        st.now,
		log:        log,
	}
}

// CreateRequest files a pending request for in.UserID against an existing
// service and reconciles the user's stats.
func (s *RequestService) CreateRequest(ctx context.Context, in ports.CreateRequestInput) (*domain.Request, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	priority, ok := domain.ParsePriority(in.Priority)
	if !ok {
		return nil, invalid("priority must be one of: low medium high")
	}

	if _, err := s.services.Get(ctx, in.ServiceID); err != nil {
		return nil, fmt.Errorf("create request: %w", notFoundAs(err, domain.ErrServiceNotFound))
	}
	if _, err := s.users.Get(ctx, in.UserID); err != nil {
		return nil, fmt.Errorf("create request: %w", notFoundAs(err, domain.ErrUserNotFound))
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(in.UserID))
	if err != nil {
		return nil, fmt.Errorf("create request: lock: %w", err)
	}
	defer unlock()

	now := s.now()
	requested := in.RequestedDate
	if requested.IsZero() {
		requested = now
	}
	req, err := s.requests.Create(ctx, &domain.Request{
		Title:         in.Title,
		ServiceID:     in.ServiceID,
		UserID:        in.UserID,
		Description:   in.Description,
		RequestedDate: requested,
		CreatedAt:     now,
		Status:        domain.StatusPending,
		Priority:      priority,
		Updates:       []domain.StatusUpdate{},
	})
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", in.UserID).Msg("failed to create request")
		return nil, fmt.Errorf("create request: %w", err)
	}
	metrics.RequestsCreatedTotal.WithLabelValues(string(priority)).Inc()

	if _, err := s.reconciler.recompute(ctx, in.UserID); err != nil {
		s.log.Error().Err(err).Int64("request_id", req.ID).Msg("request stored but stats not reconciled")
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.log.Info().
		Int64("request_id", req.ID).
		Int64("user_id", req.UserID).
		Int64("service_id", req.ServiceID).
		Str("priority", string(req.Priority)).
		Msg("request created")
	return req, nil
}

// UpdateStatus moves a request to status, appending one history entry.
func (s *RequestService) UpdateStatus(ctx context.Context, requestID int64, status domain.RequestStatus, comment string) (*domain.Request, error) {
	if !status.Valid() {
		return nil, invalid("status must be one of: pending approved rejected completed")
	}
	return s.transition(ctx, "update status", requestID, status, comment, nil)
}

// Cancel rejects a request that is still pending, with an empty comment.
func (s *RequestService) Cancel(ctx context.Context, requestID int64) (*domain.Request, error) {
	onlyPending := func(r *domain.Request) error {
		if r.Status != domain.StatusPending {
			return fmt.Errorf("%w: only pending requests can be cancelled (status %s)", domain.ErrInvalidTransition, r.Status)
		}
		return nil
	}
	return s.transition(ctx, "cancel request", requestID, domain.StatusRejected, "", onlyPending)
}

func (s *RequestService) transition(
	ctx context.Context,
	op string,
	requestID int64,
	next domain.RequestStatus,
	comment string,
	guard func(*domain.Request) error,
) (*domain.Request, error) {
	current, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, notFoundAs(err, domain.ErrRequestNotFound))
	}

	// The owner never changes, so the lock taken here covers the record read
	// again inside the patch.
	unlock, err := s.locker.Lock(ctx, userLockKey(current.UserID))
	if err != nil {
		return nil, fmt.Errorf("%s: lock: %w", op, err)
	}
	defer unlock()

	var from domain.RequestStatus
	updated, err := s.requests.Update(ctx, requestID, func(r *domain.Request) error {
		if guard != nil {
			if err := guard(r); err != nil {
				return err
			}
		}
		if !r.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, next)
		}
		from = r.Status
		r.Status = next
		r.Updates = append(r.Updates, domain.StatusUpdate{Date: s.now(), Status: next, Comment: comment})
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.log.Debug().Err(err).Int64("request_id", requestID).Msg("transition rejected")
		}
		return nil, fmt.Errorf("%s: %w", op, notFoundAs(err, domain.ErrRequestNotFound))
	}
	metrics.RequestTransitionsTotal.WithLabelValues(string(from), string(next)).Inc()

	if _, err := s.reconciler.recompute(ctx, updated.UserID); err != nil {
		s.log.Error().Err(err).Int64("request_id", requestID).Msg("status stored but stats not reconciled")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info().
		Int64("request_id", requestID).
		Int64("user_id", updated.UserID).
		Str("from", string(from)).
		Str("to", string(next)).
		Msg("request status changed")
	return updated, nil
}

// Delete removes a request and reconciles its owner.
func (s *RequestService) Delete(ctx context.Context, requestID int64) error {
	current, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("delete request: %w", notFoundAs(err, domain.ErrRequestNotFound))
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(current.UserID))
	if err != nil {
		return fmt.Errorf("delete request: lock: %w", err)
	}
	defer unlock()

	if err := s.requests.Delete(ctx, requestID); err != nil {
		return fmt.Errorf("delete request: %w", notFoundAs(err, domain.ErrRequestNotFound))
	}
	if _, err := s.reconciler.recompute(ctx, current.UserID); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}

	s.log.Info().Int64("request_id", requestID).Int64("user_id", current.UserID).Msg("request deleted")
	return nil
}

func (s *RequestService) Get(ctx context.Context, requestID int64) (*domain.Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", notFoundAs(err, domain.ErrRequestNotFound))
	}
	return req, nil
}

// ListForUser returns the user's requests matching f, with their service
// names.
func (s *RequestService) ListForUser(ctx context.Context, userID int64, f ports.RequestFilter) ([]ports.RequestView, error) {
	match, err := s.matcher(f)
	if err != nil {
		return nil, err
	}
	reqs, err := s.requests.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return s.withServiceNames(ctx, keep(reqs, match))
}

// ListAll returns every request matching f, with its service name. A service
// or status filter is answered from the matching index.
func (s *RequestService) ListAll(ctx context.Context, f ports.RequestFilter) ([]ports.RequestView, error) {
	match, err := s.matcher(f)
	if err != nil {
		return nil, err
	}
	var reqs []*domain.Request
	switch {
	case f.ServiceID > 0:
		reqs, err = s.requests.ListByService(ctx, f.ServiceID)
	case f.Status != "":
		reqs, err = s.requests.ListByStatus(ctx, f.Status)
	default:
		reqs, err = s.requests.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return s.withServiceNames(ctx, keep(reqs, match))
}

// matcher validates f and returns its predicate. Periods are measured from
// the request's creation time: today starts at midnight UTC, week and month
// reach back seven days and one calendar month.
func (s *RequestService) matcher(f ports.RequestFilter) (func(*domain.Request) bool, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status must be one of: pending approved rejected completed")
	}

	now := s.now().UTC()
	var since time.Time
	switch f.Period {
	case "", ports.PeriodAll:
	case ports.PeriodToday:
		y, m, d := now.Date()
		since = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case ports.PeriodWeek:
		since = now.AddDate(0, 0, -7)
	case ports.PeriodMonth:
		since = now.AddDate(0, -1, 0)
	default:
		return nil, invalid("period must be one of: all today week month")
	}

	return func(r *domain.Request) bool {
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		if f.ServiceID > 0 && r.ServiceID != f.ServiceID {
			return false
		}
		return !r.CreatedAt.Before(since)
	}, nil
}

func keep(reqs []*domain.Request, match func(*domain.Request) bool) []*domain.Request {
	out := reqs[:0]
	for _, r := range reqs {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *RequestService) withServiceNames(ctx context.Context, reqs []*domain.Request) ([]ports.RequestView, error) {
	names := make(map[int64]string)
	out := make([]ports.RequestView, len(reqs))
	for i, r := range reqs {
		name, ok := names[r.ServiceID]
		if !ok {
			svc, err := s.services.Get(ctx, r.ServiceID)
			switch {
			case err == nil:
				name = svc.Name
			case errors.Is(err, domain.ErrNotFound):
				name = UnavailableServiceName
			default:
				return nil, fmt.Errorf("list requests: %w", err)
			}
			names[r.ServiceID] = name
		}
		out[i] = ports.RequestView{Request: *r, ServiceName: name}
	}
	return out, nil
}
