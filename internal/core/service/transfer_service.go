package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
)

// TransferService imports and exports the users, services and requests
// collections as one JSON document. Sessions are never exported.
type TransferService struct {
	users      ports.UserRepository
	services   ports.ServiceRepository
	requests   ports.RequestRepository
	dataset    ports.DatasetStore
	reconciler *Reconciler
	cost       int
	now        func() time.Time
	log        zerolog.Logger
}

var _ ports.Transfer = (*TransferService)(nil)

func NewTransferService(
	users ports.UserRepository,
	services ports.ServiceRepository,
	requests ports.RequestRepository,
	dataset ports.DatasetStore,
	reconciler *Reconciler,
	log zerolog.Logger,
	opts ...Option,
) *TransferService {
	st := newSettings(opts)
	return &TransferService{
		users:      users,
		services:   services,
		requests:   requests,
		dataset:    dataset,
		reconciler: reconciler,
		cost:       st.bcryptCost,
		now:        st.now,
		log:        log,
	}
}

// Export writes the current users, services and requests to w.
func (s *TransferService) Export(ctx context.Context, w io.Writer) error {
	users, err := s.users.List(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	services, err := s.services.List(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	requests, err := s.requests.List(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	doc := document{
		User:     make(userList, len(users)),
		Services: make([]serviceDoc, len(services)),
		Requests: make([]requestDoc, len(requests)),
	}
	for i, u := range users {
		doc.User[i] = toUserDoc(u)
	}
	for i, svc := range services {
		doc.Services[i] = toServiceDoc(svc)
	}
	for i, r := range requests {
		doc.Requests[i] = toRequestDoc(r)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	s.log.Info().
		Int("users", len(users)).
		Int("services", len(services)).
		Int("requests", len(requests)).
		Msg("data exported")
	return nil
}

// Import reads a document from r. In ImportReplace mode the document becomes
// the whole content of the three collections and every session is dropped,
// since imported ids may now name other people. In ImportMerge mode records
// are upserted by id, records without an id are created, and the sessions of
// users whose email or password changed are dropped. The whole document is
// checked before anything is written: malformed records, duplicate ids,
// emails that would collide and requests owned by unknown users all abort the
// import with domain.ErrValidation or domain.ErrConstraintViolation. The
// write itself is a single unit, so a storage failure leaves the previous
// data in place. Stats carried by the document are ignored and recomputed
// for every user.
func (s *TransferService) Import(ctx context.Context, r io.Reader, mode ports.ImportMode) (*ports.ImportReport, error) {
	if mode != ports.ImportReplace && mode != ports.ImportMerge {
		return nil, invalid("import mode must be one of: replace merge")
	}

	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, invalid("malformed document: %v", err)
	}

	ds, err := s.mapDocument(doc)
	if err != nil {
		return nil, err
	}
	revoke, err := s.check(ctx, ds, mode)
	if err != nil {
		return nil, err
	}

	if mode == ports.ImportReplace {
		err = s.dataset.ReplaceDataset(ctx, ds)
	} else {
		err = s.dataset.MergeDataset(ctx, ds, revoke)
	}
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	report := &ports.ImportReport{
		Users:    len(ds.Users),
		Services: len(ds.Services),
		Requests: len(ds.Requests),
	}
	n, err := s.reconciler.ReconcileAll(ctx)
	report.Reconciled = n
	if err != nil {
		return report, fmt.Errorf("import: %w", err)
	}

	s.log.Info().
		Str("mode", string(mode)).
		Int("users", report.Users).
		Int("services", report.Services).
		Int("requests", report.Requests).
		Int("revoked_users", len(revoke)).
		Msg("data imported")
	return report, nil
}

func (s *TransferService) mapDocument(doc document) (ports.Dataset, error) {
	now := s.now()
	var set ports.Dataset

	seen := make(map[int64]bool)
	for _, d := range doc.Services {
		svc, err := fromServiceDoc(d, now)
		if err != nil {
			return set, err
		}
		if svc.ID > 0 && seen[svc.ID] {
			return set, invalid("service id %d appears twice", svc.ID)
		}
		seen[svc.ID] = true
		set.Services = append(set.Services, svc)
	}

	seen = make(map[int64]bool)
	for _, d := range doc.User {
		u, err := fromUserDoc(d, s.cost, now)
		if err != nil {
			return set, err
		}
		if u.ID > 0 && seen[u.ID] {
			return set, invalid("user id %d appears twice", u.ID)
		}
		seen[u.ID] = true
		set.Users = append(set.Users, u)
	}

	seen = make(map[int64]bool)
	for _, d := range doc.Requests {
		req, err := fromRequestDoc(d, now)
		if err != nil {
			return set, err
		}
		if req.ID > 0 && seen[req.ID] {
			return set, invalid("request id %d appears twice", req.ID)
		}
		seen[req.ID] = true
		set.Requests = append(set.Requests, req)
	}
	return set, nil
}

// check validates the state the import would produce: unique emails and
// requests owned by known users. In merge mode it also returns the existing
// users whose email or password the import changes.
func (s *TransferService) check(ctx context.Context, set ports.Dataset, mode ports.ImportMode) ([]int64, error) {
	final := make(map[int64]*domain.User)
	if mode == ports.ImportMerge {
		existing, err := s.users.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
		for _, u := range existing {
			final[u.ID] = u
		}
	}

	emails := make(map[string]int64)
	for id, u := range final {
		emails[u.Email] = id
	}
	var revoke []int64
	for _, u := range set.Users {
		if u.ID <= 0 {
			continue
		}
		if prev, ok := final[u.ID]; ok {
			if emails[prev.Email] == u.ID {
				delete(emails, prev.Email)
			}
			if prev.Email != u.Email || prev.Password != u.Password {
				revoke = append(revoke, u.ID)
			}
		}
		final[u.ID] = u
	}
	for _, u := range set.Users {
		owner, taken := emails[u.Email]
		if taken && (u.ID <= 0 || owner != u.ID) {
			return nil, fmt.Errorf("import user %q: %w", u.Email, domain.ErrEmailTaken)
		}
		emails[u.Email] = u.ID
	}

	for _, req := range set.Requests {
		if _, ok := final[req.UserID]; !ok {
			return nil, invalid("request %d: user %d does not exist", req.ID, req.UserID)
		}
	}
	return revoke, nil
}
