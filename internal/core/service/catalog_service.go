package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/core/domain"
	"github.com/servicedesk/requests/internal/core/ports"
)

// DefaultListTimeout bounds how long a catalog listing may wait on the store.
const DefaultListTimeout = 8 * time.Second

// DefaultServices is the catalog seeded into an empty services collection.
var DefaultServices = []ports.ServiceInput{
	{
		Name:        "Computer Repair",
		Category:    "Repair",
		Description: "Repair of desktop and laptop computers, including diagnosis, cleaning and hardware repair.",
		Price:       50,
		Active:      true,
		Image:       "repair.jpg",
	},
	{
		Name:        "Software Installation",
		Category:    "Software",
		Description: "Installation and configuration of operating systems, programs and applications on your computer or mobile device.",
		Price:       30,
		Active:      true,
		Image:       "computer_installation.jpg",
	},
	{
		Name:        "Web Design",
		Category:    "Design",
		Description: "Professional, responsive and SEO-optimized websites, from design and development to launch.",
		Price:       300,
		Active:      true,
		Image:       "web-design.jpg",
	},
	{
		Name:        "Technical Support",
		Category:    "Support",
		Description: "Technical assistance for computer problems, network configuration and system tuning.",
		Price:       40,
		Active:      true,
		Image:       "technical-support.png",
	},
	{
		Name:        "Application Development",
		Category:    "Development",
		Description: "Custom web, mobile or desktop applications built to your specific needs.",
		Price:       500,
		Active:      true,
		Image:       "app-dev.jpg",
	},
}

// CatalogService manages the service catalog.
type CatalogService struct {
	services    ports.ServiceRepository
	listTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

var _ ports.Catalog = (*CatalogService)(nil)

func NewCatalogService(services ports.ServiceRepository, listTimeout time.Duration, log zerolog.Logger, opts ...Option) *CatalogService {
	if listTimeout <= 0 {
		listTimeout = DefaultListTimeout
	}
	st := newSettings(opts)
	return &CatalogService{services: services, listTimeout: listTimeout, now: st.now, log: log}
}

// SeedDefaults fills an empty catalog with DefaultServices and returns how
// many services were added. A non-empty catalog is left alone.
func (s *CatalogService) SeedDefaults(ctx context.Context) (int, error) {
	n, err := s.services.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed services: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for i, in := range DefaultServices {
		if _, err := s.services.Create(ctx, s.toService(in)); err != nil {
			return i, fmt.Errorf("seed services: %w", err)
		}
	}
	s.log.Info().Int("count", len(DefaultServices)).Msg("default services seeded")
	return len(DefaultServices), nil
}

func (s *CatalogService) CreateService(ctx context.Context, in ports.ServiceInput) (*domain.Service, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	svc, err := s.services.Create(ctx, s.toService(in))
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.log.Info().Int64("service_id", svc.ID).Str("name", svc.Name).Msg("service created")
	return svc, nil
}

// UpdateService replaces the editable fields; CreatedAt is kept.
func (s *CatalogService) UpdateService(ctx context.Context, id int64, in ports.ServiceInput) (*domain.Service, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	svc, err := s.services.Update(ctx, id, func(cur *domain.Service) error {
		cur.Name = in.Name
		cur.Description = in.Description
		cur.Category = in.Category
		cur.Price = in.Price
		cur.Active = in.Active
		cur.Image = in.Image
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update service: %w", notFoundAs(err, domain.ErrServiceNotFound))
	}
	s.log.Info().Int64("service_id", id).Msg("service updated")
	return svc, nil
}

// DeleteService removes a catalog entry. Requests filed against it stay and
// are listed with UnavailableServiceName.
func (s *CatalogService) DeleteService(ctx context.Context, id int64) error {
	if err := s.services.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete service: %w", notFoundAs(err, domain.ErrServiceNotFound))
	}
	s.log.Info().Int64("service_id", id).Msg("service deleted")
	return nil
}

func (s *CatalogService) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	svc, err := s.services.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get service: %w", notFoundAs(err, domain.ErrServiceNotFound))
	}
	return svc, nil
}

// ListServices returns the whole catalog, failing with domain.ErrTimeout when
// the store does not answer within the list timeout.
func (s *CatalogService) ListServices(ctx context.Context) ([]*domain.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.listTimeout)
	defer cancel()

	all, err := s.services.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return all, nil
}

// ListActive returns the services requesters may file against, restricted
// to category when it is set.
func (s *CatalogService) ListActive(ctx context.Context, category string) ([]*domain.Service, error) {
	var (
		all []*domain.Service
		err error
	)
	if category == "" {
		all, err = s.ListServices(ctx)
	} else {
		all, err = s.listCategory(ctx, category)
	}
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Service, 0, len(all))
	for _, svc := range all {
		if svc.Active {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *CatalogService) listCategory(ctx context.Context, category string) ([]*domain.Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.listTimeout)
	defer cancel()

	svcs, err := s.services.ListByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return svcs, nil
}

func (s *CatalogService) toService(in ports.ServiceInput) *domain.Service {
	return &domain.Service{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		Active:      in.Active,
		Image:       in.Image,
		CreatedAt:   s.now(),
	}
}
