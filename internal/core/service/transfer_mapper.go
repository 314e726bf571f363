package service

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/servicedesk/requests/internal/core/domain"
)

// --- Domain → document ---

func toUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Password:  u.Password,
		Role:      string(u.Role),
		CreatedAt: flexTime{u.CreatedAt},
		Stats: statsDoc{
			TotalRequests:     u.Stats.TotalRequests,
			PendingRequests:   u.Stats.PendingRequests,
			CompletedRequests: u.Stats.CompletedRequests,
		},
	}
}

func toServiceDoc(s *domain.Service) serviceDoc {
	active := s.Active
	return serviceDoc{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		Price:       s.Price,
		Active:      &active,
		Image:       s.Image,
		CreatedAt:   flexTime{s.CreatedAt},
	}
}

func toRequestDoc(r *domain.Request) requestDoc {
	updates := make([]statusUpdateDoc, len(r.Updates))
	for i, u := range r.Updates {
		updates[i] = statusUpdateDoc{Date: flexTime{u.Date}, Status: string(u.Status), Comment: u.Comment}
	}
	return requestDoc{
		ID:          r.ID,
		Title:       r.Title,
		ServiceID:   r.ServiceID,
		UserID:      r.UserID,
		Description: r.Description,
		Date:        flexTime{r.RequestedDate},
		CreatedAt:   flexTime{r.CreatedAt},
		Status:      string(r.Status),
		Priority:    string(r.Priority),
		Updates:     updates,
	}
}

// --- Document → domain ---

// fromUserDoc maps an imported user. Stats are dropped; they are recomputed
// after the import. A password that is not already a bcrypt hash is hashed.
func fromUserDoc(d userDoc, cost int, now time.Time) (*domain.User, error) {
	if d.Name == "" || d.Email == "" {
		return nil, invalid("user %q: name and email are required", d.Email)
	}
	if d.Password == "" {
		return nil, invalid("user %q: password is required", d.Email)
	}
	role := domain.Role(d.Role)
	if d.Role == "" {
		role = domain.RoleViewer
	}
	if !role.Valid() {
		return nil, invalid("user %q: role must be one of: admin viewer user", d.Email)
	}

	password := d.Password
	if _, err := bcrypt.Cost([]byte(password)); err != nil {
		hashed, err := hashPassword(password, cost)
		if err != nil {
			return nil, err
		}
		password = hashed
	}

	return &domain.User{
		ID:        d.ID,
		Name:      d.Name,
		Email:     d.Email,
		Password:  password,
		Role:      role,
		CreatedAt: orNow(d.CreatedAt, now),
	}, nil
}

func fromServiceDoc(d serviceDoc, now time.Time) (*domain.Service, error) {
	if d.Name == "" || d.Description == "" {
		return nil, invalid("service %d: name and description are required", d.ID)
	}
	if d.Price < 0 {
		return nil, invalid("service %d: price must not be less than 0", d.ID)
	}
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return &domain.Service{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Price:       d.Price,
		Active:      active,
		Image:       d.Image,
		CreatedAt:   orNow(d.CreatedAt, now),
	}, nil
}

func fromRequestDoc(d requestDoc, now time.Time) (*domain.Request, error) {
	if d.Title == "" {
		return nil, invalid("request %d: title is required", d.ID)
	}
	if d.UserID <= 0 || d.ServiceID <= 0 {
		return nil, invalid("request %d: userId and serviceId are required", d.ID)
	}

	status := domain.RequestStatus(d.Status)
	if d.Status == "" {
		status = domain.StatusPending
	}
	if !status.Valid() {
		return nil, invalid("request %d: unknown status %q", d.ID, d.Status)
	}

	priority := domain.PriorityMedium
	if d.Priority != "" {
		p, ok := domain.ParsePriority(d.Priority)
		if !ok {
			return nil, invalid("request %d: unknown priority %q", d.ID, d.Priority)
		}
		priority = p
	}

	updates := make([]domain.StatusUpdate, 0, len(d.Updates))
	for _, u := range d.Updates {
		st := domain.RequestStatus(u.Status)
		if !st.Valid() {
			return nil, invalid("request %d: unknown status %q in updates", d.ID, u.Status)
		}
		updates = append(updates, domain.StatusUpdate{Date: u.Date.Time, Status: st, Comment: u.Comment})
	}

	created := orNow(d.CreatedAt, now)
	requested := d.Date.Time
	if requested.IsZero() {
		requested = created
	}

	return &domain.Request{
		ID:            d.ID,
		Title:         d.Title,
		ServiceID:     d.ServiceID,
		UserID:        d.UserID,
		Description:   d.Description,
		RequestedDate: requested,
		CreatedAt:     created,
		Status:        status,
		Priority:      priority,
		Updates:       updates,
	}, nil
}

func orNow(t flexTime, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.Time
}
