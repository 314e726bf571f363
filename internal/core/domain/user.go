package domain

import "time"

// Role is the fixed access level of a user.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
	RoleUser   Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleViewer, RoleUser:
		return true
	}
	return false
}

// RequesterRoles may browse the catalog and file requests.
var RequesterRoles = []Role{RoleAdmin, RoleViewer, RoleUser}

// Stats is the denormalized request aggregate kept on every user.
// Only the reconciler writes it.
type Stats struct {
	TotalRequests     int `json:"totalRequests"`
	PendingRequests   int `json:"pendingRequests"`
	CompletedRequests int `json:"completedRequests"`
}

// User models a registered account. Password holds a bcrypt hash once the
// record has been persisted.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	Stats     Stats     `json:"stats"`
}

func (u *User) GetID() int64   { return u.ID }
func (u *User) SetID(id int64) { u.ID = id }

// Public returns a copy without the password hash, safe to hand to callers
// outside the session and auth services.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Password = ""
	return &clone
}
