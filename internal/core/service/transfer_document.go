package service

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// document is the bulk import/export shape. On import "user" may be a single
// object or an array; export always writes an array.
type document struct {
	User     userList     `json:"user"`
	Requests []requestDoc `json:"requests"`
	Services []serviceDoc `json:"services"`
}

type statsDoc struct {
	TotalRequests     int `json:"totalRequests"`
	PendingRequests   int `json:"pendingRequests"`
	CompletedRequests int `json:"completedRequests"`
}

type userDoc struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Role      string   `json:"role"`
	CreatedAt flexTime `json:"createdAt"`
	Stats     statsDoc `json:"stats"`
}

type serviceDoc struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Active      *bool    `json:"active,omitempty"`
	Image       string   `json:"image,omitempty"`
	CreatedAt   flexTime `json:"createdAt"`
}

type statusUpdateDoc struct {
	Date    flexTime `json:"date"`
	Status  string   `json:"status"`
	Comment string   `json:"comment"`
}

type requestDoc struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	ServiceID   int64             `json:"serviceId"`
	UserID      int64             `json:"userId"`
	Description string            `json:"description"`
	Date        flexTime          `json:"date"`
	CreatedAt   flexTime          `json:"createdAt"`
	Status      string            `json:"status"`
	Priority    string            `json:"priority"`
	Updates     []statusUpdateDoc `json:"updates"`
}

// userList decodes either a single user object or an array of them.
type userList []userDoc

func (l *userList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*l = nil
		return nil
	case trimmed[0] == '{':
		var one userDoc
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*l = userList{one}
		return nil
	default:
		var many []userDoc
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
}

// flexTime accepts RFC 3339 timestamps as well as bare dates and writes
// RFC 3339.
type flexTime struct {
	time.Time
}

var flexLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range flexLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t flexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
