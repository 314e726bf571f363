package domain

import (
	"strings"
	"time"
)

// RequestStatus represents the lifecycle state of a service request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCompleted RequestStatus = "completed"
)

// validTransitions defines the allowed state machine transitions.
// rejected and completed are terminal.
var validTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusCompleted},
	StatusApproved: {StatusCompleted},
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s RequestStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Priority ranks how urgent a request is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a priority string. The legacy Spanish values
// written by older clients (baja, media, alta) map onto the canonical ones.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "baja":
		return PriorityLow, true
	case "medium", "media":
		return PriorityMedium, true
	case "high", "alta":
		return PriorityHigh, true
	}
	return "", false
}

// StatusUpdate records a single status transition on a request.
type StatusUpdate struct {
	Date    time.Time     `json:"date"`
	Status  RequestStatus `json:"status"`
	Comment string        `json:"comment"`
}

// Request is filed by exactly one user against one catalog service.
type Request struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	ServiceID     int64          `json:"serviceId"`
	UserID        int64          `json:"userId"`
	Description   string         `json:"description"`
	RequestedDate time.Time      `json:"date"`
	CreatedAt     time.Time      `json:"createdAt"`
	Status        RequestStatus  `json:"status"`
	Priority      Priority       `json:"priority"`
	Updates       []StatusUpdate `json:"updates"`
}

func (r *Request) GetID() int64   { return r.ID }
func (r *Request) SetID(id int64) { r.ID = id }

// StatsFor computes the aggregate over a user's full request set.
func StatsFor(requests []*Request) Stats {
	st := Stats{TotalRequests: len(requests)}
	for _, r := range requests {
		switch r.Status {
		case StatusPending:
			st.PendingRequests++
		case StatusCompleted:
			st.CompletedRequests++
		}
	}
	return st
}
