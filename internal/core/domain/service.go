package domain

import "time"

// Service is a catalog entry requests are filed against.
type Service struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Active      bool      `json:"active"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Service) GetID() int64   { return s.ID }
func (s *Service) SetID(id int64) { s.ID = id }
