// Package certificate models the signing certificates required to transmit
// filings. They are administered elsewhere and read-only here.
package certificate

import (
	"context"
	"time"
)

type Certificate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	IsActive   bool      `json:"is_active"`
}

// IsValid reports isActive ∧ now ≤ validUntil.
func (c Certificate) IsValid(now time.Time) bool {
	return c.IsActive && !now.After(c.ValidUntil)
}

type Repository interface {
	// CountValid counts active certificates with validUntil ≥ now.
	CountValid(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context) ([]*Certificate, error)
}
