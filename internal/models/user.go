package models

import "time"

// User owns attestations, analyses and jobs. ApprovedBy is a weak
// back-reference to the approving admin, resolved by lookup.
type User struct {
	ID           string    `json:"id" badgerhold:"key"`
	Email        string    `json:"email" badgerhold:"unique"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	IsAdmin      bool      `json:"is_admin"`
	IsApproved   bool      `json:"is_approved"`
	IsActive     bool      `json:"is_active"`
	ApprovedBy   string    `json:"approved_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
