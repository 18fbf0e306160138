package models

import (
	"strings"
	"time"
)

// Service is one extracted line of work: an optional hierarchical item code,
// a description, a quantity and a measurement unit.
//
// Quantity and Unit are pointers because both may be unknown while a document
// is still moving through the extraction cascade. A completed job never
// contains a service with a nil quantity or a nil/empty unit; the cascade
// drops such rows before persisting.
type Service struct {
	ItemCode    string   `json:"item_code,omitempty"`
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity"`
	Unit        string   `json:"unit"`
}

// Qty returns the quantity or zero when it is still unset.
func (s *Service) Qty() float64 {
	if s.Quantity == nil {
		return 0
	}
	return *s.Quantity
}

// HasQuantity reports whether a positive quantity has been assigned.
func (s *Service) HasQuantity() bool {
	return s.Quantity != nil && *s.Quantity > 0
}

// AttestationMetadata is the document-level information extracted alongside
// the services list: who issued the certificate and when. Either field may be
// empty when the document does not state it legibly.
type AttestationMetadata struct {
	Issuer    string `json:"issuer"`
	IssueDate string `json:"issue_date,omitempty"`
}

// Attestation is a certificate of technical capability: issuer, issue date
// and the ordered list of services it attests to. It is created only when an
// attestation job completes successfully; afterwards the user may edit the
// services list.
type Attestation struct {
	ID          string    `json:"id" badgerhold:"key"`
	UserID      string    `json:"user_id" badgerhold:"index"`
	Description string    `json:"description"`
	Issuer      string    `json:"issuer"`
	IssueDate   string    `json:"issue_date,omitempty"`
	FilePath    string    `json:"file_path"`
	OCRText     string    `json:"ocr_text,omitempty"`
	Services    []Service `json:"services"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TotalByUnit sums service quantities grouped by normalized unit token.
// Used for summary display and sanity checks, not for matching.
func (a *Attestation) TotalByUnit() map[string]float64 {
	totals := make(map[string]float64)
	for i := range a.Services {
		svc := &a.Services[i]
		unit := strings.TrimSpace(svc.Unit)
		if unit == "" || !svc.HasQuantity() {
			continue
		}
		totals[unit] += svc.Qty()
	}
	return totals
}
