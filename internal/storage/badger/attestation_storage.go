package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AttestationStorage implements interfaces.AttestationStorage on badgerhold
type AttestationStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAttestationStorage creates a new AttestationStorage instance
func NewAttestationStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AttestationStorage {
	return &AttestationStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AttestationStorage) Save(ctx context.Context, att *models.Attestation) error {
	if att.ID == "" {
		return fmt.Errorf("attestation ID is required")
	}
	now := time.Now()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	att.UpdatedAt = now

	if err := s.db.Store().Upsert(att.ID, att); err != nil {
		return fmt.Errorf("failed to save attestation: %w", err)
	}
	return nil
}

func (s *AttestationStorage) Get(ctx context.Context, id string) (*models.Attestation, error) {
	var att models.Attestation
	if err := s.db.Store().Get(id, &att); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("attestation %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get attestation: %w", err)
	}
	return &att, nil
}

func (s *AttestationStorage) ListByUser(ctx context.Context, userID string) ([]*models.Attestation, error) {
	var atts []models.Attestation
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&atts, query); err != nil {
		return nil, fmt.Errorf("failed to list attestations: %w", err)
	}

	result := make([]*models.Attestation, len(atts))
	for i := range atts {
		result[i] = &atts[i]
	}
	return result, nil
}

// UpdateServices replaces the services list of an existing attestation.
// Services are expected to arrive already normalized.
func (s *AttestationStorage) UpdateServices(ctx context.Context, id string, services []models.Service) error {
	att, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	att.Services = services
	att.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, att); err != nil {
		return fmt.Errorf("failed to update attestation services: %w", err)
	}
	return nil
}

func (s *AttestationStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Attestation{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("attestation %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to delete attestation: %w", err)
	}
	return nil
}
