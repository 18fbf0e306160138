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

// AnalysisStorage implements interfaces.AnalysisStorage on badgerhold
type AnalysisStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnalysisStorage creates a new AnalysisStorage instance
func NewAnalysisStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AnalysisStorage {
	return &AnalysisStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AnalysisStorage) Save(ctx context.Context, analysis *models.Analysis) error {
	if analysis.ID == "" {
		return fmt.Errorf("analysis ID is required")
	}
	now := time.Now()
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = now
	}
	analysis.UpdatedAt = now

	if err := s.db.Store().Upsert(analysis.ID, analysis); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (s *AnalysisStorage) Get(ctx context.Context, id string) (*models.Analysis, error) {
	var analysis models.Analysis
	if err := s.db.Store().Get(id, &analysis); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("analysis %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &analysis, nil
}

func (s *AnalysisStorage) ListByUser(ctx context.Context, userID string) ([]*models.Analysis, error) {
	var analyses []models.Analysis
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&analyses, query); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	result := make([]*models.Analysis, len(analyses))
	for i := range analyses {
		result[i] = &analyses[i]
	}
	return result, nil
}

func (s *AnalysisStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Analysis{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("analysis %s: %w", id, models.ErrNotFound)
		}
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}
