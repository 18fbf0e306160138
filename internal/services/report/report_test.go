package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/models"
)

func sampleAnalysis() *models.Analysis {
	return &models.Analysis{
		ID:     "an-1",
		UserID: "user-1",
		Name:   "Concorrência 12/2025",
		Result: &models.AnalysisResult{
			GeneratedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			Requirements: []models.RequirementResult{
				{
					Requirement: models.Requirement{Code: "9.1.1", Description: "Pavimentação asfáltica em CBUQ", Required: 5000, Unit: "M2"},
					Decision:    models.DecisionMeets,
					Covered:     5000,
					CoveragePct: 100,
					Contributions: []models.Contribution{
						{AttestationID: "att-1", ServiceIndex: 0, Quantity: 3000, Similarity: 0.82},
						{AttestationID: "att-2", ServiceIndex: 1, Quantity: 2000, Similarity: 0.61},
					},
				},
				{
					Requirement: models.Requirement{Description: "Drenagem profunda", Required: 1200, Unit: "M"},
					Decision:    models.DecisionUnmet,
				},
			},
		},
	}
}

func TestGenerateAnalysisReport(t *testing.T) {
	svc := NewService(common.GetLogger())

	data, err := svc.GenerateAnalysisReport(sampleAnalysis())
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestGenerateAnalysisReport_RequiresResult(t *testing.T) {
	svc := NewService(common.GetLogger())

	_, err := svc.GenerateAnalysisReport(&models.Analysis{ID: "an-2"})
	assert.Error(t, err)
}

func TestReportFilename(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "analise-an-1-20250601-103000.pdf", ReportFilename("an-1", now))
}
