package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/pipeline"
	badgerstore "github.com/ternarybob/attesto/internal/storage/badger"
)

func svcQty(v float64) *float64 { return &v }

// scriptedExtractor is a single-tier extractor returning fixed pages.
type scriptedExtractor struct {
	tier  models.PipelineTier
	pages []interfaces.PageResult
}

func (e *scriptedExtractor) Tier() models.PipelineTier              { return e.tier }
func (e *scriptedExtractor) Supports(tier models.PipelineTier) bool { return tier == e.tier }
func (e *scriptedExtractor) EstimatedCost(pages int) float64        { return 0 }
func (e *scriptedExtractor) Extract(ctx context.Context, file *interfaces.DocumentFile, pages []int) ([]interfaces.PageResult, error) {
	return e.pages, nil
}

// scriptedLLM returns fixed services and document metadata.
type scriptedLLM struct {
	services []models.Service
	metadata models.AttestationMetadata
	metaErr  error
}

func (l *scriptedLLM) ExtractServicesFromText(ctx context.Context, text string) ([]models.Service, error) {
	return l.services, nil
}

func (l *scriptedLLM) ExtractServicesFromImage(ctx context.Context, imagePath string) ([]models.Service, error) {
	return l.services, nil
}

func (l *scriptedLLM) ExtractRequirementsFromText(ctx context.Context, text string) ([]models.Requirement, error) {
	return nil, nil
}

func (l *scriptedLLM) ExtractAttestationMetadata(ctx context.Context, text string) (models.AttestationMetadata, error) {
	return l.metadata, l.metaErr
}

func (l *scriptedLLM) ProviderName() string { return "scripted" }

func newTestProcessor(t *testing.T, llm interfaces.LLMService) (*DocumentProcessor, interfaces.StorageManager) {
	t.Helper()
	logger := common.GetLogger()

	manager, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	native := &scriptedExtractor{
		tier:  models.TierNativeText,
		pages: []interfaces.PageResult{{PageNumber: 1, Text: "Atestamos a execução de pavimentação asfáltica, 1.200 M2.", Confidence: 1.0}},
	}
	cfg := &common.PipelineConfig{MinConfidenceLocal: 0.70, MinConfidenceCloud: 0.85}
	orchestrator := pipeline.NewOrchestrator(logger, cfg, nil, []interfaces.Extractor{native}, llm)

	return NewDocumentProcessor(logger, orchestrator, manager, llm, nil), manager
}

func attestationJob() *models.Job {
	return &models.Job{
		ID:               "job-meta",
		UserID:           "user-1",
		Type:             models.JobTypeAttestation,
		FilePath:         "/tmp/atestado.pdf",
		OriginalFilename: "atestado.pdf",
	}
}

func TestProcessAttestation_PersistsDocumentMetadata(t *testing.T) {
	llm := &scriptedLLM{
		services: []models.Service{
			{Description: "Pavimentação asfáltica", Quantity: svcQty(1200), Unit: "M2"},
		},
		metadata: models.AttestationMetadata{
			Issuer:    "Prefeitura Municipal de Campinas",
			IssueDate: "2024-08-15",
		},
	}
	proc, storage := newTestProcessor(t, llm)
	ctx := context.Background()

	raw, err := proc.processAttestation(ctx, attestationJob(), &interfaces.DocumentFile{Path: "/tmp/atestado.pdf", PageCount: 1}, func(models.JobProgress) {})
	require.NoError(t, err)

	var result AttestationJobResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	require.NotEmpty(t, result.AttestationID)

	att, err := storage.AttestationStorage().Get(ctx, result.AttestationID)
	require.NoError(t, err)
	assert.Equal(t, "Prefeitura Municipal de Campinas", att.Issuer)
	assert.Equal(t, "2024-08-15", att.IssueDate)
	require.Len(t, att.Services, 1)
}

func TestProcessAttestation_MetadataFailureStillCompletes(t *testing.T) {
	llm := &scriptedLLM{
		services: []models.Service{
			{Description: "Pavimentação asfáltica", Quantity: svcQty(1200), Unit: "M2"},
		},
		metaErr: fmt.Errorf("provider unavailable"),
	}
	proc, storage := newTestProcessor(t, llm)
	ctx := context.Background()

	raw, err := proc.processAttestation(ctx, attestationJob(), &interfaces.DocumentFile{Path: "/tmp/atestado.pdf", PageCount: 1}, func(models.JobProgress) {})
	require.NoError(t, err, "missing metadata must not fail the job")

	var result AttestationJobResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))

	att, err := storage.AttestationStorage().Get(ctx, result.AttestationID)
	require.NoError(t, err)
	assert.Empty(t, att.Issuer)
	assert.Empty(t, att.IssueDate)
	assert.NotEmpty(t, att.Services)
}
