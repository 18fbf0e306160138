// -----------------------------------------------------------------------
// Document Processor - turns claimed jobs into attestations and analyses
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/matcher"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/pipeline"
)

// AttestationJobResult is the serialized output of a completed attestation
// job.
type AttestationJobResult struct {
	AttestationID string           `json:"attestation_id"`
	Services      []models.Service `json:"services"`
	TierUsed      string           `json:"tier_used"`
	Quality       string           `json:"quality,omitempty"`
	PageCount     int              `json:"page_count"`
	Cost          float64          `json:"cost"`
}

// AnalysisJobResult is the serialized output of a completed tender analysis
// job.
type AnalysisJobResult struct {
	AnalysisID   string               `json:"analysis_id"`
	Requirements []models.Requirement `json:"requirements"`
	TierUsed     string               `json:"tier_used"`
	PageCount    int                  `json:"page_count"`
}

// DocumentProcessor runs the extraction cascade for attestation jobs and the
// requirement-plus-matching flow for tender analysis jobs.
type DocumentProcessor struct {
	logger       arbor.ILogger
	orchestrator *pipeline.Orchestrator
	storage      interfaces.StorageManager
	llm          interfaces.LLMService
	matcher      *matcher.Matcher
}

func NewDocumentProcessor(logger arbor.ILogger, orchestrator *pipeline.Orchestrator, storage interfaces.StorageManager, llm interfaces.LLMService, m *matcher.Matcher) *DocumentProcessor {
	return &DocumentProcessor{
		logger:       logger,
		orchestrator: orchestrator,
		storage:      storage,
		llm:          llm,
		matcher:      m,
	}
}

func (p *DocumentProcessor) Process(ctx context.Context, job *models.Job, onProgress pipeline.ProgressFunc) (string, error) {
	file, err := pipeline.OpenDocument(job.FilePath)
	if err != nil {
		return "", pipeline.Terminal("", fmt.Errorf("failed to open document: %w", err))
	}

	switch job.Type {
	case models.JobTypeAttestation:
		return p.processAttestation(ctx, job, file, onProgress)
	case models.JobTypeTenderAnalysis:
		return p.processTenderAnalysis(ctx, job, file, onProgress)
	default:
		return "", pipeline.Terminal("", fmt.Errorf("unknown job type %q", job.Type))
	}
}

func (p *DocumentProcessor) processAttestation(ctx context.Context, job *models.Job, file *interfaces.DocumentFile, onProgress pipeline.ProgressFunc) (string, error) {
	result, err := p.orchestrator.Process(ctx, file, "", onProgress)
	if err != nil {
		return "", err
	}

	meta := p.extractMetadata(ctx, job.ID, result.RawText)

	onProgress(models.JobProgress{Stage: models.StageSave, Current: result.PageCount, Total: result.PageCount, Pipeline: string(result.TierUsed)})
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := time.Now()
	att := &models.Attestation{
		ID:          uuid.New().String(),
		UserID:      job.UserID,
		Description: job.OriginalFilename,
		Issuer:      meta.Issuer,
		IssueDate:   meta.IssueDate,
		FilePath:    job.FilePath,
		OCRText:     result.RawText,
		Services:    result.Services,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.storage.AttestationStorage().Save(ctx, att); err != nil {
		return "", fmt.Errorf("failed to save attestation: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("attestation_id", att.ID).
		Int("services", len(att.Services)).
		Str("tier", string(result.TierUsed)).
		Float64("cost", result.Cost).
		Msg("Attestation created")

	return marshalResult(AttestationJobResult{
		AttestationID: att.ID,
		Services:      att.Services,
		TierUsed:      string(result.TierUsed),
		Quality:       string(result.Quality),
		PageCount:     result.PageCount,
		Cost:          result.Cost,
	})
}

// extractMetadata asks the model for the issuer and issue date. Metadata is
// best effort: a document whose services extracted cleanly still produces an
// attestation when the issuer block is illegible.
func (p *DocumentProcessor) extractMetadata(ctx context.Context, jobID, rawText string) models.AttestationMetadata {
	if rawText == "" {
		return models.AttestationMetadata{}
	}
	meta, err := p.llm.ExtractAttestationMetadata(ctx, rawText)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("Attestation metadata extraction failed, fields left empty")
		return models.AttestationMetadata{}
	}
	return meta
}

func (p *DocumentProcessor) processTenderAnalysis(ctx context.Context, job *models.Job, file *interfaces.DocumentFile, onProgress pipeline.ProgressFunc) (string, error) {
	result, err := p.orchestrator.Process(ctx, file, "", onProgress)
	if err != nil {
		return "", err
	}

	onProgress(models.JobProgress{Stage: models.StageIA, Current: result.PageCount, Total: result.PageCount, Pipeline: string(result.TierUsed)})
	requirements, err := p.llm.ExtractRequirementsFromText(ctx, result.RawText)
	if err != nil {
		return "", pipeline.Terminal(result.TierUsed, fmt.Errorf("requirement extraction failed: %w", err))
	}

	attestations, err := p.storage.AttestationStorage().ListByUser(ctx, job.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load attestations: %w", err)
	}
	matchResult := p.matcher.Match(requirements, attestations)

	onProgress(models.JobProgress{Stage: models.StageSave, Current: result.PageCount, Total: result.PageCount})
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := time.Now()
	analysis := &models.Analysis{
		ID:           uuid.New().String(),
		UserID:       job.UserID,
		Name:         job.OriginalFilename,
		FilePath:     job.FilePath,
		Requirements: requirements,
		Result:       matchResult,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.storage.AnalysisStorage().Save(ctx, analysis); err != nil {
		return "", fmt.Errorf("failed to save analysis: %w", err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("analysis_id", analysis.ID).
		Int("requirements", len(requirements)).
		Msg("Tender analysis created")

	return marshalResult(AnalysisJobResult{
		AnalysisID:   analysis.ID,
		Requirements: requirements,
		TierUsed:     string(result.TierUsed),
		PageCount:    result.PageCount,
	})
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize job result: %w", err)
	}
	return string(data), nil
}
