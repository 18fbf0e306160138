// -----------------------------------------------------------------------
// Cascade Orchestrator - escalate through extraction tiers by confidence
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// nativeGate is the effective confidence threshold of the native tier: it
// passes only when every sampled page has a text layer.
const nativeGate = 0.98

// maxTierRuns bounds in-place retries of one tier on transient failures.
const maxTierRuns = 2

// ProgressFunc receives progress updates at stage boundaries.
type ProgressFunc func(progress models.JobProgress)

// Result is the cascade's output for one document.
type Result struct {
	Services          []models.Service
	RawText           string
	Quality           DocumentQuality
	QualityConfidence float64
	TierUsed          models.PipelineTier
	Cost              float64
	PageCount         int
}

// Orchestrator drives a document through the extraction cascade: cheapest
// tier first, escalating whenever a tier's mean confidence misses its gate.
// Every stage boundary is a cancellation checkpoint and a progress emit
// point.
type Orchestrator struct {
	logger     arbor.ILogger
	config     *common.PipelineConfig
	detector   *QualityDetector
	extractors []interfaces.Extractor
	llm        interfaces.LLMService
}

// NewOrchestrator wires an orchestrator from explicit tiers. The extractor
// slice must be ordered by cost ascending.
func NewOrchestrator(logger arbor.ILogger, config *common.PipelineConfig, detector *QualityDetector, extractors []interfaces.Extractor, llm interfaces.LLMService) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		config:     config,
		detector:   detector,
		extractors: extractors,
		llm:        llm,
	}
}

// BuildOrchestrator assembles the production cascade: native text, local
// OCR, cloud OCR and vision AI sharing one renderer.
func BuildOrchestrator(logger arbor.ILogger, config *common.PipelineConfig, llm interfaces.LLMService) *Orchestrator {
	renderer := NewRenderer(logger, config.TempDir)
	pre := NewPreprocessor(logger, config.EnablePreprocessing)
	native := NewNativeExtractor(logger, config.TempDir)

	extractors := []interfaces.Extractor{
		native,
		NewLocalOCRExtractor(logger, renderer, pre, config),
		NewCloudOCRExtractor(logger, renderer, config),
		NewVisionExtractor(logger, renderer, llm),
	}
	detector := NewQualityDetector(logger, native, renderer)
	return NewOrchestrator(logger, config, detector, extractors, llm)
}

// Process runs the cascade over one document. tierHint, when non-empty,
// overrides the quality detector's starting tier.
func (o *Orchestrator) Process(ctx context.Context, file *interfaces.DocumentFile, tierHint models.PipelineTier, onProgress ProgressFunc) (*Result, error) {
	result := &Result{PageCount: file.PageCount}

	startTier := tierHint
	if startTier == "" {
		if o.detector != nil {
			quality, confidence, err := o.detector.Detect(ctx, file)
			if err != nil {
				return nil, err
			}
			result.Quality = quality
			result.QualityConfidence = confidence
			startTier = quality.PreferredTier()
		} else {
			startTier = models.TierNativeText
		}
	}

	pages, tierUsed, err := o.extract(ctx, file, startTier, result, onProgress)
	if err != nil {
		return nil, err
	}
	result.TierUsed = tierUsed
	result.RawText = ConcatText(pages)

	// Merge: tabular rows win when any tier recovered them; otherwise a
	// structured LLM pass over the concatenated text.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emit(onProgress, models.JobProgress{Stage: models.StageMerge, Total: len(pages), Pipeline: string(tierUsed)})

	var rawServices []models.Service
	tables := collectTables(pages)
	if len(tables) > 0 {
		rawServices = ServicesFromTables(tables)
	} else {
		emit(onProgress, models.JobProgress{Stage: models.StageIA, Total: len(pages), Pipeline: string(tierUsed)})
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rawServices, err = TextPass(ctx, o.llm, pages)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, Terminal(tierUsed, fmt.Errorf("structured extraction failed: %w", err))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Services = MergeServices(rawServices, result.RawText)

	emit(onProgress, models.JobProgress{
		Stage:    models.StageFinal,
		Current:  len(pages),
		Total:    len(pages),
		Pipeline: string(tierUsed),
		Message:  fmt.Sprintf("%d services extracted", len(result.Services)),
	})

	o.logger.Info().
		Str("tier", string(tierUsed)).
		Str("quality", string(result.Quality)).
		Int("pages", result.PageCount).
		Int("services", len(result.Services)).
		Float64("cost", result.Cost).
		Msg("Cascade complete")
	return result, nil
}

// extract runs tiers starting at startTier, escalating until a tier passes
// its confidence gate. Returns the winning tier's pages.
func (o *Orchestrator) extract(ctx context.Context, file *interfaces.DocumentFile, startTier models.PipelineTier, result *Result, onProgress ProgressFunc) ([]interfaces.PageResult, models.PipelineTier, error) {
	var (
		bestPages []interfaces.PageResult
		bestConf  = -1.0
		bestTier  models.PipelineTier
	)

	started := false
	for _, extractor := range o.extractors {
		tier := extractor.Tier()
		if !started {
			if tier != startTier {
				continue
			}
			started = true
		}
		if !o.tierEnabled(tier) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		emit(onProgress, models.JobProgress{
			Stage:    tierStage(tier),
			Total:    file.PageCount,
			Pipeline: string(tier),
		})

		pages, err := o.runTier(ctx, extractor, file)
		result.Cost += extractor.EstimatedCost(file.PageCount)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			if KindOf(err) == KindTerminal || KindOf(err) == KindInvariant {
				return nil, "", err
			}
			o.logger.Warn().Err(err).Str("tier", string(tier)).Msg("Tier failed, escalating")
			continue
		}

		conf := meanConfidence(pages)
		emit(onProgress, models.JobProgress{
			Stage:    tierStage(tier),
			Current:  file.PageCount,
			Total:    file.PageCount,
			Pipeline: string(tier),
			Message:  fmt.Sprintf("confidence %.2f", conf),
		})

		if conf > bestConf {
			bestPages, bestConf, bestTier = pages, conf, tier
		}
		if conf >= o.gate(tier) || tier == models.TierVisionAI {
			return pages, tier, nil
		}
		o.logger.Debug().
			Str("tier", string(tier)).
			Float64("confidence", conf).
			Float64("gate", o.gate(tier)).
			Msg("Confidence below gate, escalating")
	}

	// No tier passed its gate (higher tiers disabled or all failed): the
	// best output seen still beats failing the job outright.
	if bestPages != nil {
		return bestPages, bestTier, nil
	}
	return nil, "", Terminal(models.TierVisionAI, fmt.Errorf("no extraction tier produced output"))
}

// runTier executes one tier, retrying in place on transient errors.
func (o *Orchestrator) runTier(ctx context.Context, extractor interfaces.Extractor, file *interfaces.DocumentFile) ([]interfaces.PageResult, error) {
	var lastErr error
	for run := 0; run < maxTierRuns; run++ {
		pages, err := extractor.Extract(ctx, file, nil)
		if err == nil {
			return pages, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) tierEnabled(tier models.PipelineTier) bool {
	switch tier {
	case models.TierCloudOCR:
		return o.config.EnableCloudOCR
	case models.TierVisionAI:
		return o.config.EnableVision
	}
	return true
}

// gate returns the minimum mean confidence a tier must reach to avoid
// escalation.
func (o *Orchestrator) gate(tier models.PipelineTier) float64 {
	switch tier {
	case models.TierNativeText:
		return nativeGate
	case models.TierLocalOCR:
		return o.config.MinConfidenceLocal
	case models.TierCloudOCR:
		return o.config.MinConfidenceCloud
	default:
		return 0 // Vision is terminal
	}
}

func tierStage(tier models.PipelineTier) string {
	switch tier {
	case models.TierNativeText:
		return models.StageTexto
	case models.TierVisionAI:
		return models.StageVision
	default:
		return models.StageOCR
	}
}

func meanConfidence(pages []interfaces.PageResult) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pages {
		sum += p.Confidence
	}
	return sum / float64(len(pages))
}

func collectTables(pages []interfaces.PageResult) []interfaces.Table {
	var tables []interfaces.Table
	for _, p := range pages {
		for _, t := range p.Tables {
			if len(t.Rows) > 0 {
				tables = append(tables, t)
			}
		}
	}
	return tables
}

func emit(onProgress ProgressFunc, progress models.JobProgress) {
	if onProgress != nil {
		onProgress(progress)
	}
}
