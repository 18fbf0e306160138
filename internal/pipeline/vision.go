// -----------------------------------------------------------------------
// Vision AI Extractor - multimodal structured extraction, terminal tier
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// visionConfidence is assigned to pages the vision model handled. The model
// returns schema-constrained rows rather than a character confidence, so a
// fixed high score stands in; vision never escalates anyway.
const visionConfidence = 0.90

// VisionExtractor sends page images to a multimodal model constrained to the
// services-table schema. The extracted rows are surfaced as tabular page
// output so the merge step treats them like any other recovered table.
//
// This is the terminal tier: a failure here fails the job.
type VisionExtractor struct {
	logger   arbor.ILogger
	renderer *Renderer
	llm      interfaces.LLMService
}

var _ interfaces.Extractor = (*VisionExtractor)(nil)

func NewVisionExtractor(logger arbor.ILogger, renderer *Renderer, llm interfaces.LLMService) *VisionExtractor {
	return &VisionExtractor{logger: logger, renderer: renderer, llm: llm}
}

func (e *VisionExtractor) Tier() models.PipelineTier { return models.TierVisionAI }

func (e *VisionExtractor) Supports(tier models.PipelineTier) bool {
	return tier == models.TierVisionAI
}

// EstimatedCost models per-page multimodal inference, the priciest tier.
func (e *VisionExtractor) EstimatedCost(pages int) float64 {
	return 0.05 * float64(pages)
}

func (e *VisionExtractor) Extract(ctx context.Context, file *interfaces.DocumentFile, pages []int) ([]interfaces.PageResult, error) {
	if err := e.renderer.EnsurePageImages(ctx, file); err != nil {
		return nil, Terminal(models.TierVisionAI, err)
	}

	wanted := pageSet(pages, file.PageCount)
	results := make([]interfaces.PageResult, 0, len(wanted))
	for _, pageNum := range wanted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pageNum < 1 || pageNum > len(file.PageImages) {
			return nil, Invariant("page %d out of range (%d images)", pageNum, len(file.PageImages))
		}

		services, err := e.llm.ExtractServicesFromImage(ctx, file.PageImages[pageNum-1])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, Terminal(models.TierVisionAI, fmt.Errorf("vision extraction failed on page %d: %w", pageNum, err))
		}

		results = append(results, interfaces.PageResult{
			PageNumber: pageNum,
			Tables:     []interfaces.Table{servicesToTable(services)},
			Confidence: visionConfidence,
		})
		e.logger.Debug().
			Int("page", pageNum).
			Int("rows", len(services)).
			Str("provider", e.llm.ProviderName()).
			Msg("Vision extraction complete")
	}
	return results, nil
}

// servicesToTable renders extracted services as a canonical four-column
// table (item code, description, quantity, unit).
func servicesToTable(services []models.Service) interfaces.Table {
	t := interfaces.Table{Headers: []string{"item", "descricao", "quantidade", "unidade"}}
	for _, svc := range services {
		qty := ""
		if svc.Quantity != nil {
			qty = strconv.FormatFloat(*svc.Quantity, 'f', -1, 64)
		}
		t.Rows = append(t.Rows, []string{svc.ItemCode, svc.Description, qty, svc.Unit})
	}
	return t
}
