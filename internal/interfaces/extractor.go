// -----------------------------------------------------------------------
// Extractor Interface - tiered text/table extraction from procurement docs
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/attesto/internal/models"
)

// Table is tabular data recovered from one page.
type Table struct {
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows"`
}

// PageResult is the per-page output every extractor tier produces.
type PageResult struct {
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Tables     []Table `json:"tables,omitempty"`
	Confidence float64 `json:"confidence"`
}

// DocumentFile references an uploaded document plus pre-computed artifacts
// shared across tiers (page images survive escalation so preprocessing is
// not repeated).
type DocumentFile struct {
	Path      string
	PageCount int
	// PageImages holds preprocessed page raster paths, populated lazily by
	// the first tier that needs them.
	PageImages []string
}

// Extractor is one tier of the extraction cascade. Implementations must be
// cancellable at page boundaries: check ctx between pages and return
// ctx.Err() promptly.
type Extractor interface {
	// Tier identifies this extractor's position in the cost ordering.
	Tier() models.PipelineTier

	// Supports reports whether this extractor can serve the given tier.
	Supports(tier models.PipelineTier) bool

	// Extract processes the listed pages (1-indexed; nil means all).
	Extract(ctx context.Context, file *DocumentFile, pages []int) ([]PageResult, error)

	// EstimatedCost returns the modeled cost in credits for n pages.
	EstimatedCost(pages int) float64
}
