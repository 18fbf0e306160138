// -----------------------------------------------------------------------
// Cloud OCR Extractor - remote recognition with exponential backoff
// -----------------------------------------------------------------------

package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"golang.org/x/time/rate"
)

const (
	cloudRetryAttempts = 3
	cloudRetryBase     = 500 * time.Millisecond
	cloudRetryFactor   = 2
	cloudRetryCap      = 8 * time.Second

	// cloudRequestsPerSecond caps the outbound request rate across all
	// concurrent workers sharing this extractor.
	cloudRequestsPerSecond = 5
)

// cloudOCRRequest is the wire shape sent per page.
type cloudOCRRequest struct {
	ImageBase64 string `json:"image_base64"`
	Language    string `json:"language"`
}

// cloudOCRResponse is the wire shape returned per page.
type cloudOCRResponse struct {
	Text       string             `json:"text"`
	Confidence float64            `json:"confidence"`
	Tables     []cloudOCRTableDTO `json:"tables,omitempty"`
}

type cloudOCRTableDTO struct {
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows"`
}

// CloudOCRExtractor sends page rasters to a remote recognition service.
// Transient failures (5xx, network) are retried inside the adapter with
// exponential backoff; 4xx responses are permanent and escalate.
type CloudOCRExtractor struct {
	logger   arbor.ILogger
	renderer *Renderer
	client   *http.Client
	endpoint string
	limiter  *rate.Limiter
}

var _ interfaces.Extractor = (*CloudOCRExtractor)(nil)

func NewCloudOCRExtractor(logger arbor.ILogger, renderer *Renderer, cfg *common.PipelineConfig) *CloudOCRExtractor {
	timeout := 30 * time.Second
	if d, err := time.ParseDuration(cfg.CloudOCRTimeout); err == nil && d > 0 {
		timeout = d
	}
	return &CloudOCRExtractor{
		logger:   logger,
		renderer: renderer,
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.CloudOCREndpoint,
		limiter:  rate.NewLimiter(rate.Limit(cloudRequestsPerSecond), cloudRequestsPerSecond),
	}
}

func (e *CloudOCRExtractor) Tier() models.PipelineTier { return models.TierCloudOCR }

func (e *CloudOCRExtractor) Supports(tier models.PipelineTier) bool {
	return tier == models.TierCloudOCR
}

// EstimatedCost models the per-page billing of the remote service.
func (e *CloudOCRExtractor) EstimatedCost(pages int) float64 {
	return 0.01 * float64(pages)
}

func (e *CloudOCRExtractor) Extract(ctx context.Context, file *interfaces.DocumentFile, pages []int) ([]interfaces.PageResult, error) {
	if e.endpoint == "" {
		return nil, Permanent(models.TierCloudOCR, fmt.Errorf("cloud OCR endpoint not configured"))
	}
	if err := e.renderer.EnsurePageImages(ctx, file); err != nil {
		return nil, Permanent(models.TierCloudOCR, err)
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

		resp, err := e.recognizePage(ctx, file.PageImages[pageNum-1])
		if err != nil {
			return nil, err
		}

		page := interfaces.PageResult{
			PageNumber: pageNum,
			Text:       resp.Text,
			Confidence: resp.Confidence,
		}
		for _, t := range resp.Tables {
			page.Tables = append(page.Tables, interfaces.Table{Headers: t.Headers, Rows: t.Rows})
		}
		results = append(results, page)
	}
	return results, nil
}

// recognizePage posts one page image, retrying transient failures with
// exponential backoff (base 500ms, factor 2, cap 8s).
func (e *CloudOCRExtractor) recognizePage(ctx context.Context, imagePath string) (*cloudOCRResponse, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, Permanent(models.TierCloudOCR, fmt.Errorf("failed to read page image: %w", err))
	}

	body, err := json.Marshal(cloudOCRRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(imageData),
		Language:    "por",
	})
	if err != nil {
		return nil, Permanent(models.TierCloudOCR, err)
	}

	var lastErr error
	delay := cloudRetryBase
	for attempt := 1; attempt <= cloudRetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= cloudRetryFactor
			if delay > cloudRetryCap {
				delay = cloudRetryCap
			}
		}

		resp, err := e.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
		e.logger.Warn().Err(err).Int("attempt", attempt).Msg("Cloud OCR call failed, retrying")
	}
	// Retry budget exhausted: hand the page to the next tier.
	return nil, Permanent(models.TierCloudOCR, fmt.Errorf("retry budget exhausted: %w", lastErr))
}

func (e *CloudOCRExtractor) post(ctx context.Context, body []byte) (*cloudOCRResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(models.TierCloudOCR, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, Transient(models.TierCloudOCR, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, Transient(models.TierCloudOCR, err)
	}

	switch {
	case httpResp.StatusCode >= 500:
		return nil, Transient(models.TierCloudOCR, fmt.Errorf("provider %d: %s", httpResp.StatusCode, truncate(respBody, 200)))
	case httpResp.StatusCode >= 400:
		return nil, Permanent(models.TierCloudOCR, fmt.Errorf("provider %d: %s", httpResp.StatusCode, truncate(respBody, 200)))
	}

	var resp cloudOCRResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, Permanent(models.TierCloudOCR, fmt.Errorf("malformed provider response: %w", err))
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
