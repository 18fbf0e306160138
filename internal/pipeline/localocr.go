// -----------------------------------------------------------------------
// Local OCR Extractor - preprocessed rasters through tesseract, with a
// secondary recognizer fallback on low-confidence pages
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// fallbackThreshold is the per-page confidence below which the secondary
// recognizer is tried. Distinct from the cascade's escalation gate: the
// fallback is a second local attempt before giving up on the tier.
const fallbackThreshold = 0.50

// LocalOCRExtractor runs a local recognizer binary over preprocessed page
// rasters. OCR engines are not concurrency-safe as a rule; each call spawns
// a fresh process, so the extractor itself is stateless and safe to share.
type LocalOCRExtractor struct {
	logger       arbor.ILogger
	renderer     *Renderer
	preprocessor *Preprocessor
	command      string
	fallback     string
}

var _ interfaces.Extractor = (*LocalOCRExtractor)(nil)

func NewLocalOCRExtractor(logger arbor.ILogger, renderer *Renderer, pre *Preprocessor, cfg *common.PipelineConfig) *LocalOCRExtractor {
	return &LocalOCRExtractor{
		logger:       logger,
		renderer:     renderer,
		preprocessor: pre,
		command:      cfg.LocalOCRCommand,
		fallback:     cfg.LocalOCRFallback,
	}
}

func (e *LocalOCRExtractor) Tier() models.PipelineTier { return models.TierLocalOCR }

func (e *LocalOCRExtractor) Supports(tier models.PipelineTier) bool {
	return tier == models.TierLocalOCR
}

// EstimatedCost models local OCR as near-free compute.
func (e *LocalOCRExtractor) EstimatedCost(pages int) float64 {
	return 0.001 * float64(pages)
}

func (e *LocalOCRExtractor) Extract(ctx context.Context, file *interfaces.DocumentFile, pages []int) ([]interfaces.PageResult, error) {
	if err := e.renderer.EnsurePageImages(ctx, file); err != nil {
		return nil, Permanent(models.TierLocalOCR, err)
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

		imagePath, err := e.preprocessor.Process(file.PageImages[pageNum-1])
		if err != nil {
			return nil, Permanent(models.TierLocalOCR, err)
		}

		text, confidence, err := e.recognize(ctx, e.command, imagePath)
		if err != nil {
			return nil, err
		}

		if confidence < fallbackThreshold && e.fallback != "" && e.fallback != e.command {
			fbText, fbConf, fbErr := e.recognize(ctx, e.fallback, imagePath)
			if fbErr == nil && fbConf > confidence {
				e.logger.Debug().
					Int("page", pageNum).
					Float64("primary", confidence).
					Float64("fallback", fbConf).
					Msg("Secondary recognizer preferred")
				text, confidence = fbText, fbConf
			}
		}

		results = append(results, interfaces.PageResult{
			PageNumber: pageNum,
			Text:       text,
			Confidence: confidence,
		})
	}
	return results, nil
}

// recognize runs one recognizer binary in TSV mode and returns text plus
// mean word confidence in [0,1].
func (e *LocalOCRExtractor) recognize(ctx context.Context, command, imagePath string) (string, float64, error) {
	cmd := exec.CommandContext(ctx, command, imagePath, "stdout", "-l", "por", "tsv")
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if _, lookErr := exec.LookPath(command); lookErr != nil {
			return "", 0, Permanent(models.TierLocalOCR, fmt.Errorf("recognizer %q not installed: %w", command, lookErr))
		}
		return "", 0, Permanent(models.TierLocalOCR, fmt.Errorf("recognizer %q failed: %w", command, err))
	}
	text, confidence := parseTSV(string(out))
	return text, confidence, nil
}

// parseTSV reconstructs line text and mean word confidence from tesseract
// TSV output. Columns: level, page, block, par, line, word, left, top,
// width, height, conf, text. Confidence -1 marks layout rows, not words.
func parseTSV(tsv string) (string, float64) {
	var (
		text     strings.Builder
		confSum  float64
		words    int
		lastLine = -1
	)

	for _, row := range strings.Split(tsv, "\n") {
		cols := strings.Split(row, "\t")
		if len(cols) < 12 || cols[0] == "level" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		lineNum, _ := strconv.Atoi(cols[4])
		if lastLine >= 0 {
			if lineNum != lastLine {
				text.WriteByte('\n')
			} else {
				text.WriteByte(' ')
			}
		}
		lastLine = lineNum

		text.WriteString(word)
		confSum += conf
		words++
	}

	if words == 0 {
		return "", 0
	}
	return text.String(), confSum / float64(words) / 100.0
}
