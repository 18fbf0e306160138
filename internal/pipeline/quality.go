// -----------------------------------------------------------------------
// Quality Detector - classify documents into difficulty tiers
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"math"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// DocumentQuality is the difficulty classification of an uploaded document.
type DocumentQuality string

const (
	QualityNative   DocumentQuality = "native"
	QualityEasy     DocumentQuality = "easy"
	QualityMedium   DocumentQuality = "medium"
	QualityHard     DocumentQuality = "hard"
	QualityVeryHard DocumentQuality = "very_hard"
)

// PreferredTier maps a difficulty class to the cascade's starting tier.
// Everything short of very_hard starts local: the cascade escalates on its
// own when confidence gates fail, and local OCR is close to free.
func (q DocumentQuality) PreferredTier() models.PipelineTier {
	switch q {
	case QualityNative:
		return models.TierNativeText
	case QualityVeryHard:
		return models.TierCloudOCR
	default:
		return models.TierLocalOCR
	}
}

// probePages caps how many pages the detector samples.
const probePages = 3

// QualityDetector classifies a document by probing its text layer and, for
// image-only documents, measuring raster statistics on a page sample.
type QualityDetector struct {
	logger   arbor.ILogger
	native   *NativeExtractor
	renderer *Renderer
}

func NewQualityDetector(logger arbor.ILogger, native *NativeExtractor, renderer *Renderer) *QualityDetector {
	return &QualityDetector{logger: logger, native: native, renderer: renderer}
}

// Detect returns the difficulty class and a confidence in [0,1].
func (d *QualityDetector) Detect(ctx context.Context, file *interfaces.DocumentFile) (DocumentQuality, float64, error) {
	sample := samplePages(file.PageCount)

	// Probe the text layer first; a real one settles the question cheaply.
	textRatio := 0.0
	if IsPDF(file.Path) {
		pages, err := d.native.Extract(ctx, file, sample)
		if err == nil {
			withText := 0
			for _, p := range pages {
				if p.Confidence >= 1.0 {
					withText++
				}
			}
			if len(pages) > 0 {
				textRatio = float64(withText) / float64(len(pages))
			}
		} else if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
	}

	if textRatio >= 0.9 {
		return QualityNative, textRatio, nil
	}

	// Image-only or mostly scanned: measure raster statistics.
	contrast, skew, err := d.measureSample(ctx, file, sample)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, err
		}
		// Cannot inspect the rasters; assume a middling scan.
		d.logger.Warn().Err(err).Msg("Quality probe could not measure page rasters")
		return QualityMedium, 0.3, nil
	}

	quality, confidence := classify(textRatio, contrast, skew)
	d.logger.Debug().
		Str("quality", string(quality)).
		Float64("text_ratio", textRatio).
		Float64("contrast", contrast).
		Float64("skew_deg", skew).
		Msg("Document quality detected")
	return quality, confidence, nil
}

// classify is the fixed decision table over the measured signals.
func classify(textRatio, contrast, skew float64) (DocumentQuality, float64) {
	skewed := skew > 1.5 || skew < -1.5

	switch {
	case textRatio >= 0.5:
		// Partial text layer: the scanned remainder is usually clean.
		return QualityEasy, 0.6 + textRatio/4
	case contrast >= 0.45 && !skewed:
		return QualityEasy, 0.8
	case contrast >= 0.45:
		return QualityMedium, 0.7
	case contrast >= 0.30:
		if skewed {
			return QualityHard, 0.6
		}
		return QualityMedium, 0.6
	case contrast >= 0.15:
		return QualityHard, 0.7
	default:
		return QualityVeryHard, 0.8
	}
}

func (d *QualityDetector) measureSample(ctx context.Context, file *interfaces.DocumentFile, sample []int) (contrast, skew float64, err error) {
	if err := d.renderer.EnsurePageImages(ctx, file); err != nil {
		return 0, 0, err
	}

	measured := 0
	for _, pageNum := range sample {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		if pageNum < 1 || pageNum > len(file.PageImages) {
			continue
		}
		img, loadErr := LoadImage(file.PageImages[pageNum-1])
		if loadErr != nil {
			continue
		}
		gray := Grayscale(img)
		contrast += MeasureContrast(gray)
		if s := EstimateSkew(gray); math.Abs(s) > math.Abs(skew) {
			skew = s
		}
		measured++
	}
	if measured == 0 {
		return 0, 0, Invariant("no sample pages could be measured")
	}
	return contrast / float64(measured), skew, nil
}

// samplePages spreads the probe over the document: first, middle, last.
func samplePages(pageCount int) []int {
	if pageCount <= probePages {
		return pageSet(nil, pageCount)
	}
	return []int{1, pageCount/2 + 1, pageCount}
}
