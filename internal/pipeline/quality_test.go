package pipeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/attesto/internal/models"
)

func TestClassify_DecisionTable(t *testing.T) {
	tests := []struct {
		name      string
		textRatio float64
		contrast  float64
		skew      float64
		want      DocumentQuality
	}{
		{"partial text layer", 0.6, 0.1, 0, QualityEasy},
		{"clean scan", 0, 0.5, 0, QualityEasy},
		{"clean but skewed", 0, 0.5, 2.5, QualityMedium},
		{"middling contrast", 0, 0.35, 0, QualityMedium},
		{"middling and skewed", 0, 0.35, -2.0, QualityHard},
		{"low contrast", 0, 0.2, 0, QualityHard},
		{"washed out", 0, 0.05, 0, QualityVeryHard},
	}
	for _, tt := range tests {
		quality, confidence := classify(tt.textRatio, tt.contrast, tt.skew)
		assert.Equal(t, tt.want, quality, tt.name)
		assert.Greater(t, confidence, 0.0, tt.name)
		assert.LessOrEqual(t, confidence, 1.0, tt.name)
	}
}

func TestPreferredTier(t *testing.T) {
	assert.Equal(t, models.TierNativeText, QualityNative.PreferredTier())
	assert.Equal(t, models.TierLocalOCR, QualityEasy.PreferredTier())
	assert.Equal(t, models.TierLocalOCR, QualityMedium.PreferredTier())
	assert.Equal(t, models.TierLocalOCR, QualityHard.PreferredTier())
	assert.Equal(t, models.TierCloudOCR, QualityVeryHard.PreferredTier())
}

func TestSamplePages(t *testing.T) {
	assert.Equal(t, []int{1, 2}, samplePages(2))
	assert.Equal(t, []int{1, 2, 3}, samplePages(3))
	assert.Equal(t, []int{1, 6, 10}, samplePages(10))
}

func TestMeasureContrast(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	assert.InDelta(t, 0, MeasureContrast(flat), 1e-9)

	// Half black, half white: maximal spread.
	split := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range split.Pix {
		if i%2 == 0 {
			split.Pix[i] = 255
		}
	}
	assert.Greater(t, MeasureContrast(split), 0.9)
}

func TestContrastStretch_ExpandsRange(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	// Washed-out scan: everything between 100 and 150.
	for i := range g.Pix {
		g.Pix[i] = uint8(100 + (i % 50))
	}
	before := MeasureContrast(g)
	after := MeasureContrast(ContrastStretch(g))
	assert.Greater(t, after, before)
}
