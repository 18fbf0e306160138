// -----------------------------------------------------------------------
// Image preprocessing - deskew, contrast stretch, denoise ahead of OCR
// -----------------------------------------------------------------------

package pipeline

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/webp"
)

// Preprocessor cleans page rasters before local OCR. Cleaned images are
// written next to the originals with a "_prep" suffix so escalated tiers can
// reuse them.
type Preprocessor struct {
	logger  arbor.ILogger
	enabled bool
}

func NewPreprocessor(logger arbor.ILogger, enabled bool) *Preprocessor {
	return &Preprocessor{logger: logger, enabled: enabled}
}

// Process deskews, stretches contrast and denoises one page image. Returns
// the path of the cleaned raster (the input path when disabled).
func (p *Preprocessor) Process(imagePath string) (string, error) {
	if !p.enabled {
		return imagePath, nil
	}

	img, err := LoadImage(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to load page image: %w", err)
	}

	gray := Grayscale(img)

	if skew := EstimateSkew(gray); math.Abs(skew) > 0.3 {
		gray = Rotate(gray, -skew)
		p.logger.Debug().Str("image", filepath.Base(imagePath)).Float64("skew_deg", skew).Msg("Deskewed page")
	}

	gray = ContrastStretch(gray)
	gray = Denoise(gray)

	ext := filepath.Ext(imagePath)
	outPath := strings.TrimSuffix(imagePath, ext) + "_prep.png"
	if err := savePNG(outPath, gray); err != nil {
		return "", err
	}
	return outPath, nil
}

// LoadImage decodes a PNG, JPEG or WEBP raster.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".webp":
		return webp.Decode(f)
	default:
		img, _, err := image.Decode(f)
		return img, err
	}
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()
	return png.Encode(f, img)
}

// Grayscale converts any image to 8-bit gray.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// ContrastStretch linearly maps the 5th..95th intensity percentile onto the
// full 0..255 range. Low-contrast scans gain most; clean scans are unchanged
// within rounding.
func ContrastStretch(g *image.Gray) *image.Gray {
	var hist [256]int
	for _, px := range g.Pix {
		hist[px]++
	}
	total := len(g.Pix)
	if total == 0 {
		return g
	}

	lo, hi := percentile(hist[:], total, 0.05), percentile(hist[:], total, 0.95)
	if hi <= lo {
		return g
	}

	out := image.NewGray(g.Bounds())
	scale := 255.0 / float64(hi-lo)
	for i, px := range g.Pix {
		v := (float64(px) - float64(lo)) * scale
		out.Pix[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return out
}

func percentile(hist []int, total int, p float64) int {
	target := int(float64(total) * p)
	sum := 0
	for v, n := range hist {
		sum += n
		if sum >= target {
			return v
		}
	}
	return 255
}

// Denoise applies a 3x3 median filter, removing salt-and-pepper speckle
// without blurring strokes the way a box filter would.
func Denoise(g *image.Gray) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return g
	}

	out := image.NewGray(b)
	copy(out.Pix, g.Pix)

	window := make([]byte, 0, 9)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				row := (y+dy)*g.Stride + x - 1
				window = append(window, g.Pix[row], g.Pix[row+1], g.Pix[row+2])
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.Pix[y*out.Stride+x] = window[4]
		}
	}
	return out
}

// MeasureContrast returns the normalized standard deviation of intensity,
// in [0,1]. Washed-out scans score near zero.
func MeasureContrast(g *image.Gray) float64 {
	n := float64(len(g.Pix))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, px := range g.Pix {
		sum += float64(px)
	}
	mean := sum / n

	var variance float64
	for _, px := range g.Pix {
		d := float64(px) - mean
		variance += d * d
	}
	return math.Sqrt(variance/n) / 128.0
}

// EstimateSkew estimates page rotation in degrees by maximizing the variance
// of horizontal projection profiles over a small angle sweep. Text lines
// produce the sharpest profile when the page is level.
func EstimateSkew(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 50 || h < 50 {
		return 0
	}

	// Sample a coarse grid; full resolution is unnecessary for an estimate.
	const step = 4
	bestAngle, bestScore := 0.0, -1.0
	for angle := -3.0; angle <= 3.0; angle += 0.5 {
		rad := angle * math.Pi / 180
		sin, cos := math.Sin(rad), math.Cos(rad)

		rows := make([]int, h/step+1)
		for y := 0; y < h; y += step {
			for x := 0; x < w; x += step {
				if g.Pix[y*g.Stride+x] < 128 {
					ry := int(float64(y)*cos - float64(x)*sin)
					idx := ry / step
					if idx >= 0 && idx < len(rows) {
						rows[idx]++
					}
				}
			}
		}

		var sum, sq float64
		for _, c := range rows {
			sum += float64(c)
			sq += float64(c) * float64(c)
		}
		n := float64(len(rows))
		score := sq/n - (sum/n)*(sum/n)
		if score > bestScore {
			bestScore, bestAngle = score, angle
		}
	}
	return bestAngle
}

// Rotate rotates the image around its center by the given angle in degrees,
// filling exposed corners with white.
func Rotate(g *image.Gray, degrees float64) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for i := range out.Pix {
		out.Pix[i] = 255
	}

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(b.Dx())/2, float64(b.Dy())/2

	// Affine rotation about the center.
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(out, m, g, b, draw.Src, nil)
	return out
}
