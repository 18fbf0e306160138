// -----------------------------------------------------------------------
// Native Text Extractor - embedded text layer via pdfcpu, zero cost tier
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// minNativeChars is the per-page character floor below which a text layer is
// treated as absent (scanned pages often carry a few stray glyphs).
const minNativeChars = 32

// NativeExtractor pulls the embedded text layer out of a PDF. It succeeds
// only when the document actually has one; image uploads and scanned PDFs
// produce zero-confidence pages and the cascade escalates.
type NativeExtractor struct {
	logger  arbor.ILogger
	tempDir string
}

var _ interfaces.Extractor = (*NativeExtractor)(nil)

func NewNativeExtractor(logger arbor.ILogger, tempDir string) *NativeExtractor {
	return &NativeExtractor{logger: logger, tempDir: tempDir}
}

func (e *NativeExtractor) Tier() models.PipelineTier { return models.TierNativeText }

func (e *NativeExtractor) Supports(tier models.PipelineTier) bool {
	return tier == models.TierNativeText
}

// EstimatedCost is zero by model: no external service is involved.
func (e *NativeExtractor) EstimatedCost(pages int) float64 { return 0 }

func (e *NativeExtractor) Extract(ctx context.Context, file *interfaces.DocumentFile, pages []int) ([]interfaces.PageResult, error) {
	if !IsPDF(file.Path) {
		// Images never have a text layer.
		return e.emptyPages(file, pages), nil
	}

	pageTexts, err := e.extractPageTexts(ctx, file)
	if err != nil {
		return nil, Permanent(models.TierNativeText, err)
	}

	wanted := pageSet(pages, file.PageCount)
	results := make([]interfaces.PageResult, 0, len(wanted))
	for _, pageNum := range wanted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := cleanContentText(pageTexts[pageNum])
		confidence := 0.0
		if len(text) >= minNativeChars {
			confidence = 1.0
		}
		results = append(results, interfaces.PageResult{
			PageNumber: pageNum,
			Text:       text,
			Confidence: confidence,
		})
	}
	return results, nil
}

// extractPageTexts dumps per-page content streams through pdfcpu and decodes
// the text operators.
func (e *NativeExtractor) extractPageTexts(ctx context.Context, file *interfaces.DocumentFile) (map[int]string, error) {
	outDir := filepath.Join(e.tempDir, "content_"+sanitizeBase(file.Path))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(file.Path, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(entry.Name(), "page_%d", &pageNum); err != nil {
				continue
			}
		}
		pageTexts[pageNum] = string(content)
	}
	return pageTexts, nil
}

func (e *NativeExtractor) emptyPages(file *interfaces.DocumentFile, pages []int) []interfaces.PageResult {
	wanted := pageSet(pages, file.PageCount)
	results := make([]interfaces.PageResult, 0, len(wanted))
	for _, pageNum := range wanted {
		results = append(results, interfaces.PageResult{PageNumber: pageNum, Confidence: 0})
	}
	return results
}

// pageSet expands a page selection (nil = all) into a 1-indexed list.
func pageSet(pages []int, pageCount int) []int {
	if len(pages) > 0 {
		return pages
	}
	all := make([]int, pageCount)
	for i := range all {
		all[i] = i + 1
	}
	return all
}

// cleanContentText decodes the text-showing operators (Tj, TJ, ') out of a
// raw PDF content stream. pdfcpu dumps operator streams rather than decoded
// text, so the string operands are recovered here; positioning operators
// between strings on the same line become spaces, TD/Td/T* become newlines.
func cleanContentText(stream string) string {
	if stream == "" {
		return ""
	}

	var out strings.Builder
	i := 0
	n := len(stream)
	for i < n {
		c := stream[i]
		switch c {
		case '(':
			str, next := readLiteralString(stream, i)
			out.WriteString(str)
			i = next
		case 'T':
			if i+1 < n {
				switch stream[i+1] {
				case 'd', 'D', '*':
					out.WriteByte('\n')
				case 'J', 'j':
					out.WriteByte(' ')
				}
			}
			i++
		default:
			i++
		}
	}

	// Normalize runs of blank output the operator walk produces.
	lines := strings.Split(out.String(), "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// readLiteralString consumes a PDF literal string starting at the opening
// parenthesis, handling escapes and nested parentheses. Returns the decoded
// string and the index just past the closing parenthesis.
func readLiteralString(stream string, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(stream) {
		c := stream[i]
		switch c {
		case '\\':
			if i+1 >= len(stream) {
				i++
				continue
			}
			next := stream[i+1]
			if next >= '0' && next <= '7' {
				// Octal escape, up to three digits.
				j := i + 2
				for j < len(stream) && j < i+4 && stream[j] >= '0' && stream[j] <= '7' {
					j++
				}
				if v, err := strconv.ParseInt(stream[i+1:j], 8, 16); err == nil && v > 0 {
					b.WriteByte(byte(v))
				}
				i = j
				continue
			}
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r', 'b', 'f':
				// Ignored control escapes
			default:
				b.WriteByte(next)
			}
			i += 2
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
			i++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}
