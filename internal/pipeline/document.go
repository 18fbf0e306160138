// -----------------------------------------------------------------------
// Document loading - page counting and page-image rendering shared by tiers
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// IsPDF reports whether the path looks like a PDF document.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// IsImage reports whether the path looks like a supported raster image.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// OpenDocument builds a DocumentFile for an uploaded path, counting pages.
// Image uploads are single-page documents.
func OpenDocument(path string) (*interfaces.DocumentFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("document not accessible: %w", err)
	}

	if IsImage(path) {
		return &interfaces.DocumentFile{Path: path, PageCount: 1}, nil
	}

	if !IsPDF(path) {
		return nil, fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return &interfaces.DocumentFile{Path: path, PageCount: pdfCtx.PageCount}, nil
}

// Renderer materializes page rasters for OCR and vision tiers. PDF pages are
// rendered through an external rasterizer; image uploads pass through.
// Rendered images are cached on the DocumentFile so escalated tiers reuse
// them.
type Renderer struct {
	logger  arbor.ILogger
	tempDir string
	command string // default "pdftoppm"
}

func NewRenderer(logger arbor.ILogger, tempDir string) *Renderer {
	return &Renderer{
		logger:  logger,
		tempDir: tempDir,
		command: "pdftoppm",
	}
}

// EnsurePageImages populates file.PageImages, rendering on first use.
func (r *Renderer) EnsurePageImages(ctx context.Context, file *interfaces.DocumentFile) error {
	if len(file.PageImages) == file.PageCount && file.PageCount > 0 {
		return nil
	}

	if IsImage(file.Path) {
		file.PageImages = []string{file.Path}
		return nil
	}

	outDir := filepath.Join(r.tempDir, "pages_"+sanitizeBase(file.Path))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create render directory: %w", err)
	}

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, r.command, "-png", "-r", "300", file.Path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("page rendering failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return fmt.Errorf("failed to list rendered pages: %w", err)
	}

	var images []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "page") && strings.HasSuffix(e.Name(), ".png") {
			images = append(images, filepath.Join(outDir, e.Name()))
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(images)

	if len(images) == 0 {
		return fmt.Errorf("page rendering produced no images")
	}

	file.PageImages = images
	if file.PageCount == 0 {
		file.PageCount = len(images)
	}
	r.logger.Debug().Int("pages", len(images)).Str("file", filepath.Base(file.Path)).Msg("Rendered page images")
	return nil
}

// Cleanup removes rendered artifacts for a document.
func (r *Renderer) Cleanup(file *interfaces.DocumentFile) {
	if IsImage(file.Path) {
		return
	}
	outDir := filepath.Join(r.tempDir, "pages_"+sanitizeBase(file.Path))
	if err := os.RemoveAll(outDir); err != nil {
		r.logger.Warn().Err(err).Str("dir", outDir).Msg("Failed to remove render directory")
	}
}

func sanitizeBase(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, c := range base {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
