// -----------------------------------------------------------------------
// Report Service - analysis results exported as PDF
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/models"
)

// Service renders tender analyses into printable PDF reports.
type Service struct {
	logger arbor.ILogger
}

func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

var decisionLabels = map[models.Decision]string{
	models.DecisionMeets:   "ATENDE",
	models.DecisionPartial: "ATENDE PARCIALMENTE",
	models.DecisionUnmet:   "NÃO ATENDE",
}

// GenerateAnalysisReport renders one analysis as a PDF byte slice.
func (s *Service) GenerateAnalysisReport(analysis *models.Analysis) ([]byte, error) {
	if analysis == nil || analysis.Result == nil {
		return nil, fmt.Errorf("analysis has no match result to report")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(true, 14)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr("Análise de Qualificação Técnica"), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr(analysis.Name), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Gerado em %s", analysis.Result.GeneratedAt.Format("02/01/2006 15:04"))), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	s.summaryTable(pdf, tr, analysis.Result)

	for i := range analysis.Result.Requirements {
		s.requirementDetail(pdf, tr, &analysis.Result.Requirements[i])
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate report PDF: %w", err)
	}

	s.logger.Info().
		Str("analysis_id", analysis.ID).
		Int("requirements", len(analysis.Result.Requirements)).
		Int("pdf_bytes", buf.Len()).
		Msg("Analysis report generated")

	return buf.Bytes(), nil
}

func (s *Service) summaryTable(pdf *fpdf.Fpdf, tr func(string) string, result *models.AnalysisResult) {
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(90, 7, tr("Exigência"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(28, 7, tr("Exigido"), "1", 0, "R", true, 0, "")
	pdf.CellFormat(28, 7, tr("Coberto"), "1", 0, "R", true, 0, "")
	pdf.CellFormat(40, 7, tr("Decisão"), "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for i := range result.Requirements {
		res := &result.Requirements[i]
		desc := res.Requirement.Description
		if len(desc) > 58 {
			desc = desc[:55] + "..."
		}
		pdf.CellFormat(90, 6, tr(desc), "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, tr(fmt.Sprintf("%.2f %s", res.Requirement.Required, res.Requirement.Unit)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, tr(fmt.Sprintf("%.2f (%.0f%%)", res.Covered, res.CoveragePct)), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, tr(decisionLabels[res.Decision]), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(6)
}

func (s *Service) requirementDetail(pdf *fpdf.Fpdf, tr func(string) string, res *models.RequirementResult) {
	pdf.SetFont("Arial", "B", 10)
	title := res.Requirement.Description
	if res.Requirement.Code != "" {
		title = res.Requirement.Code + " - " + title
	}
	pdf.MultiCell(0, 6, tr(title), "", "L", false)

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Exigido: %.2f %s   Coberto: %.2f (%.0f%%)   %s",
		res.Requirement.Required, res.Requirement.Unit, res.Covered, res.CoveragePct,
		decisionLabels[res.Decision])), "", 1, "L", false, 0, "")

	if len(res.Contributions) > 0 {
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, tr("Atestados utilizados:"), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 8)
		for _, c := range res.Contributions {
			pdf.CellFormat(0, 5, tr(fmt.Sprintf("  %s (serviço %d): %.2f, similaridade %.2f",
				c.AttestationID, c.ServiceIndex, c.Quantity, c.Similarity)), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(3)
}

// ReportFilename builds the suggested download filename for a report.
func ReportFilename(analysisID string, now time.Time) string {
	return fmt.Sprintf("analise-%s-%s.pdf", analysisID, now.Format("20060102-150405"))
}
