// -----------------------------------------------------------------------
// Tender Notice Parser - HTML notices to qualification requirements
// -----------------------------------------------------------------------

package tender

import (
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/normalize"
	"github.com/ternarybob/attesto/internal/pipeline"
)

// Service parses tender notices into qualification requirements. HTML notices
// are scraped for requirement tables first; whatever the deterministic pass
// cannot resolve falls through to the LLM over a markdown rendering.
type Service struct {
	logger arbor.ILogger
	llm    interfaces.LLMService
}

func NewService(logger arbor.ILogger, llm interfaces.LLMService) *Service {
	return &Service{logger: logger, llm: llm}
}

// ParseNoticeHTML extracts requirements from a tender notice web page.
func (s *Service) ParseNoticeHTML(ctx context.Context, html string) ([]models.Requirement, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse notice HTML: %w", err)
	}

	doc.Find("script, style, nav, header, footer, iframe").Remove()

	if requirements := scrapeRequirementTables(doc); len(requirements) > 0 {
		s.logger.Info().
			Int("requirements", len(requirements)).
			Msg("Requirements scraped from notice tables")
		return requirements, nil
	}

	// No structured table found: render to markdown and let the model read
	// the running text.
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return nil, fmt.Errorf("failed to convert notice to markdown: %w", err)
	}
	return s.ParseNoticeText(ctx, markdown)
}

// ParseNoticeText extracts requirements from notice running text.
func (s *Service) ParseNoticeText(ctx context.Context, text string) ([]models.Requirement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	requirements, err := s.llm.ExtractRequirementsFromText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("requirement extraction failed: %w", err)
	}
	s.logger.Info().
		Int("requirements", len(requirements)).
		Str("provider", s.llm.ProviderName()).
		Msg("Requirements extracted from notice text")
	return requirements, nil
}

// requirement table headers, canonical form
var (
	quantityHeaders = []string{"QUANTIDADE", "QTDE", "QTD", "QUANTITATIVO", "QUANTITATIVO MINIMO"}
	unitHeaders     = []string{"UNIDADE", "UNID", "UND", "UN"}
	descHeaders     = []string{"DESCRICAO", "SERVICO", "ITEM DE SERVICO", "PARCELA", "PARCELA DE MAIOR RELEVANCIA"}
	codeHeaders     = []string{"ITEM", "CODIGO", "COD"}
)

// scrapeRequirementTables finds tables whose header row names a quantity and
// a unit column and reads each body row as one requirement.
func scrapeRequirementTables(doc *goquery.Document) []models.Requirement {
	var requirements []models.Requirement

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		cols := headerColumns(table)
		if cols.quantity < 0 || cols.unit < 0 || cols.description < 0 {
			return
		}

		table.Find("tr").Each(func(rowIdx int, row *goquery.Selection) {
			if rowIdx == 0 || row.Find("th").Length() > 0 {
				return
			}
			cells := row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
				return strings.TrimSpace(cell.Text())
			})
			if req, ok := requirementFromRow(cells, cols); ok {
				requirements = append(requirements, req)
			}
		})
	})

	return requirements
}

type columnIndexes struct {
	code        int
	description int
	quantity    int
	unit        int
}

func headerColumns(table *goquery.Selection) columnIndexes {
	cols := columnIndexes{code: -1, description: -1, quantity: -1, unit: -1}

	headerRow := table.Find("tr").First()
	headerRow.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		header := normalize.Description(cell.Text())
		switch {
		case cols.quantity < 0 && matchesHeader(header, quantityHeaders):
			cols.quantity = i
		case cols.unit < 0 && matchesHeader(header, unitHeaders):
			cols.unit = i
		case cols.description < 0 && matchesHeader(header, descHeaders):
			cols.description = i
		case cols.code < 0 && matchesHeader(header, codeHeaders):
			cols.code = i
		}
	})
	return cols
}

func matchesHeader(header string, candidates []string) bool {
	for _, c := range candidates {
		if header == c || strings.Contains(header, c) {
			return true
		}
	}
	return false
}

func requirementFromRow(cells []string, cols columnIndexes) (models.Requirement, bool) {
	at := func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return cells[i]
	}

	desc := at(cols.description)
	qty := pipeline.ParseQuantity(at(cols.quantity))
	unit := at(cols.unit)
	if desc == "" || qty == nil || *qty <= 0 || !normalize.ValidUnit(normalize.Unit(unit)) {
		return models.Requirement{}, false
	}

	return models.Requirement{
		Code:        at(cols.code),
		Description: desc,
		Required:    *qty,
		Unit:        unit,
		AllowSum:    true,
	}, true
}
