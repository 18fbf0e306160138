// -----------------------------------------------------------------------
// Structured extraction - services out of recovered tables or raw text
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
	"github.com/ternarybob/attesto/internal/normalize"
)

var (
	// quantityPattern matches decimal quantities in Brazilian ("1.234,56")
	// or plain ("1234.56") notation.
	quantityPattern = regexp.MustCompile(`^\d{1,3}(\.\d{3})*(,\d+)?$|^\d+([.,]\d+)?$`)

	// groupedPattern matches dot-grouped integers ("1.200", "12.345.678").
	groupedPattern = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)

	headerWords = map[string]bool{
		"ITEM": true, "CODIGO": true, "DESCRICAO": true, "DISCRIMINACAO": true,
		"SERVICO": true, "SERVICOS": true, "QUANTIDADE": true, "QTD": true,
		"QTDE": true, "UNIDADE": true, "UNID": true, "UN": true, "TOTAL": true,
	}
)

// ParseQuantity parses a quantity cell, accepting Brazilian thousand/decimal
// separators. Returns nil when the cell is not an unambiguous number.
func ParseQuantity(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" || !quantityPattern.MatchString(s) {
		return nil
	}

	if strings.Contains(s, ",") {
		// Brazilian notation: dots group thousands, comma is the decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if groupedPattern.MatchString(s) {
		// Dots in exact three-digit groups read as thousand separators
		// ("1.200" is twelve hundred in these documents, not 1.2).
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// ServicesFromTables converts recovered table rows into raw services. Column
// roles are inferred per row: a leading item-code token, the rightmost valid
// unit token, the numeric cell nearest the unit as quantity, and the longest
// remaining cell as description.
func ServicesFromTables(tables []interfaces.Table) []models.Service {
	var services []models.Service
	for _, table := range tables {
		for _, row := range table.Rows {
			if svc, ok := serviceFromRow(row); ok {
				services = append(services, svc)
			}
		}
	}
	return services
}

func serviceFromRow(row []string) (models.Service, bool) {
	cells := make([]string, 0, len(row))
	for _, c := range row {
		cells = append(cells, strings.TrimSpace(c))
	}
	if isHeaderRow(cells) {
		return models.Service{}, false
	}

	var svc models.Service

	// Unit: the rightmost short cell that normalizes to a valid unit.
	unitIdx := -1
	for i := len(cells) - 1; i >= 0; i-- {
		tok := normalize.Unit(cells[i])
		if tok != "" && normalize.ValidUnit(tok) && !isNumericCell(cells[i]) && len(cells[i]) <= 10 {
			svc.Unit = cells[i]
			unitIdx = i
			break
		}
	}

	// Quantity: prefer the numeric cell adjacent to the unit, else the last
	// numeric cell.
	qtyIdx := -1
	for _, i := range []int{unitIdx - 1, unitIdx + 1} {
		if i >= 0 && i < len(cells) && i != unitIdx {
			if q := ParseQuantity(cells[i]); q != nil {
				svc.Quantity, qtyIdx = q, i
				break
			}
		}
	}
	if qtyIdx < 0 {
		for i := len(cells) - 1; i >= 0; i-- {
			if i == unitIdx {
				continue
			}
			if q := ParseQuantity(cells[i]); q != nil {
				svc.Quantity, qtyIdx = q, i
				break
			}
		}
	}

	// Description: the longest remaining cell.
	descIdx := -1
	for i, c := range cells {
		if i == unitIdx || i == qtyIdx || c == "" || isNumericCell(c) {
			continue
		}
		if descIdx < 0 || len(c) > len(cells[descIdx]) {
			descIdx = i
		}
	}
	if descIdx < 0 {
		return models.Service{}, false
	}

	code, rest := normalize.ExtractItemCode(cells[descIdx])
	svc.ItemCode = code
	svc.Description = normalize.CollapseWhitespace(rest)

	// An item-code cell left of the description wins over an inline prefix.
	for i := 0; i < descIdx; i++ {
		if i == unitIdx || i == qtyIdx {
			continue
		}
		if c := normalize.ItemCode(cells[i]); c != "" {
			svc.ItemCode = c
			break
		}
	}

	if svc.Description == "" {
		return models.Service{}, false
	}
	return svc, true
}

func isHeaderRow(cells []string) bool {
	matches, nonEmpty := 0, 0
	for _, c := range cells {
		if c == "" {
			continue
		}
		nonEmpty++
		if headerWords[normalize.Description(c)] {
			matches++
		}
	}
	return nonEmpty > 0 && matches*2 >= nonEmpty
}

func isNumericCell(s string) bool {
	return ParseQuantity(s) != nil
}

// TextPass asks the structured-extraction model to recover a services list
// from concatenated page text. Used when no tier produced usable tables.
func TextPass(ctx context.Context, llm interfaces.LLMService, pages []interfaces.PageResult) ([]models.Service, error) {
	var b strings.Builder
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return llm.ExtractServicesFromText(ctx, b.String())
}

// ConcatText joins page texts for storage as the attestation's OCR blob.
func ConcatText(pages []interfaces.PageResult) string {
	var b strings.Builder
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
