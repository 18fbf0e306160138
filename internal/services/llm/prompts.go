// -----------------------------------------------------------------------
// LLM prompts and response parsing shared by the Gemini and Claude services
// -----------------------------------------------------------------------

package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/attesto/internal/models"
)

const servicesSystemPrompt = `Você é um extrator de dados de atestados de capacidade técnica brasileiros.
Extraia a lista de serviços executados do documento. Para cada serviço retorne:
- item_code: o código do item (ex: "1.1", "2.3.1"), ou string vazia se ausente
- description: a descrição do serviço, exatamente como escrita
- quantity: a quantidade executada como número (use ponto como separador decimal), ou null se ilegível
- unit: a unidade de medida (M2, M3, M, KM, UN, KG, TON, L, H, VB...)

Regras:
- NÃO invente serviços que não estão no documento.
- NÃO some nem converta quantidades; copie o valor informado.
- Ignore cabeçalhos, totais e linhas de assinatura.
- Responda SOMENTE com o array JSON, sem texto adicional.`

const requirementsSystemPrompt = `Você é um extrator de exigências de qualificação técnica de editais de licitação brasileiros.
Extraia cada exigência de quantitativo mínimo. Para cada exigência retorne:
- code: o número do item do edital, ou string vazia
- description: a descrição do serviço exigido
- required: a quantidade mínima exigida como número
- unit: a unidade de medida
- allow_sum: false SOMENTE se o edital proibir expressamente o somatório de atestados, senão true
- mandatory_terms: termos que o edital exige textualmente na descrição do atestado, ou lista vazia

Regras:
- Extraia apenas exigências com quantidade mínima numérica.
- NÃO invente exigências.
- Responda SOMENTE com o array JSON, sem texto adicional.`

const metadataSystemPrompt = `Você é um extrator de dados de atestados de capacidade técnica brasileiros.
Identifique o emissor e a data de emissão do documento. Retorne:
- issuer: o órgão ou empresa que emitiu o atestado (ex: "Prefeitura Municipal de Campinas"), ou string vazia se ilegível
- issue_date: a data de emissão no formato AAAA-MM-DD, ou string vazia se ausente

Regras:
- O emissor é quem ATESTA a execução, não a empresa contratada.
- NÃO invente dados que não estão no documento.
- Responda SOMENTE com o objeto JSON, sem texto adicional.`

// requirementRow is the wire shape for requirement extraction. AllowSum is a
// pointer so an omitted field can default to permitted.
type requirementRow struct {
	Code           string   `json:"code"`
	Description    string   `json:"description"`
	Required       float64  `json:"required"`
	Unit           string   `json:"unit"`
	AllowSum       *bool    `json:"allow_sum"`
	MandatoryTerms []string `json:"mandatory_terms"`
}

// parseServices decodes a model response into service rows. Rows without a
// description are dropped.
func parseServices(raw string) ([]models.Service, error) {
	payload, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var rows []models.Service
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse services response: %w", err)
	}

	services := make([]models.Service, 0, len(rows))
	for _, row := range rows {
		row.Description = strings.TrimSpace(row.Description)
		if row.Description == "" {
			continue
		}
		row.ItemCode = strings.TrimSpace(row.ItemCode)
		row.Unit = strings.TrimSpace(row.Unit)
		services = append(services, row)
	}
	return services, nil
}

// parseRequirements decodes a model response into requirements, defaulting
// allow_sum to true when the notice said nothing about summation.
func parseRequirements(raw string) ([]models.Requirement, error) {
	payload, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var rows []requirementRow
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse requirements response: %w", err)
	}

	requirements := make([]models.Requirement, 0, len(rows))
	for _, row := range rows {
		desc := strings.TrimSpace(row.Description)
		if desc == "" || row.Required <= 0 {
			continue
		}
		allowSum := true
		if row.AllowSum != nil {
			allowSum = *row.AllowSum
		}
		requirements = append(requirements, models.Requirement{
			Code:           strings.TrimSpace(row.Code),
			Description:    desc,
			Required:       row.Required,
			Unit:           strings.TrimSpace(row.Unit),
			AllowSum:       allowSum,
			MandatoryTerms: row.MandatoryTerms,
		})
	}
	return requirements, nil
}

// parseMetadata decodes a model response into document metadata.
func parseMetadata(raw string) (models.AttestationMetadata, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return models.AttestationMetadata{}, err
	}

	var meta models.AttestationMetadata
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return models.AttestationMetadata{}, fmt.Errorf("failed to parse metadata response: %w", err)
	}
	meta.Issuer = strings.TrimSpace(meta.Issuer)
	meta.IssueDate = strings.TrimSpace(meta.IssueDate)
	return meta, nil
}

// extractJSONArray strips markdown code fences and surrounding prose, keeping
// the outermost JSON array. Models occasionally wrap structured output even
// when instructed not to.
func extractJSONArray(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("response contains no JSON array")
	}
	return s[start : end+1], nil
}

// extractJSONObject is the single-object counterpart of extractJSONArray.
func extractJSONObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("response contains no JSON object")
	}
	return s[start : end+1], nil
}
