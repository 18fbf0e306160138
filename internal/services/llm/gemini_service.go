// -----------------------------------------------------------------------
// Gemini LLM Service - schema-constrained structured extraction
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/models"
	"google.golang.org/genai"
)

// GeminiService implements LLMService against the Google Gemini API. Gemini
// enforces the response schema server-side, so extraction responses are
// guaranteed to be valid JSON arrays.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// servicesSchema constrains extraction output to the services table shape.
var servicesSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"item_code":   {Type: genai.TypeString, Description: "Código do item (ex: 1.1, 2.3.1) ou vazio"},
			"description": {Type: genai.TypeString, Description: "Descrição do serviço como escrita no documento"},
			"quantity":    {Type: genai.TypeNumber, Description: "Quantidade executada, null se ilegível", Nullable: genai.Ptr(true)},
			"unit":        {Type: genai.TypeString, Description: "Unidade de medida (M2, M3, M, UN...)"},
		},
		Required: []string{"description", "unit"},
	},
}

// requirementsSchema constrains tender requirement extraction.
var requirementsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"code":            {Type: genai.TypeString, Description: "Número do item do edital ou vazio"},
			"description":     {Type: genai.TypeString, Description: "Descrição do serviço exigido"},
			"required":        {Type: genai.TypeNumber, Description: "Quantidade mínima exigida"},
			"unit":            {Type: genai.TypeString, Description: "Unidade de medida"},
			"allow_sum":       {Type: genai.TypeBoolean, Description: "false somente se o edital proibir somatório de atestados"},
			"mandatory_terms": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: "Termos exigidos textualmente na descrição"},
		},
		Required: []string{"description", "required", "unit"},
	},
}

// metadataSchema constrains document metadata extraction.
var metadataSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"issuer":     {Type: genai.TypeString, Description: "Órgão ou empresa emissora do atestado, ou vazio"},
		"issue_date": {Type: genai.TypeString, Description: "Data de emissão no formato AAAA-MM-DD, ou vazio"},
	},
	Required: []string{"issuer"},
}

// NewGeminiService creates a Gemini-backed extraction service.
func NewGeminiService(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or gemini.api_key in config)")
	}

	timeout := 2 * time.Minute
	if config.Timeout != "" {
		parsed, err := time.ParseDuration(config.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid gemini timeout %q: %w", config.Timeout, err)
		}
		timeout = parsed
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Info().
		Str("model", config.Model).
		Str("timeout", timeout.String()).
		Msg("Gemini LLM service initialized")

	return &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}, nil
}

func (s *GeminiService) ProviderName() string { return "gemini" }

// ExtractServicesFromText parses a services list out of concatenated
// document text.
func (s *GeminiService) ExtractServicesFromText(ctx context.Context, text string) ([]models.Service, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := servicesSystemPrompt + "\n\nDocumento:\n" + text
	raw, err := s.generate(ctx, servicesSchema, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		return nil, err
	}
	return parseServices(raw)
}

// ExtractServicesFromImage runs multimodal extraction over one page image.
func (s *GeminiService) ExtractServicesFromImage(ctx context.Context, imagePath string) ([]models.Service, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read page image: %w", err)
	}

	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, imageMIMEType(imagePath)),
			genai.NewPartFromText(servicesSystemPrompt),
		},
	}

	raw, err := s.generate(ctx, servicesSchema, []*genai.Content{content})
	if err != nil {
		return nil, err
	}
	return parseServices(raw)
}

// ExtractRequirementsFromText parses tender requirements out of a notice's
// text.
func (s *GeminiService) ExtractRequirementsFromText(ctx context.Context, text string) ([]models.Requirement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := requirementsSystemPrompt + "\n\nEdital:\n" + text
	raw, err := s.generate(ctx, requirementsSchema, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		return nil, err
	}
	return parseRequirements(raw)
}

// ExtractAttestationMetadata pulls the issuer and issue date out of an
// attestation's text.
func (s *GeminiService) ExtractAttestationMetadata(ctx context.Context, text string) (models.AttestationMetadata, error) {
	if strings.TrimSpace(text) == "" {
		return models.AttestationMetadata{}, nil
	}

	prompt := metadataSystemPrompt + "\n\nDocumento:\n" + text
	raw, err := s.generate(ctx, metadataSchema, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		return models.AttestationMetadata{}, err
	}
	return parseMetadata(raw)
}

// generate runs one schema-constrained completion with rate-limit retry.
func (s *GeminiService) generate(ctx context.Context, schema *genai.Schema, contents []*genai.Content) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(s.config.Temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	start := time.Now()
	resp, err := withRateLimitRetry(callCtx, func() (*genai.GenerateContentResponse, error) {
		return s.client.Models.GenerateContent(callCtx, s.config.Model, contents, config)
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response from Gemini API")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Str("duration", time.Since(start).String()).
		Int("response_chars", len(text)).
		Msg("Gemini extraction completed")

	return text, nil
}

func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
