// -----------------------------------------------------------------------
// Claude LLM Service - structured extraction via the Anthropic API
// -----------------------------------------------------------------------

package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// ClaudeService implements LLMService against the Anthropic API. Claude has
// no server-side response schema, so the prompts demand a bare JSON array
// and parsing strips any wrapping the model adds anyway.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a Claude-backed extraction service.
func NewClaudeService(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key in config)")
	}

	timeout := 2 * time.Minute
	if config.Timeout != "" {
		parsed, err := time.ParseDuration(config.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid claude timeout %q: %w", config.Timeout, err)
		}
		timeout = parsed
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	logger.Info().
		Str("model", config.Model).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized")

	return &ClaudeService{
		config:    config,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}, nil
}

func (s *ClaudeService) ProviderName() string { return "claude" }

// ExtractServicesFromText parses a services list out of concatenated
// document text.
func (s *ClaudeService) ExtractServicesFromText(ctx context.Context, text string) ([]models.Service, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw, err := s.complete(ctx, servicesSystemPrompt, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock("Documento:\n" + text)),
	})
	if err != nil {
		return nil, err
	}
	return parseServices(raw)
}

// ExtractServicesFromImage runs multimodal extraction over one page image.
func (s *ClaudeService) ExtractServicesFromImage(ctx context.Context, imagePath string) ([]models.Service, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read page image: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	raw, err := s.complete(ctx, servicesSystemPrompt, []anthropic.MessageParam{
		anthropic.NewUserMessage(
			anthropic.NewImageBlockBase64(imageMIMEType(imagePath), encoded),
			anthropic.NewTextBlock("Extraia os serviços desta página."),
		),
	})
	if err != nil {
		return nil, err
	}
	return parseServices(raw)
}

// ExtractRequirementsFromText parses tender requirements out of a notice's
// text.
func (s *ClaudeService) ExtractRequirementsFromText(ctx context.Context, text string) ([]models.Requirement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw, err := s.complete(ctx, requirementsSystemPrompt, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock("Edital:\n" + text)),
	})
	if err != nil {
		return nil, err
	}
	return parseRequirements(raw)
}

// ExtractAttestationMetadata pulls the issuer and issue date out of an
// attestation's text.
func (s *ClaudeService) ExtractAttestationMetadata(ctx context.Context, text string) (models.AttestationMetadata, error) {
	if strings.TrimSpace(text) == "" {
		return models.AttestationMetadata{}, nil
	}

	raw, err := s.complete(ctx, metadataSystemPrompt, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock("Documento:\n" + text)),
	})
	if err != nil {
		return models.AttestationMetadata{}, err
	}
	return parseMetadata(raw)
}

// complete runs one completion with rate-limit retry and returns the joined
// text blocks.
func (s *ClaudeService) complete(ctx context.Context, system string, messages []anthropic.MessageParam) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages:  messages,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	start := time.Now()
	resp, err := withRateLimitRetry(callCtx, func() (*anthropic.Message, error) {
		return s.client.Messages.New(callCtx, params)
	})
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Str("duration", time.Since(start).String()).
		Int("response_chars", response.Len()).
		Msg("Claude extraction completed")

	return response.String(), nil
}

var _ interfaces.LLMService = (*ClaudeService)(nil)
