// -----------------------------------------------------------------------
// LLM Service Factory - provider selection
// -----------------------------------------------------------------------

package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
)

// NewLLMService creates the configured structured-extraction provider.
func NewLLMService(config *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.LLM.Provider {
	case "", "gemini":
		return NewGeminiService(&config.Gemini, logger)
	case "claude":
		return NewClaudeService(&config.Claude, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (expected gemini or claude)", config.LLM.Provider)
	}
}
