package ollama

import (
	"github.com/kiranshivaraju/reviewexec/internal/ai/openai"
	"github.com/kiranshivaraju/reviewexec/internal/config"
)

// NewProvider returns a provider for Ollama's OpenAI-compatible endpoint.
func NewProvider(cfg config.OllamaConfig) *openai.Provider {
	return openai.NewCompatibleProvider("ollama", cfg.BaseURL, "", cfg.Model)
}
