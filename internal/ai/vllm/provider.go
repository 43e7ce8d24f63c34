package vllm

import (
	"github.com/kiranshivaraju/reviewexec/internal/ai/openai"
	"github.com/kiranshivaraju/reviewexec/internal/config"
)

// NewProvider returns a provider for a vLLM server's OpenAI-compatible endpoint.
func NewProvider(cfg config.VLLMConfig) *openai.Provider {
	return openai.NewCompatibleProvider("vllm", cfg.BaseURL, "", cfg.Model)
}
