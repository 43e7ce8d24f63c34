package ai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/reviewexec/internal/ai/anthropic"
	"github.com/kiranshivaraju/reviewexec/internal/ai/google"
	"github.com/kiranshivaraju/reviewexec/internal/ai/ollama"
	"github.com/kiranshivaraju/reviewexec/internal/ai/openai"
	"github.com/kiranshivaraju/reviewexec/internal/ai/vllm"
	"github.com/kiranshivaraju/reviewexec/internal/config"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "google":
		return google.NewProvider(ctx, cfg.Google)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic, google", cfg.Provider)
	}
}
