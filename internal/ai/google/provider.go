package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/kiranshivaraju/reviewexec/internal/config"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"google.golang.org/api/option"
)

// Provider implements models.AIProvider using the Gemini API.
type Provider struct {
	model  string
	client *genai.Client
}

// NewProvider dials the Gemini API. Close releases the underlying connection.
func NewProvider(ctx context.Context, cfg config.GoogleConfig) (*Provider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{model: cfg.Model, client: client}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Close() error {
	return p.client.Close()
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	model := p.client.GenerativeModel(p.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini generate content: no candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

var _ models.AIProvider = (*Provider)(nil)
