package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/reviewexec/internal/config"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Provider implements models.AIProvider against the OpenAI chat completions API.
// vLLM and Ollama expose the same API and reuse it through NewCompatibleProvider.
type Provider struct {
	name   string
	model  string
	client openai.Client
}

func NewProvider(cfg config.OpenAIConfig) *Provider {
	return &Provider{
		name:   "openai",
		model:  cfg.Model,
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
	}
}

// NewCompatibleProvider targets an OpenAI-compatible server at baseURL.
func NewCompatibleProvider(name, baseURL, apiKey, model string) *Provider {
	opts := []option.RequestOption{option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/v1/")}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		// The SDK insists on a key; local servers ignore it.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	return &Provider{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(req.System),
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(req.Prompt),
			},
		},
	})

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: no choices returned", p.name)
	}
	return completion.Choices[0].Message.Content, nil
}

var _ models.AIProvider = (*Provider)(nil)
