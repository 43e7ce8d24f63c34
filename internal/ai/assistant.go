package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

const (
	maxAnswerTokens    = 2048
	maxClassifyTokens  = 16
	maxReasoningTokens = 512
	maxPromptFieldSize = 12000
)

// ReviewAssistant wraps an AIProvider with the prompts used by the review pipeline.
// Every call is bounded by the configured inference timeout and returns one of
// ErrInferenceTimeout, ErrProviderUnavailable or ErrInvalidResponse on failure.
type ReviewAssistant struct {
	provider models.AIProvider
	timeout  time.Duration
}

// NewReviewAssistant creates a new ReviewAssistant.
func NewReviewAssistant(provider models.AIProvider, timeout time.Duration) *ReviewAssistant {
	return &ReviewAssistant{provider: provider, timeout: timeout}
}

// ProviderName returns the name of the underlying provider.
func (a *ReviewAssistant) ProviderName() string {
	return a.provider.Name()
}

// Answer generates an answer to a question or requirement grounded on document excerpts.
func (a *ReviewAssistant) Answer(ctx context.Context, question, questionType string, excerpts []string) (string, error) {
	name := "answer"
	if questionType == models.QuestionTypeRequirement {
		name = "requirement"
	}

	prompt, err := render(name, promptData{Question: question, Excerpts: excerpts})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}

	return a.complete(ctx, models.CompletionRequest{
		System:    answerSystemPrompt,
		Prompt:    prompt,
		MaxTokens: maxAnswerTokens,
	})
}

// Classify asks the model for the sentiment of an answer in relation to its question.
// Output that does not map onto a known sentiment yields ErrInvalidResponse.
func (a *ReviewAssistant) Classify(ctx context.Context, question, answer string) (models.Sentiment, error) {
	prompt, err := render("classify", promptData{
		Question: question,
		Answer:   truncateString(answer, maxPromptFieldSize),
	})
	if err != nil {
		return "", fmt.Errorf("render classify prompt: %w", err)
	}

	out, err := a.complete(ctx, models.CompletionRequest{Prompt: prompt, MaxTokens: maxClassifyTokens})
	if err != nil {
		return "", err
	}

	sentiment, ok := models.ParseSentiment(out)
	if !ok {
		return "", fmt.Errorf("%w: unrecognized sentiment %q", ErrInvalidResponse, truncateString(out, 64))
	}
	return sentiment, nil
}

// Explain asks the model for a short rationale of a sentiment it already assigned.
func (a *ReviewAssistant) Explain(ctx context.Context, question, answer string, sentiment models.Sentiment) (string, error) {
	prompt, err := render("explain", promptData{
		Question:  question,
		Answer:    truncateString(answer, maxPromptFieldSize),
		Sentiment: string(sentiment),
	})
	if err != nil {
		return "", fmt.Errorf("render explain prompt: %w", err)
	}

	out, err := a.complete(ctx, models.CompletionRequest{Prompt: prompt, MaxTokens: maxReasoningTokens})
	if err != nil {
		return "", err
	}
	return truncateString(out, 4000), nil
}

func (a *ReviewAssistant) complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	out, err := a.provider.Complete(callCtx, req)
	if err != nil {
		return "", classifyProviderError(callCtx, a.provider.Name(), a.timeout, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty completion from %s", ErrInvalidResponse, a.provider.Name())
	}
	return out, nil
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
