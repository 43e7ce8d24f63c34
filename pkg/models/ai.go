// Package models contains shared data models used across the reviewexec codebase.
package models

import "context"

// AIProvider is the core interface that all AI integrations must implement.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Complete sends a single prompt and returns the model's text response.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string
}

// CompletionRequest is the input to a single completion call.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}
