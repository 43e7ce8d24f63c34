package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Every ReviewAssistant failure wraps exactly one of these.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)

// classifyProviderError maps a raw provider error onto the package sentinels.
// callCtx is the context the provider was called with.
func classifyProviderError(callCtx context.Context, provider string, timeout time.Duration, err error) error {
	switch {
	case errors.Is(err, ErrInferenceTimeout), errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrInvalidResponse):
		return err
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", ErrInferenceTimeout, provider, timeout)
	default:
		return fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, provider, err)
	}
}
