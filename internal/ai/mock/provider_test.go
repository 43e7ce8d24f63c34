package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/reviewexec/internal/ai"
	"github.com/kiranshivaraju/reviewexec/internal/ai/mock"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.CompletionRequest {
	return models.CompletionRequest{Prompt: "Does the document describe a backup policy?", MaxTokens: 64}
}

// --- NewMockProvider ---

func TestNewMockProvider_Complete(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())

	out, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Contains(t, out, "Mock completion")
}

func TestNewStaticProvider_Complete(t *testing.T) {
	p := mock.NewStaticProvider("100")
	out, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "100", out)
}

// --- NewFailingProvider ---

func TestNewFailingProvider_Complete(t *testing.T) {
	p := mock.NewFailingProvider(ai.ErrProviderUnavailable)
	assert.Equal(t, "mock-failing", p.Name())

	_, err := p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestNewFailingProvider_CustomError(t *testing.T) {
	customErr := errors.New("custom AI error")
	p := mock.NewFailingProvider(customErr)

	_, err := p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, customErr)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider_Complete(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, sampleRequest())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

// --- Sentinel errors ---

func TestSentinelErrors(t *testing.T) {
	assert.NotEqual(t, ai.ErrProviderUnavailable, ai.ErrInferenceTimeout)
	assert.NotEqual(t, ai.ErrInferenceTimeout, ai.ErrInvalidResponse)
}

// --- Zero-value MockProvider ---

func TestMockProvider_NilFunc(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}

	out, err := p.Complete(context.Background(), sampleRequest())
	assert.NoError(t, err)
	assert.Equal(t, "", out)
}
