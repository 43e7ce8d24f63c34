package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/ai"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// SentimentGenerator scores an answer and explains the score.
type SentimentGenerator interface {
	Classify(ctx context.Context, question, answer string) (models.Sentiment, error)
	Explain(ctx context.Context, question, answer string, sentiment models.Sentiment) (string, error)
}

// SentimentRepository reads answers and writes their sentiment fields.
type SentimentRepository interface {
	GetAnswer(ctx context.Context, id uuid.UUID) (*models.AnswerRecord, error)
	UpdateAnswerSentiment(ctx context.Context, id uuid.UUID, sentiment models.Sentiment, reasoning string) error
}

// SentimentAnalyzerWorker fills in the sentiment and its rationale on an answer.
type SentimentAnalyzerWorker struct {
	answers   SentimentRepository
	generator SentimentGenerator
}

func NewSentimentAnalyzerWorker(answers SentimentRepository, generator SentimentGenerator) *SentimentAnalyzerWorker {
	return &SentimentAnalyzerWorker{answers: answers, generator: generator}
}

// Analyze classifies the answer, then asks for a rationale of that classification.
// The record is left untouched unless both calls succeed.
func (w *SentimentAnalyzerWorker) Analyze(ctx context.Context, answerID uuid.UUID) error {
	answer, err := w.answers.GetAnswer(ctx, answerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: answer %s", ErrNotFound, answerID)
		}
		return fmt.Errorf("%w: loading answer: %w", ErrExternalService, err)
	}

	sentiment, err := w.generator.Classify(ctx, answer.OriginalQuestionText, answer.FullAIAnswer)
	if err != nil {
		if errors.Is(err, ai.ErrInvalidResponse) {
			return fmt.Errorf("%w: sentiment for answer %s: %w", ErrValidation, answerID, err)
		}
		return fmt.Errorf("%w: classifying answer %s: %w", ErrExternalService, answerID, err)
	}

	reasoning, err := w.generator.Explain(ctx, answer.OriginalQuestionText, answer.FullAIAnswer, sentiment)
	if err != nil {
		return fmt.Errorf("%w: explaining sentiment for answer %s: %w", ErrExternalService, answerID, err)
	}

	if err := w.answers.UpdateAnswerSentiment(ctx, answerID, sentiment, reasoning); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: answer %s", ErrNotFound, answerID)
		}
		return fmt.Errorf("%w: saving sentiment: %w", ErrExternalService, err)
	}

	slog.Info("answer sentiment analyzed", "answer_id", answerID, "sentiment", sentiment)
	return nil
}
