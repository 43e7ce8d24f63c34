package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/docstore"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// AnswerRepository persists answer records.
type AnswerRepository interface {
	GetReviewInstance(ctx context.Context, id uuid.UUID) (*models.ReviewInstance, error)
	ReplaceAnswer(ctx context.Context, answer *models.AnswerRecord) error
}

// AnswerSink is told about every persisted answer.
type AnswerSink interface {
	OnQuestionAnswered(ctx context.Context, reviewInstanceID, answerID uuid.UUID)
}

// QuestionAnswerWorker answers one question against the review's document.
type QuestionAnswerWorker struct {
	answers   AnswerRepository
	documents DocumentStore
	sink      AnswerSink
}

func NewQuestionAnswerWorker(answers AnswerRepository, documents DocumentStore, sink AnswerSink) *QuestionAnswerWorker {
	return &QuestionAnswerWorker{answers: answers, documents: documents, sink: sink}
}

// Answer generates, persists and reports the answer. Any earlier answer for the
// same question of the same instance is replaced.
func (w *QuestionAnswerWorker) Answer(ctx context.Context, reviewInstanceID uuid.UUID, q models.QuestionInfo) error {
	if _, err := w.answers.GetReviewInstance(ctx, reviewInstanceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: review instance %s", ErrNotFound, reviewInstanceID)
		}
		return fmt.Errorf("%w: loading review instance: %w", ErrExternalService, err)
	}

	text, err := w.documents.AskInDocument(ctx, reviewInstanceID, q.Question, q.QuestionType)
	switch {
	case errors.Is(err, docstore.ErrNoContent):
		slog.Warn("no document content for review, storing placeholder answer",
			"review_instance_id", reviewInstanceID, "question_id", q.ID)
		text = NoContextAnswer
	case err != nil:
		return fmt.Errorf("%w: generating answer for question %s: %w", ErrExternalService, q.ID, err)
	}

	createdAt := q.CreatedUtc
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	answer := &models.AnswerRecord{
		ID:                   uuid.New(),
		OriginalQuestionID:   q.ID,
		ReviewInstanceID:     reviewInstanceID,
		FullAIAnswer:         text,
		OriginalQuestionText: q.Question,
		OriginalQuestionType: q.QuestionType,
		Order:                q.Order,
		CreatedUtc:           createdAt,
	}
	if err := w.answers.ReplaceAnswer(ctx, answer); err != nil {
		return fmt.Errorf("%w: saving answer for question %s: %w", ErrExternalService, q.ID, err)
	}

	slog.Info("question answered",
		"review_instance_id", reviewInstanceID,
		"question_id", q.ID,
		"answer_id", answer.ID,
	)

	w.sink.OnQuestionAnswered(ctx, reviewInstanceID, answer.ID)
	return nil
}
