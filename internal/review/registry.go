package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/cache"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// QuestionSource loads the questions of a review instance's definition.
type QuestionSource interface {
	ListReviewQuestions(ctx context.Context, reviewInstanceID uuid.UUID) ([]models.QuestionInfo, error)
}

// QuestionRegistry caches the question list per review instance so it is
// hydrated from the database once and shared by every step of a run.
type QuestionRegistry struct {
	source QuestionSource
	cache  cache.Cache
	ttl    time.Duration
}

// NewQuestionRegistry returns a registry. A nil cache disables caching.
func NewQuestionRegistry(source QuestionSource, c cache.Cache, ttl time.Duration) *QuestionRegistry {
	return &QuestionRegistry{source: source, cache: c, ttl: ttl}
}

// Questions returns the ordered questions of the review instance.
// Cache failures are logged and fall through to the database.
func (r *QuestionRegistry) Questions(ctx context.Context, reviewInstanceID uuid.UUID) ([]models.QuestionInfo, error) {
	key := cache.QuestionsKey(reviewInstanceID)

	if r.cache != nil {
		data, found, err := r.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("question cache read failed", "review_instance_id", reviewInstanceID, "error", err)
		} else if found {
			var questions []models.QuestionInfo
			if err := json.Unmarshal(data, &questions); err == nil {
				return questions, nil
			}
			slog.Warn("question cache entry corrupt, reloading", "review_instance_id", reviewInstanceID)
		}
	}

	questions, err := r.source.ListReviewQuestions(ctx, reviewInstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: questions for review instance %s", ErrNotFound, reviewInstanceID)
		}
		return nil, fmt.Errorf("%w: listing questions: %w", ErrExternalService, err)
	}

	if r.cache != nil {
		if data, err := json.Marshal(questions); err == nil {
			if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
				slog.Warn("question cache write failed", "review_instance_id", reviewInstanceID, "error", err)
			}
		}
	}

	return questions, nil
}
