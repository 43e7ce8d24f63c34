package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	ReviewRepository
	StateStore
}

// ReviewRepository covers review instances, their questions and the answers produced for them.
type ReviewRepository interface {
	GetReviewInstance(ctx context.Context, id uuid.UUID) (*models.ReviewInstance, error)
	ListReviewQuestions(ctx context.Context, reviewInstanceID uuid.UUID) ([]models.QuestionInfo, error)
	UpdateReviewInstanceStatus(ctx context.Context, id uuid.UUID, status string) error

	GetAnswer(ctx context.Context, id uuid.UUID) (*models.AnswerRecord, error)
	// ReplaceAnswer deletes any answer for the same (review instance, question) pair
	// and inserts the given record in one transaction.
	ReplaceAnswer(ctx context.Context, answer *models.AnswerRecord) error
	UpdateAnswerSentiment(ctx context.Context, id uuid.UUID, sentiment models.Sentiment, reasoning string) error
	ListAnswers(ctx context.Context, reviewInstanceID uuid.UUID) ([]*models.AnswerRecord, error)
}

// StateStore persists execution snapshots keyed by review instance id.
// LoadExecutionState returns ErrNotFound when no snapshot exists.
type StateStore interface {
	LoadExecutionState(ctx context.Context, id uuid.UUID) (*models.ExecutionState, error)
	SaveExecutionState(ctx context.Context, state *models.ExecutionState) error
}
