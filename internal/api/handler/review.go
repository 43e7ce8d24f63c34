package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/reviewexec/internal/api/middleware"
	"github.com/kiranshivaraju/reviewexec/internal/api/response"
	"github.com/kiranshivaraju/reviewexec/internal/review"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// Executor starts review executions and reports their state.
type Executor interface {
	Trigger(ctx context.Context, reviewInstanceID uuid.UUID, providerSubjectID string) (*models.ExecutionState, error)
	GetState(ctx context.Context, reviewInstanceID uuid.UUID) (*models.ExecutionState, error)
}

// AnswerLister lists the answers of a review instance.
type AnswerLister interface {
	ListAnswers(ctx context.Context, reviewInstanceID uuid.UUID) ([]*models.AnswerRecord, error)
}

// NewExecuteReviewHandler returns an http.HandlerFunc for POST /api/v1/reviews/{reviewInstanceID}/execute.
// The run continues in the background; the response carries the freshly reset state.
// A review whose previous run is still going gets 409 with its current state.
func NewExecuteReviewHandler(exec Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reviewInstanceID(w, r)
		if !ok {
			return
		}
		subject, ok := mw.GetSubjectID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing subject", nil)
			return
		}

		state, err := exec.Trigger(r.Context(), id, subject)
		if errors.Is(err, review.ErrConflict) {
			response.Error(w, http.StatusConflict, "CONFLICT", "Review execution already running", state)
			return
		}
		if err != nil {
			writeReviewError(w, err, id)
			return
		}
		response.Accepted(w, state)
	}
}

// NewGetExecutionHandler returns an http.HandlerFunc for GET /api/v1/reviews/{reviewInstanceID}/execution.
func NewGetExecutionHandler(exec Executor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reviewInstanceID(w, r)
		if !ok {
			return
		}

		state, err := exec.GetState(r.Context(), id)
		if err != nil {
			writeReviewError(w, err, id)
			return
		}
		response.JSON(w, state)
	}
}

// NewListAnswersHandler returns an http.HandlerFunc for GET /api/v1/reviews/{reviewInstanceID}/answers.
func NewListAnswersHandler(answers AnswerLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := reviewInstanceID(w, r)
		if !ok {
			return
		}

		list, err := answers.ListAnswers(r.Context(), id)
		if err != nil {
			writeReviewError(w, err, id)
			return
		}
		if list == nil {
			list = []*models.AnswerRecord{}
		}
		response.All(w, list, len(list))
	}
}

func reviewInstanceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "reviewInstanceID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "reviewInstanceID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeReviewError(w http.ResponseWriter, err error, id uuid.UUID) {
	switch {
	case errors.Is(err, review.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Review execution not found", nil)
	case errors.Is(err, review.ErrExternalService):
		slog.Error("review request failed", "review_instance_id", id, "error", err)
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"A dependent service is not available", nil)
	default:
		slog.Error("review request failed", "review_instance_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
