package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/api/handler"
	mw "github.com/kiranshivaraju/reviewexec/internal/api/middleware"
	"github.com/kiranshivaraju/reviewexec/internal/review"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	state      *models.ExecutionState
	err        error
	gotID      uuid.UUID
	gotSubject string
}

func (s *stubExecutor) Trigger(_ context.Context, id uuid.UUID, subject string) (*models.ExecutionState, error) {
	s.gotID = id
	s.gotSubject = subject
	return s.state, s.err
}

func (s *stubExecutor) GetState(_ context.Context, id uuid.UUID) (*models.ExecutionState, error) {
	s.gotID = id
	return s.state, s.err
}

type stubAnswers struct {
	answers []*models.AnswerRecord
	err     error
}

func (s *stubAnswers) ListAnswers(context.Context, uuid.UUID) ([]*models.AnswerRecord, error) {
	return s.answers, s.err
}

// serve routes a single request through chi so URL params resolve.
func serve(method, pattern, path string, h http.HandlerFunc, subject string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, h)

	req := httptest.NewRequest(method, path, nil)
	if subject != "" {
		req = req.WithContext(mw.SetSubjectID(req.Context(), subject))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

const executePattern = "/api/v1/reviews/{reviewInstanceID}/execute"

func TestExecuteReview_Accepted(t *testing.T) {
	id := uuid.New()
	exec := &stubExecutor{state: &models.ExecutionState{
		ID:                         id,
		Status:                     models.ExecutionStatusStarted,
		StartedByProviderSubjectID: "alice",
	}}

	w := serve(http.MethodPost, executePattern, fmt.Sprintf("/api/v1/reviews/%s/execute", id),
		handler.NewExecuteReviewHandler(exec), "alice")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, id, exec.gotID)
	assert.Equal(t, "alice", exec.gotSubject)

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, id.String(), data["id"])
	assert.Equal(t, "Started", data["status"])
	assert.Equal(t, "alice", data["started_by_provider_subject_id"])
}

func TestExecuteReview_InvalidID(t *testing.T) {
	w := serve(http.MethodPost, executePattern, "/api/v1/reviews/not-a-uuid/execute",
		handler.NewExecuteReviewHandler(&stubExecutor{}), "alice")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w)["error"].(map[string]any)["code"])
}

func TestExecuteReview_MissingSubject(t *testing.T) {
	w := serve(http.MethodPost, executePattern, fmt.Sprintf("/api/v1/reviews/%s/execute", uuid.New()),
		handler.NewExecuteReviewHandler(&stubExecutor{}), "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExecuteReview_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("%w: review instance", review.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"external", fmt.Errorf("%w: state store", review.ErrExternalService), http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(http.MethodPost, executePattern, fmt.Sprintf("/api/v1/reviews/%s/execute", uuid.New()),
				handler.NewExecuteReviewHandler(&stubExecutor{err: tt.err}), "alice")

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["error"].(map[string]any)["code"])
		})
	}
}

func TestExecuteReview_RunningReturnsConflict(t *testing.T) {
	id := uuid.New()
	exec := &stubExecutor{
		state: &models.ExecutionState{ID: id, Status: models.ExecutionStatusAnsweringQuestions, TotalNumberOfQuestions: 2},
		err:   fmt.Errorf("%w: review instance %s", review.ErrConflict, id),
	}

	w := serve(http.MethodPost, executePattern, fmt.Sprintf("/api/v1/reviews/%s/execute", id),
		handler.NewExecuteReviewHandler(exec), "alice")

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "CONFLICT", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "AnsweringQuestions", details["status"])
	assert.Equal(t, float64(2), details["total_number_of_questions"])
}

func TestGetExecution_ReturnsState(t *testing.T) {
	id := uuid.New()
	reason := "Failed to ingest review document"
	exec := &stubExecutor{state: &models.ExecutionState{
		ID:                     id,
		Status:                 models.ExecutionStatusFailed,
		TotalNumberOfQuestions: 3,
		FailureReason:          &reason,
	}}

	w := serve(http.MethodGet, "/api/v1/reviews/{reviewInstanceID}/execution",
		fmt.Sprintf("/api/v1/reviews/%s/execution", id), handler.NewGetExecutionHandler(exec), "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "Failed", data["status"])
	assert.Equal(t, float64(3), data["total_number_of_questions"])
	assert.Equal(t, reason, data["failure_reason"])
}

func TestGetExecution_NotFound(t *testing.T) {
	exec := &stubExecutor{err: review.ErrNotFound}

	w := serve(http.MethodGet, "/api/v1/reviews/{reviewInstanceID}/execution",
		fmt.Sprintf("/api/v1/reviews/%s/execution", uuid.New()), handler.NewGetExecutionHandler(exec), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAnswers(t *testing.T) {
	id := uuid.New()
	positive := models.SentimentPositive
	answers := &stubAnswers{answers: []*models.AnswerRecord{
		{ID: uuid.New(), ReviewInstanceID: id, FullAIAnswer: "first", Order: 0, Sentiment: &positive},
		{ID: uuid.New(), ReviewInstanceID: id, FullAIAnswer: "second", Order: 1},
	}}

	w := serve(http.MethodGet, "/api/v1/reviews/{reviewInstanceID}/answers",
		fmt.Sprintf("/api/v1/reviews/%s/answers", id), handler.NewListAnswersHandler(answers), "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "Positive", data[0].(map[string]any)["ai_sentiment"])
	assert.NotContains(t, data[1].(map[string]any), "ai_sentiment")
	assert.Equal(t, float64(2), body["meta"].(map[string]any)["total"])
}

func TestListAnswers_EmptyIsArray(t *testing.T) {
	w := serve(http.MethodGet, "/api/v1/reviews/{reviewInstanceID}/answers",
		fmt.Sprintf("/api/v1/reviews/%s/answers", uuid.New()), handler.NewListAnswersHandler(&stubAnswers{}), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decode(t, w)["data"])
}
