package review

import "errors"

// Failure taxonomy of the review execution workflow. Callers classify with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service failure")
	ErrValidation      = errors.New("validation failure")
	ErrTimeout         = errors.New("timed out")
	ErrConflict        = errors.New("execution already running")
)

// Failure reasons recorded on the execution state.
const (
	ReasonStartFailed        = "Failed to start review execution"
	ReasonInstanceNotFound   = "Failed to find review instance"
	ReasonIngestFailed       = "Failed to ingest review document"
	ReasonQuestionsFailed    = "Failed to load review questions"
	ReasonDistributionFailed = "Failed to distribute review questions"
)

// NoContextAnswer is stored when the retrieval store holds nothing for the review.
const NoContextAnswer = "No context available to answer this question at this time."
