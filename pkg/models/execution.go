package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the position of a review execution in its state machine.
type ExecutionStatus string

const (
	ExecutionStatusStarted               ExecutionStatus = "Started"
	ExecutionStatusIngesting             ExecutionStatus = "Ingesting"
	ExecutionStatusDistributingQuestions ExecutionStatus = "DistributingQuestions"
	ExecutionStatusAnsweringQuestions    ExecutionStatus = "AnsweringQuestions"
	ExecutionStatusCompleted             ExecutionStatus = "Completed"
	ExecutionStatusFailed                ExecutionStatus = "Failed"
)

// Terminal reports whether no further transitions are possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ContentTypeExternalFile marks a review whose content came from an uploaded document.
const ContentTypeExternalFile = "ExternalFile"

// ExecutionState is the durable snapshot of one review execution, keyed by review instance id.
type ExecutionState struct {
	ID                         uuid.UUID       `json:"id"`
	Status                     ExecutionStatus `json:"status"`
	TotalNumberOfQuestions     int             `json:"total_number_of_questions"`
	NumberOfQuestionsAnswered  int             `json:"number_of_questions_answered"`
	NumberOfQuestionsAnalyzed  int             `json:"number_of_questions_analyzed"`
	ExportedDocumentLinkID     *uuid.UUID      `json:"exported_document_link_id,omitempty"`
	ContentType                *string         `json:"content_type,omitempty"`
	StartedByProviderSubjectID string          `json:"started_by_provider_subject_id,omitempty"`
	FailureReason              *string         `json:"failure_reason,omitempty"`
	FailureDetails             *string         `json:"failure_details,omitempty"`
	LastUpdatedUtc             time.Time       `json:"last_updated_utc"`
}

// IngestionResult is reported by the document ingestor once a document is in the retrieval store.
type IngestionResult struct {
	ExportedDocumentLinkID uuid.UUID
	TotalNumberOfQuestions int
	ContentType            string
}
