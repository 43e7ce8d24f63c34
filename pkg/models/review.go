package models

import (
	"time"

	"github.com/google/uuid"
)

// Review instance statuses as stored in the data layer.
const (
	ReviewInstanceStatusPending    = "Pending"
	ReviewInstanceStatusInProgress = "InProgress"
	ReviewInstanceStatusCompleted  = "Completed"
	ReviewInstanceStatusFailed     = "Failed"
)

// Question types carried by a review definition.
const (
	QuestionTypeQuestion    = "Question"
	QuestionTypeRequirement = "Requirement"
)

// ReviewInstance is one execution run of a review definition against an exported document.
type ReviewInstance struct {
	ID                       uuid.UUID     `db:"id"                          json:"id"`
	ReviewDefinitionID       *uuid.UUID    `db:"review_definition_id"        json:"review_definition_id,omitempty"`
	Status                   string        `db:"status"                      json:"status"`
	DocumentProcessShortName string        `db:"document_process_short_name" json:"document_process_short_name,omitempty"`
	ExportedDocumentLink     *DocumentLink `json:"exported_document_link,omitempty"`
	CreatedAt                time.Time     `db:"created_at"                  json:"created_at"`
	UpdatedAt                time.Time     `db:"updated_at"                  json:"updated_at"`
}

// DocumentLink points at an exported document in blob storage.
type DocumentLink struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	FileName   string    `db:"file_name"   json:"file_name"`
	StorageKey string    `db:"storage_key" json:"storage_key"`
	MimeType   string    `db:"mime_type"   json:"mime_type"`
}

// QuestionInfo is a single question or requirement of a review definition.
type QuestionInfo struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Question     string    `db:"question"      json:"question"`
	QuestionType string    `db:"question_type" json:"question_type"`
	Order        int       `db:"sort_order"    json:"order"`
	CreatedUtc   time.Time `db:"created_at"    json:"created_utc"`
}
