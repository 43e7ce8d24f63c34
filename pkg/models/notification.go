package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds pushed to clients watching a review instance.
const (
	NotificationProcessingMessage = "processing_message"
	NotificationQuestionAnswered  = "question_answered"
	NotificationReviewCompleted   = "review_completed"
)

// Notification is one progress event for a review instance.
type Notification struct {
	Kind             string     `json:"kind"`
	ReviewInstanceID uuid.UUID  `json:"review_instance_id"`
	Message          string     `json:"message,omitempty"`
	AnswerID         *uuid.UUID `json:"answer_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
