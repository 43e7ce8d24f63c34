package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentiment is the classification assigned to an answer by the sentiment analyzer.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// Numeric scores models are asked to reply with.
const (
	SentimentScorePositive = "100"
	SentimentScoreNegative = "800"
	SentimentScoreNeutral  = "999"
)

// ParseSentiment maps free-form model output onto a known Sentiment.
// It accepts the names and the numeric scores, ignoring case, surrounding
// whitespace and trailing punctuation.
func ParseSentiment(s string) (Sentiment, bool) {
	v := strings.TrimSpace(s)
	v = strings.Trim(v, "\"'`.!")
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "positive", SentimentScorePositive:
		return SentimentPositive, true
	case "negative", SentimentScoreNegative:
		return SentimentNegative, true
	case "neutral", SentimentScoreNeutral:
		return SentimentNeutral, true
	default:
		return "", false
	}
}

// AnswerRecord is the persisted answer to one question of one review instance.
// At most one record exists per (ReviewInstanceID, OriginalQuestionID).
type AnswerRecord struct {
	ID                   uuid.UUID  `db:"id"                     json:"id"`
	OriginalQuestionID   uuid.UUID  `db:"original_question_id"   json:"original_question_id"`
	ReviewInstanceID     uuid.UUID  `db:"review_instance_id"     json:"review_instance_id"`
	FullAIAnswer         string     `db:"full_ai_answer"         json:"full_ai_answer"`
	OriginalQuestionText string     `db:"original_question_text" json:"original_question_text"`
	OriginalQuestionType string     `db:"original_question_type" json:"original_question_type"`
	Order                int        `db:"sort_order"             json:"order"`
	Sentiment            *Sentiment `db:"ai_sentiment"           json:"ai_sentiment,omitempty"`
	SentimentReasoning   *string    `db:"ai_sentiment_reasoning" json:"ai_sentiment_reasoning,omitempty"`
	CreatedUtc           time.Time  `db:"created_at"             json:"created_utc"`
}
