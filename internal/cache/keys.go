package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func QuestionsKey(reviewInstanceID uuid.UUID) string {
	return fmt.Sprintf("review:%s:questions", reviewInstanceID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// ReviewEventsChannel is the pub/sub channel carrying notifications for one review instance.
func ReviewEventsChannel(reviewInstanceID uuid.UUID) string {
	return fmt.Sprintf("review:%s:events", reviewInstanceID)
}
