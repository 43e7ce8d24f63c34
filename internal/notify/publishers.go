package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/reviewexec/internal/cache"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// RedisPublisher publishes JSON events on the review's pub/sub channel.
type RedisPublisher struct {
	cache cache.Cache
}

func NewRedisPublisher(c cache.Cache) *RedisPublisher {
	return &RedisPublisher{cache: c}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.cache.Publish(ctx, cache.ReviewEventsChannel(n.ReviewInstanceID), payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogPublisher writes every event to the structured log.
type LogPublisher struct{}

func (LogPublisher) Name() string { return "log" }

func (LogPublisher) Publish(_ context.Context, n models.Notification) error {
	attrs := []any{"kind", n.Kind, "review_instance_id", n.ReviewInstanceID}
	if n.Message != "" {
		attrs = append(attrs, "message", n.Message)
	}
	if n.AnswerID != nil {
		attrs = append(attrs, "answer_id", *n.AnswerID)
	}
	slog.Info("review notification", attrs...)
	return nil
}
