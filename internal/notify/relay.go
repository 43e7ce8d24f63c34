// Package notify relays review progress events to real-time transports.
// Delivery is best-effort: callers never block and failures are only logged.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

const publishTimeout = 5 * time.Second

// Publisher delivers one notification to a transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, n models.Notification) error
}

// Relay fans events out to its publishers from a single goroutine.
type Relay struct {
	publishers []Publisher
	events     chan models.Notification
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewRelay starts a relay with the given buffer size.
func NewRelay(buffer int, publishers ...Publisher) *Relay {
	if buffer <= 0 {
		buffer = 1
	}
	r := &Relay{
		publishers: publishers,
		events:     make(chan models.Notification, buffer),
		done:       make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Relay) ProcessingMessage(reviewInstanceID uuid.UUID, message string) {
	r.Notify(models.Notification{
		Kind:             models.NotificationProcessingMessage,
		ReviewInstanceID: reviewInstanceID,
		Message:          message,
	})
}

func (r *Relay) QuestionAnswered(reviewInstanceID, answerID uuid.UUID) {
	r.Notify(models.Notification{
		Kind:             models.NotificationQuestionAnswered,
		ReviewInstanceID: reviewInstanceID,
		AnswerID:         &answerID,
	})
}

func (r *Relay) ReviewCompleted(reviewInstanceID uuid.UUID) {
	r.Notify(models.Notification{
		Kind:             models.NotificationReviewCompleted,
		ReviewInstanceID: reviewInstanceID,
	})
}

// Notify enqueues n without blocking. The event is dropped if the buffer is full or the relay is closed.
func (r *Relay) Notify(n models.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		slog.Warn("notification dropped, relay closed", "kind", n.Kind, "review_instance_id", n.ReviewInstanceID)
		return
	}

	select {
	case r.events <- n:
	default:
		slog.Warn("notification dropped, buffer full", "kind", n.Kind, "review_instance_id", n.ReviewInstanceID)
	}
}

// Close stops accepting events and waits until pending ones are delivered or ctx is done.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) run() {
	defer close(r.done)
	for n := range r.events {
		for _, p := range r.publishers {
			r.publish(p, n)
		}
	}
}

func (r *Relay) publish(p Publisher, n models.Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in notification publisher", "publisher", p.Name(), "error", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, n); err != nil {
		slog.Warn("notification publish failed",
			"publisher", p.Name(),
			"kind", n.Kind,
			"review_instance_id", n.ReviewInstanceID,
			"error", err,
		)
	}
}
