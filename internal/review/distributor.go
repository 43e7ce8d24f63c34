package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/config"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultSlotTimeout     = 300 * time.Second
	DefaultDispatchStagger = 500 * time.Millisecond
)

// QuestionLister resolves the questions of a review instance.
type QuestionLister interface {
	Questions(ctx context.Context, reviewInstanceID uuid.UUID) ([]models.QuestionInfo, error)
}

// QuestionAnswerer answers a single question.
type QuestionAnswerer interface {
	Answer(ctx context.Context, reviewInstanceID uuid.UUID, q models.QuestionInfo) error
}

// DistributorConfig tunes the fan-out.
type DistributorConfig struct {
	MaxParallelWorkers int
	SlotTimeout        time.Duration
	DispatchStagger    time.Duration
}

// QuestionDistributor launches one detached answer task per question, with at
// most MaxParallelWorkers tasks holding a slot at a time.
type QuestionDistributor struct {
	questions QuestionLister
	answerer  QuestionAnswerer
	cfg       DistributorConfig
	metrics   *Metrics

	inflight sync.WaitGroup

	mu      sync.Mutex
	pending map[uuid.UUID]int
	onIdle  func(reviewInstanceID uuid.UUID)
}

func NewQuestionDistributor(questions QuestionLister, answerer QuestionAnswerer, cfg DistributorConfig, metrics *Metrics) *QuestionDistributor {
	if cfg.MaxParallelWorkers <= 0 {
		cfg.MaxParallelWorkers = config.DefaultMaxParallelWorkers
	}
	if cfg.SlotTimeout <= 0 {
		cfg.SlotTimeout = DefaultSlotTimeout
	}
	if cfg.DispatchStagger < 0 {
		cfg.DispatchStagger = 0
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &QuestionDistributor{
		questions: questions,
		answerer:  answerer,
		cfg:       cfg,
		metrics:   metrics,
		pending:   make(map[uuid.UUID]int),
	}
}

// OnIdle registers fn to run whenever the last dispatched task of a review
// instance finishes. It must be set before the first Distribute.
func (d *QuestionDistributor) OnIdle(fn func(reviewInstanceID uuid.UUID)) {
	d.onIdle = fn
}

// Active reports whether answer tasks of the review instance are still running.
func (d *QuestionDistributor) Active(reviewInstanceID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[reviewInstanceID] > 0
}

// Distribute returns once every question has been dispatched, not when the
// answers are in. Per-question failures are logged and never reach the caller.
// It returns the number of questions dispatched.
func (d *QuestionDistributor) Distribute(ctx context.Context, reviewInstanceID uuid.UUID) (int, error) {
	questions, err := d.questions.Questions(ctx, reviewInstanceID)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(int64(d.cfg.MaxParallelWorkers))
	taskCtx := context.WithoutCancel(ctx)

	for i, q := range questions {
		if err := d.acquire(ctx, sem, q.ID); err != nil {
			return i, err
		}

		if err := sleepCtx(ctx, d.cfg.DispatchStagger); err != nil {
			sem.Release(1)
			return i, fmt.Errorf("dispatching question %s: %w", q.ID, err)
		}

		d.track(reviewInstanceID)
		go d.run(taskCtx, sem, reviewInstanceID, q)
	}

	slog.Info("review questions distributed",
		"review_instance_id", reviewInstanceID,
		"questions", len(questions),
		"max_parallel_workers", d.cfg.MaxParallelWorkers,
	)
	return len(questions), nil
}

// Wait blocks until every dispatched task has finished or ctx is done.
func (d *QuestionDistributor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *QuestionDistributor) acquire(ctx context.Context, sem *semaphore.Weighted, questionID uuid.UUID) error {
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.SlotTimeout)
	defer cancel()

	start := time.Now()
	err := sem.Acquire(waitCtx, 1)
	d.metrics.SlotWait.Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("waiting for a worker slot: %w", ctx.Err())
	}
	return fmt.Errorf("%w: no worker slot for question %s after %s", ErrTimeout, questionID, d.cfg.SlotTimeout)
}

func (d *QuestionDistributor) run(ctx context.Context, sem *semaphore.Weighted, reviewInstanceID uuid.UUID, q models.QuestionInfo) {
	d.metrics.InFlightAnswers.Inc()
	defer d.untrack(reviewInstanceID)
	defer sem.Release(1)
	defer d.metrics.InFlightAnswers.Dec()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.AnswerFailures.Inc()
			slog.Error("panic in question answer task",
				"review_instance_id", reviewInstanceID,
				"question_id", q.ID,
				"error", r,
			)
		}
	}()

	if err := d.answerer.Answer(ctx, reviewInstanceID, q); err != nil {
		d.metrics.AnswerFailures.Inc()
		slog.Error("question answer failed",
			"review_instance_id", reviewInstanceID,
			"question_id", q.ID,
			"error", err,
		)
	}
}

func (d *QuestionDistributor) track(reviewInstanceID uuid.UUID) {
	d.mu.Lock()
	d.pending[reviewInstanceID]++
	d.mu.Unlock()
	d.inflight.Add(1)
}

func (d *QuestionDistributor) untrack(reviewInstanceID uuid.UUID) {
	d.mu.Lock()
	d.pending[reviewInstanceID]--
	idle := d.pending[reviewInstanceID] <= 0
	if idle {
		delete(d.pending, reviewInstanceID)
	}
	d.mu.Unlock()

	if idle && d.onIdle != nil {
		d.onIdle(reviewInstanceID)
	}
	d.inflight.Done()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
