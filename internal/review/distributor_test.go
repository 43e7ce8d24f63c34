package review_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/review"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticQuestions []models.QuestionInfo

func (s staticQuestions) Questions(context.Context, uuid.UUID) ([]models.QuestionInfo, error) {
	return s, nil
}

func makeQuestions(n int) staticQuestions {
	qs := make(staticQuestions, n)
	for i := range qs {
		qs[i] = models.QuestionInfo{ID: uuid.New(), Question: "q", QuestionType: models.QuestionTypeQuestion}
	}
	return qs
}

// trackingAnswerer records peak concurrency. A non-nil release channel blocks each call until closed.
type trackingAnswerer struct {
	inflight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	hold     time.Duration
	release  chan struct{}
	err      error
	panicOn  int32
}

func (a *trackingAnswerer) Answer(context.Context, uuid.UUID, models.QuestionInfo) error {
	call := a.calls.Add(1)
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if a.release != nil {
		<-a.release
	}
	time.Sleep(a.hold)
	if a.panicOn != 0 && call == a.panicOn {
		panic("answerer exploded")
	}
	return a.err
}

func TestQuestionDistributor_BoundsConcurrency(t *testing.T) {
	answerer := &trackingAnswerer{hold: 20 * time.Millisecond}
	d := review.NewQuestionDistributor(makeQuestions(8), answerer, review.DistributorConfig{
		MaxParallelWorkers: 3,
		SlotTimeout:        time.Second,
	}, nil)

	n, err := d.Distribute(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, int32(8), answerer.calls.Load())
	assert.LessOrEqual(t, answerer.peak.Load(), int32(3))
	assert.Equal(t, int32(3), answerer.peak.Load())
}

func TestQuestionDistributor_ThirdDispatchWaitsForSlot(t *testing.T) {
	answerer := &trackingAnswerer{release: make(chan struct{})}
	d := review.NewQuestionDistributor(makeQuestions(3), answerer, review.DistributorConfig{
		MaxParallelWorkers: 2,
		SlotTimeout:        5 * time.Second,
	}, nil)

	var dispatched atomic.Bool
	go func() {
		_, _ = d.Distribute(context.Background(), uuid.New())
		dispatched.Store(true)
	}()

	require.Eventually(t, func() bool { return answerer.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), answerer.calls.Load())
	assert.False(t, dispatched.Load())

	close(answerer.release)
	require.Eventually(t, dispatched.Load, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, int32(3), answerer.calls.Load())
}

func TestQuestionDistributor_ActiveUntilLastTaskFinishes(t *testing.T) {
	answerer := &trackingAnswerer{release: make(chan struct{})}
	d := review.NewQuestionDistributor(makeQuestions(2), answerer, review.DistributorConfig{
		MaxParallelWorkers: 2,
		SlotTimeout:        time.Second,
	}, nil)
	idle := make(chan uuid.UUID, 2)
	d.OnIdle(func(id uuid.UUID) { idle <- id })

	id := uuid.New()
	_, err := d.Distribute(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, d.Active(id))
	assert.False(t, d.Active(uuid.New()))

	close(answerer.release)
	select {
	case got := <-idle:
		assert.Equal(t, id, got)
	case <-time.After(5 * time.Second):
		t.Fatal("idle hook never ran")
	}
	require.NoError(t, d.Wait(context.Background()))
	assert.False(t, d.Active(id))
	assert.Empty(t, idle)
}

func TestQuestionDistributor_SlotTimeout(t *testing.T) {
	answerer := &trackingAnswerer{release: make(chan struct{})}
	defer close(answerer.release)
	d := review.NewQuestionDistributor(makeQuestions(2), answerer, review.DistributorConfig{
		MaxParallelWorkers: 1,
		SlotTimeout:        30 * time.Millisecond,
	}, nil)

	n, err := d.Distribute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, review.ErrTimeout)
	assert.Equal(t, 1, n)
}

func TestQuestionDistributor_FailuresAreAbsorbed(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := review.NewMetrics(reg)
	answerer := &trackingAnswerer{err: errors.New("generation failed")}
	d := review.NewQuestionDistributor(makeQuestions(4), answerer, review.DistributorConfig{
		MaxParallelWorkers: 2,
		SlotTimeout:        time.Second,
	}, metrics)

	_, err := d.Distribute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, d.Wait(context.Background()))

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.AnswerFailures))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlightAnswers))
}

func TestQuestionDistributor_PanicReleasesSlot(t *testing.T) {
	answerer := &trackingAnswerer{panicOn: 1}
	d := review.NewQuestionDistributor(makeQuestions(3), answerer, review.DistributorConfig{
		MaxParallelWorkers: 1,
		SlotTimeout:        time.Second,
	}, nil)

	_, err := d.Distribute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, int32(3), answerer.calls.Load())
}

func TestQuestionDistributor_StaggersDispatch(t *testing.T) {
	answerer := &trackingAnswerer{}
	d := review.NewQuestionDistributor(makeQuestions(3), answerer, review.DistributorConfig{
		MaxParallelWorkers: 5,
		SlotTimeout:        time.Second,
		DispatchStagger:    20 * time.Millisecond,
	}, nil)

	start := time.Now()
	_, err := d.Distribute(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	require.NoError(t, d.Wait(context.Background()))
}

func TestQuestionDistributor_CancelledContextStopsDispatch(t *testing.T) {
	answerer := &trackingAnswerer{}
	d := review.NewQuestionDistributor(makeQuestions(3), answerer, review.DistributorConfig{
		MaxParallelWorkers: 5,
		SlotTimeout:        time.Second,
		DispatchStagger:    time.Second,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := d.Distribute(ctx, uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, n)
}

func TestQuestionDistributor_DefaultsParallelism(t *testing.T) {
	answerer := &trackingAnswerer{hold: 10 * time.Millisecond}
	d := review.NewQuestionDistributor(makeQuestions(12), answerer, review.DistributorConfig{MaxParallelWorkers: 0}, nil)

	_, err := d.Distribute(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, d.Wait(context.Background()))
	assert.LessOrEqual(t, answerer.peak.Load(), int32(5))
}
