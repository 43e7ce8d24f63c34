// Package review runs review executions: document ingestion, bounded fan-out
// of question answering, sentiment analysis of each answer, and finalization.
//
// Each review instance has one in-memory execution guarded by its own mutex.
// Every change to the execution state is written through to a StateStore, so a
// restarted process resumes from the last snapshot. An execution is dropped
// from memory once it is terminal and nothing is running for it.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/kiranshivaraju/reviewexec/internal/review"

// Processing messages pushed to clients while a review runs.
const (
	msgTotalQuestions   = "SYSTEM:TotalNumberOfQuestions=%d"
	msgContentType      = "SYSTEM:ContentType=%s"
	msgQuestionAnswered = "SYSTEM:QuestionAnswered=%d"
	msgNoDocument       = "SYSTEM:NoDocumentToIngest"
	msgReviewCompleted  = "SYSTEM:ReviewInstanceCompleted"
)

// Notifier pushes progress events. Implementations must not block.
type Notifier interface {
	ProcessingMessage(reviewInstanceID uuid.UUID, message string)
	QuestionAnswered(reviewInstanceID, answerID uuid.UUID)
	ReviewCompleted(reviewInstanceID uuid.UUID)
}

type Ingestor interface {
	Ingest(ctx context.Context, reviewInstanceID uuid.UUID) (*models.IngestionResult, error)
}

type Distributor interface {
	Distribute(ctx context.Context, reviewInstanceID uuid.UUID) (int, error)
	Active(reviewInstanceID uuid.UUID) bool
}

type Analyzer interface {
	Analyze(ctx context.Context, answerID uuid.UUID) error
}

// OrchestratorDeps are the collaborators of an Orchestrator. Tracer and Metrics are optional.
type OrchestratorDeps struct {
	States    store.StateStore
	Instances InstanceRepository
	Questions QuestionLister
	Ingestor  Ingestor
	Analyzer  Analyzer
	Notifier  Notifier
	Metrics   *Metrics
	Tracer    trace.Tracer
}

// Orchestrator is the per-review-instance state machine:
// Started → [Ingesting] → DistributingQuestions → AnsweringQuestions → Completed,
// with Failed reachable from every non-terminal state.
type Orchestrator struct {
	states      store.StateStore
	instances   InstanceRepository
	questions   QuestionLister
	ingestor    Ingestor
	distributor Distributor
	analyzer    Analyzer
	notifier    Notifier
	metrics     *Metrics
	tracer      trace.Tracer

	mu         sync.Mutex
	executions map[uuid.UUID]*execution
	loads      singleflight.Group

	runs sync.WaitGroup
}

var errReleased = errors.New("execution released from memory")

type execution struct {
	mu    sync.Mutex
	state models.ExecutionState

	running  bool // owned by Execute, Trigger or OnDocumentIngested
	dirty    bool // last StateStore write failed
	released bool
}

// NewOrchestrator builds an orchestrator. The distributor is attached with
// SetDistributor because it calls back into the orchestrator through the answer worker.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &Orchestrator{
		states:     deps.States,
		instances:  deps.Instances,
		questions:  deps.Questions,
		ingestor:   deps.Ingestor,
		analyzer:   deps.Analyzer,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		executions: make(map[uuid.UUID]*execution),
	}
}

func (o *Orchestrator) SetDistributor(d Distributor) {
	o.distributor = d
}

// Trigger resets the execution and runs the rest of Execute on a detached
// goroutine. It returns the snapshot taken right after the reset. While an
// earlier run or its answer tasks are still going it returns the current
// snapshot with ErrConflict.
func (o *Orchestrator) Trigger(ctx context.Context, reviewInstanceID uuid.UUID, providerSubjectID string) (*models.ExecutionState, error) {
	e, snapshot, err := o.claim(ctx, reviewInstanceID, restart(providerSubjectID))
	if err != nil {
		return o.startFailed(ctx, e, snapshot, err)
	}

	runCtx := context.WithoutCancel(ctx)
	o.runs.Add(1)
	go func() {
		defer o.runs.Done()
		defer o.finish(e)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in review execution", "review_instance_id", reviewInstanceID, "error", r)
				o.handleFailure(runCtx, e, ReasonStartFailed, fmt.Sprint(r))
			}
		}()

		if err := o.run(runCtx, e); err != nil {
			slog.Error("review execution failed", "review_instance_id", reviewInstanceID, "error", err)
		}
	}()

	return &snapshot, nil
}

// Execute starts (or restarts) the review execution and runs it until every
// question has been dispatched. Id and an already-set StartedByProviderSubjectID
// survive a restart. A restart is refused with ErrConflict until the previous
// run and all of its answer tasks have finished.
func (o *Orchestrator) Execute(ctx context.Context, reviewInstanceID uuid.UUID, providerSubjectID string) error {
	e, snapshot, err := o.claim(ctx, reviewInstanceID, restart(providerSubjectID))
	if err != nil {
		_, err = o.startFailed(ctx, e, snapshot, err)
		return err
	}
	defer o.finish(e)
	return o.run(ctx, e)
}

// GetState returns a copy of the current snapshot. Unknown ids are not activated.
func (o *Orchestrator) GetState(ctx context.Context, reviewInstanceID uuid.UUID) (*models.ExecutionState, error) {
	o.mu.Lock()
	e, ok := o.executions[reviewInstanceID]
	o.mu.Unlock()

	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		snapshot := e.state
		return &snapshot, nil
	}

	state, err := o.states.LoadExecutionState(ctx, reviewInstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: execution for review instance %s", ErrNotFound, reviewInstanceID)
		}
		return nil, fmt.Errorf("%w: loading execution state: %w", ErrExternalService, err)
	}
	return state, nil
}

// OnDocumentIngested records the ingestion result and distributes the questions.
// It fails with ErrConflict while another run owns the execution.
func (o *Orchestrator) OnDocumentIngested(ctx context.Context, reviewInstanceID uuid.UUID, result models.IngestionResult) error {
	e, _, err := o.claim(ctx, reviewInstanceID, nil)
	if err != nil {
		return err
	}
	defer o.finish(e)
	return o.onDocumentIngested(ctx, e, result)
}

// OnQuestionsDistributed moves the execution to AnsweringQuestions. A terminal
// status is never regressed. A review without questions finalizes here.
func (o *Orchestrator) OnQuestionsDistributed(ctx context.Context, reviewInstanceID uuid.UUID) error {
	e, err := o.activate(ctx, reviewInstanceID)
	if err != nil {
		return err
	}
	return o.onQuestionsDistributed(ctx, e)
}

// OnQuestionAnswered counts the answer, notifies, analyzes its sentiment inline
// and then counts it as analyzed whatever the analysis outcome.
func (o *Orchestrator) OnQuestionAnswered(ctx context.Context, reviewInstanceID, answerID uuid.UUID) {
	ctx, span := o.tracer.Start(ctx, "review.question_answered", trace.WithAttributes(
		attribute.String("review.instance_id", reviewInstanceID.String()),
		attribute.String("review.answer_id", answerID.String()),
	))
	defer span.End()

	e, err := o.activate(ctx, reviewInstanceID)
	if err != nil {
		slog.Error("activating execution for answered question", "review_instance_id", reviewInstanceID, "answer_id", answerID, "error", err)
		return
	}

	var answered int
	_, err = o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		if s.NumberOfQuestionsAnswered < s.TotalNumberOfQuestions {
			s.NumberOfQuestionsAnswered++
		}
		answered = s.NumberOfQuestionsAnswered
		return true
	})
	if err != nil {
		slog.Error("persisting answered count", "review_instance_id", reviewInstanceID, "answer_id", answerID, "error", err)
	}
	o.metrics.QuestionsAnswered.Inc()

	o.notifier.ProcessingMessage(reviewInstanceID, fmt.Sprintf(msgQuestionAnswered, answered))
	o.notifier.QuestionAnswered(reviewInstanceID, answerID)

	if err := o.analyzer.Analyze(ctx, answerID); err != nil {
		o.metrics.SentimentFailures.Inc()
		span.RecordError(err)
		slog.Warn("sentiment analysis failed, continuing",
			"review_instance_id", reviewInstanceID,
			"answer_id", answerID,
			"error", err,
		)
	}

	o.OnQuestionAnswerAnalyzed(ctx, reviewInstanceID, answerID)
}

// OnQuestionAnswerAnalyzed counts the analysis. Only the call that brings the
// analyzed count up to the total finalizes, and it does so outside the lock.
func (o *Orchestrator) OnQuestionAnswerAnalyzed(ctx context.Context, reviewInstanceID, answerID uuid.UUID) {
	e, err := o.activate(ctx, reviewInstanceID)
	if err != nil {
		slog.Error("activating execution for analyzed answer", "review_instance_id", reviewInstanceID, "answer_id", answerID, "error", err)
		return
	}

	var shouldFinalize bool
	_, err = o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		if s.NumberOfQuestionsAnalyzed < s.TotalNumberOfQuestions {
			s.NumberOfQuestionsAnalyzed++
			shouldFinalize = s.NumberOfQuestionsAnalyzed >= s.TotalNumberOfQuestions && !s.Status.Terminal()
		}
		return true
	})
	if err != nil {
		slog.Error("persisting analyzed count", "review_instance_id", reviewInstanceID, "answer_id", answerID, "error", err)
	}
	o.metrics.QuestionsAnalyzed.Inc()

	if shouldFinalize {
		o.finalize(ctx, e)
	}
	o.release(reviewInstanceID)
}

// Wait blocks until triggered runs have returned or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activate returns the in-memory execution, loading it from the StateStore or
// creating it on first use. Loads of the same id are shared and never hold o.mu.
func (o *Orchestrator) activate(ctx context.Context, id uuid.UUID) (*execution, error) {
	if e := o.lookup(id); e != nil {
		return e, nil
	}

	v, err, _ := o.loads.Do(id.String(), func() (any, error) {
		if e := o.lookup(id); e != nil {
			return e, nil
		}
		state, err := o.load(ctx, id)
		if err != nil {
			return nil, err
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if e, ok := o.executions[id]; ok {
			return e, nil
		}
		e := &execution{state: *state}
		o.executions[id] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*execution), nil
}

func (o *Orchestrator) lookup(id uuid.UUID) *execution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.executions[id]
}

func (o *Orchestrator) load(ctx context.Context, id uuid.UUID) (*models.ExecutionState, error) {
	state, err := o.states.LoadExecutionState(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = &models.ExecutionState{
			ID:             id,
			Status:         models.ExecutionStatusStarted,
			LastUpdatedUtc: time.Now().UTC(),
		}
		if err := o.states.SaveExecutionState(ctx, state); err != nil {
			return nil, fmt.Errorf("%w: saving new execution state: %w", ErrExternalService, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: loading execution state: %w", ErrExternalService, err)
	}
	return state, nil
}

// claim activates the execution and marks it running. A non-nil reset is
// applied and persisted under the same lock.
func (o *Orchestrator) claim(ctx context.Context, id uuid.UUID, reset func(s *models.ExecutionState)) (*execution, models.ExecutionState, error) {
	for {
		e, err := o.activate(ctx, id)
		if err != nil {
			return nil, models.ExecutionState{}, err
		}

		e.mu.Lock()
		if e.released {
			e.mu.Unlock()
			continue
		}
		if e.running || o.distributor.Active(id) {
			snapshot := e.state
			e.mu.Unlock()
			return nil, snapshot, fmt.Errorf("%w: review instance %s", ErrConflict, id)
		}
		e.running = true
		if reset != nil {
			reset(&e.state)
			err = o.save(ctx, e)
		}
		snapshot := e.state
		e.mu.Unlock()
		return e, snapshot, err
	}
}

// startFailed classifies a claim error. A failed reset marks the run Failed.
func (o *Orchestrator) startFailed(ctx context.Context, e *execution, snapshot models.ExecutionState, err error) (*models.ExecutionState, error) {
	switch {
	case errors.Is(err, ErrConflict):
		return &snapshot, err
	case e == nil:
		return nil, err
	}
	o.handleFailure(ctx, e, ReasonStartFailed, err.Error())
	o.finish(e)
	return nil, fmt.Errorf("%w: starting execution: %w", ErrExternalService, err)
}

func (o *Orchestrator) finish(e *execution) {
	e.mu.Lock()
	e.running = false
	id := e.state.ID
	e.mu.Unlock()
	o.release(id)
}

// release drops a terminal execution from memory once no run or answer task
// can touch it. Executions whose last write failed stay, so reads keep
// returning the newest state.
func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.executions[id]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.dirty || !e.state.Status.Terminal() || o.distributor.Active(id) {
		return
	}
	e.released = true
	delete(o.executions, id)
}

// mutate applies fn under the execution lock and persists the result when fn reports a change.
func (o *Orchestrator) mutate(ctx context.Context, e *execution, fn func(s *models.ExecutionState) bool) (models.ExecutionState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return e.state, errReleased
	}
	if !fn(&e.state) {
		return e.state, nil
	}
	err := o.save(ctx, e)
	return e.state, err
}

// save writes e.state through to the StateStore. e.mu must be held.
func (o *Orchestrator) save(ctx context.Context, e *execution) error {
	e.state.LastUpdatedUtc = time.Now().UTC()
	snapshot := e.state
	if err := o.states.SaveExecutionState(ctx, &snapshot); err != nil {
		e.dirty = true
		return fmt.Errorf("saving execution state: %w", err)
	}
	e.dirty = false
	return nil
}

// restart resets status, counters and failure fields. Id, document link and
// an already-set subject are kept.
func restart(providerSubjectID string) func(s *models.ExecutionState) {
	return func(s *models.ExecutionState) {
		s.Status = models.ExecutionStatusStarted
		s.TotalNumberOfQuestions = 0
		s.NumberOfQuestionsAnswered = 0
		s.NumberOfQuestionsAnalyzed = 0
		s.FailureReason = nil
		s.FailureDetails = nil
		if s.StartedByProviderSubjectID == "" && providerSubjectID != "" {
			s.StartedByProviderSubjectID = providerSubjectID
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, e *execution) error {
	id := e.id()
	ctx, span := o.tracer.Start(ctx, "review.execute", trace.WithAttributes(
		attribute.String("review.instance_id", id.String()),
	))
	defer span.End()

	slog.Info("starting review execution", "review_instance_id", id)

	inst, err := o.instances.GetReviewInstance(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o.handleFailure(ctx, e, ReasonInstanceNotFound, "Review instance not found in database")
			return fmt.Errorf("%w: review instance %s", ErrNotFound, id)
		}
		o.handleFailure(ctx, e, ReasonStartFailed, err.Error())
		return fmt.Errorf("%w: loading review instance: %w", ErrExternalService, err)
	}

	if inst.ExportedDocumentLink != nil {
		if _, err := o.mutate(ctx, e, func(s *models.ExecutionState) bool {
			s.Status = models.ExecutionStatusIngesting
			return true
		}); err != nil {
			o.handleFailure(ctx, e, ReasonStartFailed, err.Error())
			return err
		}

		result, err := o.ingest(ctx, id)
		if err != nil {
			o.handleFailure(ctx, e, ReasonIngestFailed, err.Error())
			return err
		}
		return o.onDocumentIngested(ctx, e, *result)
	}

	slog.Info("no document to ingest, distributing questions", "review_instance_id", id)

	questions, err := o.questions.Questions(ctx, id)
	if err != nil {
		o.handleFailure(ctx, e, ReasonQuestionsFailed, err.Error())
		return err
	}
	if _, err := o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		s.TotalNumberOfQuestions = len(questions)
		s.Status = models.ExecutionStatusDistributingQuestions
		return true
	}); err != nil {
		o.handleFailure(ctx, e, ReasonStartFailed, err.Error())
		return err
	}

	o.notifier.ProcessingMessage(id, msgNoDocument)
	o.notifier.ProcessingMessage(id, fmt.Sprintf(msgTotalQuestions, len(questions)))

	return o.distribute(ctx, e)
}

func (o *Orchestrator) ingest(ctx context.Context, id uuid.UUID) (*models.IngestionResult, error) {
	ctx, span := o.tracer.Start(ctx, "review.ingest")
	defer span.End()

	result, err := o.ingestor.Ingest(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingestion failed")
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) onDocumentIngested(ctx context.Context, e *execution, result models.IngestionResult) error {
	id := e.id()
	slog.Info("document ingested", "review_instance_id", id, "questions", result.TotalNumberOfQuestions)

	linkID := result.ExportedDocumentLinkID
	contentType := result.ContentType
	if _, err := o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		s.ExportedDocumentLinkID = &linkID
		s.TotalNumberOfQuestions = result.TotalNumberOfQuestions
		s.ContentType = &contentType
		s.Status = models.ExecutionStatusDistributingQuestions
		return true
	}); err != nil {
		o.handleFailure(ctx, e, ReasonIngestFailed, err.Error())
		return err
	}

	o.notifier.ProcessingMessage(id, fmt.Sprintf(msgTotalQuestions, result.TotalNumberOfQuestions))
	o.notifier.ProcessingMessage(id, fmt.Sprintf(msgContentType, result.ContentType))

	return o.distribute(ctx, e)
}

func (o *Orchestrator) distribute(ctx context.Context, e *execution) error {
	id := e.id()
	ctx, span := o.tracer.Start(ctx, "review.distribute")
	n, err := o.distributor.Distribute(ctx, id)
	span.SetAttributes(attribute.Int("review.questions_dispatched", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "distribution failed")
		span.End()
		o.handleFailure(ctx, e, ReasonDistributionFailed, err.Error())
		return err
	}
	span.End()

	return o.onQuestionsDistributed(ctx, e)
}

func (o *Orchestrator) onQuestionsDistributed(ctx context.Context, e *execution) error {
	var noQuestions bool
	_, err := o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		if s.Status.Terminal() {
			return false
		}
		s.Status = models.ExecutionStatusAnsweringQuestions
		noQuestions = s.TotalNumberOfQuestions == 0
		return true
	})
	if err != nil {
		slog.Error("persisting distributed status", "review_instance_id", e.id(), "error", err)
	}

	if noQuestions {
		o.finalize(ctx, e)
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, e *execution) {
	id := e.id()
	changed := false
	_, err := o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		if s.Status.Terminal() {
			return false
		}
		s.Status = models.ExecutionStatusCompleted
		changed = true
		return true
	})
	if !changed {
		return
	}
	if err != nil {
		slog.Error("persisting completed status", "review_instance_id", id, "error", err)
	}

	if err := o.instances.UpdateReviewInstanceStatus(ctx, id, models.ReviewInstanceStatusCompleted); err != nil {
		slog.Error("marking review instance completed", "review_instance_id", id, "error", err)
	}

	o.metrics.Executions.WithLabelValues(string(models.ExecutionStatusCompleted)).Inc()
	o.notifier.ProcessingMessage(id, msgReviewCompleted)
	o.notifier.ReviewCompleted(id)

	slog.Info("review execution completed", "review_instance_id", id)
}

func (o *Orchestrator) handleFailure(ctx context.Context, e *execution, reason, details string) {
	id := e.id()
	slog.Error("review execution failed", "review_instance_id", id, "reason", reason, "details", details)

	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, reason)

	changed := false
	_, err := o.mutate(ctx, e, func(s *models.ExecutionState) bool {
		if s.Status.Terminal() {
			return false
		}
		s.Status = models.ExecutionStatusFailed
		s.FailureReason = &reason
		s.FailureDetails = &details
		changed = true
		return true
	})
	if !changed {
		return
	}
	if err != nil {
		slog.Error("persisting failed status", "review_instance_id", id, "error", err)
	}

	if err := o.instances.UpdateReviewInstanceStatus(ctx, id, models.ReviewInstanceStatusFailed); err != nil {
		slog.Error("marking review instance failed", "review_instance_id", id, "error", err)
	}
	o.metrics.Executions.WithLabelValues(string(models.ExecutionStatusFailed)).Inc()
}

func (e *execution) id() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ID
}
