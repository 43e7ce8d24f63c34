package review

import (
	"context"
	"time"

	"github.com/kiranshivaraju/reviewexec/internal/blob"
	"github.com/kiranshivaraju/reviewexec/internal/cache"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the tunables of a pipeline.
type Config struct {
	MaxParallelWorkers int
	SlotTimeout        time.Duration
	DispatchStagger    time.Duration
	QuestionCacheTTL   time.Duration
	AccessBaseURL      string
}

// Dependencies are the external collaborators of a pipeline. Cache, Metrics and Tracer are optional.
type Dependencies struct {
	Repository store.ReviewRepository
	States     store.StateStore
	Cache      cache.Cache
	Blobs      blob.Store
	Documents  DocumentStore
	Sentiment  SentimentGenerator
	Notifier   Notifier
	Metrics    *Metrics
	Tracer     trace.Tracer
}

// Pipeline is a fully wired review execution pipeline.
type Pipeline struct {
	*Orchestrator
	Questions   *QuestionRegistry
	Distributor *QuestionDistributor
}

// NewPipeline wires the registry, workers, distributor and orchestrator together.
func NewPipeline(cfg Config, deps Dependencies) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}

	questions := NewQuestionRegistry(deps.Repository, deps.Cache, cfg.QuestionCacheTTL)

	orch := NewOrchestrator(OrchestratorDeps{
		States:    deps.States,
		Instances: deps.Repository,
		Questions: questions,
		Ingestor:  NewDocumentIngestor(deps.Repository, questions, deps.Blobs, deps.Documents, cfg.AccessBaseURL),
		Analyzer:  NewSentimentAnalyzerWorker(deps.Repository, deps.Sentiment),
		Notifier:  deps.Notifier,
		Metrics:   deps.Metrics,
		Tracer:    deps.Tracer,
	})

	answerer := NewQuestionAnswerWorker(deps.Repository, deps.Documents, orch)
	distributor := NewQuestionDistributor(questions, answerer, DistributorConfig{
		MaxParallelWorkers: cfg.MaxParallelWorkers,
		SlotTimeout:        cfg.SlotTimeout,
		DispatchStagger:    cfg.DispatchStagger,
	}, deps.Metrics)
	distributor.OnIdle(orch.release)
	orch.SetDistributor(distributor)

	return &Pipeline{Orchestrator: orch, Questions: questions, Distributor: distributor}
}

// Wait blocks until triggered runs and every dispatched answer task have finished.
func (p *Pipeline) Wait(ctx context.Context) error {
	if err := p.Orchestrator.Wait(ctx); err != nil {
		return err
	}
	return p.Distributor.Wait(ctx)
}
