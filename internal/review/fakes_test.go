package review_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/ai"
	"github.com/kiranshivaraju/reviewexec/internal/blob"
	"github.com/kiranshivaraju/reviewexec/internal/docstore"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// memRepo is an in-memory store.ReviewRepository.
type memRepo struct {
	mu        sync.Mutex
	instances map[uuid.UUID]*models.ReviewInstance
	questions map[uuid.UUID][]models.QuestionInfo
	answers   map[uuid.UUID]*models.AnswerRecord
	statuses  map[uuid.UUID][]string
	listCalls int
}

func newMemRepo() *memRepo {
	return &memRepo{
		instances: make(map[uuid.UUID]*models.ReviewInstance),
		questions: make(map[uuid.UUID][]models.QuestionInfo),
		answers:   make(map[uuid.UUID]*models.AnswerRecord),
		statuses:  make(map[uuid.UUID][]string),
	}
}

// addReview seeds an instance with n questions, optionally linked to a stored document.
func (r *memRepo) addReview(n int, storageKey string) (uuid.UUID, []models.QuestionInfo) {
	id := uuid.New()
	inst := &models.ReviewInstance{ID: id, Status: models.ReviewInstanceStatusPending}
	if storageKey != "" {
		inst.ExportedDocumentLink = &models.DocumentLink{
			ID:         uuid.New(),
			FileName:   "report.txt",
			StorageKey: storageKey,
			MimeType:   "text/plain",
		}
	}
	qs := make([]models.QuestionInfo, n)
	for i := range qs {
		qs[i] = models.QuestionInfo{
			ID:           uuid.New(),
			Question:     fmt.Sprintf("question %d", i+1),
			QuestionType: models.QuestionTypeQuestion,
			Order:        i,
			CreatedUtc:   time.Now().UTC(),
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[id] = inst
	r.questions[id] = qs
	return id, qs
}

func (r *memRepo) GetReviewInstance(_ context.Context, id uuid.UUID) (*models.ReviewInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (r *memRepo) ListReviewQuestions(_ context.Context, id uuid.UUID) ([]models.QuestionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	qs, ok := r.questions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]models.QuestionInfo(nil), qs...), nil
}

func (r *memRepo) UpdateReviewInstanceStatus(_ context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return store.ErrNotFound
	}
	inst.Status = status
	r.statuses[id] = append(r.statuses[id], status)
	return nil
}

func (r *memRepo) GetAnswer(_ context.Context, id uuid.UUID) (*models.AnswerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.answers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ReplaceAnswer(_ context.Context, answer *models.AnswerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.answers {
		if a.ReviewInstanceID == answer.ReviewInstanceID && a.OriginalQuestionID == answer.OriginalQuestionID {
			delete(r.answers, id)
		}
	}
	cp := *answer
	r.answers[answer.ID] = &cp
	return nil
}

func (r *memRepo) UpdateAnswerSentiment(_ context.Context, id uuid.UUID, sentiment models.Sentiment, reasoning string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.answers[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Sentiment = &sentiment
	a.SentimentReasoning = &reasoning
	return nil
}

func (r *memRepo) ListAnswers(_ context.Context, reviewInstanceID uuid.UUID) ([]*models.AnswerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AnswerRecord
	for _, a := range r.answers {
		if a.ReviewInstanceID == reviewInstanceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *memRepo) instanceStatus(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id].Status
}

func (r *memRepo) listCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

// memStates is an in-memory store.StateStore that counts reads and writes.
// Loads of an id registered with holdLoads block until the returned channel is closed.
type memStates struct {
	mu      sync.Mutex
	states  map[uuid.UUID]models.ExecutionState
	saves   int
	loads   int
	waiting int
	err     error
	holds   map[uuid.UUID]chan struct{}
}

func newMemStates() *memStates {
	return &memStates{
		states: make(map[uuid.UUID]models.ExecutionState),
		holds:  make(map[uuid.UUID]chan struct{}),
	}
}

func (m *memStates) LoadExecutionState(ctx context.Context, id uuid.UUID) (*models.ExecutionState, error) {
	m.mu.Lock()
	hold := m.holds[id]
	m.mu.Unlock()
	if hold != nil {
		m.mu.Lock()
		m.waiting++
		m.mu.Unlock()
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	s, ok := m.states[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *memStates) SaveExecutionState(_ context.Context, s *models.ExecutionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.states[s.ID] = *s
	m.saves++
	return nil
}

func (m *memStates) failSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memStates) holdLoads(id uuid.UUID) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.holds[id] = ch
	return ch
}

func (m *memStates) waitingLoads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiting
}

func (m *memStates) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *memStates) persisted(id uuid.UUID) (models.ExecutionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	return s, ok
}

// memBlobs serves documents from memory.
type memBlobs struct {
	objects map[string][]byte
	err     error
}

func (b *memBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("open %q: %w", key, blob.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// fakeDocs is a DocumentStore that answers every question with a canned text.
// Questions listed in failOn fail; a non-nil gate blocks AskInDocument until closed.
type fakeDocs struct {
	mu        sync.Mutex
	stored    map[uuid.UUID]string
	accessURL string
	storeErr  error
	noContent bool
	failOn    map[string]bool
	gate      chan struct{}
	delay     time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
	asked       atomic.Int32
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{stored: make(map[uuid.UUID]string), failOn: make(map[string]bool)}
}

func (d *fakeDocs) StoreDocumentForReview(_ context.Context, id uuid.UUID, r io.Reader, fileName, accessURL string) error {
	if d.storeErr != nil {
		return d.storeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stored[id] = fileName + ":" + string(data)
	d.accessURL = accessURL
	return nil
}

func (d *fakeDocs) AskInDocument(ctx context.Context, _ uuid.UUID, question, _ string) (string, error) {
	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	d.asked.Add(1)
	for {
		m := d.maxInflight.Load()
		if n <= m || d.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	fail := d.failOn[question]
	d.mu.Unlock()
	switch {
	case d.noContent:
		return "", docstore.ErrNoContent
	case fail:
		return "", errors.New("generation backend unavailable")
	}
	return "answer to " + question, nil
}

// fakeSentiment classifies everything with a fixed result.
type fakeSentiment struct {
	sentiment   models.Sentiment
	classifyErr error
	explainErr  error
	classified  atomic.Int32
}

func (s *fakeSentiment) Classify(_ context.Context, _, _ string) (models.Sentiment, error) {
	s.classified.Add(1)
	if s.classifyErr != nil {
		return "", s.classifyErr
	}
	if s.sentiment == "" {
		return models.SentimentPositive, nil
	}
	return s.sentiment, nil
}

func (s *fakeSentiment) Explain(_ context.Context, _, _ string, sentiment models.Sentiment) (string, error) {
	if s.explainErr != nil {
		return "", s.explainErr
	}
	return "looks " + string(sentiment), nil
}

func unparsableSentiment() error {
	return fmt.Errorf("%w: unrecognized sentiment %q", ai.ErrInvalidResponse, "kind of fine")
}

// captureNotifier records every event.
type captureNotifier struct {
	mu        sync.Mutex
	messages  []string
	answered  []uuid.UUID
	completed []uuid.UUID
}

func (n *captureNotifier) ProcessingMessage(_ uuid.UUID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *captureNotifier) QuestionAnswered(_ uuid.UUID, answerID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.answered = append(n.answered, answerID)
}

func (n *captureNotifier) ReviewCompleted(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, id)
}

func (n *captureNotifier) snapshot() (messages []string, answered, completed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...), len(n.answered), len(n.completed)
}
