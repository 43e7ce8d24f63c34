package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.SubjectID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, subject_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.SubjectID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Review Instances ---

func (s *PostgresStore) GetReviewInstance(ctx context.Context, id uuid.UUID) (*models.ReviewInstance, error) {
	var (
		ri       models.ReviewInstance
		linkID   *uuid.UUID
		fileName *string
		key      *string
		mimeType *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT ri.id, ri.review_definition_id, ri.status, ri.document_process_short_name, ri.created_at, ri.updated_at,
		        dl.id, dl.file_name, dl.storage_key, dl.mime_type
		 FROM review_instances ri
		 LEFT JOIN exported_document_links dl ON dl.id = ri.exported_document_link_id
		 WHERE ri.id = $1`, id,
	).Scan(&ri.ID, &ri.ReviewDefinitionID, &ri.Status, &ri.DocumentProcessShortName, &ri.CreatedAt, &ri.UpdatedAt,
		&linkID, &fileName, &key, &mimeType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review instance: %w", err)
	}

	if linkID != nil {
		ri.ExportedDocumentLink = &models.DocumentLink{
			ID:         *linkID,
			FileName:   deref(fileName),
			StorageKey: deref(key),
			MimeType:   deref(mimeType),
		}
	}
	return &ri, nil
}

// ListReviewQuestions returns the questions of the instance's review definition in display order.
// Returns ErrNotFound if the instance or its definition does not exist.
func (s *PostgresStore) ListReviewQuestions(ctx context.Context, reviewInstanceID uuid.UUID) ([]models.QuestionInfo, error) {
	var defID *uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT review_definition_id FROM review_instances WHERE id = $1`, reviewInstanceID,
	).Scan(&defID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review definition id: %w", err)
	}
	if defID == nil {
		return nil, fmt.Errorf("review instance %s has no review definition: %w", reviewInstanceID, ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, question, question_type, sort_order, created_at
		 FROM review_questions WHERE review_definition_id = $1
		 ORDER BY sort_order, created_at`, *defID)
	if err != nil {
		return nil, fmt.Errorf("list review questions: %w", err)
	}
	defer rows.Close()

	questions := []models.QuestionInfo{}
	for rows.Next() {
		var q models.QuestionInfo
		if err := rows.Scan(&q.ID, &q.Question, &q.QuestionType, &q.Order, &q.CreatedUtc); err != nil {
			return nil, fmt.Errorf("scan review question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *PostgresStore) UpdateReviewInstanceStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_instances SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update review instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Answers ---

const answerColumns = `id, original_question_id, review_instance_id, full_ai_answer, original_question_text,
	original_question_type, sort_order, ai_sentiment, ai_sentiment_reasoning, created_at`

func scanAnswer(row pgx.Row) (*models.AnswerRecord, error) {
	var (
		a         models.AnswerRecord
		sentiment *string
	)
	if err := row.Scan(&a.ID, &a.OriginalQuestionID, &a.ReviewInstanceID, &a.FullAIAnswer, &a.OriginalQuestionText,
		&a.OriginalQuestionType, &a.Order, &sentiment, &a.SentimentReasoning, &a.CreatedUtc); err != nil {
		return nil, err
	}
	if sentiment != nil {
		v := models.Sentiment(*sentiment)
		a.Sentiment = &v
	}
	return &a, nil
}

func (s *PostgresStore) GetAnswer(ctx context.Context, id uuid.UUID) (*models.AnswerRecord, error) {
	a, err := scanAnswer(s.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM review_question_answers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ReplaceAnswer(ctx context.Context, answer *models.AnswerRecord) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serializes concurrent replacements of the same pair so the delete always sees the prior insert.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			answer.ReviewInstanceID.String()+":"+answer.OriginalQuestionID.String()); err != nil {
			return fmt.Errorf("lock answer slot: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM review_question_answers WHERE review_instance_id = $1 AND original_question_id = $2`,
			answer.ReviewInstanceID, answer.OriginalQuestionID); err != nil {
			return fmt.Errorf("delete previous answer: %w", err)
		}

		var sentiment *string
		if answer.Sentiment != nil {
			v := string(*answer.Sentiment)
			sentiment = &v
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO review_question_answers (`+answerColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			answer.ID, answer.OriginalQuestionID, answer.ReviewInstanceID, answer.FullAIAnswer,
			answer.OriginalQuestionText, answer.OriginalQuestionType, answer.Order,
			sentiment, answer.SentimentReasoning, answer.CreatedUtc); err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert answer: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace answer: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAnswerSentiment(ctx context.Context, id uuid.UUID, sentiment models.Sentiment, reasoning string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE review_question_answers SET ai_sentiment = $2, ai_sentiment_reasoning = $3 WHERE id = $1`,
		id, string(sentiment), reasoning)
	if err != nil {
		return fmt.Errorf("update answer sentiment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAnswers(ctx context.Context, reviewInstanceID uuid.UUID) ([]*models.AnswerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM review_question_answers
		 WHERE review_instance_id = $1 ORDER BY sort_order, created_at`, reviewInstanceID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []*models.AnswerRecord{}
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// --- Execution State ---

func (s *PostgresStore) LoadExecutionState(ctx context.Context, id uuid.UUID) (*models.ExecutionState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM review_execution_states WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load execution state: %w", err)
	}

	var st models.ExecutionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode execution state: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) SaveExecutionState(ctx context.Context, state *models.ExecutionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode execution state: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_execution_states (id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		state.ID, raw, stateTimestamp(state))
	if err != nil {
		return fmt.Errorf("save execution state: %w", err)
	}
	return nil
}

func stateTimestamp(state *models.ExecutionState) time.Time {
	if state.LastUpdatedUtc.IsZero() {
		return time.Now().UTC()
	}
	return state.LastUpdatedUtc
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
