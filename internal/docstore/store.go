// Package docstore is the retrieval store reviews are answered against.
// Documents are split into overlapping text chunks kept in Postgres; questions
// are answered from the best matching chunks.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoContent is returned when no document has been stored for a review instance.
var ErrNoContent = errors.New("no document content stored for review instance")

const (
	defaultChunkWords   = 220
	defaultOverlapWords = 40
	defaultTopK         = 4
)

// Answerer produces an answer to a question from document excerpts.
type Answerer interface {
	Answer(ctx context.Context, question, questionType string, excerpts []string) (string, error)
}

// Store implements the document retrieval store on top of pgx.
type Store struct {
	pool     *pgxpool.Pool
	answerer Answerer
	topK     int
}

// New creates a new Store.
func New(pool *pgxpool.Pool, answerer Answerer) *Store {
	return &Store{pool: pool, answerer: answerer, topK: defaultTopK}
}

// StoreDocumentForReview replaces the stored content of a review instance with the given document.
func (s *Store) StoreDocumentForReview(ctx context.Context, reviewInstanceID uuid.UUID, r io.Reader, fileName, accessURL string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	text, err := ExtractText(data, fileName)
	if err != nil {
		return fmt.Errorf("extract %s: %w", fileName, err)
	}

	chunks := Chunk(text, defaultChunkWords, defaultOverlapWords)
	now := time.Now().UTC()

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM review_document_chunks WHERE review_instance_id = $1`, reviewInstanceID)
		for i, c := range chunks {
			batch.Queue(
				`INSERT INTO review_document_chunks (review_instance_id, chunk_index, file_name, access_url, content_hash, content, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				reviewInstanceID, i, fileName, accessURL, hash, c, now)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("store document chunks: %w", err)
	}
	return nil
}

// AskInDocument answers a question from the chunks stored for the review instance.
// Returns ErrNoContent if nothing has been stored.
func (s *Store) AskInDocument(ctx context.Context, reviewInstanceID uuid.UUID, question, questionType string) (string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content FROM review_document_chunks WHERE review_instance_id = $1 ORDER BY chunk_index`,
		reviewInstanceID)
	if err != nil {
		return "", fmt.Errorf("load document chunks: %w", err)
	}
	chunks, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", fmt.Errorf("load document chunks: %w", err)
	}
	if len(chunks) == 0 {
		return "", ErrNoContent
	}

	var excerpts []string
	for _, i := range Rank(question, chunks, s.topK) {
		excerpts = append(excerpts, chunks[i])
	}

	answer, err := s.answerer.Answer(ctx, question, questionType, excerpts)
	if err != nil {
		return "", fmt.Errorf("answer from document: %w", err)
	}
	return answer, nil
}
