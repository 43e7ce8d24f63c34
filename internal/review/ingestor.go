package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/reviewexec/internal/blob"
	"github.com/kiranshivaraju/reviewexec/internal/store"
	"github.com/kiranshivaraju/reviewexec/pkg/models"
)

// DocumentStore is the retrieval store review documents are ingested into and answered from.
type DocumentStore interface {
	StoreDocumentForReview(ctx context.Context, reviewInstanceID uuid.UUID, r io.Reader, fileName, accessURL string) error
	AskInDocument(ctx context.Context, reviewInstanceID uuid.UUID, question, questionType string) (string, error)
}

// InstanceRepository is the slice of the data layer that reads and updates review instances.
type InstanceRepository interface {
	GetReviewInstance(ctx context.Context, id uuid.UUID) (*models.ReviewInstance, error)
	UpdateReviewInstanceStatus(ctx context.Context, id uuid.UUID, status string) error
}

// DocumentIngestor loads a review instance's exported document into the retrieval store.
// It holds no per-run state and is safe to retry.
type DocumentIngestor struct {
	instances     InstanceRepository
	questions     *QuestionRegistry
	blobs         blob.Store
	documents     DocumentStore
	accessBaseURL string
}

func NewDocumentIngestor(instances InstanceRepository, questions *QuestionRegistry, blobs blob.Store, documents DocumentStore, accessBaseURL string) *DocumentIngestor {
	return &DocumentIngestor{
		instances:     instances,
		questions:     questions,
		blobs:         blobs,
		documents:     documents,
		accessBaseURL: accessBaseURL,
	}
}

// Ingest stores the exported document and reports the question count and content type.
func (d *DocumentIngestor) Ingest(ctx context.Context, reviewInstanceID uuid.UUID) (*models.IngestionResult, error) {
	inst, err := d.instances.GetReviewInstance(ctx, reviewInstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: review instance %s", ErrNotFound, reviewInstanceID)
		}
		return nil, fmt.Errorf("%w: loading review instance: %w", ErrExternalService, err)
	}

	link := inst.ExportedDocumentLink
	if link == nil {
		return nil, fmt.Errorf("%w: review instance %s has no exported document", ErrNotFound, reviewInstanceID)
	}

	questions, err := d.questions.Questions(ctx, reviewInstanceID)
	if err != nil {
		return nil, err
	}

	if err := d.instances.UpdateReviewInstanceStatus(ctx, reviewInstanceID, models.ReviewInstanceStatusInProgress); err != nil {
		return nil, fmt.Errorf("%w: marking review instance in progress: %w", ErrExternalService, err)
	}

	rc, err := d.blobs.Open(ctx, link.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching document %q: %w", ErrExternalService, link.StorageKey, err)
	}
	defer rc.Close()

	accessURL := blob.AccessURL(d.accessBaseURL, link.StorageKey)
	if err := d.documents.StoreDocumentForReview(ctx, reviewInstanceID, rc, link.FileName, accessURL); err != nil {
		return nil, fmt.Errorf("%w: storing document %q: %w", ErrExternalService, link.FileName, err)
	}

	slog.Info("review document ingested",
		"review_instance_id", reviewInstanceID,
		"file_name", link.FileName,
		"questions", len(questions),
	)

	return &models.IngestionResult{
		ExportedDocumentLinkID: link.ID,
		TotalNumberOfQuestions: len(questions),
		ContentType:            models.ContentTypeExternalFile,
	}, nil
}
