package driving

import (
	"context"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// IngestService validates, parses and chunks uploaded files, then indexes them
type IngestService interface {
	// Ingest processes one upload batch. Validation failures and batches
	// that produce no text return ErrInvalidInput.
	Ingest(ctx context.Context, files []domain.UploadedFile) (*domain.IngestResult, error)

	// Limits returns the upload constraints in force
	Limits() domain.UploadLimits
}
