package driven

import (
	"context"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// IndexRepository persists the index blob and chunk mapping as a pair.
type IndexRepository interface {
	// Save writes both artifacts, replacing any previous snapshot
	Save(ctx context.Context, snapshot *domain.Snapshot) error

	// Load reads both artifacts.
	// Returns domain.ErrNotFound if either artifact is absent.
	Load(ctx context.Context) (*domain.Snapshot, error)

	// Clear removes both artifacts. Missing artifacts are not an error.
	Clear(ctx context.Context) error

	// Name identifies the storage backend ("file", "postgres", "sqlite")
	Name() string
}
