package driving

import (
	"context"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// RetrievalService owns the vector index and chunk mapping: it indexes chunks,
// answers similarity queries and keeps the durable snapshot in step.
type RetrievalService interface {
	// Load restores the persisted snapshot. A missing or corrupt snapshot
	// leaves the engine empty and is not an error.
	Load(ctx context.Context) error

	// Refresh adopts a snapshot written by another instance. Read or decode
	// failures keep the current state. Reports whether anything changed.
	Refresh(ctx context.Context) (bool, error)

	// CreateIndex embeds and indexes a batch of chunks, replacing any chunk
	// with the same identity key. Returns ErrEmptyBatch for an empty batch.
	CreateIndex(ctx context.Context, chunks []*domain.Chunk) (*domain.IndexResult, error)

	// SimilaritySearch returns the nearest chunks, ascending by distance.
	// An empty index yields an empty result.
	SimilaritySearch(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// SearchByDocument restricts SimilaritySearch to one document
	SearchByDocument(ctx context.Context, query, documentName string, k int) ([]domain.SearchResult, error)

	// SearchByFileType restricts SimilaritySearch to one file type (".pdf")
	SearchByFileType(ctx context.Context, query, fileType string, k int) ([]domain.SearchResult, error)

	// SearchWithThreshold keeps only results with score <= threshold.
	// A negative threshold selects the configured default.
	SearchWithThreshold(ctx context.Context, query string, threshold float64, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// GetRelevantContext renders results as "[document]: text" blocks joined
	// by blank lines, or "" when nothing matched.
	GetRelevantContext(ctx context.Context, query string, opts domain.SearchOptions) (string, error)

	// Stats reports the live index and mapping state
	Stats(ctx context.Context) domain.IndexStats

	// DeleteDocumentsBySource removes every chunk of a document.
	// Returns ErrNotFound if the document has no chunks.
	// Indexes without point removal are rebuilt by re-embedding every
	// surviving chunk, which costs one embedding call per remaining chunk.
	DeleteDocumentsBySource(ctx context.Context, documentName string) (*domain.IndexResult, error)

	// RebuildIndex re-embeds every mapped chunk into a fresh index.
	// Cost is one embedding per chunk.
	RebuildIndex(ctx context.Context) (*domain.IndexResult, error)

	// ResetDatabase clears memory and durable storage. Storage cleanup
	// failures are reported in IndexResult.PersistError, not returned.
	ResetDatabase(ctx context.Context) (*domain.IndexResult, error)
}
