package driven

import (
	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// IndexEntry is one vector together with the chunk key and metadata it belongs to
type IndexEntry struct {
	Key      string
	Metadata map[string]string
	Vector   []float32
}

// IndexHit is a nearest-neighbour candidate returned by a VectorIndex
type IndexHit struct {
	Key      string
	Metadata map[string]string
	Distance float64
}

// VectorIndex is a nearest-neighbour structure over embedding vectors.
// Implementations are not safe for concurrent use; callers serialise access.
type VectorIndex interface {
	// Merge appends every entry of other to this index without deduplication.
	// Returns domain.ErrDimensionMismatch if the vector sizes differ.
	Merge(other VectorIndex) error

	// Search returns up to k entries matching filter, sorted by ascending
	// distance. Ties keep insertion order.
	Search(query []float32, k int, filter domain.Filter) ([]IndexHit, error)

	// Len returns the number of vectors in the index
	Len() int

	// Dimension returns the vector size, or 0 if unknown
	Dimension() int

	// MarshalBinary serialises the index into an opaque blob
	MarshalBinary() ([]byte, error)
}

// PointRemover is implemented by indexes that can drop vectors by key
// without being rebuilt.
type PointRemover interface {
	// Remove deletes every entry whose key is listed and returns the count removed
	Remove(keys []string) int
}

// VectorIndexFactory builds and decodes VectorIndex instances
type VectorIndexFactory interface {
	// Build creates an index from a batch of entries
	Build(entries []IndexEntry) (VectorIndex, error)

	// Decode restores an index from a blob produced by MarshalBinary.
	// Returns an error wrapping domain.ErrCorruptArtifact for invalid data.
	Decode(data []byte) (VectorIndex, error)

	// Name identifies the index implementation
	Name() string
}
