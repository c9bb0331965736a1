package domain

import "math"

// Filter restricts a similarity search to chunks whose metadata matches every
// key/value pair exactly. A nil or empty filter matches everything.
type Filter map[string]string

// Matches reports whether metadata satisfies the filter
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		got, ok := metadata[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// SourceFilter restricts a search to one document
func SourceFilter(documentName string) Filter {
	return Filter{MetaSource: documentName}
}

// FileTypeFilter restricts a search to one file type (".pdf", ".txt")
func FileTypeFilter(fileType string) Filter {
	return Filter{MetaFileType: fileType}
}

// SearchOptions configures a similarity search
type SearchOptions struct {
	// K is the number of neighbours to return; <= 0 uses the configured default
	K int `json:"k"`

	// Filter restricts the candidate set
	Filter Filter `json:"filter,omitempty"`
}

// SearchResult is a retrieved chunk with its distance to the query.
// Lower scores are more similar.
type SearchResult struct {
	Text         string  `json:"text"`
	DocumentName string  `json:"document_name"`
	Score        float64 `json:"score"`
	ChunkIndex   int     `json:"chunk_index"`
}

// Relevance maps a distance to a relevance in (0,1], rounded to 4 decimals.
func Relevance(distance float64) float64 {
	return math.Round(1.0/(1.0+distance)*10000) / 10000
}

// IndexStats describes the live state of the vector index and chunk mapping
type IndexStats struct {
	TotalVectors   int      `json:"total_vectors"`
	TotalDocuments int      `json:"total_documents"` // mapped chunks
	UniqueSources  int      `json:"unique_sources"`
	SourceList     []string `json:"source_list"`
	IndexExists    bool     `json:"index_exists"`
	Dimension      int      `json:"embedding_dimension,omitempty"`
}

// IndexResult reports the outcome of a mutating index operation
type IndexResult struct {
	// ChunksAffected is the number of chunks added, replaced or removed
	ChunksAffected int `json:"chunks_affected"`

	// TotalVectors is the vector count after the operation
	TotalVectors int `json:"total_vectors"`

	// Rebuilt is true when the whole index was re-embedded
	Rebuilt bool `json:"rebuilt"`

	// PersistError is set when the in-memory mutation succeeded but the
	// durable write did not. In-memory state remains authoritative.
	PersistError error `json:"-"`
}

// Snapshot is the durable form of the index: an opaque index blob plus the
// chunk mapping. Both are saved and loaded together.
type Snapshot struct {
	Index   []byte
	Mapping ChunkMapping
}
