package domain

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Metadata keys attached to every indexed chunk. Search filters match against these.
const (
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
	MetaDocID      = "doc_id"
	MetaCreatedAt  = "created_at"
	MetaTextLength = "text_length"
	MetaFileType   = "file_type"
)

// Chunk is a text fragment of an uploaded document.
// Chunks are immutable once created; they are only ever replaced or deleted.
type Chunk struct {
	Text         string    `json:"text"`
	DocumentName string    `json:"document_name"`
	ChunkIndex   int       `json:"chunk_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewChunk creates a chunk stamped with the current time.
// The stamp is truncated to microseconds, the finest precision every index
// repository keeps.
func NewChunk(documentName string, index int, text string) *Chunk {
	return &Chunk{
		Text:         text,
		DocumentName: documentName,
		ChunkIndex:   index,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

// Key returns the identity key of the chunk: document name and index joined by "_".
func (c *Chunk) Key() string {
	return ChunkKey(c.DocumentName, c.ChunkIndex)
}

// ChunkKey builds the identity key for a document name and chunk index
func ChunkKey(documentName string, index int) string {
	return documentName + "_" + strconv.Itoa(index)
}

// Metadata derives the filterable metadata of the chunk.
func (c *Chunk) Metadata() map[string]string {
	return map[string]string{
		MetaSource:     c.DocumentName,
		MetaChunkIndex: strconv.Itoa(c.ChunkIndex),
		MetaDocID:      c.Key(),
		MetaCreatedAt:  c.CreatedAt.Format(time.RFC3339Nano),
		MetaTextLength: strconv.Itoa(utf8.RuneCountInString(c.Text)),
		MetaFileType:   FileType(c.DocumentName),
	}
}

// FileType returns the lowercased extension of a file name including the dot.
// Dot-files without a further extension (".env") have no file type.
func FileType(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == base {
		return ""
	}
	return strings.ToLower(ext)
}

// ChunkMapping maps chunk identity keys to chunks
type ChunkMapping map[string]*Chunk

// Sources returns the distinct document names in the mapping, sorted.
func (m ChunkMapping) Sources() []string {
	seen := make(map[string]struct{}, len(m))
	for _, c := range m {
		seen[c.DocumentName] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for name := range seen {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// KeysForSource returns the keys of every chunk belonging to a document
func (m ChunkMapping) KeysForSource(documentName string) []string {
	var keys []string
	for key, c := range m {
		if c.DocumentName == documentName {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Ordered returns the chunks sorted by document name then chunk index.
func (m ChunkMapping) Ordered() []*Chunk {
	chunks := make([]*Chunk, 0, len(m))
	for _, c := range m {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].DocumentName != chunks[j].DocumentName {
			return chunks[i].DocumentName < chunks[j].DocumentName
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks
}

// Clone returns a shallow copy of the mapping
func (m ChunkMapping) Clone() ChunkMapping {
	out := make(ChunkMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
