package ai

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Ensure HashEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*HashEmbedding)(nil)

const (
	defaultHashDimensions = 384
	bigramWeight          = 0.5
)

// HashEmbedding is an offline embedder based on signed feature hashing.
// Lowercased word unigrams and bigrams are hashed with FNV-1a into a fixed
// number of buckets and the result is L2-normalised. It captures lexical
// overlap only, which is enough for single-node deployments and tests.
type HashEmbedding struct {
	dimensions int
}

// NewHashEmbedding creates a local embedder. dims <= 0 selects 384.
func NewHashEmbedding(dims int) *HashEmbedding {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEmbedding{dimensions: dims}
}

// Embed generates embeddings for multiple texts
func (h *HashEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a search query
func (h *HashEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.vector(query), nil
}

// Dimensions returns the embedding dimension size
func (h *HashEmbedding) Dimensions() int {
	return h.dimensions
}

// Model returns the model name being used
func (h *HashEmbedding) Model() string {
	return "hash-fnv-unigram-bigram"
}

// HealthCheck always succeeds
func (h *HashEmbedding) HealthCheck(context.Context) error {
	return nil
}

// Close is a no-op
func (h *HashEmbedding) Close() error {
	return nil
}

func (h *HashEmbedding) vector(text string) []float32 {
	v := make([]float32, h.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		// Texts without word characters still get a stable unit vector.
		h.add(v, strings.TrimSpace(text), 1)
		return normalize(v)
	}
	for i, tok := range tokens {
		h.add(v, tok, 1)
		if i > 0 {
			h.add(v, tokens[i-1]+" "+tok, bigramWeight)
		}
	}
	return normalize(v)
}

func (h *HashEmbedding) add(v []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	bucket := int(sum % uint64(h.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
