package ai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

const (
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
	defaultEmbeddingBatchSize   = 64
	embeddingParallelism        = 4
)

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedding implements EmbeddingService using the OpenAI embeddings API
// (or any compatible endpoint via BaseURL).
type OpenAIEmbedding struct {
	client     *openai.Client
	model      string
	dimensions int
	// requestDims is sent to the API when the caller asked for shortened vectors
	requestDims int
	batchSize   int
}

// NewOpenAIEmbedding creates a new OpenAI embedding service
func NewOpenAIEmbedding(settings domain.EmbeddingSettings) (*OpenAIEmbedding, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrInvalidInput)
	}

	model := settings.Model
	if model == "" {
		model = defaultOpenAIEmbeddingModel
	}

	cfg := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}

	dimensions, ok := openAIModelDimensions[model]
	if !ok {
		dimensions = 1536
	}
	if settings.Dimensions > 0 {
		dimensions = settings.Dimensions
	}

	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}

	return &OpenAIEmbedding{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		dimensions:  dimensions,
		requestDims: settings.Dimensions,
		batchSize:   batchSize,
	}, nil
}

// Embed generates embeddings for multiple texts. Batches run concurrently;
// any failed batch fails the whole call.
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embeddingParallelism)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			return e.embedBatch(gctx, texts[start:end], out[start:end])
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedding) embedBatch(ctx context.Context, batch []string, dst [][]float32) error {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      batch,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.requestDims,
	})
	if err != nil {
		return fmt.Errorf("%w: openai embeddings: %v", domain.ErrServiceUnavailable, err)
	}
	if len(resp.Data) != len(batch) {
		return fmt.Errorf("openai embeddings: expected %d vectors, got %d", len(batch), len(resp.Data))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(dst) {
			return fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		dst[d.Index] = normalize(vec)
	}
	return nil
}

// EmbedQuery generates an embedding for a search query
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck makes a one-word embedding request
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	return nil
}
