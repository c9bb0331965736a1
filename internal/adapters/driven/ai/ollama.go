package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

var (
	_ driven.EmbeddingService = (*OllamaEmbedding)(nil)
	_ driven.LLMService       = (*OllamaLLM)(nil)
)

const (
	defaultOllamaURL        = "http://localhost:11434"
	defaultOllamaEmbedModel = "nomic-embed-text"
	defaultOllamaChatModel  = "llama3.2"
)

// ollamaClient speaks the Ollama REST API. An API key, when set, is sent as a
// bearer token for hosted deployments.
type ollamaClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newOllamaClient(baseURL, token string) *ollamaClient {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &ollamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *ollamaClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: ollama API error (%d): %s", domain.ErrServiceUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama decode: %w", err)
	}
	return nil
}

// OllamaEmbedding implements EmbeddingService with /api/embed
type OllamaEmbedding struct {
	client     *ollamaClient
	model      string
	dimensions int
	batchSize  int
}

// NewOllamaEmbedding creates an Ollama embedder. Dimensions must be configured
// because Ollama does not report them up front; when zero, the first response
// determines them.
func NewOllamaEmbedding(settings domain.EmbeddingSettings) *OllamaEmbedding {
	model := settings.Model
	if model == "" {
		model = defaultOllamaEmbedModel
	}
	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	return &OllamaEmbedding{
		client:     newOllamaClient(settings.BaseURL, settings.APIKey),
		model:      model,
		dimensions: settings.Dimensions,
		batchSize:  batchSize,
	}
}

// Embed generates embeddings for multiple texts, one request per batch
func (o *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))

		var resp struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		payload := map[string]any{"model": o.model, "input": texts[start:end]}
		if err := o.client.do(ctx, http.MethodPost, "/api/embed", payload, &resp); err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", end-start, len(resp.Embeddings))
		}

		for _, v := range resp.Embeddings {
			if o.dimensions == 0 {
				o.dimensions = len(v)
			}
			if len(v) != o.dimensions {
				return nil, fmt.Errorf("%w: ollama returned %d dims, expected %d", domain.ErrDimensionMismatch, len(v), o.dimensions)
			}
			out = append(out, normalize(v))
		}
	}
	return out, nil
}

// EmbedQuery generates an embedding for a search query
func (o *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := o.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions returns the embedding dimension size
func (o *OllamaEmbedding) Dimensions() int {
	return o.dimensions
}

// Model returns the model name being used
func (o *OllamaEmbedding) Model() string {
	return o.model
}

// HealthCheck hits /api/tags, which needs no model to be loaded
func (o *OllamaEmbedding) HealthCheck(ctx context.Context) error {
	return o.client.do(ctx, http.MethodGet, "/api/tags", nil, nil)
}

// Close releases idle connections
func (o *OllamaEmbedding) Close() error {
	o.client.httpClient.CloseIdleConnections()
	return nil
}

// OllamaLLM implements LLMService with non-streaming /api/chat
type OllamaLLM struct {
	client  *ollamaClient
	model   string
	options map[string]any
}

// NewOllamaLLM creates an Ollama generation service
func NewOllamaLLM(settings domain.LLMSettings) *OllamaLLM {
	model := settings.Model
	if model == "" {
		model = defaultOllamaChatModel
	}
	options := map[string]any{"temperature": settings.Temperature}
	if settings.TopP > 0 {
		options["top_p"] = settings.TopP
	}
	if settings.MaxTokens > 0 {
		options["num_predict"] = settings.MaxTokens
	}
	return &OllamaLLM{
		client:  newOllamaClient(settings.BaseURL, settings.APIKey),
		model:   model,
		options: options,
	}
}

// Generate sends the prompt as a single user message
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream":  false,
		"options": o.options,
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := o.client.do(ctx, http.MethodPost, "/api/chat", payload, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Model returns the model name being used
func (o *OllamaLLM) Model() string {
	return o.model
}

// Ping hits /api/tags
func (o *OllamaLLM) Ping(ctx context.Context) error {
	return o.client.do(ctx, http.MethodGet, "/api/tags", nil, nil)
}

// Close releases idle connections
func (o *OllamaLLM) Close() error {
	o.client.httpClient.CloseIdleConnections()
	return nil
}
