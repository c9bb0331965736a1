package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIEmbedding_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedding(domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewOpenAIEmbedding_Defaults(t *testing.T) {
	emb, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.Model() != "text-embedding-3-small" {
		t.Errorf("expected default model, got %s", emb.Model())
	}
	if emb.Dimensions() != 1536 {
		t.Errorf("expected 1536 dimensions, got %d", emb.Dimensions())
	}
	if emb.batchSize != 64 {
		t.Errorf("expected batch size 64, got %d", emb.batchSize)
	}
}

func TestOpenAIEmbedding_Dimensions(t *testing.T) {
	testCases := []struct {
		model      string
		override   int
		dimensions int
	}{
		{"text-embedding-3-small", 0, 1536},
		{"text-embedding-3-large", 0, 3072},
		{"text-embedding-ada-002", 0, 1536},
		{"unknown-model", 0, 1536},
		{"text-embedding-3-large", 256, 256},
	}

	for _, tc := range testCases {
		t.Run(tc.model, func(t *testing.T) {
			emb, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", Model: tc.model, Dimensions: tc.override})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if emb.Dimensions() != tc.dimensions {
				t.Errorf("expected dimensions %d, got %d", tc.dimensions, emb.Dimensions())
			}
		})
	}
}

func TestOpenAIEmbedding_EmbedBatchesInOrder(t *testing.T) {
	var requests atomic.Int32
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		requests.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		// Reply out of order with a vector that encodes the input length.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	})

	emb, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: srv.URL, BatchSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vecs, err := emb.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := requests.Load(); got != 3 {
		t.Errorf("expected 3 batch requests, got %d", got)
	}
	if len(vecs) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if math.Abs(float64(v[0])-1) > 1e-6 || v[1] != 0 {
			t.Errorf("vector %d not normalised: %v", i, v)
		}
	}
}

func TestOpenAIEmbedding_APIError(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid API key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	emb, err := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-bad", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = emb.Embed(context.Background(), []string{"hola"})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestOpenAIEmbedding_EmptyInput(t *testing.T) {
	emb, _ := NewOpenAIEmbedding(domain.EmbeddingSettings{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"})
	vecs, err := emb.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("expected nil, nil; got %v, %v", vecs, err)
	}
}

func TestOpenAILLM_Generate(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-test" || req.MaxTokens != 1000 {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "PROMPT" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  Respuesta: el plazo es marzo.  "},"finish_reason":"stop"}]}`))
	})

	llm, err := NewOpenAILLM(domain.LLMSettings{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", MaxTokens: 1000, TopP: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := llm.Generate(context.Background(), "PROMPT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Respuesta: el plazo es marzo." {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOpenAILLM_NoChoices(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	})

	llm, _ := NewOpenAILLM(domain.LLMSettings{APIKey: "sk-test", BaseURL: srv.URL})
	if _, err := llm.Generate(context.Background(), "x"); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestOpenAILLM_Ping(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	})

	llm, _ := NewOpenAILLM(domain.LLMSettings{APIKey: "sk-test", BaseURL: srv.URL})
	if err := llm.Ping(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if llm.Model() != "gpt-4o-mini" {
		t.Errorf("expected default model, got %s", llm.Model())
	}
}
