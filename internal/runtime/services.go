// Package runtime holds the AI services that can change while the process runs.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Services holds the embedding and generation services and keeps the
// availability flags of the RuntimeConfig in step with them.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	config *domain.RuntimeConfig

	embeddingService driven.EmbeddingService
	llmService       driven.LLMService
}

// NewServices creates an empty registry
func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{config: config}
}

// Bootstrap creates both services from settings. An embedding failure is fatal
// because nothing can be indexed without it. A generation failure only leaves
// answering unavailable.
func (s *Services) Bootstrap(ctx context.Context, factory driven.AIServiceFactory, emb *domain.EmbeddingSettings, llm *domain.LLMSettings, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	embedding, err := factory.CreateEmbeddingService(emb)
	if err != nil {
		return fmt.Errorf("create embedding service: %w", err)
	}
	if embedding == nil {
		return fmt.Errorf("%w: embedding provider not configured", domain.ErrInvalidInput)
	}
	s.SetEmbeddingService(embedding)
	logger.Info("embedding service ready", "provider", emb.Provider, "model", embedding.Model(), "dimensions", embedding.Dimensions())

	generator, err := factory.CreateLLMService(llm)
	if err != nil {
		logger.Warn("generation service disabled", "error", err)
		return nil
	}
	if generator == nil {
		logger.Warn("generation service not configured, /ask will return 503")
		return nil
	}
	if err := s.ValidateAndSetLLM(ctx, generator); err != nil {
		logger.Warn("generation service unreachable at startup", "provider", llm.Provider, "error", err)
		return nil
	}
	logger.Info("generation service ready", "provider", llm.Provider, "model", generator.Model())
	return nil
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// EmbeddingService returns the current embedding service (may be nil)
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddingService
}

// LLMService returns the current generation service (may be nil)
func (s *Services) LLMService() driven.LLMService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llmService
}

// EmbeddingModel names the embedding model, or "" when none is set
func (s *Services) EmbeddingModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.embeddingService == nil {
		return ""
	}
	return s.embeddingService.Model()
}

// SetEmbeddingService replaces the embedding service, closing the old one.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingService != nil {
		_ = s.embeddingService.Close()
	}
	s.embeddingService = svc
	s.config.SetEmbeddingAvailable(svc != nil)
}

// SetLLMService replaces the generation service, closing the old one.
func (s *Services) SetLLMService(svc driven.LLMService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.llmService != nil {
		_ = s.llmService.Close()
	}
	s.llmService = svc
	s.config.SetLLMAvailable(svc != nil)
}

// ValidateAndSetLLM pings svc before installing it. A failing service is closed.
func (s *Services) ValidateAndSetLLM(ctx context.Context, svc driven.LLMService) error {
	if svc == nil {
		s.SetLLMService(nil)
		return nil
	}
	if err := svc.Ping(ctx); err != nil {
		_ = svc.Close()
		return err
	}
	s.SetLLMService(svc)
	return nil
}

// Close shuts down all services
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embeddingService != nil {
		_ = s.embeddingService.Close()
		s.embeddingService = nil
	}
	if s.llmService != nil {
		_ = s.llmService.Close()
		s.llmService = nil
	}
	s.config.SetEmbeddingAvailable(false)
	s.config.SetLLMAvailable(false)
	return nil
}
