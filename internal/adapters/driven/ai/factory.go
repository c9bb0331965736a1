package ai

import (
	"fmt"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

// Factory creates AI services based on configuration
type Factory struct{}

// NewFactory creates a new AI service factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateEmbeddingService creates an embedding service from settings
func (f *Factory) CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderLocal:
		return NewHashEmbedding(settings.Dimensions), nil
	case domain.AIProviderOpenAI:
		svc, err := NewOpenAIEmbedding(*settings)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case domain.AIProviderOllama:
		return NewOllamaEmbedding(*settings), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

// CreateLLMService creates a generation service from settings
func (f *Factory) CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err := NewOpenAILLM(*settings)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case domain.AIProviderOllama:
		return NewOllamaLLM(*settings), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
