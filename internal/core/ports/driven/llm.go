package driven

import (
	"context"
)

// LLMService is the text generation capability used to compose answers
type LLMService interface {
	// Generate returns the model's completion for a prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
