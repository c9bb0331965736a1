package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Ensure OpenAILLM implements LLMService
var _ driven.LLMService = (*OpenAILLM)(nil)

const defaultOpenAIChatModel = "gpt-4o-mini"

// OpenAILLM implements LLMService with chat completions
type OpenAILLM struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	topP        float32
}

// NewOpenAILLM creates a new OpenAI generation service
func NewOpenAILLM(settings domain.LLMSettings) (*OpenAILLM, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrInvalidInput)
	}

	model := settings.Model
	if model == "" {
		model = defaultOpenAIChatModel
	}

	cfg := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		cfg.BaseURL = settings.BaseURL
	}

	return &OpenAILLM{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: settings.Temperature,
		maxTokens:   settings.MaxTokens,
		topP:        settings.TopP,
	}, nil
}

// Generate sends the prompt as a single user message
func (l *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: l.temperature,
		MaxTokens:   l.maxTokens,
		TopP:        l.topP,
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai chat: %v", domain.ErrServiceUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai chat returned no choices", domain.ErrServiceUnavailable)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Model returns the model name being used
func (l *OpenAILLM) Model() string {
	return l.model
}

// Ping lists models to verify credentials and connectivity
func (l *OpenAILLM) Ping(ctx context.Context) error {
	if _, err := l.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: openai: %v", domain.ErrServiceUnavailable, err)
	}
	return nil
}

// Close releases resources held by the LLM service
func (l *OpenAILLM) Close() error {
	return nil
}
