package mocks

import (
	"context"
	"sync"
)

// MockLLMService is a mock implementation of LLMService for testing
type MockLLMService struct {
	mu      sync.Mutex
	prompts []string

	// GenerateFn overrides the default reply when set
	GenerateFn func(prompt string) (string, error)
	PingErr    error
}

// NewMockLLMService creates a mock that replies with a fixed answer
func NewMockLLMService(reply string) *MockLLMService {
	return &MockLLMService{
		GenerateFn: func(string) (string, error) { return reply, nil },
	}
}

func (m *MockLLMService) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fn := m.GenerateFn
	m.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(prompt)
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockLLMService) Close() error {
	return nil
}

// Prompts returns every prompt received so far
func (m *MockLLMService) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
