package domain

// AIProvider identifies the AI/embedding provider
type AIProvider string

const (
	AIProviderLocal  AIProvider = "local"
	AIProviderOpenAI AIProvider = "openai"
	AIProviderOllama AIProvider = "ollama"
)

// RequiresAPIKey returns true if the provider needs an API key
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// EmbeddingSettings configures the embedding service
type EmbeddingSettings struct {
	Provider   AIProvider `json:"provider" yaml:"provider"`
	Model      string     `json:"model" yaml:"model"`
	APIKey     string     `json:"-" yaml:"api_key"` // Never serialize to JSON
	BaseURL    string     `json:"base_url,omitempty" yaml:"base_url"`
	Dimensions int        `json:"dimensions,omitempty" yaml:"dimensions"`
	BatchSize  int        `json:"batch_size,omitempty" yaml:"batch_size"`
}

// IsConfigured returns true if embedding settings are properly configured
func (e *EmbeddingSettings) IsConfigured() bool {
	if e.Provider == "" {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings configures the generation service
type LLMSettings struct {
	Provider    AIProvider `json:"provider" yaml:"provider"`
	Model       string     `json:"model" yaml:"model"`
	APIKey      string     `json:"-" yaml:"api_key"`
	BaseURL     string     `json:"base_url,omitempty" yaml:"base_url"`
	Temperature float32    `json:"temperature" yaml:"temperature"`
	MaxTokens   int        `json:"max_tokens" yaml:"max_tokens"`
	TopP        float32    `json:"top_p" yaml:"top_p"`
}

// IsConfigured returns true if LLM settings are properly configured
func (l *LLMSettings) IsConfigured() bool {
	if l.Provider == "" || l.Provider == AIProviderLocal {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}
