// Package config loads service settings from an optional .env file, an
// optional YAML file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// UploadConfig bounds an ingestion batch.
type UploadConfig struct {
	MaxFileSize       int64    `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MinFiles          int      `yaml:"min_files"`
	MaxFiles          int      `yaml:"max_files"`
}

// ChunkingConfig sizes chunks in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds search defaults.
type RetrievalConfig struct {
	K         int     `yaml:"k"`
	Threshold float64 `yaml:"threshold"`
}

// StorageConfig selects where the index and mapping are persisted.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // file, postgres or sqlite
	DataDir      string `yaml:"data_dir"`
	IndexDir     string `yaml:"index_dir"`
	MappingPath  string `yaml:"mapping_path"`
	DatabaseURL  string `yaml:"database_url"`
	SQLitePath   string `yaml:"sqlite_path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LockConfig selects the cross-instance write lock.
type LockConfig struct {
	Backend  string `yaml:"backend"` // none, redis or postgres
	RedisURL string `yaml:"redis_url"`

	// RefreshSeconds is how often a replica adopts snapshots written by
	// other instances. Only used with a shared lock backend; negative disables.
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json or text
	AddSource bool   `yaml:"add_source"`
}

// Config is the root configuration.
type Config struct {
	AppName   string                   `yaml:"app_name"`
	Server    ServerConfig             `yaml:"server"`
	Upload    UploadConfig             `yaml:"upload"`
	Chunking  ChunkingConfig           `yaml:"chunking"`
	Retrieval RetrievalConfig          `yaml:"retrieval"`
	Storage   StorageConfig            `yaml:"storage"`
	Lock      LockConfig               `yaml:"lock"`
	Embedding domain.EmbeddingSettings `yaml:"embedding"`
	LLM       domain.LLMSettings       `yaml:"llm"`
	Log       LogConfig                `yaml:"log"`
}

// Load builds the configuration. A missing .env file is not an error; a
// CONFIG_FILE that cannot be read or parsed is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.AppName = getEnv("APP_NAME", cfg.AppName)

	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.Server.CORSOrigins)

	cfg.Upload.MaxFileSize = int64(getEnvInt("MAX_FILE_SIZE", int(cfg.Upload.MaxFileSize)))
	cfg.Upload.AllowedExtensions = getEnvList("ALLOWED_EXTENSIONS", cfg.Upload.AllowedExtensions)
	cfg.Upload.MinFiles = getEnvInt("MIN_FILES", cfg.Upload.MinFiles)
	cfg.Upload.MaxFiles = getEnvInt("MAX_FILES", cfg.Upload.MaxFiles)

	cfg.Chunking.Size = getEnvInt("CHUNK_SIZE", cfg.Chunking.Size)
	cfg.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", cfg.Chunking.Overlap)

	cfg.Retrieval.K = getEnvInt("SIMILARITY_SEARCH_K", cfg.Retrieval.K)
	cfg.Retrieval.Threshold = getEnvFloat("SIMILARITY_THRESHOLD", cfg.Retrieval.Threshold)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.IndexDir = getEnv("VECTOR_DB_PATH", cfg.Storage.IndexDir)
	cfg.Storage.MappingPath = getEnv("METADATA_PATH", cfg.Storage.MappingPath)
	cfg.Storage.DatabaseURL = getEnv("DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Storage.SQLitePath = getEnv("SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Storage.MaxOpenConns)

	cfg.Lock.Backend = getEnv("LOCK_BACKEND", cfg.Lock.Backend)
	cfg.Lock.RedisURL = getEnv("REDIS_URL", cfg.Lock.RedisURL)
	cfg.Lock.RefreshSeconds = getEnvInt("INDEX_REFRESH_SEC", cfg.Lock.RefreshSeconds)

	cfg.Embedding.Provider = domain.AIProvider(getEnv("EMBEDDING_PROVIDER", string(cfg.Embedding.Provider)))
	cfg.Embedding.Model = getEnv("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey))
	cfg.Embedding.BaseURL = getEnv("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)
	cfg.Embedding.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)

	cfg.LLM.Provider = domain.AIProvider(getEnv("LLM_PROVIDER", string(cfg.LLM.Provider)))
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Temperature = float32(getEnvFloat("LLM_TEMPERATURE", float64(cfg.LLM.Temperature)))
	cfg.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.TopP = float32(getEnvFloat("LLM_TOP_P", float64(cfg.LLM.TopP)))
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)

	// A Gemini key alone selects Gemini's OpenAI-compatible endpoint
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider != domain.AIProviderOllama {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
			if cfg.LLM.BaseURL == "" {
				cfg.LLM.BaseURL = GeminiBaseURL
			}
			if cfg.LLM.Model == "" {
				cfg.LLM.Model = "gemini-2.0-flash"
			}
		} else {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.AddSource = getEnvBool("LOG_ADD_SOURCE", cfg.Log.AddSource)
}

func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "sercha-qa"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	limits := domain.DefaultUploadLimits()
	if cfg.Upload.MaxFileSize == 0 {
		cfg.Upload.MaxFileSize = limits.MaxFileSize
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = limits.AllowedExtensions
	}
	for i, ext := range cfg.Upload.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Upload.AllowedExtensions[i] = ext
	}
	if cfg.Upload.MinFiles == 0 {
		cfg.Upload.MinFiles = limits.MinFiles
	}
	if cfg.Upload.MaxFiles == 0 {
		cfg.Upload.MaxFiles = limits.MaxFiles
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}

	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 7
	}
	if cfg.Retrieval.Threshold == 0 {
		cfg.Retrieval.Threshold = 0.8
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = filepath.Join(cfg.Storage.DataDir, "vector_db")
	}
	if cfg.Storage.MappingPath == "" {
		cfg.Storage.MappingPath = filepath.Join(cfg.Storage.DataDir, "metadata.json")
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "index.db")
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = 10
	}

	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "none"
	}
	if cfg.Lock.RefreshSeconds == 0 && cfg.Lock.Backend != "none" {
		cfg.Lock.RefreshSeconds = 30
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = domain.AIProviderLocal
	}
	if cfg.Embedding.Provider == domain.AIProviderLocal && cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case domain.AIProviderOpenAI:
			cfg.Embedding.Model = "text-embedding-3-small"
		case domain.AIProviderOllama:
			cfg.Embedding.Model = "nomic-embed-text"
		}
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = domain.AIProviderOpenAI
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case domain.AIProviderOpenAI:
			cfg.LLM.Model = "gpt-4o-mini"
		case domain.AIProviderOllama:
			cfg.LLM.Model = "llama3.2"
		}
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate rejects unknown backends and impossible limits.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite":
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres storage backend", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", domain.ErrInvalidInput, c.Storage.Backend)
	}

	switch c.Lock.Backend {
	case "none":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for the redis lock backend", domain.ErrInvalidInput)
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required for the postgres lock backend", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown lock backend %q", domain.ErrInvalidInput, c.Lock.Backend)
	}

	if c.Upload.MinFiles < 1 || c.Upload.MaxFiles < c.Upload.MinFiles {
		return fmt.Errorf("%w: file count bounds %d-%d", domain.ErrInvalidInput, c.Upload.MinFiles, c.Upload.MaxFiles)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap must be smaller than chunk size", domain.ErrInvalidInput)
	}
	return nil
}

// UploadLimits converts the upload section for the ingest service.
func (c *Config) UploadLimits() domain.UploadLimits {
	return domain.UploadLimits{
		MinFiles:          c.Upload.MinFiles,
		MaxFiles:          c.Upload.MaxFiles,
		MaxFileSize:       c.Upload.MaxFileSize,
		AllowedExtensions: c.Upload.AllowedExtensions,
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
