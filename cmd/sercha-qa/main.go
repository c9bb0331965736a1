package main

// @title           Sercha QA API
// @version         1.0
// @description     Document question answering. Upload a small batch of .txt or .pdf files, then ask questions answered only from their content, with citations.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-qa/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8000
// @BasePath  /api/v1
// @schemes   http https

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/custodia-labs/sercha-qa/docs"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/filestore"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/sercha-qa/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-qa/internal/config"
	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-qa/internal/core/services"
	"github.com/custodia-labs/sercha-qa/internal/parsers"
	"github.com/custodia-labs/sercha-qa/internal/postprocessors"
	"github.com/custodia-labs/sercha-qa/internal/runtime"
	"github.com/custodia-labs/sercha-qa/internal/worker"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("sercha-qa: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("sercha-qa starting",
		"version", version,
		"storage", cfg.Storage.Backend,
		"lock", cfg.Lock.Backend)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// ===== Storage and lock backends =====
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}()

	var db *postgres.DB
	if cfg.Storage.Backend == "postgres" || cfg.Lock.Backend == "postgres" {
		dbConfig := postgres.DefaultConfig(cfg.Storage.DatabaseURL)
		dbConfig.MaxOpenConns = cfg.Storage.MaxOpenConns
		db, err = postgres.Connect(ctx, dbConfig)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, db.Close)

		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		logger.Info("postgres connected and schema initialized")
	}

	var repository driven.IndexRepository
	switch cfg.Storage.Backend {
	case "postgres":
		repository = postgres.NewIndexStore(db)
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		closers = append(closers, store.Close)
		repository = store
	default:
		repository = filestore.New(filestore.Config{
			IndexDir:    cfg.Storage.IndexDir,
			MappingPath: cfg.Storage.MappingPath,
		})
	}
	logger.Info("index repository ready", "backend", repository.Name())

	var lock driven.DistributedLock
	switch cfg.Lock.Backend {
	case "redis":
		client, err := redisadapter.NewClient(cfg.Lock.RedisURL)
		if err != nil {
			return fmt.Errorf("configure redis: %w", err)
		}
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		lock = redisadapter.NewLock(client)
		logger.Info("using redis index-write lock")
	case "postgres":
		lock = postgres.NewAdvisoryLock(db)
		logger.Info("using postgres advisory index-write lock")
	}

	// ===== AI services =====
	runtimeConfig := domain.NewRuntimeConfig(cfg.Storage.Backend, cfg.Lock.Backend)
	runtimeServices := runtime.NewServices(runtimeConfig)
	closers = append(closers, runtimeServices.Close)

	if err := runtimeServices.Bootstrap(ctx, ai.NewFactory(), &cfg.Embedding, &cfg.LLM, logger); err != nil {
		return fmt.Errorf("start AI services: %w", err)
	}

	// ===== Core services =====
	retrieval := services.NewRetrievalEngine(services.RetrievalConfig{
		Services:         runtimeServices,
		IndexFactory:     vectorindex.NewFactory(),
		Repository:       repository,
		Lock:             lock,
		SyncBeforeWrite:  lock != nil,
		DefaultK:         cfg.Retrieval.K,
		DefaultThreshold: cfg.Retrieval.Threshold,
		Logger:           logger,
	})
	if err := retrieval.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	stats := retrieval.Stats(ctx)
	logger.Info("index loaded",
		"vectors", stats.TotalVectors,
		"documents", stats.UniqueSources)

	answers := services.NewAnswerService(services.AnswerConfig{
		Retrieval: retrieval,
		Services:  runtimeServices,
		Logger:    logger,
	})

	ingest := services.NewIngestService(services.IngestConfig{
		Retrieval: retrieval,
		Parsers:   parsers.DefaultRegistry(),
		Pipeline: postprocessors.DefaultPipeline(postprocessors.ChunkConfig{
			MaxChunkSize:       cfg.Chunking.Size,
			Overlap:            cfg.Chunking.Overlap,
			PreserveSentences:  true,
			PreserveParagraphs: true,
		}),
		Limits: cfg.UploadLimits(),
		Logger: logger,
	})

	logger.Info("runtime config",
		"embedding", runtimeConfig.EmbeddingAvailable(),
		"llm", runtimeConfig.LLMAvailable(),
		"embedding_model", runtimeServices.EmbeddingModel())

	// ===== Replica refresh =====
	if lock != nil && cfg.Lock.RefreshSeconds > 0 {
		refresher := worker.NewWorker(worker.WorkerConfig{
			Refresher: retrieval,
			Logger:    logger,
			Interval:  time.Duration(cfg.Lock.RefreshSeconds) * time.Second,
		})
		if err := refresher.Start(context.Background()); err != nil {
			return fmt.Errorf("start index refresh: %w", err)
		}
		defer refresher.Stop()
	}

	// ===== HTTP =====
	server := http.NewServer(http.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		AppName:     cfg.AppName,
		Version:     version,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}, retrieval, answers, ingest, runtimeServices, lock)

	return server.Start()
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		fmt.Fprintf(os.Stderr, "unknown log level %q, using info\n", level)
		return slog.LevelInfo
	}
	return l
}
