package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driving"
)

// Ensure ingestService implements IngestService
var _ driving.IngestService = (*ingestService)(nil)

// IngestConfig configures the ingestion service
type IngestConfig struct {
	Retrieval driving.RetrievalService
	Parsers   driven.ParserRegistry
	Pipeline  driven.PostProcessorPipeline
	Limits    domain.UploadLimits
	Logger    *slog.Logger
}

// ingestService implements the IngestService interface
type ingestService struct {
	retrieval driving.RetrievalService
	parsers   driven.ParserRegistry
	pipeline  driven.PostProcessorPipeline
	limits    domain.UploadLimits
	logger    *slog.Logger
}

// NewIngestService creates a new IngestService.
// Zero-valued limits fall back to DefaultUploadLimits.
func NewIngestService(cfg IngestConfig) driving.IngestService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	defaults := domain.DefaultUploadLimits()
	if cfg.Limits.MinFiles <= 0 {
		cfg.Limits.MinFiles = defaults.MinFiles
	}
	if cfg.Limits.MaxFiles <= 0 {
		cfg.Limits.MaxFiles = defaults.MaxFiles
	}
	if cfg.Limits.MaxFileSize <= 0 {
		cfg.Limits.MaxFileSize = defaults.MaxFileSize
	}
	if len(cfg.Limits.AllowedExtensions) == 0 {
		cfg.Limits.AllowedExtensions = defaults.AllowedExtensions
	}

	return &ingestService{
		retrieval: cfg.Retrieval,
		parsers:   cfg.Parsers,
		pipeline:  cfg.Pipeline,
		limits:    cfg.Limits,
		logger:    cfg.Logger.With("component", "ingest"),
	}
}

// Limits returns the upload constraints in force
func (s *ingestService) Limits() domain.UploadLimits {
	return s.limits
}

// Ingest validates, parses, chunks and indexes an upload batch
func (s *ingestService) Ingest(ctx context.Context, files []domain.UploadedFile) (*domain.IngestResult, error) {
	if err := s.validate(files); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &domain.IngestResult{FilesProcessed: []domain.ProcessedFile{}}
	var chunks []*domain.Chunk

	for _, file := range files {
		fileChunks, err := s.chunkFile(ctx, file)
		if err != nil {
			s.logger.Warn("skipping file", "file", file.Name, "error", err)
			result.SkippedFiles = append(result.SkippedFiles, file.Name)
			continue
		}
		if len(fileChunks) == 0 {
			s.logger.Warn("skipping file without text", "file", file.Name)
			result.SkippedFiles = append(result.SkippedFiles, file.Name)
			continue
		}

		chunks = append(chunks, fileChunks...)
		result.FilesProcessed = append(result.FilesProcessed, domain.ProcessedFile{
			Filename:    file.Name,
			ChunksCount: len(fileChunks),
			FileSize:    fileSize(file),
		})
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %d files: %w", len(files), domain.ErrInvalidInput)
	}

	indexed, err := s.retrieval.CreateIndex(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}

	result.TotalChunks = len(chunks)
	result.Index = indexed

	s.logger.Info("files ingested",
		"files", len(result.FilesProcessed),
		"skipped", len(result.SkippedFiles),
		"chunks", result.TotalChunks,
		"duration", time.Since(start))
	return result, nil
}

// validate enforces the batch size, name, extension and size rules
func (s *ingestService) validate(files []domain.UploadedFile) error {
	if len(files) < s.limits.MinFiles || len(files) > s.limits.MaxFiles {
		return fmt.Errorf("%w: upload between %d and %d files, got %d",
			domain.ErrInvalidInput, s.limits.MinFiles, s.limits.MaxFiles, len(files))
	}

	seen := make(map[string]struct{}, len(files))
	for _, file := range files {
		if strings.TrimSpace(file.Name) == "" {
			return fmt.Errorf("%w: every file must have a name", domain.ErrInvalidInput)
		}
		if _, dup := seen[file.Name]; dup {
			return fmt.Errorf("%w: file %s appears more than once", domain.ErrInvalidInput, file.Name)
		}
		seen[file.Name] = struct{}{}

		if !slices.Contains(s.limits.AllowedExtensions, domain.FileType(file.Name)) {
			return fmt.Errorf("%w: file %s is not accepted, allowed: %s",
				domain.ErrInvalidInput, file.Name, strings.Join(s.limits.AllowedExtensions, ", "))
		}
		if fileSize(file) > s.limits.MaxFileSize {
			return fmt.Errorf("%w: file %s exceeds %s",
				domain.ErrInvalidInput, file.Name, humanize.IBytes(uint64(s.limits.MaxFileSize)))
		}
	}
	return nil
}

// chunkFile parses a file and turns its fragments into chunks
func (s *ingestService) chunkFile(ctx context.Context, file domain.UploadedFile) ([]*domain.Chunk, error) {
	ext := domain.FileType(file.Name)
	parser := s.parsers.Get(ext)
	if parser == nil {
		return nil, fmt.Errorf("no parser for %s", ext)
	}

	fragments, err := parser.Parse(ctx, file.Name, file.Data)
	if err != nil {
		return nil, err
	}

	segments := s.pipeline.Process(fragments)
	chunks := make([]*domain.Chunk, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Content) == "" {
			continue
		}
		chunks = append(chunks, domain.NewChunk(file.Name, len(chunks), seg.Content))
	}
	return chunks, nil
}

func fileSize(file domain.UploadedFile) int64 {
	if file.Size > 0 {
		return file.Size
	}
	return int64(len(file.Data))
}
