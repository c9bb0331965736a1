package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-qa/internal/runtime"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	appName    string
	version    string
	logger     *slog.Logger

	// Services
	retrieval driving.RetrievalService
	answers   driving.AnswerService
	ingest    driving.IngestService
	services  *runtime.Services

	// Infrastructure
	lock Pinger // distributed lock backend health check (optional)

	maxUploadBytes int64
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	AppName     string
	Version     string
	CORSOrigins []string
	Logger      *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8000,
		AppName:     "sercha-qa",
		Version:     "dev",
		CORSOrigins: []string{"*"},
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	retrieval driving.RetrievalService,
	answers driving.AnswerService,
	ingest driving.IngestService,
	services *runtime.Services,
	lock Pinger, // can be nil
) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limits := ingest.Limits()
	s := &Server{
		router:    http.NewServeMux(),
		appName:   cfg.AppName,
		version:   cfg.Version,
		logger:    cfg.Logger,
		retrieval: retrieval,
		answers:   answers,
		ingest:    ingest,
		services:  services,
		lock:      lock,
		// Whole batch at the size limit plus multipart overhead.
		maxUploadBytes: int64(limits.MaxFiles)*limits.MaxFileSize + 1<<20,
	}

	s.setupRoutes()

	s.handler = NewRecoveryMiddleware(cfg.Logger).Handler(
		NewLoggingMiddleware(cfg.Logger).Handler(
			NewCORSMiddleware(cfg.CORSOrigins).Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second, // answers wait on the generation service
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health and metadata
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Documents
	s.router.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	s.router.HandleFunc("DELETE /api/v1/documents", s.handleClearDocuments)
	s.router.HandleFunc("DELETE /api/v1/documents/{name}", s.handleDeleteDocument)

	// Retrieval and answers
	s.router.HandleFunc("POST /api/v1/ask", s.handleAsk)
	s.router.HandleFunc("GET /api/v1/search", s.handleSearch)

	// Index state
	s.router.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.router.HandleFunc("GET /api/v1/stats", s.handleStats)
	s.router.HandleFunc("POST /api/v1/index/rebuild", s.handleRebuildIndex)
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	s.logger.Info("shutting down server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
