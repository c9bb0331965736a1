package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

const (
	defaultSearchK = 5
	maxSearchK     = 50
	uploadField    = "files"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// HealthResponse represents the health check response
// @Description Health check response
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	AppName   string    `json:"app_name" example:"sercha-qa"`
	Version   string    `json:"version" example:"1.0.0"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageResponse carries a human-readable outcome
// @Description Operation outcome
type MessageResponse struct {
	Message string `json:"message" example:"all documents were removed"`
	Warning string `json:"warning,omitempty" example:"index updated in memory but could not be persisted"`
}

// IngestResponse summarises an upload batch
// @Description Upload batch summary
type IngestResponse struct {
	Message        string                 `json:"message" example:"processed 3 files"`
	FilesProcessed []domain.ProcessedFile `json:"files_processed"`
	TotalChunks    int                    `json:"total_chunks" example:"12"`
	SkippedFiles   []string               `json:"skipped_files,omitempty"`
	Warning        string                 `json:"warning,omitempty"`
}

// askRequest is the body of POST /ask
type askRequest struct {
	Question string `json:"question" example:"¿Qué dice el contrato sobre plazos?"`
}

// IndexStatusResponse reports document and vector counts
// @Description Index and generation status
type IndexStatusResponse struct {
	IndexedDocuments   int      `json:"indexed_documents" example:"3"`
	TotalChunks        int      `json:"total_chunks" example:"42"`
	AvailableDocuments []string `json:"available_documents"`
	IndexedVectors     int      `json:"indexed_vectors" example:"42"`
	TotalDocuments     int      `json:"total_documents" example:"42"`
	LLMAvailable       bool     `json:"llm_available" example:"true"`
}

// SearchPassage is one raw search hit
// @Description Retrieved passage with relevance in (0,1]
type SearchPassage struct {
	Text           string  `json:"text"`
	DocumentName   string  `json:"document_name" example:"manual.pdf"`
	RelevanceScore float64 `json:"relevance_score" example:"0.8123"`
	ChunkIndex     int     `json:"chunk_index" example:"4"`
}

// SearchResponse lists raw search hits
// @Description Search results
type SearchResponse struct {
	Query      string          `json:"query"`
	Passages   []SearchPassage `json:"passages"`
	TotalFound int             `json:"total_found" example:"5"`
}

// SystemStatus describes storage and model state
type SystemStatus struct {
	HasData        bool   `json:"has_data"`
	Storage        string `json:"storage" example:"file"`
	LockBackend    string `json:"lock_backend" example:"none"`
	EmbeddingModel string `json:"embedding_model" example:"text-embedding-3-small"`
}

// StatsResponse is the diagnostic dump of GET /stats
// @Description Index statistics and availability
type StatsResponse struct {
	IndexStats   domain.IndexStats `json:"index_stats"`
	LLMAvailable bool              `json:"llm_available"`
	SystemStatus SystemStatus      `json:"system_status"`
}

// DeleteDocumentResponse reports a per-document deletion
// @Description Per-document deletion outcome
type DeleteDocumentResponse struct {
	Message       string `json:"message"`
	ChunksRemoved int    `json:"chunks_removed" example:"7"`
	TotalVectors  int    `json:"total_vectors" example:"35"`
	Rebuilt       bool   `json:"rebuilt"`
	Warning       string `json:"warning,omitempty"`
}

// RebuildResponse reports a full index rebuild
// @Description Index rebuild outcome
type RebuildResponse struct {
	ChunksEmbedded int    `json:"chunks_embedded" example:"42"`
	TotalVectors   int    `json:"total_vectors" example:"42"`
	Warning        string `json:"warning,omitempty"`
}

// Health endpoints

// handleRoot godoc
// @Summary      API index
// @Description  Lists the available endpoints
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       / [get]
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to " + s.appName,
		"version": s.version,
		"docs":    "/swagger/doc.json",
		"health":  "/health",
		"endpoints": map[string]string{
			"ingest":  "POST /api/v1/ingest - upload 3-10 .txt/.pdf files",
			"ask":     "POST /api/v1/ask - ask a question about the documents",
			"search":  "GET /api/v1/search?q=&k= - raw passages",
			"status":  "GET /api/v1/status - index status",
			"stats":   "GET /api/v1/stats - diagnostics",
			"clear":   "DELETE /api/v1/documents - remove every document",
			"delete":  "DELETE /api/v1/documents/{name} - remove one document",
			"rebuild": "POST /api/v1/index/rebuild - re-embed every chunk",
		},
	})
}

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		AppName:   s.appName,
		Version:   s.version,
		Timestamp: time.Now().UTC(),
	})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the embedding service and, when configured, the lock backend
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "A dependency is unavailable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	embedder := s.services.EmbeddingService()
	if embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "embedding service not configured")
		return
	}
	if err := embedder.HealthCheck(r.Context()); err != nil {
		s.logger.Warn("embedding service not ready", "error", err)
		writeError(w, http.StatusServiceUnavailable, "embedding service unavailable")
		return
	}
	if s.lock != nil {
		if err := s.lock.Ping(r.Context()); err != nil {
			s.logger.Warn("lock backend not ready", "error", err)
			writeError(w, http.StatusServiceUnavailable, "lock backend unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api documentation not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

// Document endpoints

// handleIngest godoc
// @Summary      Upload documents
// @Description  Uploads 3-10 .txt or .pdf files, splits them into chunks and indexes them
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        files  formData  file  true  "Files to index (repeat the field)"
// @Success      200    {object}  IngestResponse
// @Failure      400    {object}  ErrorResponse  "Validation failed or no text extracted"
// @Failure      409    {object}  ErrorResponse  "Index is being modified by another instance"
// @Failure      500    {object}  ErrorResponse  "Indexing failed"
// @Router       /ingest [post]
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	files := make([]domain.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot read uploaded file "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "cannot read uploaded file "+fh.Filename)
			return
		}
		files = append(files, domain.UploadedFile{Name: fh.Filename, Size: fh.Size, Data: data})
	}

	result, err := s.ingest.Ingest(r.Context(), files)
	if err != nil {
		s.writeServiceError(w, r, err, "indexing failed")
		return
	}

	resp := IngestResponse{
		Message:        fmt.Sprintf("processed %d files", len(result.FilesProcessed)),
		FilesProcessed: result.FilesProcessed,
		TotalChunks:    result.TotalChunks,
		SkippedFiles:   result.SkippedFiles,
	}
	if result.Index != nil {
		resp.Warning = persistWarning(result.Index.PersistError)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleClearDocuments godoc
// @Summary      Remove every document
// @Description  Clears the index, the chunk mapping and the stored artifacts
// @Tags         Documents
// @Produce      json
// @Success      200  {object}  MessageResponse
// @Failure      409  {object}  ErrorResponse  "Index is being modified by another instance"
// @Router       /documents [delete]
func (s *Server) handleClearDocuments(w http.ResponseWriter, r *http.Request) {
	result, err := s.retrieval.ResetDatabase(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "failed to clear documents")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "all documents were removed",
		Warning: persistWarning(result.PersistError),
	})
}

// handleDeleteDocument godoc
// @Summary      Remove one document
// @Description  Removes every chunk of a document. Indexes without point removal are rebuilt, re-embedding every remaining chunk.
// @Tags         Documents
// @Produce      json
// @Param        name  path      string  true  "Document name"
// @Success      200   {object}  DeleteDocumentResponse
// @Failure      404   {object}  ErrorResponse  "Document not indexed"
// @Failure      409   {object}  ErrorResponse  "Index is being modified by another instance"
// @Failure      500   {object}  ErrorResponse  "Deletion failed"
// @Router       /documents/{name} [delete]
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "document name is required")
		return
	}

	result, err := s.retrieval.DeleteDocumentsBySource(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, err, "deletion failed")
		return
	}

	writeJSON(w, http.StatusOK, DeleteDocumentResponse{
		Message:       "document " + name + " was removed",
		ChunksRemoved: result.ChunksAffected,
		TotalVectors:  result.TotalVectors,
		Rebuilt:       result.Rebuilt,
		Warning:       persistWarning(result.PersistError),
	})
}

// Retrieval endpoints

// handleAsk godoc
// @Summary      Ask a question
// @Description  Answers in 3-4 lines from the indexed documents with up to 3 citations
// @Tags         Questions
// @Accept       json
// @Produce      json
// @Param        request  body      askRequest  true  "Question (1-250 characters)"
// @Success      200      {object}  domain.Answer
// @Failure      400      {object}  ErrorResponse  "Empty or too long question"
// @Failure      503      {object}  ErrorResponse  "Generation service unavailable"
// @Failure      500      {object}  ErrorResponse  "Answering failed"
// @Router       /ask [post]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.answers.Answer(r.Context(), req.Question)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleSearch godoc
// @Summary      Search passages
// @Description  Returns the passages nearest to the query with relevance 1/(1+distance)
// @Tags         Questions
// @Produce      json
// @Param        q          query     string  true   "Query"
// @Param        k          query     int     false  "Maximum passages (default 5)"
// @Param        document   query     string  false  "Restrict to one document"
// @Param        file_type  query     string  false  "Restrict to one file type (.pdf, .txt)"
// @Success      200        {object}  SearchResponse
// @Failure      400        {object}  ErrorResponse  "Missing query or no documents indexed"
// @Failure      500        {object}  ErrorResponse  "Search failed"
// @Router       /search [get]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))

	k := defaultSearchK
	if raw := q.Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSearchK {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("k must be an integer between 1 and %d", maxSearchK))
			return
		}
		k = parsed
	}

	if !s.retrieval.Stats(r.Context()).IndexExists {
		writeError(w, http.StatusBadRequest, domain.ErrIndexNotReady.Error()+", upload files with /ingest first")
		return
	}
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	opts := domain.SearchOptions{K: k, Filter: domain.Filter{}}
	if doc := q.Get("document"); doc != "" {
		opts.Filter[domain.MetaSource] = doc
	}
	if ft := strings.ToLower(q.Get("file_type")); ft != "" {
		if !strings.HasPrefix(ft, ".") {
			ft = "." + ft
		}
		opts.Filter[domain.MetaFileType] = ft
	}

	results, err := s.retrieval.SimilaritySearch(r.Context(), query, opts)
	if err != nil {
		s.writeServiceError(w, r, err, "search failed")
		return
	}

	passages := make([]SearchPassage, len(results))
	for i, res := range results {
		passages[i] = SearchPassage{
			Text:           res.Text,
			DocumentName:   res.DocumentName,
			RelevanceScore: domain.Relevance(res.Score),
			ChunkIndex:     res.ChunkIndex,
		}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Query:      q.Get("q"),
		Passages:   passages,
		TotalFound: len(passages),
	})
}

// Index state endpoints

// handleStatus godoc
// @Summary      Index status
// @Description  Document, chunk and vector counts computed from the live index
// @Tags         Index
// @Produce      json
// @Success      200  {object}  IndexStatusResponse
// @Router       /status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.retrieval.Stats(r.Context())
	sources := stats.SourceList
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, IndexStatusResponse{
		IndexedDocuments:   stats.UniqueSources,
		TotalChunks:        stats.TotalDocuments,
		AvailableDocuments: sources,
		IndexedVectors:     stats.TotalVectors,
		TotalDocuments:     stats.TotalDocuments,
		LLMAvailable:       s.answers.Available(),
	})
}

// handleStats godoc
// @Summary      Index diagnostics
// @Description  Index statistics with storage and model information
// @Tags         Index
// @Produce      json
// @Success      200  {object}  StatsResponse
// @Router       /stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.retrieval.Stats(r.Context())
	if stats.SourceList == nil {
		stats.SourceList = []string{}
	}

	cfg := s.services.Config()
	writeJSON(w, http.StatusOK, StatsResponse{
		IndexStats:   stats,
		LLMAvailable: s.answers.Available(),
		SystemStatus: SystemStatus{
			HasData:        stats.TotalVectors > 0,
			Storage:        cfg.StorageBackend,
			LockBackend:    cfg.LockBackend,
			EmbeddingModel: s.services.EmbeddingModel(),
		},
	})
}

// handleRebuildIndex godoc
// @Summary      Rebuild the index
// @Description  Re-embeds every indexed chunk into a fresh index. Costs one embedding per chunk.
// @Tags         Index
// @Produce      json
// @Success      200  {object}  RebuildResponse
// @Failure      409  {object}  ErrorResponse  "Index is being modified by another instance"
// @Failure      500  {object}  ErrorResponse  "Rebuild failed"
// @Router       /index/rebuild [post]
func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	result, err := s.retrieval.RebuildIndex(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, RebuildResponse{
		ChunksEmbedded: result.ChunksAffected,
		TotalVectors:   result.TotalVectors,
		Warning:        persistWarning(result.PersistError),
	})
}

// Helper functions

// writeServiceError maps domain errors to HTTP statuses. Client errors carry
// the error text; server errors are logged and reported with fallback.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.Error(fallback, "error", err, "request_id", GetRequestID(r.Context()))
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyQuestion),
		errors.Is(err, domain.ErrEmptyBatch),
		errors.Is(err, domain.ErrIndexNotReady):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIndexBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func persistWarning(err error) string {
	if err == nil {
		return ""
	}
	return "index updated in memory but could not be persisted: " + err.Error()
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
