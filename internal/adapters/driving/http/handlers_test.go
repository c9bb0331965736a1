package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/custodia-labs/sercha-qa/docs"
	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-qa/internal/core/services"
	"github.com/custodia-labs/sercha-qa/internal/parsers"
	"github.com/custodia-labs/sercha-qa/internal/postprocessors"
	"github.com/custodia-labs/sercha-qa/internal/runtime"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	server   *Server
	handler  http.Handler
	embedder *mocks.MockEmbeddingService
	llm      *mocks.MockLLMService
	lock     *mocks.MockDistributedLock
	runtime  *runtime.Services
}

func newTestServer(t *testing.T, pinger Pinger) *testServer {
	t.Helper()

	ts := &testServer{
		embedder: mocks.NewMockEmbeddingService(),
		llm:      mocks.NewMockLLMService("Respuesta: Los gatos duermen (Fuente 1)."),
		lock:     mocks.NewMockDistributedLock(),
		runtime:  runtime.NewServices(domain.NewRuntimeConfig("file", "redis")),
	}
	ts.runtime.SetEmbeddingService(ts.embedder)
	ts.runtime.SetLLMService(ts.llm)

	retrieval := services.NewRetrievalEngine(services.RetrievalConfig{
		Embedder:     ts.embedder,
		IndexFactory: vectorindex.NewFactory(),
		Repository:   mocks.NewMockIndexRepository(),
		Lock:         ts.lock,
	})
	answers := services.NewAnswerService(services.AnswerConfig{Retrieval: retrieval, Services: ts.runtime})
	ingest := services.NewIngestService(services.IngestConfig{
		Retrieval: retrieval,
		Parsers:   parsers.DefaultRegistry(),
		Pipeline:  postprocessors.DefaultPipeline(postprocessors.DefaultChunkConfig()),
	})

	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	ts.server = NewServer(cfg, retrieval, answers, ingest, ts.runtime, pinger)
	ts.handler = ts.server.Handler()
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, req)
}

func (ts *testServer) seed(t *testing.T) {
	t.Helper()
	rec := ts.upload(t, map[string]string{
		"gatos.txt":  "Los gatos duermen durante el día",
		"perros.txt": "Los perros ladran por la noche",
		"aves.txt":   "Las aves migran en invierno",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func jsonRequest(method, path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "sercha-qa", health.AppName)
	assert.Equal(t, "1.2.3", health.Version)
	assert.False(t, health.Timestamp.IsZero())

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", decode[VersionResponse](t, rec).Version)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]any](t, rec)
	assert.Contains(t, root, "endpoints")

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwaggerDoc(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	doc := decode[map[string]any](t, rec)
	assert.Equal(t, "2.0", doc["swagger"])
	assert.Equal(t, "/api/v1", doc["basePath"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/ingest", "/ask", "/search", "/status", "/stats", "/documents", "/documents/{name}"} {
		assert.Contains(t, paths, p)
	}
}

func TestReady(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		ts := newTestServer(t, stubPinger{})
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("lock backend down", func(t *testing.T) {
		ts := newTestServer(t, stubPinger{err: errors.New("connection refused")})
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no embedding service", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.runtime.SetEmbeddingService(nil)
		rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestIngest(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.upload(t, map[string]string{
		"a.txt": "Primer documento",
		"b.txt": "Segundo documento",
		"c.txt": "Tercer documento",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[IngestResponse](t, rec)
	assert.Equal(t, "processed 3 files", resp.Message)
	assert.Equal(t, 3, resp.TotalChunks)
	assert.Len(t, resp.FilesProcessed, 3)
	assert.Empty(t, resp.Warning)
	for _, f := range resp.FilesProcessed {
		assert.Equal(t, 1, f.ChunksCount)
		assert.Positive(t, f.FileSize)
	}
}

func TestIngest_ValidationErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.upload(t, map[string]string{"a.txt": "one", "b.txt": "two"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "between 3 and 10")

	rec = ts.upload(t, map[string]string{"a.txt": "one", "b.txt": "two", "c.doc": "three"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "c.doc")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec = ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_IndexBusy(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.lock.SetLockHeld(services.IndexWriteLock, time.Minute)

	rec := ts.upload(t, map[string]string{"a.txt": "one", "b.txt": "two", "c.txt": "three"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAsk(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	rec := ts.do(t, jsonRequest(http.MethodPost, "/api/v1/ask", askRequest{Question: "Los gatos duermen durante el día"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	answer := decode[domain.Answer](t, rec)
	assert.Equal(t, "Los gatos duermen (Fuente 1).", answer.Answer)
	assert.True(t, answer.HasSufficientContext)
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, "gatos.txt", answer.Citations[0].DocumentName)
	assert.LessOrEqual(t, len(answer.Citations), 3)
}

func TestAsk_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, jsonRequest(http.MethodPost, "/api/v1/ask", askRequest{Question: ""}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, jsonRequest(http.MethodPost, "/api/v1/ask", askRequest{Question: "   "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, jsonRequest(http.MethodPost, "/api/v1/ask", askRequest{Question: strings.Repeat("x", 251)}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader("not json"))
	rec = ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.runtime.SetLLMService(nil)
	rec = ts.do(t, jsonRequest(http.MethodPost, "/api/v1/ask", askRequest{Question: "¿Algo?"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAsk_NoDocuments(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, jsonRequest(http.MethodPost, "/api/v1/ask", askRequest{Question: "¿Algo?"}))
	require.Equal(t, http.StatusOK, rec.Code)

	answer := decode[domain.Answer](t, rec)
	assert.Equal(t, domain.NotFoundAnswer, answer.Answer)
	assert.False(t, answer.HasSufficientContext)
	assert.NotNil(t, answer.Citations)
	assert.Contains(t, rec.Body.String(), `"citations":[]`)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=gatos", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no index yet")

	ts.seed(t)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=%20", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, k := range []string{"0", "abc", "51"} {
		rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=gatos&k="+k, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, k)
	}

	rec = ts.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/search?q=Los+perros+ladran+por+la+noche&k=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SearchResponse](t, rec)
	assert.Equal(t, "Los perros ladran por la noche", resp.Query)
	require.Len(t, resp.Passages, 2)
	assert.Equal(t, 2, resp.TotalFound)
	assert.Equal(t, "perros.txt", resp.Passages[0].DocumentName)
	assert.InDelta(t, 1.0, resp.Passages[0].RelevanceScore, 1e-4)
	assert.Greater(t, resp.Passages[0].RelevanceScore, resp.Passages[1].RelevanceScore)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=gatos&document=aves.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[SearchResponse](t, rec)
	require.Len(t, resp.Passages, 1)
	assert.Equal(t, "aves.txt", resp.Passages[0].DocumentName)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=gatos&file_type=pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[SearchResponse](t, rec).Passages)
}

func TestStatusAndStats(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[IndexStatusResponse](t, rec)
	assert.Equal(t, 0, status.IndexedVectors)
	assert.NotNil(t, status.AvailableDocuments)
	assert.True(t, status.LLMAvailable)

	ts.seed(t)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	status = decode[IndexStatusResponse](t, rec)
	assert.Equal(t, 3, status.IndexedDocuments)
	assert.Equal(t, 3, status.TotalChunks)
	assert.Equal(t, 3, status.TotalDocuments)
	assert.Equal(t, 3, status.IndexedVectors)
	assert.Equal(t, []string{"aves.txt", "gatos.txt", "perros.txt"}, status.AvailableDocuments)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.True(t, stats.IndexStats.IndexExists)
	assert.Equal(t, 3, stats.IndexStats.TotalVectors)
	assert.Equal(t, 32, stats.IndexStats.Dimension)
	assert.True(t, stats.SystemStatus.HasData)
	assert.Equal(t, "file", stats.SystemStatus.Storage)
	assert.Equal(t, "redis", stats.SystemStatus.LockBackend)
	assert.Equal(t, "mock-embedding-model", stats.SystemStatus.EmbeddingModel)
	assert.True(t, stats.LLMAvailable)
}

func TestClearDocuments(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	rec := ts.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "all documents were removed", decode[MessageResponse](t, rec).Message)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	status := decode[IndexStatusResponse](t, rec)
	assert.Equal(t, 0, status.IndexedVectors)
	assert.Empty(t, status.AvailableDocuments)
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)

	rec := ts.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/gatos.txt", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[DeleteDocumentResponse](t, rec)
	assert.Equal(t, 1, resp.ChunksRemoved)
	assert.Equal(t, 2, resp.TotalVectors)
	assert.False(t, resp.Rebuilt)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, []string{"aves.txt", "perros.txt"}, decode[IndexStatusResponse](t, rec).AvailableDocuments)
}

func TestRebuildIndex(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.seed(t)
	before := ts.embedder.EmbeddedCount()

	rec := ts.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[RebuildResponse](t, rec)
	assert.Equal(t, 3, resp.ChunksEmbedded)
	assert.Equal(t, 3, resp.TotalVectors)
	assert.Equal(t, before+3, ts.embedder.EmbeddedCount())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrEmptyQuestion), http.StatusBadRequest},
		{domain.ErrEmptyBatch, http.StatusBadRequest},
		{domain.ErrIndexNotReady, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrIndexBusy, http.StatusConflict},
		{fmt.Errorf("generation: %w", domain.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
