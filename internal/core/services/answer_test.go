package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-qa/internal/adapters/driven/vectorindex"
	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-qa/internal/runtime"
)

type answerFixture struct {
	retrieval driving.RetrievalService
	embedder  *mocks.MockEmbeddingService
	llm       *mocks.MockLLMService
	services  *runtime.Services
}

func newAnswerFixture(t *testing.T, reply string) *answerFixture {
	t.Helper()
	f := &answerFixture{
		embedder: mocks.NewMockEmbeddingService(),
		llm:      mocks.NewMockLLMService(reply),
		services: runtime.NewServices(domain.NewRuntimeConfig("file", "none")),
	}
	f.services.SetEmbeddingService(f.embedder)
	f.services.SetLLMService(f.llm)
	f.retrieval = NewRetrievalEngine(RetrievalConfig{
		Embedder:     f.embedder,
		IndexFactory: vectorindex.NewFactory(),
		Repository:   mocks.NewMockIndexRepository(),
	})
	return f
}

func (f *answerFixture) service(mutate ...func(*AnswerConfig)) driving.AnswerService {
	cfg := AnswerConfig{Retrieval: f.retrieval, Services: f.services}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewAnswerService(cfg)
}

func (f *answerFixture) index(t *testing.T, chunks ...*domain.Chunk) {
	t.Helper()
	_, err := f.retrieval.CreateIndex(context.Background(), chunks)
	require.NoError(t, err)
}

func TestAnswer_GenerationUnavailable(t *testing.T) {
	f := newAnswerFixture(t, "unused")
	f.services.SetLLMService(nil)
	svc := f.service()

	assert.False(t, svc.Available())
	_, err := svc.Answer(context.Background(), "¿Qué es Go?")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)

	nilServices := NewAnswerService(AnswerConfig{Retrieval: f.retrieval})
	_, err = nilServices.Answer(context.Background(), "¿Qué es Go?")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestAnswer_UnavailableCheckedBeforeEmptyQuestion(t *testing.T) {
	f := newAnswerFixture(t, "unused")
	f.services.SetLLMService(nil)

	_, err := f.service().Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestAnswer_QuestionValidation(t *testing.T) {
	f := newAnswerFixture(t, "unused")
	svc := f.service()
	ctx := context.Background()

	_, err := svc.Answer(ctx, " \t\n")
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)

	_, err = svc.Answer(ctx, strings.Repeat("a", 251))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Answer(ctx, strings.Repeat("ñ", 250))
	assert.NoError(t, err)
}

func TestAnswer_NoDocuments(t *testing.T) {
	f := newAnswerFixture(t, "unused")

	answer, err := f.service().Answer(context.Background(), "¿Qué es Go?")
	require.NoError(t, err)
	assert.Equal(t, domain.NotFoundAnswer, answer.Answer)
	assert.Empty(t, answer.Citations)
	assert.NotNil(t, answer.Citations)
	assert.False(t, answer.HasSufficientContext)
	assert.Empty(t, f.llm.Prompts(), "generator must not be called without context")
}

func TestAnswer_Grounded(t *testing.T) {
	f := newAnswerFixture(t, "  Respuesta: Go usa goroutines (Fuente 1).  ")
	f.index(t,
		domain.NewChunk("a.txt", 0, "Go channels coordinate goroutines"),
		domain.NewChunk("a.txt", 1, "The garbage collector is concurrent"),
		domain.NewChunk("b.txt", 0, "Modules pin dependency versions"),
		domain.NewChunk("c.txt", 0, "Interfaces are satisfied implicitly"),
	)

	question := " Go channels coordinate goroutines "
	answer, err := f.service().Answer(context.Background(), question)
	require.NoError(t, err)

	assert.Equal(t, question, answer.Question)
	assert.Equal(t, "Go usa goroutines (Fuente 1).", answer.Answer)
	assert.True(t, answer.HasSufficientContext)
	require.NotEmpty(t, answer.Citations)
	assert.LessOrEqual(t, len(answer.Citations), domain.MaxCitations)
	assert.Equal(t, "a.txt", answer.Citations[0].DocumentName)
	assert.Equal(t, "Go channels coordinate goroutines", answer.Citations[0].Text)
	assert.InDelta(t, 1.0, answer.Citations[0].Score, 1e-4)

	prompts := f.llm.Prompts()
	require.Len(t, prompts, 1)
	prompt := prompts[0]
	assert.Contains(t, prompt, "[Fuente 1: a.txt]\nGo channels coordinate goroutines")
	assert.Contains(t, prompt, "PREGUNTA: Go channels coordinate goroutines\n")
	assert.True(t, strings.HasSuffix(prompt, "RESPUESTA:"))
}

func TestAnswer_FallbackSearch(t *testing.T) {
	f := newAnswerFixture(t, "Respuesta parcial (Fuente 2).")
	f.index(t,
		domain.NewChunk("a.txt", 0, "one"),
		domain.NewChunk("a.txt", 1, "two"),
		domain.NewChunk("b.txt", 0, "three"),
		domain.NewChunk("b.txt", 1, "four"),
	)

	// Nothing is within a near-zero threshold, so the unthresholded k=3
	// search supplies the passages.
	svc := f.service(func(c *AnswerConfig) { c.Threshold = 1e-9 })
	answer, err := svc.Answer(context.Background(), "unrelated question")
	require.NoError(t, err)
	assert.True(t, answer.HasSufficientContext)
	assert.Len(t, answer.Citations, 3)

	prompt := f.llm.Prompts()[0]
	assert.Contains(t, prompt, "[Fuente 3: ")
	assert.NotContains(t, prompt, "[Fuente 4: ")
}

func TestAnswer_NotFoundReplyDropsCitations(t *testing.T) {
	f := newAnswerFixture(t, "no encuentro esa información en los documentos cargados")
	f.index(t, domain.NewChunk("a.txt", 0, "Go channels coordinate goroutines"))

	answer, err := f.service().Answer(context.Background(), "Go channels coordinate goroutines")
	require.NoError(t, err)
	assert.Equal(t, "no encuentro esa información en los documentos cargados", answer.Answer)
	assert.False(t, answer.HasSufficientContext)
	assert.Empty(t, answer.Citations)
}

func TestAnswer_CitationTruncation(t *testing.T) {
	f := newAnswerFixture(t, "ok")
	long := strings.Repeat("é", 200)
	f.index(t, domain.NewChunk("a.txt", 0, long))

	answer, err := f.service().Answer(context.Background(), long)
	require.NoError(t, err)
	require.Len(t, answer.Citations, 1)

	text := answer.Citations[0].Text
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.Equal(t, 153, utf8.RuneCountInString(text))
	assert.Equal(t, strings.Repeat("é", 150), strings.TrimSuffix(text, "..."))
}

func TestAnswer_GenerationError(t *testing.T) {
	f := newAnswerFixture(t, "unused")
	f.llm.GenerateFn = func(string) (string, error) {
		return "", errors.New("rate limited")
	}
	f.index(t, domain.NewChunk("a.txt", 0, "text"))

	_, err := f.service().Answer(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestStripAnswerLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Respuesta: hola", "hola"},
		{"RESPUESTA:hola", "hola"},
		{"  respuesta:   hola  ", "hola"},
		{"La respuesta: hola", "La respuesta: hola"},
		{"resp", "resp"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripAnswerLabel(tt.in), tt.in)
	}
}
