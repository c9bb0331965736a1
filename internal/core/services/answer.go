package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-qa/internal/runtime"
)

// Ensure answerService implements AnswerService
var _ driving.AnswerService = (*answerService)(nil)

const (
	answerThreshold      = 1.2
	answerK              = 5
	answerFallbackK      = 3
	citationTextLimit    = 150
	maxQuestionLength    = 250
	answerLabel          = "respuesta:"
	citationEllipsis     = "..."
	promptSourceTemplate = "[Fuente %d: %s]\n%s"
)

const promptTemplate = `Basándote en la siguiente información, responde la pregunta de manera concisa en 3-4 líneas máximo.

INFORMACIÓN DISPONIBLE:
%s

INSTRUCCIONES:
1. Responde en 3-4 líneas máximo
2. Usa principalmente la información proporcionada
3. Cita las fuentes como (Fuente 1), (Fuente 2), etc.
4. Si la información es parcial, responde lo que puedas y menciona que la información es limitada
5. Solo di "%s" si realmente no hay nada relacionado

PREGUNTA: %s

RESPUESTA:`

// AnswerConfig configures the answer composer
type AnswerConfig struct {
	Retrieval driving.RetrievalService
	Services  *runtime.Services // generation service is looked up per call

	// Threshold and K drive the first, thresholded search; FallbackK the
	// unthresholded retry when nothing passes.
	Threshold float64
	K         int
	FallbackK int

	MaxQuestionLength int

	Logger *slog.Logger
}

// answerService implements the AnswerService interface
type answerService struct {
	retrieval   driving.RetrievalService
	services    *runtime.Services
	threshold   float64
	k           int
	fallbackK   int
	maxQuestion int
	logger      *slog.Logger
}

// NewAnswerService creates a new AnswerService
func NewAnswerService(cfg AnswerConfig) driving.AnswerService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = answerThreshold
	}
	if cfg.K <= 0 {
		cfg.K = answerK
	}
	if cfg.FallbackK <= 0 {
		cfg.FallbackK = answerFallbackK
	}
	if cfg.MaxQuestionLength <= 0 {
		cfg.MaxQuestionLength = maxQuestionLength
	}

	return &answerService{
		retrieval:   cfg.Retrieval,
		services:    cfg.Services,
		threshold:   cfg.Threshold,
		k:           cfg.K,
		fallbackK:   cfg.FallbackK,
		maxQuestion: cfg.MaxQuestionLength,
		logger:      cfg.Logger.With("component", "answer"),
	}
}

// Available reports whether a generation service is configured
func (s *answerService) Available() bool {
	return s.generator() != nil
}

func (s *answerService) generator() driven.LLMService {
	if s.services == nil {
		return nil
	}
	return s.services.LLMService()
}

// Answer composes a grounded answer for question
func (s *answerService) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	llm := s.generator()
	if llm == nil {
		return nil, fmt.Errorf("generation: %w", domain.ErrServiceUnavailable)
	}

	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if utf8.RuneCountInString(trimmed) > s.maxQuestion {
		return nil, fmt.Errorf("question exceeds %d characters: %w", s.maxQuestion, domain.ErrInvalidInput)
	}

	start := time.Now()

	results, err := s.retrieval.SearchWithThreshold(ctx, trimmed, s.threshold, domain.SearchOptions{K: s.k})
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(results) == 0 {
		results, err = s.retrieval.SimilaritySearch(ctx, trimmed, domain.SearchOptions{K: s.fallbackK})
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
	}

	if len(results) == 0 {
		return &domain.Answer{
			Question:             question,
			Answer:               domain.NotFoundAnswer,
			Citations:            []domain.Citation{},
			HasSufficientContext: false,
		}, nil
	}

	reply, err := llm.Generate(ctx, buildPrompt(trimmed, results))
	if err != nil {
		s.logger.Error("generation failed", "model", llm.Model(), "error", err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	reply = stripAnswerLabel(reply)

	answer := &domain.Answer{
		Question:             question,
		Answer:               reply,
		Citations:            []domain.Citation{},
		HasSufficientContext: !domain.ContainsNotFound(reply),
	}
	if answer.HasSufficientContext {
		answer.Citations = citations(results)
	}

	s.logger.Info("question answered",
		"passages", len(results),
		"sufficient_context", answer.HasSufficientContext,
		"duration", time.Since(start))
	return answer, nil
}

// buildPrompt labels each passage as a numbered source
func buildPrompt(question string, results []domain.SearchResult) string {
	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = fmt.Sprintf(promptSourceTemplate, i+1, r.DocumentName, r.Text)
	}
	notFound := strings.TrimSuffix(domain.NotFoundAnswer, ".")
	return fmt.Sprintf(promptTemplate, strings.Join(passages, "\n\n"), notFound, question)
}

// stripAnswerLabel removes an echoed "Respuesta:" prefix
func stripAnswerLabel(reply string) string {
	reply = strings.TrimSpace(reply)
	if len(reply) >= len(answerLabel) && strings.EqualFold(reply[:len(answerLabel)], answerLabel) {
		reply = strings.TrimSpace(reply[len(answerLabel):])
	}
	return reply
}

func citations(results []domain.SearchResult) []domain.Citation {
	n := min(len(results), domain.MaxCitations)
	out := make([]domain.Citation, n)
	for i, r := range results[:n] {
		out[i] = domain.Citation{
			Text:         truncateRunes(r.Text, citationTextLimit),
			DocumentName: r.DocumentName,
			Score:        domain.Relevance(r.Score),
		}
	}
	return out
}

// truncateRunes cuts text to limit characters and appends an ellipsis
func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + citationEllipsis
}
