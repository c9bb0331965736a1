package driving

import (
	"context"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
)

// AnswerService composes grounded answers from retrieved passages
type AnswerService interface {
	// Answer retrieves context for question and asks the generation service.
	// Returns ErrServiceUnavailable without a generator and ErrEmptyQuestion
	// for a blank question.
	Answer(ctx context.Context, question string) (*domain.Answer, error)

	// Available reports whether a generation service is configured
	Available() bool
}
