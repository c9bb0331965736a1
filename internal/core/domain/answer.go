package domain

import "strings"

// NotFoundAnswer is the canonical reply when no supporting context exists.
const NotFoundAnswer = "No encuentro esa información en los documentos cargados."

// MaxCitations is the maximum number of citations attached to an answer
const MaxCitations = 3

// Citation is a supporting passage for an answer
type Citation struct {
	Text         string  `json:"text"`
	DocumentName string  `json:"document_name"`
	Score        float64 `json:"score"` // relevance, higher is better
}

// Answer is the composed reply to a question
type Answer struct {
	Question             string     `json:"question"`
	Answer               string     `json:"answer"`
	Citations            []Citation `json:"citations"`
	HasSufficientContext bool       `json:"has_sufficient_context"`
}

// ContainsNotFound reports whether text includes the canonical not-found phrase,
// ignoring case and the trailing period.
func ContainsNotFound(text string) bool {
	phrase := strings.ToLower(strings.TrimSuffix(NotFoundAnswer, "."))
	return strings.Contains(strings.ToLower(text), phrase)
}
