package parsers

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

var _ driven.DocumentParser = (*TextParser)(nil)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextParser reads UTF-8 plain text as a single fragment.
type TextParser struct{}

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse validates the encoding and normalises line endings.
func (p *TextParser) Parse(ctx context.Context, name string, data []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrInvalidInput, name)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// SupportedTypes returns the handled extensions.
func (p *TextParser) SupportedTypes() []string {
	return []string{".txt"}
}

// Priority returns the parser priority.
func (p *TextParser) Priority() int {
	return 50
}
