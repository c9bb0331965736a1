package postprocessors

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

var (
	_ driven.PostProcessor = (*WhitespaceNormalizer)(nil)
	_ driven.PostProcessor = (*Deduplicator)(nil)
)

// WhitespaceNormalizer collapses runs of spaces, trims lines, limits blank
// lines to one and drops segments that end up empty.
type WhitespaceNormalizer struct{}

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace in segments.
func (w *WhitespaceNormalizer) Process(segments []driven.Segment) []driven.Segment {
	result := make([]driven.Segment, 0, len(segments))

	for _, seg := range segments {
		content := strings.ReplaceAll(seg.Content, "\r\n", "\n")
		content = strings.ReplaceAll(content, "\r", "\n")

		lines := strings.Split(content, "\n")
		for i, line := range lines {
			lines[i] = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
				return r == ' ' || r == '\t'
			}), " ")
		}
		content = strings.Join(lines, "\n")

		for strings.Contains(content, "\n\n\n") {
			content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
		}
		content = strings.TrimSpace(content)

		if content == "" {
			continue
		}
		seg.Content = content
		result = append(result, seg)
	}

	return result
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 5.
func (w *WhitespaceNormalizer) Order() int {
	return 5
}

// DeduplicatorConfig configures the deduplicator.
type DeduplicatorConfig struct {
	// MinDuplicateLength is the minimum segment length (runes) to check
	MinDuplicateLength int
}

// DefaultDeduplicatorConfig returns sensible defaults.
func DefaultDeduplicatorConfig() DeduplicatorConfig {
	return DeduplicatorConfig{MinDuplicateLength: 50}
}

// Deduplicator drops repeated segments within one document, such as page
// headers repeated on every PDF page. Comparison ignores case and
// surrounding whitespace.
type Deduplicator struct {
	config DeduplicatorConfig
}

// NewDeduplicator creates a new deduplicator with the given config.
func NewDeduplicator(config DeduplicatorConfig) *Deduplicator {
	return &Deduplicator{config: config}
}

// Process removes duplicate segments, keeping the first occurrence.
func (d *Deduplicator) Process(segments []driven.Segment) []driven.Segment {
	if len(segments) <= 1 {
		return segments
	}

	seen := make(map[string]struct{}, len(segments))
	result := make([]driven.Segment, 0, len(segments))

	for _, seg := range segments {
		if utf8.RuneCountInString(seg.Content) < d.config.MinDuplicateLength {
			result = append(result, seg)
			continue
		}

		key := strings.ToLower(strings.TrimSpace(seg.Content))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, seg)
	}

	return result
}

// Name returns the processor name.
func (d *Deduplicator) Name() string {
	return "deduplicator"
}

// Order returns 10, after whitespace normalisation.
func (d *Deduplicator) Order() int {
	return 10
}
