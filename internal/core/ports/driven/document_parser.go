package driven

import (
	"context"
)

// DocumentParser extracts ordered text fragments from an uploaded file.
type DocumentParser interface {
	// Parse returns the text fragments of the file in reading order
	// (one per page for paged formats, a single fragment for plain text).
	Parse(ctx context.Context, name string, data []byte) ([]string, error)

	// SupportedTypes returns the lowercased file extensions handled (".pdf").
	SupportedTypes() []string

	// Priority returns the parser priority (higher = more specific).
	Priority() int
}

// ParserRegistry selects a parser by file extension.
// When multiple parsers match, the highest priority one is used.
type ParserRegistry interface {
	// Get returns the best parser for an extension, or nil
	Get(ext string) DocumentParser

	// Register registers a parser
	Register(parser DocumentParser)

	// List returns all registered extensions, sorted
	List() []string
}

// PostProcessor transforms text segments on their way to the index.
// Processors form a pipeline: Chunker -> WhitespaceNormalizer -> Deduplicator.
type PostProcessor interface {
	// Process applies post-processing to segments.
	// The first processor receives one segment per parsed fragment.
	Process(segments []Segment) []Segment

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// Segment is a piece of document text moving through the pipeline.
type Segment struct {
	// Content is the text of the segment
	Content string

	// Position is the segment index within the document (0-based)
	Position int

	// StartOffset is the rune offset from fragment start
	StartOffset int

	// EndOffset is the rune offset for segment end
	EndOffset int
}

// PostProcessorPipeline chains multiple post-processors in order.
type PostProcessorPipeline interface {
	// Process applies all processors in order to the fragments of one document.
	// Output positions are renumbered 0..n-1.
	Process(fragments []string) []Segment

	// Add adds a processor to the pipeline.
	Add(processor PostProcessor)

	// List returns processor names in order.
	List() []string
}
