package postprocessors

import (
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessor = (*Chunker)(nil)

// ChunkConfig configures the chunker. Sizes are in characters (runes).
type ChunkConfig struct {
	// MaxChunkSize is the maximum characters per chunk
	MaxChunkSize int

	// Overlap is the character overlap between consecutive windows
	Overlap int

	// PreserveSentences tries to break at sentence boundaries
	PreserveSentences bool

	// PreserveParagraphs tries to break at paragraph boundaries
	PreserveParagraphs bool
}

// DefaultChunkConfig returns 500-character windows with 50 characters of overlap.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChunkSize:       500,
		Overlap:            50,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

// breakSearchWindow is how far back from a window end a break point is looked for
const breakSearchWindow = 100

// Chunker splits segments longer than MaxChunkSize into overlapping windows.
type Chunker struct {
	config ChunkConfig
}

// NewChunker creates a chunker. Invalid sizes fall back to the defaults.
func NewChunker(config ChunkConfig) *Chunker {
	def := DefaultChunkConfig()
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = def.MaxChunkSize
	}
	if config.Overlap < 0 || config.Overlap >= config.MaxChunkSize {
		config.Overlap = 0
	}
	return &Chunker{config: config}
}

// Process splits each segment in turn.
func (c *Chunker) Process(segments []driven.Segment) []driven.Segment {
	var result []driven.Segment
	for _, seg := range segments {
		result = append(result, c.split(seg)...)
	}
	return result
}

// Name returns the processor name.
func (c *Chunker) Name() string {
	return "chunker"
}

// Order returns 0, chunking runs first.
func (c *Chunker) Order() int {
	return 0
}

func (c *Chunker) split(seg driven.Segment) []driven.Segment {
	runes := []rune(seg.Content)
	if len(runes) <= c.config.MaxChunkSize {
		return []driven.Segment{seg}
	}

	var out []driven.Segment
	start := 0
	for start < len(runes) {
		end := min(start+c.config.MaxChunkSize, len(runes))

		if end < len(runes) {
			if bp := c.findBreakPoint(runes, start, end); bp > start+c.config.Overlap {
				end = bp
			}
		}

		out = append(out, driven.Segment{
			Content:     string(runes[start:end]),
			Position:    seg.Position,
			StartOffset: seg.StartOffset + start,
			EndOffset:   seg.StartOffset + end,
		})

		if end >= len(runes) {
			break
		}
		start = max(end-c.config.Overlap, start+1)
	}
	return out
}

// findBreakPoint returns the rune index just after the best boundary in the
// tail of runes[start:maxEnd], or maxEnd when there is none.
func (c *Chunker) findBreakPoint(runes []rune, start, maxEnd int) int {
	from := max(maxEnd-breakSearchWindow, start)

	if c.config.PreserveParagraphs {
		for i := maxEnd - 1; i > from; i-- {
			if runes[i] == '\n' && runes[i-1] == '\n' {
				return i + 1
			}
		}
	}

	if c.config.PreserveSentences {
		for i := maxEnd - 1; i > from; i-- {
			if (runes[i] == ' ' || runes[i] == '\n') && isSentenceEnd(runes[i-1]) {
				return i + 1
			}
		}
	}

	for i := maxEnd - 1; i >= from; i-- {
		if runes[i] == ' ' || runes[i] == '\n' {
			return i + 1
		}
	}
	return maxEnd
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
