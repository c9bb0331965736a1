// Package postprocessors turns parsed document fragments into index-ready
// segments: chunking, whitespace cleanup and optional deduplication.
package postprocessors

import (
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline chains post-processors sorted by Order.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// DefaultPipeline chunks with cfg and normalises whitespace.
func DefaultPipeline(cfg ChunkConfig) *Pipeline {
	p := NewPipeline()
	p.Add(NewChunker(cfg))
	p.Add(NewWhitespaceNormalizer())
	return p
}

// Add inserts a processor, keeping the pipeline ordered.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	sort.SliceStable(p.processors, func(i, j int) bool {
		return p.processors[i].Order() < p.processors[j].Order()
	})
}

// Process runs the fragments of one document through every processor.
// Positions of the result are renumbered 0..n-1 so they can serve as chunk indexes.
func (p *Pipeline) Process(fragments []string) []driven.Segment {
	p.mu.RLock()
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.RUnlock()

	segments := make([]driven.Segment, 0, len(fragments))
	for i, f := range fragments {
		segments = append(segments, driven.Segment{
			Content:   f,
			Position:  i,
			EndOffset: utf8.RuneCountInString(f),
		})
	}

	for _, proc := range processors {
		segments = proc.Process(segments)
	}

	for i := range segments {
		segments[i].Position = i
	}
	return segments
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}
