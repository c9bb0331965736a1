// Package parsers turns uploaded files into ordered text fragments.
package parsers

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ParserRegistry = (*Registry)(nil)

// Registry implements ParserRegistry with priority-based selection.
// When multiple parsers handle an extension, the highest priority one wins.
type Registry struct {
	mu      sync.RWMutex
	parsers []driven.DocumentParser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry creates a registry with the text and PDF parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewTextParser())
	r.Register(NewPDFParser())
	return r
}

// Register registers a parser.
func (r *Registry) Register(parser driven.DocumentParser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers = append(r.parsers, parser)
}

// Get returns the best parser for ext, or nil.
func (r *Registry) Get(ext string) driven.DocumentParser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best driven.DocumentParser
	for _, p := range r.parsers {
		if !matchesExtension(p.SupportedTypes(), ext) {
			continue
		}
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}
	return best
}

// List returns all registered extensions, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{})
	for _, p := range r.parsers {
		for _, t := range p.SupportedTypes() {
			set[t] = struct{}{}
		}
	}

	exts := make([]string, 0, len(set))
	for t := range set {
		exts = append(exts, t)
	}
	sort.Strings(exts)
	return exts
}

// matchesExtension compares case-insensitively, tolerating a missing leading
// dot. "*" matches any extension.
func matchesExtension(supported []string, ext string) bool {
	ext = normalizeExt(ext)
	if ext == "" {
		return false
	}
	for _, s := range supported {
		if s == "*" || normalizeExt(s) == ext {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
