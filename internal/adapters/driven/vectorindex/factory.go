package vectorindex

import (
	"sort"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndexFactory = (*Factory)(nil)

// Factory builds and decodes flat indexes
type Factory struct{}

// NewFactory creates a new flat index factory
func NewFactory() *Factory {
	return &Factory{}
}

// Build creates a flat index from entries
func (Factory) Build(entries []driven.IndexEntry) (driven.VectorIndex, error) {
	return NewFlatIndex(entries)
}

// Decode restores a flat index from its binary form
func (Factory) Decode(data []byte) (driven.VectorIndex, error) {
	idx := &FlatIndex{}
	if err := idx.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return idx, nil
}

// Name returns "flat"
func (Factory) Name() string {
	return "flat"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
