// Package vectorindex provides an exact in-memory nearest-neighbour index.
package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.VectorIndex  = (*FlatIndex)(nil)
	_ driven.PointRemover = (*FlatIndex)(nil)
)

// unitTolerance is how far a magnitude may drift from 1 before a vector is renormalised
const unitTolerance = 1e-4

// FlatIndex is a brute-force index over unit vectors.
// Distances are squared Euclidean, which for unit vectors equals 2 - 2*cos.
// Entries keep insertion order so equal distances rank stably.
type FlatIndex struct {
	dim     int
	entries []driven.IndexEntry
}

// NewFlatIndex builds an index from entries. Vectors are copied and
// L2-normalised when they are not already unit length.
func NewFlatIndex(entries []driven.IndexEntry) (*FlatIndex, error) {
	idx := &FlatIndex{}
	if err := idx.add(entries); err != nil {
		return nil, err
	}
	return idx, nil
}

func (f *FlatIndex) add(entries []driven.IndexEntry) error {
	dim := f.dim
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %q: empty vector", e.Key)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("entry %d (%q) has %d dims, index has %d: %w",
				i, e.Key, len(e.Vector), dim, domain.ErrDimensionMismatch)
		}
	}

	for _, e := range entries {
		f.entries = append(f.entries, driven.IndexEntry{
			Key:      e.Key,
			Metadata: copyMetadata(e.Metadata),
			Vector:   normalized(e.Vector),
		})
	}
	f.dim = dim
	return nil
}

// Merge appends all entries of other. Duplicates are kept.
func (f *FlatIndex) Merge(other driven.VectorIndex) error {
	o, ok := other.(*FlatIndex)
	if !ok {
		return fmt.Errorf("cannot merge %T into flat index", other)
	}
	if o.Len() == 0 {
		return nil
	}
	if f.dim != 0 && o.dim != f.dim {
		return fmt.Errorf("merge %d-dim batch into %d-dim index: %w", o.dim, f.dim, domain.ErrDimensionMismatch)
	}
	f.entries = append(f.entries, o.entries...)
	f.dim = o.dim
	return nil
}

// Search ranks every entry that matches filter by distance to query.
// k <= 0 returns all matches.
func (f *FlatIndex) Search(query []float32, k int, filter domain.Filter) ([]driven.IndexHit, error) {
	if len(f.entries) == 0 {
		return nil, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has %d dims, index has %d: %w", len(query), f.dim, domain.ErrDimensionMismatch)
	}

	q := normalized(query)
	hits := make([]driven.IndexHit, 0, len(f.entries))
	for _, e := range f.entries {
		if !filter.Matches(e.Metadata) {
			continue
		}
		d := float64(search.Float32s(e.Vector).EuclideanDistance(q))
		hits = append(hits, driven.IndexHit{
			Key:      e.Key,
			Metadata: e.Metadata,
			Distance: d * d,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove drops every entry whose key is listed.
func (f *FlatIndex) Remove(keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	kept := f.entries[:0]
	removed := 0
	for _, e := range f.entries {
		if _, ok := drop[e.Key]; ok {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so removed vectors can be collected
	for i := len(kept); i < len(f.entries); i++ {
		f.entries[i] = driven.IndexEntry{}
	}
	f.entries = kept
	return removed
}

// Len returns the number of vectors
func (f *FlatIndex) Len() int {
	return len(f.entries)
}

// Dimension returns the vector size
func (f *FlatIndex) Dimension() int {
	return f.dim
}

// Keys returns the entry keys in insertion order
func (f *FlatIndex) Keys() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.Key
	}
	return keys
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	mag := float64(search.Float32s(out).Magnitude())
	if mag == 0 || math.Abs(mag-1) < unitTolerance {
		return out
	}
	inv := float32(1 / mag)
	for i := range out {
		out[i] *= inv
	}
	return out
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
