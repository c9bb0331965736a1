package ai

import (
	"github.com/viant/vec/search"
)

// normalize scales v to unit length in place. Zero vectors are left alone.
func normalize(v []float32) []float32 {
	mag := search.Float32s(v).Magnitude()
	if mag == 0 {
		return v
	}
	inv := 1 / mag
	for i := range v {
		v[i] *= inv
	}
	return v
}
