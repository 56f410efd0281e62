package facematch

import (
	"fmt"
	"math"
)

// EuclideanDistance computes ||a - b|| on the raw vectors.
// The caller must ensure both have the same length.
func EuclideanDistance(a, b Embedding) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Distance is EuclideanDistance with a length check.
func Distance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	return EuclideanDistance(a, b), nil
}

// ValidateQuery rejects absent, empty or non-finite embeddings.
// When dim is positive the length must match it as well.
func ValidateQuery(q Embedding, dim int) error {
	if len(q) == 0 {
		return ErrEmptyQuery
	}
	for i, v := range q {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidQuery, i)
		}
	}
	if dim > 0 && len(q) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(q), dim)
	}
	return nil
}
