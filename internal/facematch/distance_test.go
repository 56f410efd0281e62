package facematch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Embedding
		expected float64
	}{
		{"identical", Embedding{1, 2, 3}, Embedding{1, 2, 3}, 0},
		{"3-4-5", Embedding{0, 0}, Embedding{3, 4}, 5},
		{"negative", Embedding{-1, -1}, Embedding{1, 1}, math.Sqrt(8)},
		{"unnormalized", Embedding{100, 0}, Embedding{0, 0}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EuclideanDistance(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, EuclideanDistance(tt.b, tt.a), 1e-9)
		})
	}
}

func TestDistance_LengthCheck(t *testing.T) {
	d, err := Distance(Embedding{0, 0}, Embedding{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d, 1e-9)

	_, err = Distance(Embedding{0, 0}, Embedding{0, 1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery(Embedding{1, 2, 3}, 0))
	assert.NoError(t, ValidateQuery(Embedding{1, 2, 3}, 3))
	assert.ErrorIs(t, ValidateQuery(nil, 0), ErrEmptyQuery)
	assert.ErrorIs(t, ValidateQuery(Embedding{1, 2}, 3), ErrDimensionMismatch)
	assert.ErrorIs(t, ValidateQuery(Embedding{float32(math.Inf(-1))}, 0), ErrInvalidQuery)
}
