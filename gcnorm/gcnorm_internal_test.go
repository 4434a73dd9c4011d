package gcnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmoothRecoversExactQuadraticTrend(t *testing.T) {
	// When the per-class medians lie exactly on a quadratic in the class
	// index, the tricube-weighted local fit has zero residual regardless
	// of window placement or weighting, so smooth should reproduce the
	// underlying function at every populated class to floating precision.
	const n = 40
	quad := func(g int) float64 {
		x := float64(g - 20)
		return 100 + 2*x + 0.05*x*x
	}
	binCounts := make([][]float64, n)
	for g := 0; g < n; g++ {
		v := quad(g)
		binCounts[g] = []float64{v, v, v, v, v}
	}
	pred, err := smooth(binCounts)
	require.NoError(t, err)
	require.Len(t, pred, n)
	for g := 3; g < n-3; g++ {
		require.GreaterOrEqual(t, pred[g], 0.0, "class %d should be defined", g)
		assert.InDeltaf(t, quad(g), pred[g], 1e-6, "class %d", g)
	}
}

// TestSmoothFailsWithFewerThanThreeObservedClasses covers spec 9(a): fewer
// than 3 distinct populated GC classes cannot be fit, and is fatal rather
// than silently producing an all-undefined prediction.
func TestSmoothFailsWithFewerThanThreeObservedClasses(t *testing.T) {
	binCounts := make([][]float64, 10)
	binCounts[2] = []float64{10, 10}
	binCounts[5] = []float64{20, 20}
	_, err := smooth(binCounts)
	assert.Error(t, err)
}
