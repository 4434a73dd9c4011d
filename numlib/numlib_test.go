package numlib_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/heathsc/lbtools/numlib"
)

func TestFDRWorkedExample(t *testing.T) {
	// spec 8, "FDR worked example".
	p := []float64{0.001, 0.008, 0.039, 0.041, 0.042, 0.06, 0.074, 0.205}
	want := []float64{0.008, 0.032, 0.0672, 0.0672, 0.0672, 0.080, 0.0846, 0.205}
	q := numlib.FDR(p)
	require.Len(t, q, len(want))
	for i := range want {
		assert.InDeltaf(t, want[i], q[i], 1e-3, "q[%d]", i)
	}
}

func TestFDRSimpleExample(t *testing.T) {
	// spec 8: "FDR with p = [0.04, 0.03, 0.02, 0.01] returns q ~= [0.04]*4".
	p := []float64{0.04, 0.03, 0.02, 0.01}
	q := numlib.FDR(p)
	for _, v := range q {
		assert.InDelta(t, 0.04, v, 1e-9)
	}
}

func TestFDRMonotone(t *testing.T) {
	p := []float64{0.5, 0.001, 0.2, 0.3, 0.01, 0.9, 0.05}
	q := numlib.FDR(p)
	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	// sort idx by p ascending and check q is non-decreasing along that order.
	for i := 0; i < len(idx)-1; i++ {
		for j := i + 1; j < len(idx); j++ {
			if p[idx[j]] < p[idx[i]] {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	for i := 1; i < len(idx); i++ {
		assert.GreaterOrEqualf(t, q[idx[i]], q[idx[i-1]], "q not monotone with sorted p at rank %d", i)
	}
}

func TestFDREmpty(t *testing.T) {
	assert.Empty(t, numlib.FDR(nil))
}

func TestRobustSDWorkedExamples(t *testing.T) {
	// spec 8: "Robust-SD equals iqr/0.990 for n=5 and iqr/1.144 for n=9".
	sd, ok := numlib.RobustSD(1.0, 5)
	require.True(t, ok)
	assert.InDelta(t, 1.0/0.990, sd, 1e-9)

	sd, ok = numlib.RobustSD(1.0, 9)
	require.True(t, ok)
	assert.InDelta(t, 1.0/1.144, sd, 1e-9)
}

func TestRobustSDUndefinedBelowFive(t *testing.T) {
	// spec 8: "n=4 controls => robust-SD returns undefined".
	_, ok := numlib.RobustSD(1.0, 4)
	assert.False(t, ok)
}

func TestQtCtDNAExample(t *testing.T) {
	// spec 8 example 6: r = qt(0.975, 49) ~= 2.0096.
	r, err := numlib.Qt(0.975, 49)
	require.NoError(t, err)
	assert.InDelta(t, 2.0096, r, 5e-3)
}

func TestPtQtDomainErrors(t *testing.T) {
	_, err := numlib.Pt(1.0, 0)
	assert.Error(t, err)
	_, err = numlib.Qt(1.5, 10)
	assert.Error(t, err)
	_, err = numlib.Qt(0.5, -1)
	assert.Error(t, err)
}

func TestQnormIsInverseOfStandardNormalCDF(t *testing.T) {
	for _, p := range []float64{0.025, 0.5, 0.975} {
		z := numlib.Qnorm(p)
		// Phi(z) recovers p, z is not NaN, and z has the expected sign
		// around the median.
		assert.InDelta(t, p, distuv.UnitNormal.CDF(z), 1e-9)
		assert.False(t, math.IsNaN(z))
		if p < 0.5 {
			assert.Less(t, z, 0.0)
		} else if p > 0.5 {
			assert.Greater(t, z, 0.0)
		}
	}
}
