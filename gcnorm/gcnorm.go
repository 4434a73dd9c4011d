// Package gcnorm implements GC-content normalisation of raw coverage: a
// sample's coverage bins are grouped by the GC class of the underlying
// reference bin, the median coverage per GC class is smoothed by a local
// tricube-weighted quadratic regression, and every raw bin is divided by
// the smoothed prediction for its GC class to give a normalised coverage
// estimate centred near 1.
package gcnorm

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grailbio/base/errors"

	"github.com/heathsc/lbtools/contigtable"
	"github.com/heathsc/lbtools/gcindex"
	"github.com/heathsc/lbtools/scheduler"
)

// regionSize is the number of GC bins considered in each local regression
// window.
const regionSize = 31

// obs is one populated GC bin: how many raw-coverage observations fell
// into it and their quartiles.
type obs struct {
	ix        int
	n         int
	quartiles [3]float64
}

func newObs(ix int, v []float64) (obs, bool) {
	n := len(v)
	if n == 0 {
		return obs{}, false
	}
	sort.Float64s(v)
	return obs{ix: ix, n: n, quartiles: [3]float64{v[n>>2], v[n>>1], v[(n*3)>>2]}}, true
}

func (o obs) weight() float64 { return float64(o.n) }

// collectBinData groups raw coverage values from every normalisation
// contig by the GC class of the reference bin they fall in.
func collectBinData(contigs *contigtable.Table, gc *gcindex.Index, blockSize uint64, rc scheduler.RawCounts) [][]float64 {
	bins := make([][]float64, 100)
	for _, id := range contigs.All() {
		if !contigs.UseForNormalization(id) {
			continue
		}
		name := contigs.Name(id)
		counter, ok := rc[name]
		if !ok {
			continue
		}
		cd, ok := gc.Lookup(name)
		if !ok {
			continue
		}
		for i, ct := range counter.Bins {
			pos := uint64(i) * uint64(counter.BlockSize)
			j, ok := cd.GCBin(pos, blockSize)
			if !ok {
				continue
			}
			bins[j] = append(bins[j], float64(ct))
		}
	}
	return bins
}

// fit is a local quadratic model centred on GC bin x.
type fit struct {
	x    int
	beta [3]float64
}

// fitLocalRegression fits a tricube-weighted quadratic through the window
// obs[lo:hi+1], centred on obs[i] (index relative to the window). Per spec
// 4.3 step 3 / 9(a), a non-positive-definite normal-equations matrix is
// fatal, not a case to silently degrade.
func fitLocalRegression(window []obs, i int) (fit, error) {
	x0 := float64(window[i].ix)
	winSize := float64(window[len(window)-1].ix) - x0
	if d := x0 - float64(window[0].ix); d > winSize {
		winSize = d
	}
	if winSize == 0 {
		winSize = 1
	}

	var xwx [6]float64
	var xwy [3]float64
	for _, o := range window {
		x := float64(o.ix) - x0
		d := x / winSize
		if d < 0 {
			d = -d
		}
		z := 1 - d*d*d
		w := o.weight() * z * z * z
		x2 := x * x
		x3 := x * x2
		x4 := x2 * x2
		y := o.quartiles[1]

		xwx[0] += w
		xwx[1] += w * x
		xwx[2] += w * x2
		xwx[3] += w * x2
		xwx[4] += w * x3
		xwx[5] += w * x4
		xwy[0] += w * y
		xwy[1] += w * x * y
		xwy[2] += w * x2 * y
	}

	beta, err := solveNormalEquations(xwx, xwy)
	if err != nil {
		return fit{}, errors.E(err, "gc class", window[i].ix)
	}
	return fit{x: window[i].ix, beta: beta}, nil
}

// solveNormalEquations solves the 3x3 symmetric system X'WX beta = X'WY via
// a Cholesky decomposition. A window that fails to factorize strictly
// positive-definite (e.g. fewer than 3 distinct GC values in the window)
// is a numeric error per spec 4.3: "if the matrix is not strictly
// positive-definite at any step, the fit is fatal."
func solveNormalEquations(xwx [6]float64, xwy [3]float64) ([3]float64, error) {
	sym := mat.NewSymDense(3, []float64{
		xwx[0], xwx[1], xwx[3],
		xwx[1], xwx[2], xwx[4],
		xwx[3], xwx[4], xwx[5],
	})
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return [3]float64{}, errors.E("gc-normaliser local regression matrix is not positive-definite")
	}
	b := mat.NewVecDense(3, xwy[:])
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, b); err != nil {
		return [3]float64{}, errors.E(err, "solving gc-normaliser local regression normal equations")
	}
	return [3]float64{beta.AtVec(0), beta.AtVec(1), beta.AtVec(2)}, nil
}

func (f fit) predict(pos int) (float64, bool) {
	x := float64(pos - f.x)
	y := f.beta[0] + x*f.beta[1] + x*x*f.beta[2]
	if y < 1.0 {
		return 0, false
	}
	return y, true
}

// smooth fits a sliding local quadratic regression over the populated GC
// bins and returns a per-GC-class prediction (undefined where no
// observation was close enough to interpolate). Per spec 9(a), fewer than
// 3 distinct GC classes to fit is fatal, not silently empty.
func smooth(binCounts [][]float64) ([]float64, error) {
	n := len(binCounts)
	var observed []obs
	for ix, v := range binCounts {
		if o, ok := newObs(ix, v); ok {
			observed = append(observed, o)
		}
	}
	if len(observed) < 3 {
		return nil, errors.E("gc normaliser: fewer than 3 distinct GC classes with observations, cannot fit")
	}

	region := regionSize
	if len(observed) < region {
		region = len(observed)
	}
	left, right := 0, region-1
	l := len(observed)
	fits := make([]fit, l)
	for i := 0; i < l; i++ {
		f, err := fitLocalRegression(observed[left:right+1], i-left)
		if err != nil {
			return nil, err
		}
		fits[i] = f
		if right-i-1 < i+1-left && right < l-1 {
			left++
			right++
		}
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = -1
	}
	pred[fits[0].x] = fits[0].beta[0]
	for k := 0; k < len(fits)-1; k++ {
		a, b := fits[k], fits[k+1]
		for x := a.x + 1; x <= b.x; x++ {
			use := a
			if b.x-x <= x-a.x {
				use = b
			}
			if y, ok := use.predict(x); ok {
				pred[x] = y
			}
		}
	}
	return pred, nil
}

// Normalize divides every raw coverage bin of rc by the smoothed
// GC-class prediction applicable to its reference bin, producing
// normalised coverage centred near 1 for every contig in rc. A failure to
// fit the GC model (spec 4.3 step 3 / 9(a)) is fatal and returned as an
// error rather than silently passing through raw counts.
func Normalize(contigs *contigtable.Table, gc *gcindex.Index, blockSize uint64, rc scheduler.RawCounts) (scheduler.NormCov, error) {
	binCounts := collectBinData(contigs, gc, blockSize, rc)
	pred, err := smooth(binCounts)
	if err != nil {
		return nil, err
	}

	out := make(scheduler.NormCov, len(rc))
	for name, counter := range rc {
		cd, ok := gc.Lookup(name)
		bins := make([]float64, len(counter.Bins))
		for i, ct := range counter.Bins {
			bins[i] = -1
			if !ok {
				continue
			}
			pos := uint64(i) * uint64(counter.BlockSize)
			j, defined := cd.GCBin(pos, blockSize)
			if !defined || pred[j] < 0 {
				continue
			}
			bins[i] = float64(ct) / pred[j]
		}
		out[name] = scheduler.NormalizedContig{Bins: bins, Raw: counter}
	}
	return out, nil
}
