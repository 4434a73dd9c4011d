// Package numlib provides the small set of numerical routines used by the
// region tester: the normal and Student's t
// distributions (via gonum), the Wan-2014 IQR-to-SD conversion table, and
// Benjamini-Hochberg FDR correction.
package numlib

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// Qnorm returns the inverse CDF (quantile function) of the standard normal
// distribution at p.
func Qnorm(p float64) float64 {
	n := distuv.Normal{Mu: 0, Sigma: 1}
	return n.Quantile(p)
}

// Pt returns the one-sided upper-tail p-value of Student's t distribution
// with df degrees of freedom: P(T > t). df must be positive.
func Pt(t, df float64) (float64, error) {
	if df <= 0 {
		return 0, errNumeric("non-positive degrees of freedom in pt: %v", df)
	}
	d := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 1 - d.CDF(t), nil
}

// Qt returns the quantile function of Student's t distribution with df
// degrees of freedom: the t such that P(T <= t) = p. p must lie in [0,1]
// and df must be positive.
func Qt(p, df float64) (float64, error) {
	if df <= 0 {
		return 0, errNumeric("non-positive degrees of freedom in qt: %v", df)
	}
	if p < 0 || p > 1 {
		return 0, errNumeric("p outside [0,1] in qt: %v", p)
	}
	d := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return d.Quantile(p), nil
}

type numericError struct{ msg string }

func (e *numericError) Error() string { return e.msg }

func errNumeric(format string, args ...interface{}) error {
	return &numericError{msg: fmt.Sprintf(format, args...)}
}
