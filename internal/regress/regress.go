// Package regress provides the linear stage regressor used by the cascade:
// an ordinary least-squares map (with intercept) from appearance feature
// vectors to flattened shape corrections.
package regress

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Regressor is a fitted linear map from a D-dimensional feature vector to an
// M-dimensional correction vector. Immutable after Fit.
type Regressor struct {
	// Coef holds (D+1) rows of M coefficients; the last row is the intercept.
	Coef   [][]float64 `json:"coef"`
	InDim  int         `json:"in_dim"`
	OutDim int         `json:"out_dim"`
}

// Fit trains a least-squares linear model over all outputs jointly.
// features is N rows of identical length D, targets is N rows of identical
// length M. Rank-deficient or underdetermined systems are solved with a
// minimum-norm SVD solution rather than failing.
func Fit(features, targets [][]float64) (*Regressor, error) {
	n := len(features)
	if n < 1 {
		return nil, fmt.Errorf("no training samples")
	}
	if len(targets) != n {
		return nil, fmt.Errorf("feature/target count mismatch: %d vs %d", n, len(targets))
	}

	d := len(features[0])
	if d == 0 {
		return nil, fmt.Errorf("zero-length feature vectors")
	}
	m := len(targets[0])
	if m == 0 {
		return nil, fmt.Errorf("zero-length target vectors")
	}

	// Build the design matrix with a trailing intercept column.
	a := mat.NewDense(n, d+1, nil)
	y := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		if len(features[i]) != d {
			return nil, fmt.Errorf("feature row %d has length %d, want %d", i, len(features[i]), d)
		}
		if len(targets[i]) != m {
			return nil, fmt.Errorf("target row %d has length %d, want %d", i, len(targets[i]), m)
		}
		for j, v := range features[i] {
			a.Set(i, j, v)
		}
		a.Set(i, d, 1)
		for j, v := range targets[i] {
			y.Set(i, j, v)
		}
	}

	var coef mat.Dense
	if n >= d+1 {
		// Overdetermined: solve via QR decomposition.
		var qr mat.QR
		qr.Factorize(a)
		if err := qr.SolveTo(&coef, false, y); err != nil {
			// Rank-deficient or ill-conditioned systems drop to the
			// minimum-norm solver instead of failing.
			if err := solveMinNorm(&coef, a, y); err != nil {
				return nil, err
			}
		}
	} else {
		// Underdetermined (fewer samples than features): minimum-norm.
		if err := solveMinNorm(&coef, a, y); err != nil {
			return nil, err
		}
	}

	out := &Regressor{
		Coef:   make([][]float64, d+1),
		InDim:  d,
		OutDim: m,
	}
	for i := 0; i <= d; i++ {
		row := make([]float64, m)
		mat.Row(row, i, &coef)
		out.Coef[i] = row
	}
	return out, nil
}

// solveMinNorm computes the minimum-norm least-squares solution of a*x = y
// using a thin SVD with tolerance-based rank truncation.
func solveMinNorm(dst *mat.Dense, a, y *mat.Dense) error {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return fmt.Errorf("SVD factorization failed")
	}

	values := svd.Values(nil)
	rank := 0
	if len(values) > 0 {
		rows, cols := a.Dims()
		tol := float64(max(rows, cols)) * values[0] * 2.220446049250313e-16
		for _, v := range values {
			if v > tol {
				rank++
			}
		}
	}
	if rank == 0 {
		return fmt.Errorf("feature matrix has rank zero")
	}

	svd.SolveTo(dst, y, rank)
	return nil
}

// Validate checks the internal consistency of a regressor, typically one
// deserialized from disk rather than produced by Fit.
func (r *Regressor) Validate() error {
	if r.InDim < 1 {
		return fmt.Errorf("regressor input dimension is %d", r.InDim)
	}
	if r.OutDim < 1 {
		return fmt.Errorf("regressor output dimension is %d", r.OutDim)
	}
	if len(r.Coef) != r.InDim+1 {
		return fmt.Errorf("regressor has %d coefficient rows, want %d", len(r.Coef), r.InDim+1)
	}
	for i, row := range r.Coef {
		if len(row) != r.OutDim {
			return fmt.Errorf("coefficient row %d has length %d, want %d", i, len(row), r.OutDim)
		}
	}
	return nil
}

// Predict applies the fitted map to one feature vector.
func (r *Regressor) Predict(x []float64) ([]float64, error) {
	if len(x) != r.InDim {
		return nil, fmt.Errorf("feature vector has length %d, want %d", len(x), r.InDim)
	}

	out := make([]float64, r.OutDim)
	copy(out, r.Coef[r.InDim]) // intercept
	for i, xi := range x {
		if xi == 0 {
			continue
		}
		row := r.Coef[i]
		for j := range out {
			out[j] += xi * row[j]
		}
	}
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite prediction")
		}
	}
	return out, nil
}
