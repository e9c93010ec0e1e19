package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxCondition bounds the 2-norm condition number of an AR design matrix.
const maxCondition = 1e12

var errNonFinite = errors.New("non-finite forecast value")

// ARModel fits an autoregressive model of the given order to the first
// differences of a series (ARIMA(p,1,0) without constant) by least squares
// and integrates the predicted differences back onto the last value.
//
// The starting order is min(Order, len(diffs)/2) so that the design matrix
// has at least as many rows as columns. A singular fit steps down one order
// at a time; an order of zero is a random walk.
type ARModel struct {
	Order int
}

// Extrapolate implements Extrapolator. It is deterministic.
func (m ARModel) Extrapolate(values []float64, horizon int) ([]float64, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("need at least 2 values, got %d", len(values))
	}

	diffs := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
	}

	p := m.Order
	if half := len(diffs) / 2; p > half {
		p = half
	}

	var phi []float64
	for ; p > 0; p-- {
		var err error
		if phi, err = fitAR(diffs, p); err == nil {
			break
		}
	}

	history := append([]float64(nil), diffs...)
	level := values[len(values)-1]
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		var next float64
		for j, c := range phi {
			next += c * history[len(history)-1-j]
		}
		history = append(history, next)
		level += next
		if math.IsNaN(level) || math.IsInf(level, 0) {
			return nil, errNonFinite
		}
		out[h] = level
	}
	return out, nil
}

// fitAR solves d[t] = sum_j phi[j] * d[t-1-j] for t >= p in the
// least-squares sense. An ill-conditioned design is reported as an error.
func fitAR(d []float64, p int) ([]float64, error) {
	rows := len(d) - p
	x := mat.NewDense(rows, p, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + p
		for j := 0; j < p; j++ {
			x.Set(r, j, d[t-1-j])
		}
		y.SetVec(r, d[t])
	}

	// Equal or all-zero differences leave the lag columns dependent; NaN
	// covers the all-zero case.
	if c := mat.Cond(x, 2); !(c <= maxCondition) {
		return nil, fmt.Errorf("least squares AR(%d): ill-conditioned design (condition number %g)", p, c)
	}

	var qr mat.QR
	qr.Factorize(x)

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, y); err != nil {
		return nil, fmt.Errorf("least squares AR(%d): %w", p, err)
	}

	phi := make([]float64, p)
	for j := range phi {
		phi[j] = coef.AtVec(j)
		if math.IsNaN(phi[j]) || math.IsInf(phi[j], 0) {
			return nil, errNonFinite
		}
	}
	return phi, nil
}
