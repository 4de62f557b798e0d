package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const gridPoints = 200

// Fit is a decay a*exp(-b*x)+c.
type Fit struct {
	A, B, C float64
	T2      float64 // 1/B
	SSE     float64 // Sum of squared residuals
}

// Eval returns the model value at x.
func (f Fit) Eval(x float64) float64 {
	return f.A*math.Exp(-f.B*x) + f.C
}

// FitT2 fits y sampled every tr seconds.
func FitT2(y []float64, tr float64) (Fit, error) {
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i) * tr
	}
	return FitT2Points(x, y)
}

// FitT2Points fits a*exp(-b*x)+c to the given points by least squares.
//
// For a fixed rate the model is linear in a and c, so only the rate is
// searched: first on a logarithmic grid, then refined with Nelder-Mead in
// log(b).
func FitT2Points(x, y []float64) (Fit, error) {
	if len(x) != len(y) {
		return Fit{}, fmt.Errorf("analysis: %d abscissae for %d values", len(x), len(y))
	}
	if len(x) < 3 {
		return Fit{}, ErrTooFewPoints
	}

	lo, hi := x[0], x[0]
	for _, v := range x {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		return Fit{}, fmt.Errorf("%w: abscissae do not span an interval", ErrTooFewPoints)
	}
	step := span / float64(len(x)-1)

	u := make([]float64, len(x))
	project := func(b float64) Fit {
		for i, v := range x {
			u[i] = math.Exp(-b * v)
		}
		c, a := stat.LinearRegression(u, y, nil, false)
		f := Fit{A: a, B: b, C: c, SSE: math.Inf(1)}
		if math.IsNaN(a) || math.IsNaN(c) {
			return f
		}
		sse := 0.0
		for i, v := range y {
			r := v - (a*u[i] + c)
			sse += r * r
		}
		f.SSE = sse
		return f
	}

	// Rates from a hundredth of a decay over the record to one per sample.
	pmin, pmax := math.Log(0.01/span), math.Log(1/step)
	best := Fit{SSE: math.Inf(1)}
	for i := 0; i < gridPoints; i++ {
		p := pmin + (pmax-pmin)*float64(i)/float64(gridPoints-1)
		if f := project(math.Exp(p)); f.SSE < best.SSE {
			best = f
		}
	}
	if math.IsInf(best.SSE, 1) {
		return Fit{}, fmt.Errorf("analysis: decay fit failed")
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			return project(math.Exp(p[0])).SSE
		},
	}
	settings := &optimize.Settings{
		Converger:       &optimize.FunctionConverge{Relative: 1e-12, Iterations: 50},
		FuncEvaluations: 2000,
	}
	res, _ := optimize.Minimize(problem, []float64{math.Log(best.B)}, settings, &optimize.NelderMead{SimplexSize: 0.02})
	if res != nil {
		if f := project(math.Exp(res.X[0])); f.SSE < best.SSE {
			best = f
		}
	}

	best.T2 = 1 / best.B
	return best, nil
}
