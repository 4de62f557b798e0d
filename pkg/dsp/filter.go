package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// normalize pads b and a to the same length and divides both by a[0].
func normalize(b, a []float64) (nb, na []float64, err error) {
	if len(a) == 0 || a[0] == 0 || len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: a[0] must be non-zero", ErrBadFilter)
	}
	n := max(len(a), len(b))
	nb = make([]float64, n)
	na = make([]float64, n)
	for i, v := range b {
		nb[i] = v / a[0]
	}
	for i, v := range a {
		na[i] = v / a[0]
	}
	return nb, na, nil
}

// LFilterZI returns the filter state of a step response at steady state.
// Scaling it by the first input sample starts the filter without a transient.
func LFilterZI(b, a []float64) ([]float64, error) {
	b, a, err := normalize(b, a)
	if err != nil {
		return nil, err
	}
	n := len(a) - 1
	if n == 0 {
		return nil, nil
	}

	// (I - companion(a)^T) zi = b[1:] - a[1:]*b[0]
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, 0, a[i+1])
		m.Set(i, i, m.At(i, i)+1)
		if i+1 < n {
			m.Set(i, i+1, -1)
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("failed to solve filter initial state: %w", err)
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// LFilter runs x through the IIR filter (b, a) in direct form II transposed.
// zi is the initial state and may be nil for a filter at rest. It returns the
// output and the final state.
func LFilter(b, a []float64, x, zi []complex128) (y, zf []complex128, err error) {
	b, a, err = normalize(b, a)
	if err != nil {
		return nil, nil, err
	}
	n := len(a) - 1

	z := make([]complex128, n)
	if zi != nil {
		if len(zi) != n {
			return nil, nil, fmt.Errorf("%w: initial state has %d taps, want %d", ErrBadFilter, len(zi), n)
		}
		copy(z, zi)
	}

	y = make([]complex128, len(x))
	for k, v := range x {
		out := complex(b[0], 0) * v
		if n > 0 {
			out += z[0]
		}
		for i := 0; i < n-1; i++ {
			z[i] = complex(b[i+1], 0)*v + z[i+1] - complex(a[i+1], 0)*out
		}
		if n > 0 {
			z[n-1] = complex(b[n], 0)*v - complex(a[n], 0)*out
		}
		y[k] = out
	}
	return y, z, nil
}

// LowPass filters x with a Butterworth low-pass started from the steady
// state of its first sample.
func LowPass(x []complex128, order int, cutoff, fs float64) ([]complex128, error) {
	if len(x) == 0 {
		return nil, nil
	}
	b, a, err := Butter(order, cutoff, fs)
	if err != nil {
		return nil, err
	}
	zi, err := LFilterZI(b, a)
	if err != nil {
		return nil, err
	}

	init := make([]complex128, len(zi))
	for i, v := range zi {
		init[i] = complex(v, 0) * x[0]
	}

	y, _, err := LFilter(b, a, x, init)
	return y, err
}
