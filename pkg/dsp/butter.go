// Package dsp holds the signal conditioning applied to received traces.
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// ErrBadFilter is returned for filter parameters that cannot be realised.
var ErrBadFilter = errors.New("dsp: bad filter parameters")

// Butter designs a digital Butterworth low-pass filter of the given order with
// its -3 dB point at cutoff Hz, using the bilinear transform with frequency
// pre-warping. Coefficients are normalised so that a[0] == 1.
func Butter(order int, cutoff, fs float64) (b, a []float64, err error) {
	if order < 1 {
		return nil, nil, fmt.Errorf("%w: order %d", ErrBadFilter, order)
	}
	if !(cutoff > 0) || cutoff >= fs/2 {
		return nil, nil, fmt.Errorf("%w: cutoff %g Hz at fs %g Hz", ErrBadFilter, cutoff, fs)
	}

	fs2 := 2 * fs
	warped := fs2 * math.Tan(math.Pi*cutoff/fs)

	// Analog prototype poles on the left half circle of radius warped.
	poles := make([]complex128, order)
	for k := range poles {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		poles[k] = complex(warped, 0) * cmplx.Exp(complex(0, theta))
	}

	// Bilinear transform; all zeros land on z = -1.
	zpoles := make([]complex128, order)
	den := complex(1, 0)
	for i, p := range poles {
		zpoles[i] = (complex(fs2, 0) + p) / (complex(fs2, 0) - p)
		den *= complex(fs2, 0) - p
	}
	gain := math.Pow(warped, float64(order)) * real(1/den)

	b = make([]float64, order+1)
	for i := range b {
		b[i] = gain * binomial(order, i)
	}

	ac := poly(zpoles)
	a = make([]float64, len(ac))
	for i, c := range ac {
		a[i] = real(c)
	}

	return b, a, nil
}

// poly returns the coefficients of the monic polynomial with the given roots,
// highest power first.
func poly(roots []complex128) []complex128 {
	c := make([]complex128, 1, len(roots)+1)
	c[0] = 1
	for _, r := range roots {
		c = append(c, 0)
		for i := len(c) - 1; i > 0; i-- {
			c[i] -= r * c[i-1]
		}
	}
	return c
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}
