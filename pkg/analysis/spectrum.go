// Package analysis extracts calibration constants and relaxation times from
// processed traces.
package analysis

import (
	"errors"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrTooFewPoints is returned when there is not enough data to analyse.
var ErrTooFewPoints = errors.New("analysis: too few points")

// PeakFrequency returns the signed frequency in Hz of the largest spectral
// component of x sampled at fs.
func PeakFrequency(x []complex128, fs float64) (float64, error) {
	if len(x) < 2 {
		return 0, ErrTooFewPoints
	}

	fft := fourier.NewCmplxFFT(len(x))
	coeff := fft.Coefficients(nil, x)

	best, bestIdx := -1.0, 0
	for i, c := range coeff {
		if m := cmplx.Abs(c); m > best {
			best, bestIdx = m, i
		}
	}
	return fft.Freq(bestIdx) * fs, nil
}

// Window returns x[start:start+length] clipped to the bounds of x.
func Window[T any](x []T, start, length int) []T {
	start = min(max(start, 0), len(x))
	end := min(start+max(length, 0), len(x))
	return x[start:end]
}
