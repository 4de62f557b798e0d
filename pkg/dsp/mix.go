package dsp

import (
	"math"
	"math/cmplx"
)

// Mix shifts x up by shift Hz, multiplying sample k by exp(j*2*pi*shift*k/fs).
func Mix(x []complex64, shift, fs float64) []complex128 {
	out := make([]complex128, len(x))
	w := 2 * math.Pi * shift / fs
	for k, v := range x {
		out[k] = complex128(v) * cmplx.Exp(complex(0, w*float64(k)))
	}
	return out
}

// PhaseCorrect rotates x in place so that its mean over [start, end) has zero
// phase and returns the applied rotation in radians. The window is clipped to
// the trace; an empty window leaves x untouched.
func PhaseCorrect(x []complex128, start, end int) float64 {
	rot := -MeanPhase(x, start, end)
	if rot == 0 {
		return 0
	}

	r := cmplx.Exp(complex(0, rot))
	for i := range x {
		x[i] *= r
	}
	return rot
}

// MeanPhase returns the phase of the mean of x over [start, end).
func MeanPhase(x []complex128, start, end int) float64 {
	start = min(max(start, 0), len(x))
	end = min(end, len(x))
	var sum complex128
	for _, v := range x[start:max(start, end)] {
		sum += v
	}
	return cmplx.Phase(sum)
}

// Abs returns the magnitude of every sample.
func Abs(x []complex128) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = cmplx.Abs(v)
	}
	return out
}
