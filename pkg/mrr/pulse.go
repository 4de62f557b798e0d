package mrr

import (
	"math"

	"github.com/chewxy/math32"
)

// CaptureLength returns the number of samples covering a train of npulses
// refocusing pulses spaced tr apart after a 90 degree pulse of width t90.
func CaptureLength(npulses int, tr, t90, fs float64) int {
	return int(math.Round((float64(npulses+1)*tr + t90) * fs))
}

// quarterTurn returns j^q.
func quarterTurn(q int) complex64 {
	switch ((q % 4) + 4) % 4 {
	case 1:
		return 1i
	case 2:
		return -1
	case 3:
		return -1i
	default:
		return 1
	}
}

// Waveform builds one transmit burst: round(zbuff*fs) zeros followed by
// round(width*fs) samples of amp*exp(-j*2*pi*shift*t)*j^phase. The negative
// shift cancels the tune offset so the pulse lands on the resonance.
func Waveform(width, amp float64, phase int, fs, shift, zbuff float64) []complex64 {
	nz := int(math.Round(zbuff * fs))
	n := int(math.Round(width * fs))
	out := make([]complex64, nz+n)

	rot := quarterTurn(phase) * complex(float32(amp), 0)
	w := -2 * math.Pi * shift / fs
	for k := 0; k < n; k++ {
		s, c := math32.Sincos(float32(math.Remainder(w*float64(k), 2*math.Pi)))
		out[nz+k] = complex(c, s) * rot
	}
	return out
}
