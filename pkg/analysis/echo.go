package analysis

import (
	"fmt"
	"math/cmplx"
)

// EchoMode selects how the phase cycles of a CPMG acquisition are combined
// into one magnitude per echo.
type EchoMode int

const (
	// SumMax takes the peak magnitude of the coherent sum of all cycles.
	SumMax EchoMode = iota
	// AbsMean averages the summed per-cycle magnitudes over the window.
	AbsMean
)

func (m EchoMode) String() string {
	switch m {
	case SumMax:
		return "summax"
	case AbsMean:
		return "absmean"
	default:
		return fmt.Sprintf("EchoMode(%d)", int(m))
	}
}

// EchoWindowStart returns the first sample of the window of echo i (zero based).
func EchoWindowStart(i int, tr, t90, fs float64, width int) int {
	return int(float64(i+1)*tr*fs-float64(width)/2) + int(t90*fs)
}

// EchoMagnitudes returns one magnitude per echo from the phase cycled traces.
// Echoes whose window runs past the shortest trace are dropped.
func EchoMagnitudes(traces [][]complex128, npulses int, tr, t90, fs float64, width int, mode EchoMode) ([]float64, error) {
	if len(traces) == 0 || width <= 0 {
		return nil, ErrTooFewPoints
	}
	n := len(traces[0])
	for _, trace := range traces[1:] {
		n = min(n, len(trace))
	}

	mags := make([]float64, 0, npulses)
	for i := 0; i < npulses; i++ {
		start := EchoWindowStart(i, tr, t90, fs, width)
		if start < 0 || start+width > n {
			break
		}

		switch mode {
		case SumMax:
			peak := 0.0
			for k := start; k < start+width; k++ {
				var sum complex128
				for _, trace := range traces {
					sum += trace[k]
				}
				peak = max(peak, cmplx.Abs(sum))
			}
			mags = append(mags, peak)
		case AbsMean:
			total := 0.0
			for k := start; k < start+width; k++ {
				for _, trace := range traces {
					total += cmplx.Abs(trace[k])
				}
			}
			mags = append(mags, total/float64(width))
		default:
			return nil, fmt.Errorf("analysis: unknown echo mode %v", mode)
		}
	}

	if len(mags) == 0 {
		return nil, ErrTooFewPoints
	}
	return mags, nil
}
