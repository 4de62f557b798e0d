package analysis

import "math/cmplx"

const (
	// fidGuard is the receive lead time before the pulse in a one pulse capture.
	fidGuard = 100e-6
	// fidSettle skips the low-pass filter transient after the switch opens.
	fidSettle = 500
	// fidSpan is the number of samples searched for the FID maximum.
	fidSpan = 3000
)

// T90Score is one point of a pulse width sweep.
type T90Score struct {
	Width float64 `json:"width"` // Seconds
	Score float64 `json:"score"`
}

// FIDWindow returns the sample range scored for a one pulse capture of the
// given pulse width.
func FIDWindow(deadTime, width, fs float64) (start, end int) {
	start = int((deadTime+width+fidGuard)*fs) + fidSettle
	return start, start + fidSpan
}

// ScoreFID returns the largest magnitude of fid inside its scoring window.
func ScoreFID(fid []complex128, deadTime, width, fs float64) float64 {
	start, end := FIDWindow(deadTime, width, fs)
	score := 0.0
	for _, v := range Window(fid, start, end-start) {
		if m := cmplx.Abs(v); m > score {
			score = m
		}
	}
	return score
}

// BestT90 returns the width with the highest score. Ties keep the first.
func BestT90(scan []T90Score) (float64, error) {
	if len(scan) == 0 {
		return 0, ErrTooFewPoints
	}
	best := scan[0]
	for _, s := range scan[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best.Width, nil
}

// T90Widths lists the sweep widths from start up to but excluding stop.
func T90Widths(start, stop, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	var widths []float64
	for i := 0; ; i++ {
		w := start + float64(i)*step
		if w >= stop-step*1e-9 {
			break
		}
		widths = append(widths, w)
	}
	return widths
}
