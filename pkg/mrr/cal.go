package mrr

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/calib"
)

// Pulse amplitudes of the spin echo used to find the resonance.
const (
	findF0Amp90  = 0.45
	findF0Amp180 = 0.9
)

// CalParams selects what Cal measures. A zero field is measured, a set one
// is taken as is.
type CalParams struct {
	F0  float64
	T90 float64
}

// FindF0 runs a spin echo around f0 and returns the resonance frequency
// estimated from the echo spectrum.
func (e *Engine) FindF0(ctx context.Context, f0, t90 float64) (float64, error) {
	f0, t90, err := e.resolve(ctx, f0, t90)
	if err != nil {
		return 0, err
	}
	return e.findF0(ctx, f0, t90)
}

func (e *Engine) findF0(ctx context.Context, f0, t90 float64) (float64, error) {
	trace, err := e.acquire(ctx, e.echoPlan(EchoParams{
		F0:     f0,
		T90:    t90,
		Amp90:  findF0Amp90,
		Amp180: findF0Amp180,
	}))
	if err != nil {
		return 0, fmt.Errorf("find f0: %w", err)
	}

	w := e.cal.F0Window
	peak, err := analysis.PeakFrequency(analysis.Window(trace, w.Start, w.Length), e.cfg.SampleRate)
	if err != nil {
		return 0, fmt.Errorf("find f0: %w", err)
	}
	log.Printf("F0 offset %.1f Hz, f0 = %.1f Hz", peak, f0+peak)
	return f0 + peak, nil
}

// FindT90 sweeps the pulse width with one pulse acquisitions at f0 and
// returns the score of every width.
func (e *Engine) FindT90(ctx context.Context, f0 float64) ([]analysis.T90Score, error) {
	f0, _, err := e.resolve(ctx, f0, 0)
	if err != nil {
		return nil, err
	}
	return e.findT90(ctx, f0)
}

func (e *Engine) findT90(ctx context.Context, f0 float64) ([]analysis.T90Score, error) {
	widths := analysis.T90Widths(e.cal.T90Start, e.cal.T90Stop, e.cal.T90Step)
	if len(widths) == 0 {
		return nil, fmt.Errorf("find t90: empty sweep %g..%g step %g", e.cal.T90Start, e.cal.T90Stop, e.cal.T90Step)
	}

	fs := e.cfg.SampleRate
	scan := make([]analysis.T90Score, 0, len(widths))
	for i, w := range widths {
		if i > 0 {
			if err := e.sleep(ctx, e.cal.SweepPause); err != nil {
				return nil, err
			}
		}

		fid, err := e.acquire(ctx, e.onePulsePlan(OnePulseParams{F0: f0, T90: w}))
		if err != nil {
			return nil, fmt.Errorf("find t90 at %g: %w", w, err)
		}
		score := analysis.ScoreFID(fid, e.cfg.DeadTime, w, fs)
		log.Printf("t90 %.1f us: %.6f", w*1e6, score)
		scan = append(scan, analysis.T90Score{Width: w, Score: score})
	}
	return scan, nil
}

// Cal measures what p leaves unset, stores the result and persists it.
// The calibration time only moves when something was measured.
func (e *Engine) Cal(ctx context.Context, p CalParams) (calib.Record, error) {
	rec := e.Record()
	measured := true

	switch {
	case p.F0 == 0 && p.T90 == 0:
		f0, err := e.findF0(ctx, rec.F0, rec.T90)
		if err != nil {
			return rec, err
		}
		t90, err := e.bestT90(ctx, f0)
		if err != nil {
			return rec, err
		}
		rec.F0, rec.T90 = f0, t90
	case p.T90 == 0:
		t90, err := e.bestT90(ctx, p.F0)
		if err != nil {
			return rec, err
		}
		rec.F0, rec.T90 = p.F0, t90
	case p.F0 == 0:
		f0, err := e.findF0(ctx, rec.F0, p.T90)
		if err != nil {
			return rec, err
		}
		rec.F0, rec.T90 = f0, p.T90
	default:
		rec.F0, rec.T90 = p.F0, p.T90
		measured = false
	}
	if measured {
		rec.Touch(e.now())
	}

	if err := rec.Validate(e.cfg.LOOffset); err != nil {
		return e.Record(), err
	}
	e.mu.Lock()
	e.record = rec
	e.mu.Unlock()

	log.Printf("Calibration: f0 = %.1f Hz, t90 = %.1f us", rec.F0, rec.T90*1e6)
	if err := e.store.Save(rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (e *Engine) bestT90(ctx context.Context, f0 float64) (float64, error) {
	scan, err := e.findT90(ctx, f0)
	if err != nil {
		return 0, err
	}
	return analysis.BestT90(scan)
}

// CheckCal recalibrates both constants when the record is older than the
// configured maximum age. It reports whether the record was fresh.
func (e *Engine) CheckCal(ctx context.Context) (bool, error) {
	rec := e.Record()
	now := e.now()
	if !rec.Stale(now, e.cal.MaxAge) {
		return true, nil
	}

	log.Printf("Calibration is %s old, recalibrating", now.Sub(rec.LastCalTime()).Truncate(time.Second))
	if _, err := e.Cal(ctx, CalParams{}); err != nil {
		return false, err
	}
	return false, nil
}
