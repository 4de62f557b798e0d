// Package experiment runs the measurement pass over all culture channels:
// pump control, RF path selection, CPMG acquisition, T2 fit and result
// bookkeeping.
package experiment

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/calib"
	"github.com/itohio/sdmrr/pkg/config"
	"github.com/itohio/sdmrr/pkg/history"
	"github.com/itohio/sdmrr/pkg/mrr"
	"github.com/itohio/sdmrr/pkg/mux"
	"github.com/itohio/sdmrr/pkg/plot"
	"github.com/itohio/sdmrr/pkg/pump"
)

const (
	warmupPause  = 150 * time.Millisecond
	channelPause = time.Second

	// Timestamp layout of data and figure file names.
	fileTimeLayout = "2006-01-02T15:04:05.000000"
)

// Sequencer is the part of the pulse sequence engine a pass needs.
type Sequencer interface {
	Cal(ctx context.Context, p mrr.CalParams) (calib.Record, error)
	SetRxGain(gain float64)
	CPMGPhaseLoop(ctx context.Context, p mrr.PhaseLoopParams) (*mrr.PhaseLoopResult, error)
}

// Ensure the engine can drive a pass.
var _ Sequencer = (*mrr.Engine)(nil)

// Result is the outcome of one channel.
type Result struct {
	Channel  string
	Time     time.Time
	F0       float64
	T90      float64
	Fit      analysis.Fit
	Accepted bool
}

// Options tune the runner.
type Options struct {
	Export history.Exporter // Optional
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
}

// Runner measures every configured channel in turn.
type Runner struct {
	cfg     *config.Config
	pump    pump.Controller
	mux     mux.Selector
	seq     Sequencer
	history *history.Store
	export  history.Exporter
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a runner. A nil store keeps history in cfg.Output.HistoryDir.
func New(cfg *config.Config, p pump.Controller, sel mux.Selector, seq Sequencer, store *history.Store, opts Options) *Runner {
	if store == nil {
		store = history.NewStore(cfg.Output.HistoryDir)
	}
	r := &Runner{
		cfg:     cfg,
		pump:    p,
		mux:     sel,
		seq:     seq,
		history: store,
		export:  opts.Export,
		now:     opts.Now,
		sleep:   opts.Sleep,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	return r
}

// Prepare brings every pump to the run speed turning clockwise. The command
// set is sent twice.
func (r *Runner) Prepare(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if i > 0 {
			if err := r.sleep(ctx, warmupPause); err != nil {
				return err
			}
		}
		if err := r.forEachPump(func(ch int) error { return r.pump.SetSpeed(ch, r.cfg.Pump.RunSpeed) }); err != nil {
			return err
		}
		if err := r.forEachPump(func(ch int) error { return r.pump.SetDirection(ch, pump.Clockwise) }); err != nil {
			return err
		}
		if err := r.forEachPump(r.pump.Start); err != nil {
			return err
		}
	}
	return nil
}

// Run measures every channel once. When anything fails every pump is
// started again before the error is returned; on success the pumps are left
// running clockwise at the run speed.
func (r *Runner) Run(ctx context.Context) (results []Result, err error) {
	log.Printf("Run started %s", r.now().Format(fileTimeLayout))

	defer func() {
		if err != nil {
			log.Printf("Run failed: %v", err)
			r.restartPumps()
			return
		}
		err = r.resumePumps()
	}()

	for i, ch := range r.cfg.Channels {
		if i > 0 {
			if err := r.sleep(ctx, channelPause); err != nil {
				return results, err
			}
		}
		res, err := r.measure(ctx, ch)
		if err != nil {
			return results, fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) measure(ctx context.Context, ch config.ChannelConfig) (Result, error) {
	if err := r.pump.Stop(ch.Pump); err != nil {
		return Result{}, err
	}
	if err := r.sleep(ctx, r.cfg.Pump.Settle); err != nil {
		return Result{}, err
	}
	if err := r.mux.Select(ch.Mux); err != nil {
		return Result{}, err
	}

	t := r.now()
	rec, err := r.seq.Cal(ctx, mrr.CalParams{F0: ch.F0, T90: ch.T90})
	if err != nil {
		return Result{}, err
	}
	if ch.RxGain > 0 {
		r.seq.SetRxGain(ch.RxGain)
	}

	log.Println("CPMG")
	cp := r.cfg.CPMG
	loop, err := r.seq.CPMGPhaseLoop(ctx, mrr.PhaseLoopParams{
		F0:       rec.F0,
		T90:      rec.T90,
		Gain:     cp.Gain,
		TR:       cp.TR,
		NPulses:  cp.NPulses,
		Cycle90:  cp.Cycle90,
		Cycle180: cp.Cycle180,
		Amp90:    ch.Amp90,
		Amp180:   ch.Amp180,
		Delay:    cp.CycleDelay,
		Width:    cp.EchoWidth,
		Mode:     analysis.AbsMean,
	})
	if err != nil {
		return Result{}, err
	}

	skip := min(max(cp.SkipEchoes, 0), len(loop.Mags))
	echoes := loop.Mags[skip:]
	fit, err := analysis.FitT2(echoes, loop.TR)
	if err != nil {
		return Result{}, fmt.Errorf("T2 fit: %w", err)
	}
	log.Printf("T2: %.2f", fit.T2)

	stamp := t.Format(fileTimeLayout)
	r.saveDecay(ch, stamp, echoes, loop.TR, fit, rec.F0)
	if ch.SaveRaw {
		if err := r.saveRaw(ch, stamp, loop.Traces); err != nil {
			return Result{}, err
		}
	}

	res := Result{
		Channel:  ch.Name,
		Time:     t,
		F0:       rec.F0,
		T90:      rec.T90,
		Fit:      fit,
		Accepted: fit.T2 < cp.MaxT2,
	}
	if res.Accepted {
		if err := r.record(ch, t, fit.T2); err != nil {
			return Result{}, err
		}
	} else {
		log.Println("CPMG failed, likely bad calibration")
	}

	if r.export != nil {
		if err := r.export.Write(ctx, history.Measurement{
			Channel:  ch.Name,
			Time:     t,
			T2:       fit.T2,
			F0:       rec.F0,
			T90:      rec.T90,
			Accepted: res.Accepted,
		}); err != nil {
			log.Printf("Failed to export measurement: %v", err)
		}
	}

	if err := r.pump.Start(ch.Pump); err != nil {
		return res, err
	}
	return res, nil
}

// saveDecay writes the echo decay figure. Failures are only logged.
func (r *Runner) saveDecay(ch config.ChannelConfig, stamp string, echoes []float64, tr float64, fit analysis.Fit, f0 float64) {
	times := make([]float64, len(echoes))
	for i := range times {
		times[i] = float64(i) * tr
	}
	path := filepath.Join(ch.DataDir, "Figures", "cpmg"+stamp+".png")
	if err := plot.Decay(path, times, echoes, fit, f0); err != nil {
		log.Println(err)
	}
}

// saveRaw writes the raw phase cycle traces to the channel data directory,
// falling back to the backup directory.
func (r *Runner) saveRaw(ch config.ChannelConfig, stamp string, traces [][]complex128) error {
	name := stamp + ".npy"
	err := history.SaveTraces(filepath.Join(ch.DataDir, name), traces)
	if err == nil {
		return nil
	}
	log.Println(err)

	backup := filepath.Join(r.cfg.Output.BackupDir, name)
	if err := history.SaveTraces(backup, traces); err != nil {
		return fmt.Errorf("failed to save raw data: %w", err)
	}
	log.Printf("Raw data saved to %s", backup)
	return nil
}

// record appends an accepted result to the channel history, saves it and
// redraws the history figure.
func (r *Runner) record(ch config.ChannelConfig, t time.Time, t2 float64) error {
	series, err := r.history.Load(ch.Name)
	if err != nil {
		return err
	}
	series.Append(t, t2)

	if ch.PlotFile != "" {
		path := filepath.Join(r.history.Dir, ch.PlotFile)
		if err := plot.History(path, ch.Title, series); err != nil {
			log.Println(err)
		}
	}
	return r.history.Save(ch.Name, series)
}

func (r *Runner) forEachPump(fn func(ch int) error) error {
	for _, ch := range r.cfg.Pump.Channels {
		if err := fn(ch); err != nil {
			return fmt.Errorf("pump %d: %w", ch, err)
		}
	}
	return nil
}

// restartPumps starts every pump channel, logging failures.
func (r *Runner) restartPumps() {
	for _, ch := range r.cfg.Pump.Channels {
		if err := r.pump.Start(ch); err != nil {
			log.Printf("Failed to restart pump %d: %v", ch, err)
		}
	}
}

func (r *Runner) resumePumps() error {
	if err := r.forEachPump(func(ch int) error { return r.pump.SetDirection(ch, pump.Clockwise) }); err != nil {
		return err
	}
	if err := r.forEachPump(r.pump.Start); err != nil {
		return err
	}
	return r.forEachPump(func(ch int) error { return r.pump.SetSpeed(ch, r.cfg.Pump.RunSpeed) })
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
