// Package mrr runs NMR pulse sequences on the relaxometer front end.
package mrr

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itohio/sdmrr/pkg/calib"
	"github.com/itohio/sdmrr/pkg/config"
	"github.com/itohio/sdmrr/pkg/sdr"
)

// Front panel GPIO levels driving the RF switch.
const (
	gpioMask   uint32 = 0xFFF
	switchIdle uint32 = 0x002 // Receive path
	switchTx   uint32 = 0x000 // Transmit path, single pulse and CPMG
	switchEcho uint32 = 0x003 // Transmit path with receive protection, spin echo
)

// Sequence timing, seconds of device time.
const (
	onePulseAt     = 0.2
	sequenceAt     = 0.1
	rxLeadTime     = 100e-6
	txSwitchLead   = 2e-6
	echoSwitchLead = 5e-6
)

// State is the phase of the acquisition in progress.
type State int32

const (
	Idle State = iota
	Configuring
	Streaming
	Draining
	Processed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Processed:
		return "processed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options tune engine construction.
type Options struct {
	NoCal     bool // Skip the staleness check at construction
	AutoRecal bool // Check staleness before every acquisition using the stored record
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Engine drives pulse sequences on one radio and owns its calibration.
type Engine struct {
	radio sdr.Radio
	cfg   config.RadioConfig
	cal   config.CalibrationConfig
	store *calib.Store

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	autoRecal bool

	// acq serialises access to the radio.
	acq   sync.Mutex
	state atomic.Int32

	mu     sync.RWMutex
	record calib.Record
	rxGain float64
}

// New programs the RF switch GPIO bank, loads the calibration record and,
// when a record existed and opts.NoCal is false, recalibrates a stale one.
func New(ctx context.Context, radio sdr.Radio, cfg *config.Config, store *calib.Store, opts Options) (*Engine, error) {
	if store == nil {
		store = calib.NewStore(cfg.Calibration.File)
	}
	e := &Engine{
		radio:     radio,
		cfg:       cfg.Radio,
		cal:       cfg.Calibration,
		store:     store,
		now:       opts.Now,
		sleep:     opts.Sleep,
		autoRecal: opts.AutoRecal,
		rxGain:    cfg.Radio.RxGain,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}

	for _, w := range []struct {
		attr  string
		value uint32
	}{
		{sdr.AttrCTRL, 0x000},
		{sdr.AttrDDR, 0xFFF},
		{sdr.AttrOUT, switchIdle},
	} {
		if err := radio.SetGPIOAttr(sdr.BankFP0, w.attr, w.value, gpioMask); err != nil {
			return nil, fmt.Errorf("failed to set up GPIO %s: %w", w.attr, err)
		}
	}

	rec, found, err := store.Load()
	if err != nil {
		return nil, err
	}
	e.record = rec

	if found {
		log.Printf("Loaded calibration from %s", store.Path)
		log.Printf("Last calibration: %s", rec.LastCalTime().Format(time.ANSIC))
		if !opts.NoCal {
			if _, err := e.CheckCal(ctx); err != nil {
				return nil, err
			}
		}
	}

	return e, nil
}

// State returns the phase of the acquisition in progress.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Record returns the current calibration.
func (e *Engine) Record() calib.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record
}

// SetRxGain sets the receive gain used by following acquisitions.
func (e *Engine) SetRxGain(gain float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rxGain = gain
}

// RxGain returns the receive gain.
func (e *Engine) RxGain() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rxGain
}

// SampleRate returns the acquisition sample rate.
func (e *Engine) SampleRate() float64 {
	return e.cfg.SampleRate
}

// resolve fills unset f0 and t90 from the calibration record, first
// recalibrating a stale record when AutoRecal is set.
func (e *Engine) resolve(ctx context.Context, f0, t90 float64) (float64, float64, error) {
	if e.autoRecal && (f0 == 0 || t90 == 0) {
		if _, err := e.CheckCal(ctx); err != nil {
			return 0, 0, err
		}
	}
	rec := e.Record()
	if f0 == 0 {
		f0 = rec.F0
	}
	if t90 == 0 {
		t90 = rec.T90
	}
	return f0, t90, nil
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
