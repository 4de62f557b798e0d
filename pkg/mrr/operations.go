package mrr

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/itohio/sdmrr/pkg/analysis"
)

// Defaults of the individual sequences.
const (
	DefaultOnePulseSamples = 10000
	DefaultEchoTR          = 3e-3
	DefaultCPMGTR          = 3e-3
	DefaultCPMGPulses      = 100
	DefaultPhaseLoopTR     = 500.02e-6
	DefaultEchoWidth       = 200
	DefaultGain            = 70.0
	DefaultOnePulseGain    = 50.0

	onePulseCutoff = 2000.0
	echoCutoff     = 20000.0
)

var (
	onePulsePhaseWindow = [2]int{350, 500}
	echoPhaseWindow     = [2]int{177, 197}
	cpmgPhaseWindow     = [2]int{60, 80}

	defaultCycle    = []int{0, 0, 1, 3}
	defaultCycle90  = []int{0, 2, 0, 2}
	defaultCycle180 = []int{1, 1, 3, 3}
)

// OnePulseParams configures a single pulse acquisition. Zero values select
// the calibrated or default value.
type OnePulseParams struct {
	F0      float64
	T90     float64
	Gain    float64
	Amp     float64
	Samples int
}

// EchoParams configures a 90-180 spin echo.
type EchoParams struct {
	F0       float64
	T90      float64
	Gain     float64
	TR       float64 // Echo time; the 180 degree pulse sits at TR/2
	P90Phase int     // Quarter turns
	Amp90    float64
	Amp180   float64 // Zero doubles the 180 degree width at unit amplitude
}

// CPMGParams configures one CPMG train.
type CPMGParams struct {
	F0       float64
	T90      float64
	Gain     float64
	TR       float64
	NPulses  int
	Cycle    []int // Quarter turn phase of refocusing pulse i is Cycle[i%len(Cycle)]
	P90Phase int
	Amp90    float64
	Amp180   float64
}

// PhaseLoopParams configures a phase cycled CPMG acquisition.
type PhaseLoopParams struct {
	F0       float64
	T90      float64
	Gain     float64
	TR       float64
	NPulses  int
	Cycle90  []int
	Cycle180 []int
	Amp90    float64
	Amp180   float64
	Delay    time.Duration // Recovery between cycles
	Width    int           // Echo window, samples
	Mode     analysis.EchoMode
}

// PhaseLoopResult holds every cycle's trace and the combined echo magnitudes.
type PhaseLoopResult struct {
	F0     float64
	T90    float64
	TR     float64
	Traces [][]complex128
	Mags   []float64
}

// refocus returns the width and amplitude of the 180 degree pulse.
func refocus(t90, amp180 float64) (float64, float64) {
	if amp180 == 0 {
		return 2 * t90, 1
	}
	return t90, amp180
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func (e *Engine) wave(width, amp float64, phase int) []complex64 {
	return Waveform(width, amp, phase, e.cfg.SampleRate, e.cfg.TuneShift, e.cfg.ZeroBufferTime)
}

// OnePulse excites with one pulse and returns the filtered free induction decay.
func (e *Engine) OnePulse(ctx context.Context, p OnePulseParams) ([]complex128, error) {
	f0, t90, err := e.resolve(ctx, p.F0, p.T90)
	if err != nil {
		return nil, err
	}
	p.F0, p.T90 = f0, t90
	return e.acquire(ctx, e.onePulsePlan(p))
}

func (e *Engine) onePulsePlan(p OnePulseParams) plan {
	samples := p.Samples
	if samples <= 0 {
		samples = DefaultOnePulseSamples
	}
	start := onePulseAt
	return plan{
		Name:    "one pulse",
		F0:      p.F0,
		TxGain:  orDefault(p.Gain, DefaultOnePulseGain),
		RxStart: start - rxLeadTime,
		Samples: samples,
		Pulses: []pulseStep{{
			At:   start,
			Wave: e.wave(p.T90, orDefault(p.Amp, 1), 0),
			Switches: []switchWrite{
				{At: start - txSwitchLead, Timed: true, Value: switchTx},
				{At: start + e.cfg.DeadTime + p.T90, Timed: true, Value: switchIdle},
			},
		}},
		Cutoff: onePulseCutoff,
		Phase:  onePulsePhaseWindow,
	}
}

// PulseEcho runs a 90-180 spin echo and returns the filtered trace.
func (e *Engine) PulseEcho(ctx context.Context, p EchoParams) ([]complex128, error) {
	f0, t90, err := e.resolve(ctx, p.F0, p.T90)
	if err != nil {
		return nil, err
	}
	p.F0, p.T90 = f0, t90
	return e.acquire(ctx, e.echoPlan(p))
}

func (e *Engine) echoPlan(p EchoParams) plan {
	tr := orDefault(p.TR, DefaultEchoTR)
	t180, amp180 := refocus(p.T90, p.Amp180)
	start := sequenceAt

	step := func(at, width float64, wave []complex64) pulseStep {
		return pulseStep{
			At:   at,
			Wave: wave,
			Switches: []switchWrite{
				{At: at - echoSwitchLead, Timed: true, Value: switchEcho},
				{At: at + e.cfg.DeadTime + width, Timed: true, Value: switchIdle},
			},
		}
	}

	return plan{
		Name:    "pulse echo",
		F0:      p.F0,
		TxGain:  orDefault(p.Gain, DefaultGain),
		RxStart: start,
		Samples: CaptureLength(1, tr, p.T90, e.cfg.SampleRate),
		Before:  []switchWrite{{Value: switchIdle}},
		Pulses: []pulseStep{
			step(start, p.T90, e.wave(p.T90, orDefault(p.Amp90, 1), p.P90Phase)),
			step(start+tr/2, t180, e.wave(t180, amp180, 1)),
		},
		Cutoff: echoCutoff,
		Phase:  echoPhaseWindow,
	}
}

// CPMG runs one CPMG train and returns the filtered trace. Only the
// excitation pulse switches the RF path; the switch stays in transmit for the
// whole train and returns to receive after the capture has drained.
func (e *Engine) CPMG(ctx context.Context, p CPMGParams) ([]complex128, error) {
	f0, t90, err := e.resolve(ctx, p.F0, p.T90)
	if err != nil {
		return nil, err
	}
	p.F0, p.T90 = f0, t90
	pl, err := e.cpmgPlan(p)
	if err != nil {
		return nil, err
	}
	return e.acquire(ctx, pl)
}

func (e *Engine) cpmgPlan(p CPMGParams) (plan, error) {
	tr := orDefault(p.TR, DefaultCPMGTR)
	npulses := p.NPulses
	if npulses <= 0 {
		npulses = DefaultCPMGPulses
	}
	cycle := p.Cycle
	if len(cycle) == 0 {
		cycle = defaultCycle
	}
	if p.T90 <= 0 {
		return plan{}, fmt.Errorf("cpmg: t90 %g must be positive", p.T90)
	}
	t180, amp180 := refocus(p.T90, p.Amp180)
	start := sequenceAt

	refocusing := make([][]complex64, 4)
	for i := range refocusing {
		refocusing[i] = e.wave(t180, amp180, i)
	}

	pulses := make([]pulseStep, 0, npulses+1)
	pulses = append(pulses, pulseStep{
		At:       start,
		Wave:     e.wave(p.T90, orDefault(p.Amp90, 1), p.P90Phase),
		Switches: []switchWrite{{At: start - txSwitchLead, Timed: true, Value: switchTx}},
	})
	for i := 0; i < npulses; i++ {
		phase := ((cycle[i%len(cycle)] % 4) + 4) % 4
		pulses = append(pulses, pulseStep{
			At:   start + tr*float64(i) + tr/2,
			Wave: refocusing[phase],
		})
	}

	return plan{
		Name:    "cpmg",
		F0:      p.F0,
		TxGain:  orDefault(p.Gain, DefaultGain),
		RxStart: start,
		Samples: CaptureLength(npulses, tr, p.T90, e.cfg.SampleRate),
		Before:  []switchWrite{{Value: switchIdle}},
		Pulses:  pulses,
		After:   []switchWrite{{Value: switchIdle}},
		Cutoff:  echoCutoff,
		Phase:   cpmgPhaseWindow,
	}, nil
}

// CPMGPhaseLoop runs one CPMG train per entry of Cycle90, each with its
// refocusing pulses all at the matching Cycle180 phase, pausing Delay between
// trains, and combines the echoes of all trains.
func (e *Engine) CPMGPhaseLoop(ctx context.Context, p PhaseLoopParams) (*PhaseLoopResult, error) {
	f0, t90, err := e.resolve(ctx, p.F0, p.T90)
	if err != nil {
		return nil, err
	}

	c90, c180 := p.Cycle90, p.Cycle180
	if len(c90) == 0 && len(c180) == 0 {
		c90, c180 = defaultCycle90, defaultCycle180
	}
	if len(c90) != len(c180) {
		return nil, fmt.Errorf("phase loop: %d excitation phases for %d refocusing phases", len(c90), len(c180))
	}
	tr := orDefault(p.TR, DefaultPhaseLoopTR)
	npulses := p.NPulses
	if npulses <= 0 {
		npulses = DefaultCPMGPulses
	}
	width := p.Width
	if width <= 0 {
		width = DefaultEchoWidth
	}

	res := &PhaseLoopResult{F0: f0, T90: t90, TR: tr, Traces: make([][]complex128, 0, len(c90))}
	for i := range c90 {
		if i > 0 {
			if err := e.sleep(ctx, p.Delay); err != nil {
				return nil, err
			}
		}

		r := c180[i]
		trace, err := e.CPMG(ctx, CPMGParams{
			F0:       f0,
			T90:      t90,
			Gain:     p.Gain,
			TR:       tr,
			NPulses:  npulses,
			Cycle:    []int{r, r, r, r},
			P90Phase: c90[i],
			Amp90:    orDefault(p.Amp90, 0.45),
			Amp180:   orDefault(p.Amp180, 0.9),
		})
		if err != nil {
			return nil, fmt.Errorf("phase cycle %d: %w", i, err)
		}
		res.Traces = append(res.Traces, trace)
		log.Printf("Phase cycle %d of %d done", i+1, len(c90))
	}

	res.Mags, err = analysis.EchoMagnitudes(res.Traces, npulses, tr, t90, e.cfg.SampleRate, width, p.Mode)
	if err != nil {
		return nil, fmt.Errorf("phase loop: %w", err)
	}
	return res, nil
}
