package mrr

import (
	"context"
	"errors"
	"fmt"

	"github.com/itohio/sdmrr/pkg/dsp"
	"github.com/itohio/sdmrr/pkg/sdr"
)

// switchWrite is one RF switch register write. Timed writes are queued on
// the device for At; untimed ones take effect immediately.
type switchWrite struct {
	At    float64
	Timed bool
	Value uint32
}

// pulseStep is one transmit burst and the switch writes scheduled around it.
type pulseStep struct {
	At       float64 // Device time of the first pulse sample
	Wave     []complex64
	Switches []switchWrite
}

// plan is a fully scheduled acquisition.
type plan struct {
	Name    string
	F0      float64
	TxGain  float64
	RxStart float64
	Samples int
	Before  []switchWrite
	Pulses  []pulseStep
	After   []switchWrite
	Cutoff  float64 // Low-pass cutoff, Hz
	Phase   [2]int  // Phase reference window
}

// acquire runs p: Configuring, Streaming, Draining and Processed. Streamers
// are opened for this call and always closed before it returns.
func (e *Engine) acquire(ctx context.Context, p plan) (trace []complex128, err error) {
	if p.Samples <= 0 {
		return nil, fmt.Errorf("%s: empty capture", p.Name)
	}

	e.acq.Lock()
	defer e.acq.Unlock()
	defer func() {
		if err != nil {
			e.setState(Idle)
		}
	}()

	e.setState(Configuring)

	// Streamers first, creating them stops the receive chain.
	tx, err := e.radio.TxStream(e.cfg.TxChannel)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open tx stream: %w", p.Name, err)
	}
	defer tx.Close()
	rx, err := e.radio.RxStream(e.cfg.RxChannel)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open rx stream: %w", p.Name, err)
	}
	defer rx.Close()

	if err := e.configure(p); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	if err := e.writeSwitches(p.Before); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	e.setState(Streaming)
	if err := e.radio.SetTimeNow(0); err != nil {
		return nil, fmt.Errorf("%s: failed to reset device time: %w", p.Name, err)
	}
	if err := rx.IssueStreamCmd(sdr.StreamCmd{
		Mode:     sdr.NumSampsAndDone,
		NumSamps: p.Samples,
		Time:     p.RxStart,
	}); err != nil {
		return nil, fmt.Errorf("%s: failed to issue stream command: %w", p.Name, err)
	}

	rxCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := receive(rxCtx, rx, make([]complex64, p.Samples), e.cfg.RecvChunk)

	if err := e.transmit(tx, p.Pulses); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	e.setState(Draining)
	res := <-done
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", p.Name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w", p.Name, res.err)
	}
	if err := e.writeSwitches(p.After); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	trace, err = e.process(res.buf, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	e.setState(Processed)
	return trace, nil
}

func (e *Engine) configure(p plan) error {
	fs := e.cfg.SampleRate
	freq := p.F0 + e.cfg.LOOffset + e.cfg.TuneShift
	tx, rx := e.cfg.TxChannel, e.cfg.RxChannel

	steps := []struct {
		what string
		fn   func() error
	}{
		{"tx rate", func() error { return e.radio.SetTxRate(tx, fs) }},
		{"tx freq", func() error { return e.radio.SetTxFreq(tx, freq) }},
		{"tx gain", func() error { return e.radio.SetTxGain(tx, p.TxGain) }},
		{"rx rate", func() error { return e.radio.SetRxRate(rx, fs) }},
		{"rx freq", func() error { return e.radio.SetRxFreq(rx, freq) }},
		{"rx gain", func() error { return e.radio.SetRxGain(rx, e.RxGain()) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("failed to set %s: %w", s.what, err)
		}
	}
	return nil
}

// transmit queues every pulse zbuff ahead of its start together with its
// switch writes.
func (e *Engine) transmit(tx sdr.TxStreamer, pulses []pulseStep) error {
	for i, p := range pulses {
		md := sdr.TxMetadata{
			HasTime:      true,
			Time:         p.At - e.cfg.ZeroBufferTime,
			StartOfBurst: true,
			EndOfBurst:   true,
		}
		if _, err := tx.Send(p.Wave, md); err != nil {
			return fmt.Errorf("failed to send pulse %d: %w", i, err)
		}
		if err := e.writeSwitches(p.Switches); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeSwitches(writes []switchWrite) error {
	for _, w := range writes {
		if err := e.writeSwitch(w); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeSwitch(w switchWrite) error {
	if !w.Timed {
		if err := e.radio.SetGPIOAttr(sdr.BankFP0, sdr.AttrOUT, w.Value, gpioMask); err != nil {
			return fmt.Errorf("failed to set switch: %w", err)
		}
		return nil
	}

	if err := e.radio.ClearCommandTime(); err != nil {
		return err
	}
	if err := e.radio.SetCommandTime(w.At); err != nil {
		return err
	}
	if err := e.radio.SetGPIOAttr(sdr.BankFP0, sdr.AttrOUT, w.Value, gpioMask); err != nil {
		return fmt.Errorf("failed to schedule switch at %g: %w", w.At, err)
	}
	return e.radio.ClearCommandTime()
}

// process mixes out the tune shift, low-pass filters from the steady state
// of the first sample and zeroes the mean phase of the reference window.
func (e *Engine) process(buf []complex64, p plan) ([]complex128, error) {
	fs := e.cfg.SampleRate
	mixed := dsp.Mix(buf, e.cfg.TuneShift, fs)

	order := e.cfg.FilterOrder
	if order <= 0 {
		order = 3
	}
	trace, err := dsp.LowPass(mixed, order, p.Cutoff, fs)
	if err != nil {
		return nil, err
	}

	dsp.PhaseCorrect(trace, p.Phase[0], p.Phase[1])
	return trace, nil
}
