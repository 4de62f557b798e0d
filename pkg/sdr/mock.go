package sdr

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/sdmrr/pkg/config"
)

const (
	// DefaultPollInterval is how long an idle mock Recv waits before returning zero samples.
	DefaultPollInterval = 200 * time.Microsecond
	// ReferenceRxGain is the receive gain at which the simulated amplitude is unscaled.
	ReferenceRxGain = 50.0

	pulseThreshold = 1e-6
)

// ChannelSettings is the configuration a channel received.
type ChannelSettings struct {
	TxRate, RxRate float64
	TxFreq, RxFreq float64
	TxGain, RxGain float64
}

// GPIOWrite is one recorded register write.
type GPIOWrite struct {
	Bank  string
	Attr  string
	Value uint32
	Mask  uint32
	Timed bool
	Time  float64 // Command time when Timed
}

// Burst is one recorded transmit burst.
type Burst struct {
	Channel int
	Time    float64
	Samples []complex64
}

// Pulse is the RF pulse contained in a burst.
type Pulse struct {
	Start float64 // Device time of the first non-zero sample
	Width float64
	Amp   float64
	Phase float64 // Radians
}

// End returns the time the pulse stops.
func (p Pulse) End() float64 { return p.Start + p.Width }

// Mock simulates the radio together with a single spin population in the
// probe. Transmitted bursts are interpreted as RF pulses and the receive
// stream returns the free induction decay and spin echoes they produce.
type Mock struct {
	cfg      config.MockConfig
	loOffset float64
	poll     time.Duration

	mu           sync.Mutex
	rng          *rand.Rand
	closed       bool
	channels     map[int]*ChannelSettings
	timeZero     time.Time
	cmdTime      float64
	hasCmdTime   bool
	bursts       []Burst
	gpio         []GPIOWrite
	streamCmds   []StreamCmd
	lastActivity time.Time
	open         int
}

// Ensure Mock implements Radio.
var _ Radio = (*Mock)(nil)

// NewMock creates a simulated radio. loOffset is the frequency the external
// mixer adds, so the simulated resonance sits at cfg.F0+loOffset on the
// radio's tuning scale.
func NewMock(cfg config.MockConfig, loOffset float64) *Mock {
	if cfg.T90 <= 0 {
		cfg.T90 = 60e-6
	}
	if cfg.T2 <= 0 {
		cfg.T2 = 1
	}
	if cfg.T2Star <= 0 {
		cfg.T2Star = 2e-3
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 0.5
	}

	now := time.Now()
	return &Mock{
		cfg:          cfg,
		loOffset:     loOffset,
		poll:         DefaultPollInterval,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		channels:     make(map[int]*ChannelSettings),
		timeZero:     now,
		lastActivity: now,
	}
}

func (m *Mock) channel(ch int) *ChannelSettings {
	s, ok := m.channels[ch]
	if !ok {
		s = &ChannelSettings{}
		m.channels[ch] = s
	}
	return s
}

func (m *Mock) set(ch int, fn func(s *ChannelSettings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	fn(m.channel(ch))
	return nil
}

func (m *Mock) SetTxRate(ch int, rate float64) error {
	return m.set(ch, func(s *ChannelSettings) { s.TxRate = rate })
}

func (m *Mock) SetRxRate(ch int, rate float64) error {
	return m.set(ch, func(s *ChannelSettings) { s.RxRate = rate })
}

func (m *Mock) SetTxFreq(ch int, freq float64) error {
	return m.set(ch, func(s *ChannelSettings) { s.TxFreq = freq })
}

func (m *Mock) SetRxFreq(ch int, freq float64) error {
	return m.set(ch, func(s *ChannelSettings) { s.RxFreq = freq })
}

func (m *Mock) SetTxGain(ch int, gain float64) error {
	return m.set(ch, func(s *ChannelSettings) { s.TxGain = gain })
}

func (m *Mock) SetRxGain(ch int, gain float64) error {
	return m.set(ch, func(s *ChannelSettings) { s.RxGain = gain })
}

// SetTimeNow resets the device clock and forgets bursts of the previous timeline.
func (m *Mock) SetTimeNow(t float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.timeZero = time.Now().Add(-time.Duration(t * float64(time.Second)))
	m.bursts = nil
	m.lastActivity = time.Now()
	return nil
}

func (m *Mock) SetCommandTime(t float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmdTime = t
	m.hasCmdTime = true
	return nil
}

func (m *Mock) ClearCommandTime() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasCmdTime = false
	m.cmdTime = 0
	return nil
}

func (m *Mock) SetGPIOAttr(bank, attr string, value, mask uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.gpio = append(m.gpio, GPIOWrite{
		Bank:  bank,
		Attr:  attr,
		Value: value,
		Mask:  mask,
		Timed: m.hasCmdTime,
		Time:  m.cmdTime,
	})
	m.lastActivity = time.Now()
	return nil
}

func (m *Mock) TxStream(ch int) (TxStreamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.open++
	return &mockTx{m: m, ch: ch}, nil
}

func (m *Mock) RxStream(ch int) (RxStreamer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.open++
	return &mockRx{m: m, ch: ch}, nil
}

// Close closes the radio.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GPIOWrites returns every register write so far.
func (m *Mock) GPIOWrites() []GPIOWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GPIOWrite(nil), m.gpio...)
}

// Bursts returns the bursts sent since the last SetTimeNow.
func (m *Mock) Bursts() []Burst {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Burst(nil), m.bursts...)
}

// Pulses returns the RF pulses sent since the last SetTimeNow, in time order.
func (m *Mock) Pulses() []Pulse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulses()
}

// StreamCmds returns every receive stream command issued.
func (m *Mock) StreamCmds() []StreamCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StreamCmd(nil), m.streamCmds...)
}

// Settings returns the configuration of a channel.
func (m *Mock) Settings(ch int) ChannelSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.channel(ch)
}

// OpenStreams returns the number of streamers not yet closed.
func (m *Mock) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ClearLog forgets recorded GPIO writes and stream commands.
func (m *Mock) ClearLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gpio = nil
	m.streamCmds = nil
}

func (m *Mock) deviceTime() float64 {
	return time.Since(m.timeZero).Seconds()
}

func (m *Mock) pulses() []Pulse {
	pulses := make([]Pulse, 0, len(m.bursts))
	for _, b := range m.bursts {
		rate := m.channel(b.Channel).TxRate
		if rate <= 0 {
			continue
		}
		first, last := -1, -1
		for i, s := range b.Samples {
			if math32.Hypot(real(s), imag(s)) > pulseThreshold {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		s := b.Samples[first]
		pulses = append(pulses, Pulse{
			Start: b.Time + float64(first)/rate,
			Width: float64(last-first+1) / rate,
			Amp:   float64(math32.Hypot(real(s), imag(s))),
			Phase: float64(math32.Atan2(imag(s), real(s))),
		})
	}
	sort.Slice(pulses, func(i, j int) bool { return pulses[i].Start < pulses[j].Start })
	return pulses
}

// coherence is the signal the spins emit between two pulses.
type coherence struct {
	center float64 // Echo top, or end of the excitation pulse for the FID
	amp    float64
	phase  float64
	fid    bool
}

// coherences follows the magnetisation through the pulse train. Pulse 0
// excites, each later pulse refocuses the previous coherence into an echo.
func (m *Mock) coherences(pulses []Pulse) []coherence {
	if len(pulses) == 0 {
		return nil
	}
	flip := func(p Pulse) float64 {
		return math.Pi / 2 * p.Amp * p.Width / m.cfg.T90
	}

	out := make([]coherence, len(pulses))
	p0 := pulses[0]
	a0 := m.cfg.Amplitude * math.Abs(math.Sin(flip(p0)))
	c0 := p0.Start + p0.Width/2
	out[0] = coherence{center: p0.End(), amp: a0, phase: p0.Phase - math.Pi/2, fid: true}

	prevCenter, prevPhase := c0, out[0].phase
	refocus := 1.0
	for k := 1; k < len(pulses); k++ {
		p := pulses[k]
		if k == 1 {
			s := math.Sin(flip(p) / 2)
			refocus = s * s
		}
		center := 2*(p.Start+p.Width/2) - prevCenter
		phase := 2*p.Phase - prevPhase
		out[k] = coherence{
			center: center,
			amp:    a0 * refocus * math.Exp(-(center-c0)/m.cfg.T2),
			phase:  phase,
		}
		prevCenter, prevPhase = center, phase
	}
	return out
}

func (c coherence) at(t, fb, t2star float64) complex64 {
	d := t - c.center
	env := float32(c.amp) * math32.Exp(-float32(math.Abs(d)/t2star))
	ph := math.Mod(2*math.Pi*fb*d+c.phase, 2*math.Pi)
	sin, cos := math32.Sincos(float32(ph))
	return complex(env*cos, env*sin)
}

// synthesize renders the receive stream for cmd. Must be called with mu held.
func (m *Mock) synthesize(ch int, cmd StreamCmd) []complex64 {
	s := m.channel(ch)
	fs := s.RxRate
	if fs <= 0 {
		fs = 1e6
	}
	t0 := cmd.Time
	if cmd.StreamNow {
		t0 = m.deviceTime()
	}

	fb := m.cfg.F0 + m.loOffset - s.RxFreq
	gain := float32(math.Pow(10, (s.RxGain-ReferenceRxGain)/20))
	noise := m.cfg.NoiseLevel

	pulses := m.pulses()
	coh := m.coherences(pulses)

	out := make([]complex64, cmd.NumSamps)
	seg := -1
	for k := range out {
		t := t0 + float64(k)/fs
		for seg+1 < len(pulses) && pulses[seg+1].Start <= t {
			seg++
		}

		var v complex64
		if seg >= 0 && t >= pulses[seg].End() {
			v = coh[seg].at(t, fb, m.cfg.T2Star)
		}
		if noise > 0 {
			v += complex(float32(m.rng.NormFloat64()*noise), float32(m.rng.NormFloat64()*noise))
		}
		out[k] = v * complex(gain, 0)
	}
	return out
}

type mockTx struct {
	m      *Mock
	ch     int
	closed bool
}

func (t *mockTx) Send(samples []complex64, md TxMetadata) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.closed || t.m.closed {
		return 0, ErrClosed
	}

	at := md.Time
	if !md.HasTime {
		at = t.m.deviceTime()
	}
	t.m.bursts = append(t.m.bursts, Burst{
		Channel: t.ch,
		Time:    at,
		Samples: append([]complex64(nil), samples...),
	})
	t.m.lastActivity = time.Now()
	return len(samples), nil
}

func (t *mockTx) Close() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.m.open--
	}
	return nil
}

type mockRx struct {
	m      *Mock
	ch     int
	closed bool

	cmd  *StreamCmd
	data []complex64
	pos  int
}

func (r *mockRx) IssueStreamCmd(cmd StreamCmd) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.closed || r.m.closed {
		return ErrClosed
	}

	r.m.streamCmds = append(r.m.streamCmds, cmd)
	r.m.lastActivity = time.Now()
	switch cmd.Mode {
	case NumSampsAndDone:
		r.cmd = &cmd
		r.data = nil
		r.pos = 0
	case StopContinuous:
		r.cmd = nil
	}
	return nil
}

// Recv delivers the simulated capture once the transmit side has been quiet
// for the configured settle time.
func (r *mockRx) Recv(buf []complex64) (int, error) {
	r.m.mu.Lock()
	if r.closed || r.m.closed {
		r.m.mu.Unlock()
		return 0, ErrClosed
	}

	if r.cmd == nil || (r.data == nil && time.Since(r.m.lastActivity) < r.m.cfg.Settle) {
		r.m.mu.Unlock()
		time.Sleep(r.m.poll)
		return 0, nil
	}
	if r.data == nil {
		r.data = r.m.synthesize(r.ch, *r.cmd)
	}

	n := len(r.data) - r.pos
	if n > len(buf) {
		n = len(buf)
	}
	if r.m.cfg.MaxChunk > 0 && n > r.m.cfg.MaxChunk {
		n = r.m.cfg.MaxChunk
	}
	copy(buf, r.data[r.pos:r.pos+n])
	r.pos += n
	r.m.mu.Unlock()
	return n, nil
}

func (r *mockRx) Close() error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.m.open--
	}
	return nil
}
