package pump

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.bug.st/serial"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaudRate is the baud rate of the pump controller.
	DefaultBaudRate = 115200
	// DefaultPause is the controller's command processing latency.
	DefaultPause = 100 * time.Millisecond
	// DefaultTimeout is the serial read timeout.
	DefaultTimeout = time.Second
)

var (
	// ErrNotConnected is returned when a command is issued on a closed pump.
	ErrNotConnected = errors.New("pump is not connected")
	// ErrNoPorts is returned by Open when no candidate port is configured.
	ErrNoPorts = errors.New("no candidate serial ports")
	// ErrNoResponse is returned when the controller does not answer within
	// the read timeout.
	ErrNoResponse = errors.New("no response from pump")
)

// Direction is the pump rotation direction.
type Direction int

const (
	CounterClockwise Direction = 0
	Clockwise        Direction = 1
)

// ParseDirection parses "cw" or "ccw".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cw", "clockwise":
		return Clockwise, nil
	case "ccw", "counterclockwise":
		return CounterClockwise, nil
	}
	return 0, fmt.Errorf("invalid direction %q: expected cw or ccw", s)
}

func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// OpenFunc opens a named port.
type OpenFunc func(name string) (io.ReadWriteCloser, error)

// Options configures Open.
type Options struct {
	Ports        []string // Candidate ports, tried in order
	BaudRate     int
	Timeout      time.Duration // Read timeout
	Pause        time.Duration // Minimum spacing between commands
	Verbose      bool          // Read and log one response line per command
	Channels     []int         // Channels stopped, set to DefaultSpeed and started on Open
	DefaultSpeed int
	Opener       OpenFunc // nil opens serial ports
}

// PortError records a failed open attempt.
type PortError struct {
	Port string
	Err  error
}

func (e PortError) Error() string {
	return fmt.Sprintf("%s: %v", e.Port, e.Err)
}

// Connection describes how the pump was reached.
type Connection struct {
	Port   string      // Port in use
	Failed []PortError // Ports tried before it
}

// Pump is a connection to the peristaltic pump controller.
type Pump struct {
	conn       io.ReadWriteCloser
	reader     *bufio.Reader
	connection Connection
	verbose    bool
	limiter    *rate.Limiter

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New wraps an already opened port.
func New(conn io.ReadWriteCloser, pause time.Duration, verbose bool) *Pump {
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pump{
		conn:      conn,
		reader:    bufio.NewReader(timeoutReader{conn}),
		verbose:   verbose,
		limiter:   rate.NewLimiter(limit, 1),
		ctx:       ctx,
		cancel:    cancel,
		connected: true,
	}
}

// Open tries every candidate port once, in order, and initialises the
// controller on the first one that opens: every channel is stopped, set to
// the default speed and started.
func Open(opts Options) (*Pump, error) {
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	conn, connection, err := dial(opts)
	if err != nil {
		return nil, err
	}

	p := New(conn, opts.Pause, opts.Verbose)
	p.connection = connection

	if err := p.Init(opts.Channels, opts.DefaultSpeed); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

func dial(opts Options) (io.ReadWriteCloser, Connection, error) {
	var connection Connection
	if len(opts.Ports) == 0 {
		return nil, connection, ErrNoPorts
	}

	open := opts.Opener
	if open == nil {
		open = serialOpener(opts.BaudRate, opts.Timeout)
	}

	var conn io.ReadWriteCloser
	next := 0
	op := func() error {
		name := opts.Ports[next]
		next++
		c, err := open(name)
		if err != nil {
			log.Printf("Failed to open pump port %s: %v", name, err)
			connection.Failed = append(connection.Failed, PortError{Port: name, Err: err})
			return err
		}
		conn = c
		connection.Port = name
		return nil
	}

	retries := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(len(opts.Ports)-1))
	if err := backoff.Retry(op, retries); err != nil {
		return nil, connection, fmt.Errorf("failed to open pump controller on %v: %w", opts.Ports, err)
	}

	return conn, connection, nil
}

func serialOpener(baudRate int, timeout time.Duration) OpenFunc {
	return func(name string) (io.ReadWriteCloser, error) {
		port, err := serial.Open(name, &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, err
		}
		if err := port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, err
		}
		return port, nil
	}
}

// Init stops every channel, then sets each to speed and starts it.
func (p *Pump) Init(channels []int, speed int) error {
	for _, ch := range channels {
		if err := p.Stop(ch); err != nil {
			return err
		}
	}
	for _, ch := range channels {
		if err := p.SetSpeed(ch, speed); err != nil {
			return err
		}
	}
	for _, ch := range channels {
		if err := p.Start(ch); err != nil {
			return err
		}
	}
	return nil
}

// Connection returns the selected port and the failed attempts.
func (p *Pump) Connection() Connection {
	return p.connection
}

// SetSpeed sets the speed of a channel.
func (p *Pump) SetSpeed(channel, speed int) error {
	_, err := p.command(false, "setspeed", strconv.Itoa(channel), strconv.Itoa(speed))
	return err
}

// SetDirection sets the rotation direction of a channel.
func (p *Pump) SetDirection(channel int, dir Direction) error {
	_, err := p.command(false, "setdir", strconv.Itoa(channel), strconv.Itoa(int(dir)))
	return err
}

// Start starts a channel.
func (p *Pump) Start(channel int) error {
	_, err := p.command(false, "start", strconv.Itoa(channel))
	return err
}

// Stop stops a channel.
func (p *Pump) Stop(channel int) error {
	_, err := p.command(false, "stop", strconv.Itoa(channel))
	return err
}

// GetSpeed returns the controller's speed report for a channel.
func (p *Pump) GetSpeed(channel int) (string, error) {
	return p.command(true, "getspeed", strconv.Itoa(channel))
}

// GetAlarm returns the controller's alarm report for a channel.
func (p *Pump) GetAlarm(channel int) (string, error) {
	return p.command(true, "getalarm", strconv.Itoa(channel))
}

// Close closes the serial port.
func (p *Pump) Close() error {
	// Release a command waiting for its slot before taking the lock.
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}

	p.connected = false

	return p.conn.Close()
}

type inputResetter interface {
	ResetInputBuffer() error
}

// timeoutReader turns the empty read a serial port returns on timeout into
// ErrNoResponse.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if n == 0 && err == nil && len(b) > 0 {
		return 0, ErrNoResponse
	}
	return n, err
}

// command writes one line built from fields. Responses are read when the
// pump is verbose or the command is a query.
func (p *Pump) command(query bool, fields ...string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return "", ErrNotConnected
	}

	if err := p.limiter.Wait(p.ctx); err != nil {
		return "", err
	}

	// Quiet mode leaves responses unread; drop them so the query gets its own.
	if query && !p.verbose {
		if r, ok := p.conn.(inputResetter); ok {
			if err := r.ResetInputBuffer(); err != nil {
				log.Printf("Failed to flush pump input: %v", err)
			}
		}
		p.reader.Reset(timeoutReader{p.conn})
	}

	cmd := strings.Join(fields, " ")
	if _, err := io.WriteString(p.conn, cmd+"\n"); err != nil {
		return "", fmt.Errorf("failed to send %q: %w", cmd, err)
	}

	if !p.verbose && !query {
		return "", nil
	}

	resp, err := p.reader.ReadString('\n')
	if errors.Is(err, ErrNoResponse) && !query {
		log.Printf("Pump: no response to %q", cmd)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}
	resp = strings.TrimSpace(resp)
	if p.verbose {
		log.Printf("Pump: %s", resp)
	}

	return resp, nil
}
