package pump

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// ChannelState is the simulated state of one pump channel.
type ChannelState struct {
	Speed     int
	Direction Direction
	Running   bool
	Alarm     int
}

// Mock simulates the pump controller on the far side of the serial line.
// It parses command lines as they are written and queues one response line
// per command.
type Mock struct {
	mu       sync.Mutex
	written  bytes.Buffer
	pending  []byte
	out      bytes.Buffer
	channels map[int]*ChannelState
	closed   bool
}

// Ensure Mock can stand in for a serial port.
var _ io.ReadWriteCloser = (*Mock)(nil)

// NewMock creates a simulated controller with the given channels.
func NewMock(channels ...int) *Mock {
	m := &Mock{channels: make(map[int]*ChannelState)}
	for _, ch := range channels {
		m.channels[ch] = &ChannelState{}
	}
	return m
}

// Write receives bytes sent to the controller.
func (m *Mock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}

	m.written.Write(b)
	m.pending = append(m.pending, b...)
	for {
		idx := bytes.IndexByte(m.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(m.pending[:idx])
		m.pending = m.pending[idx+1:]
		m.out.WriteString(m.handle(line) + "\n")
	}

	return len(b), nil
}

// Read returns queued response lines.
func (m *Mock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.out.Len() == 0 {
		return 0, io.EOF
	}
	return m.out.Read(b)
}

// ResetInputBuffer drops unread responses.
func (m *Mock) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out.Reset()
	return nil
}

// Close closes the simulated line.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Written returns everything written to the controller.
func (m *Mock) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

// Lines returns the command lines written so far, without terminators.
func (m *Mock) Lines() []string {
	w := strings.TrimSuffix(m.Written(), "\n")
	if w == "" {
		return nil
	}
	return strings.Split(w, "\n")
}

// State returns the state of a channel.
func (m *Mock) State(channel int) (ChannelState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[channel]
	if !ok {
		return ChannelState{}, false
	}
	return *st, true
}

// SetAlarm raises an alarm code on a channel.
func (m *Mock) SetAlarm(channel, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.channels[channel]; ok {
		st.Alarm = code
	}
}

// handle applies one command line and returns the response line.
func (m *Mock) handle(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "ERR " + line
	}

	ch, err := strconv.Atoi(fields[1])
	if err != nil {
		return "ERR bad channel " + fields[1]
	}
	st, ok := m.channels[ch]
	if !ok {
		return fmt.Sprintf("ERR no channel %d", ch)
	}

	arg := func() (int, bool) {
		if len(fields) < 3 {
			return 0, false
		}
		v, err := strconv.Atoi(fields[2])
		return v, err == nil
	}

	switch fields[0] {
	case "start":
		st.Running = true
	case "stop":
		st.Running = false
	case "setspeed":
		v, ok := arg()
		if !ok {
			return "ERR setspeed needs a value"
		}
		st.Speed = v
	case "setdir":
		v, ok := arg()
		if !ok || (v != 0 && v != 1) {
			return "ERR setdir needs 0 or 1"
		}
		st.Direction = Direction(v)
	case "getspeed":
		return fmt.Sprintf("speed %d %d", ch, st.Speed)
	case "getalarm":
		return fmt.Sprintf("alarm %d %d", ch, st.Alarm)
	default:
		return "ERR unknown command " + fields[0]
	}

	return "OK " + line
}
