package mux

import (
	"fmt"
	"sync"

	"github.com/itohio/sdmrr/pkg/config"
)

// Ensure Mock implements Selector.
var _ Selector = (*Mock)(nil)

// Mock records selections instead of driving pins.
type Mock struct {
	mu         sync.Mutex
	known      map[string]bool
	levels     map[string]bool
	selections [][]config.PinLevel
	err        error
}

// NewMock creates a mock multiplexer with the given pins. With no pins any
// pin name is accepted.
func NewMock(pins ...string) *Mock {
	m := &Mock{levels: make(map[string]bool)}
	if len(pins) > 0 {
		m.known = make(map[string]bool, len(pins))
		for _, p := range pins {
			m.known[p] = true
		}
	}
	return m
}

// Select records levels.
func (m *Mock) Select(levels []config.PinLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	for _, l := range levels {
		if m.known != nil && !m.known[l.Pin] {
			return fmt.Errorf("%w: %s", ErrUnknownPin, l.Pin)
		}
	}
	for _, l := range levels {
		m.levels[l.Pin] = l.High
	}
	m.selections = append(m.selections, append([]config.PinLevel(nil), levels...))
	return nil
}

// SetError makes following selections fail with err.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Level returns the last level driven on pin.
func (m *Mock) Level(pin string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Selections returns every successful selection in order.
func (m *Mock) Selections() [][]config.PinLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]config.PinLevel(nil), m.selections...)
}
