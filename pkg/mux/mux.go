// Package mux switches the RF path between the sample probes.
package mux

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/periph/conn/gpio"
	"github.com/google/periph/conn/gpio/gpioreg"
	"github.com/google/periph/host"

	"github.com/itohio/sdmrr/pkg/config"
)

// ErrUnknownPin is returned for a pin that is not managed by the selector.
var ErrUnknownPin = errors.New("mux: unknown pin")

// Selector routes the RF path by driving the multiplexer pins.
type Selector interface {
	Select(levels []config.PinLevel) error
}

// Ensure GPIO implements Selector.
var _ Selector = (*GPIO)(nil)

// GPIO drives the multiplexer through host GPIO pins.
type GPIO struct {
	mu   sync.Mutex
	pins map[string]gpio.PinOut
}

// Open initialises the host drivers and looks up every named pin.
func Open(names []string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}

	pins := make(map[string]gpio.PinOut, len(names))
	for _, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
		}
		pins[name] = p
	}
	return NewGPIO(pins), nil
}

// NewGPIO creates a selector over already opened pins.
func NewGPIO(pins map[string]gpio.PinOut) *GPIO {
	return &GPIO{pins: pins}
}

// Select drives every listed pin low, then raises the high ones, so two
// paths are never connected at once.
func (g *GPIO) Select(levels []config.PinLevel) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, l := range levels {
		if _, ok := g.pins[l.Pin]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPin, l.Pin)
		}
	}

	for _, l := range levels {
		if err := g.pins[l.Pin].Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to clear %s: %w", l.Pin, err)
		}
	}
	for _, l := range levels {
		if !l.High {
			continue
		}
		if err := g.pins[l.Pin].Out(gpio.High); err != nil {
			return fmt.Errorf("failed to set %s: %w", l.Pin, err)
		}
	}

	log.Printf("Mux: %s", Describe(levels))
	return nil
}

// Describe formats levels as "PIN=1 PIN=0".
func Describe(levels []config.PinLevel) string {
	s := ""
	for i, l := range levels {
		if i > 0 {
			s += " "
		}
		v := 0
		if l.High {
			v = 1
		}
		s += fmt.Sprintf("%s=%d", l.Pin, v)
	}
	return s
}
