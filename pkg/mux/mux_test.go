package mux

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/periph/conn/gpio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/sdmrr/pkg/config"
)

// recordPin logs every level written to it.
type recordPin struct {
	gpio.PinOut
	name string
	log  *[]string
	err  error
}

func (p *recordPin) Name() string { return p.name }

func (p *recordPin) Out(l gpio.Level) error {
	if p.err != nil {
		return p.err
	}
	*p.log = append(*p.log, fmt.Sprintf("%s=%v", p.name, l))
	return nil
}

func newTestGPIO(names ...string) (*GPIO, *[]string, map[string]*recordPin) {
	var log []string
	pins := make(map[string]gpio.PinOut, len(names))
	raw := make(map[string]*recordPin, len(names))
	for _, n := range names {
		p := &recordPin{name: n, log: &log}
		pins[n] = p
		raw[n] = p
	}
	return NewGPIO(pins), &log, raw
}

func TestGPIO_BreakBeforeMake(t *testing.T) {
	g, log, _ := newTestGPIO("GPIO14", "GPIO15")

	err := g.Select([]config.PinLevel{
		{Pin: "GPIO15", High: false},
		{Pin: "GPIO14", High: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GPIO15=" + gpio.Low.String(),
		"GPIO14=" + gpio.Low.String(),
		"GPIO14=" + gpio.High.String(),
	}, *log)
}

func TestGPIO_UnknownPinTouchesNothing(t *testing.T) {
	g, log, _ := newTestGPIO("GPIO14")

	err := g.Select([]config.PinLevel{
		{Pin: "GPIO14", High: true},
		{Pin: "GPIO99", High: false},
	})
	assert.ErrorIs(t, err, ErrUnknownPin)
	assert.Empty(t, *log)
}

func TestGPIO_WriteError(t *testing.T) {
	g, _, pins := newTestGPIO("GPIO14")
	boom := errors.New("sysfs busy")
	pins["GPIO14"].err = boom

	err := g.Select([]config.PinLevel{{Pin: "GPIO14", High: true}})
	assert.ErrorIs(t, err, boom)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "GPIO15=0 GPIO14=1", Describe([]config.PinLevel{
		{Pin: "GPIO15"},
		{Pin: "GPIO14", High: true},
	}))
	assert.Equal(t, "", Describe(nil))
}

func TestMock_Select(t *testing.T) {
	m := NewMock("GPIO14", "GPIO15")

	br1 := []config.PinLevel{{Pin: "GPIO15"}, {Pin: "GPIO14", High: true}}
	br2 := []config.PinLevel{{Pin: "GPIO14"}, {Pin: "GPIO15", High: true}}
	require.NoError(t, m.Select(br1))
	assert.True(t, m.Level("GPIO14"))
	assert.False(t, m.Level("GPIO15"))

	require.NoError(t, m.Select(br2))
	assert.False(t, m.Level("GPIO14"))
	assert.True(t, m.Level("GPIO15"))

	assert.Equal(t, [][]config.PinLevel{br1, br2}, m.Selections())

	err := m.Select([]config.PinLevel{{Pin: "GPIO2"}})
	assert.ErrorIs(t, err, ErrUnknownPin)
	assert.Len(t, m.Selections(), 2)
}

func TestMock_Error(t *testing.T) {
	m := NewMock()
	boom := errors.New("no path")
	m.SetError(boom)

	assert.ErrorIs(t, m.Select([]config.PinLevel{{Pin: "any"}}), boom)
	assert.Empty(t, m.Selections())
}
