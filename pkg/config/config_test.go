package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, cfg.Serial.Ports)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Pump.Pause)
	assert.Equal(t, 50, cfg.Pump.DefaultSpeed)
	assert.Equal(t, float64(1e6), cfg.Radio.SampleRate)
	assert.Equal(t, 40e-6, cfg.Radio.DeadTime)
	assert.Equal(t, 40e-6, cfg.Radio.ZeroBufferTime)
	assert.Equal(t, float64(50000), cfg.Radio.TuneShift)
	assert.Equal(t, float64(120e6), cfg.Radio.LOOffset)
	assert.Equal(t, 5*time.Minute, cfg.Calibration.MaxAge)
	assert.Equal(t, "cal.json", cfg.Calibration.File)
	assert.Equal(t, 5000, cfg.CPMG.NPulses)
	assert.Equal(t, float64(3), cfg.CPMG.MaxT2)
	assert.Len(t, cfg.Channels, 2)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Ports[0])
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  ports: ["/dev/ttyACM0"]
  verbose: true

pump:
  pause: 50ms
  run_speed: 60

radio:
  sample_rate: 2000000
  rx_gain: 40

calibration:
  file: "lab.json"
  max_age: 10m
  f0_window:
    start: 100
    length: 512

cpmg:
  npulses: 100
  tr: 0.001
  cycle_90: [0, 2, 0, 2]
  cycle_180: [1, 1, 3, 3]

channels:
  - name: a
    pump: 2
    mux:
      - pin: GPIO5
        high: true
    f0: 21000000
    t90: 0.00005
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, []string{"/dev/ttyACM0"}, cfg.Serial.Ports)
	assert.True(t, cfg.Serial.Verbose)
	assert.Equal(t, 50*time.Millisecond, cfg.Pump.Pause)
	assert.Equal(t, 60, cfg.Pump.RunSpeed)
	assert.Equal(t, float64(2e6), cfg.Radio.SampleRate)
	assert.Equal(t, float64(40), cfg.Radio.RxGain)
	assert.Equal(t, "lab.json", cfg.Calibration.File)
	assert.Equal(t, 10*time.Minute, cfg.Calibration.MaxAge)
	assert.Equal(t, Window{Start: 100, Length: 512}, cfg.Calibration.F0Window)
	assert.Equal(t, 100, cfg.CPMG.NPulses)
	assert.Equal(t, []int{0, 2, 0, 2}, cfg.CPMG.Cycle90)
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, "a", cfg.Channels[0].Name)
	assert.Equal(t, []PinLevel{{Pin: "GPIO5", High: true}}, cfg.Channels[0].Mux)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  ports: ["/dev/ttyACM0"]
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, []string{"/dev/ttyACM0"}, cfg.Serial.Ports)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, float64(1e6), cfg.Radio.SampleRate)
	assert.Len(t, cfg.Channels, 2)
}

func TestLoad_MismatchedCycles(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("cpmg:\n  cycle_90: [0, 2]\n  cycle_180: [1]\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, []int{0}, cfg.CPMG.Cycle90)
	assert.Equal(t, []int{1}, cfg.CPMG.Cycle180)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Ports = []string{"/dev/ttyUSB3"}
	cfg.CPMG.NPulses = 250

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyUSB3"}, loaded.Serial.Ports)
	assert.Equal(t, 250, loaded.CPMG.NPulses)
	assert.Equal(t, cfg.Channels, loaded.Channels)
}

func TestConfig_Channel(t *testing.T) {
	cfg := Default()

	ch, ok := cfg.Channel("br2")
	require.True(t, ok)
	assert.Equal(t, 2, ch.Pump)
	assert.Equal(t, 22055500.0, ch.F0)

	_, ok = cfg.Channel("missing")
	assert.False(t, ok)
}
