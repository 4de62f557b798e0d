package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Pump        PumpConfig        `yaml:"pump"`
	Radio       RadioConfig       `yaml:"radio"`
	Calibration CalibrationConfig `yaml:"calibration"`
	CPMG        CPMGConfig        `yaml:"cpmg"`
	Mux         MuxConfig         `yaml:"mux"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Output      OutputConfig      `yaml:"output"`
	Export      ExportConfig      `yaml:"export"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration of the pump controller.
type SerialConfig struct {
	Ports    []string      `yaml:"ports"` // Candidate ports, tried in order
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"` // Read timeout
	Verbose  bool          `yaml:"verbose"` // Read and log one response line per command
}

// PumpConfig contains peristaltic pump parameters.
type PumpConfig struct {
	Channels     []int         `yaml:"channels"`
	DefaultSpeed int           `yaml:"default_speed"` // Speed applied when the driver connects
	RunSpeed     int           `yaml:"run_speed"`     // Speed used between measurements
	Pause        time.Duration `yaml:"pause"`         // Minimum spacing between commands
	Settle       time.Duration `yaml:"settle"`        // Wait after stopping a pump before measuring
}

// RadioConfig contains the SDR front end parameters and timing constants.
type RadioConfig struct {
	Args           string  `yaml:"args"`             // Device arguments, e.g. "type=b200"
	SampleRate     float64 `yaml:"sample_rate"`      // Hz
	DeadTime       float64 `yaml:"dead_time"`        // Seconds between pulse end and switch release
	ZeroBufferTime float64 `yaml:"zero_buffer_time"` // Seconds of zeros prefixed to each pulse
	TuneShift      float64 `yaml:"tune_shift"`       // Hz offset keeping the signal away from LO leakage
	LOOffset       float64 `yaml:"lo_offset"`        // Hz added by the external mixer
	TxGain         float64 `yaml:"tx_gain"`
	RxGain         float64 `yaml:"rx_gain"`
	TxChannel      int     `yaml:"tx_channel"`
	RxChannel      int     `yaml:"rx_channel"`
	RecvChunk      int     `yaml:"recv_chunk"` // Samples per receive call
	FilterOrder    int     `yaml:"filter_order"`
}

// CalibrationConfig contains calibration store and sweep parameters.
type CalibrationConfig struct {
	File       string        `yaml:"file"`
	MaxAge     time.Duration `yaml:"max_age"` // Record older than this is recalibrated
	Auto       bool          `yaml:"auto"`    // Check staleness before every acquisition
	T90Start   float64       `yaml:"t90_start"`
	T90Stop    float64       `yaml:"t90_stop"` // Exclusive
	T90Step    float64       `yaml:"t90_step"`
	SweepPause time.Duration `yaml:"sweep_pause"`
	F0Window   Window        `yaml:"f0_window"`
}

// CPMGConfig contains CPMG acquisition and fit parameters.
type CPMGConfig struct {
	NPulses    int           `yaml:"npulses"`
	TR         float64       `yaml:"tr"` // Echo spacing, seconds
	Gain       float64       `yaml:"gain"`
	Cycle90    []int         `yaml:"cycle_90"`
	Cycle180   []int         `yaml:"cycle_180"`
	CycleDelay time.Duration `yaml:"cycle_delay"` // Recovery between phase cycles
	EchoWidth  int           `yaml:"echo_width"`  // Samples averaged per echo
	SkipEchoes int           `yaml:"skip_echoes"` // Leading echoes excluded from the fit
	MaxT2      float64       `yaml:"max_t2"`      // Results at or above this are rejected
}

// Window is a half-open sample index range.
type Window struct {
	Start  int `yaml:"start"`
	Length int `yaml:"length"`
}

// MuxConfig contains the RF path multiplexer pins.
type MuxConfig struct {
	Pins []string `yaml:"pins"`
}

// PinLevel is the level one multiplexer pin takes for a channel.
type PinLevel struct {
	Pin  string `yaml:"pin"`
	High bool   `yaml:"high"`
}

// ChannelConfig describes one measured culture vessel.
type ChannelConfig struct {
	Name     string     `yaml:"name"`
	Title    string     `yaml:"title"`
	Pump     int        `yaml:"pump"`
	Mux      []PinLevel `yaml:"mux"`
	F0       float64    `yaml:"f0"`
	T90      float64    `yaml:"t90"`
	Amp90    float64    `yaml:"amp90"`
	Amp180   float64    `yaml:"amp180"`
	RxGain   float64    `yaml:"rx_gain"`
	DataDir  string     `yaml:"data_dir"`
	SaveRaw  bool       `yaml:"save_raw"`
	PlotFile string     `yaml:"plot_file"`
}

// OutputConfig contains result locations.
type OutputConfig struct {
	HistoryDir string `yaml:"history_dir"`
	BackupDir  string `yaml:"backup_dir"`
}

// ExportConfig contains optional result exporters.
type ExportConfig struct {
	SQLite string `yaml:"sqlite"` // Database file, empty disables
}

// MockConfig contains simulated hardware parameters.
type MockConfig struct {
	F0         float64       `yaml:"f0"`          // Resonance (Hz, before LO offset)
	T90        float64       `yaml:"t90"`         // 90 degree width at unit amplitude
	T2         float64       `yaml:"t2"`          // Seconds
	T2Star     float64       `yaml:"t2_star"`     // Seconds
	Amplitude  float64       `yaml:"amplitude"`   // Signal amplitude
	NoiseLevel float64       `yaml:"noise_level"` // Noise standard deviation
	MaxChunk   int           `yaml:"max_chunk"`   // Samples per receive call
	Settle     time.Duration `yaml:"settle"`      // Quiet time before the stream starts
	Seed       int64         `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Ports:    []string{"/dev/ttyUSB0", "/dev/ttyUSB1"},
			BaudRate: 115200,
			Timeout:  time.Second,
			Verbose:  false,
		},
		Pump: PumpConfig{
			Channels:     []int{1, 2},
			DefaultSpeed: 50,
			RunSpeed:     55,
			Pause:        100 * time.Millisecond,
			Settle:       2 * time.Second,
		},
		Radio: RadioConfig{
			Args:           "type=b200",
			SampleRate:     1e6,
			DeadTime:       40e-6,
			ZeroBufferTime: 40e-6,
			TuneShift:      50000,
			LOOffset:       120e6,
			TxGain:         70,
			RxGain:         50,
			TxChannel:      0,
			RxChannel:      1,
			RecvChunk:      500000,
			FilterOrder:    3,
		},
		Calibration: CalibrationConfig{
			File:       "cal.json",
			MaxAge:     5 * time.Minute,
			Auto:       true,
			T90Start:   5e-6,
			T90Stop:    100e-6,
			T90Step:    5e-6,
			SweepPause: 4 * time.Second,
			F0Window:   Window{Start: 4000, Length: 4000},
		},
		CPMG: CPMGConfig{
			NPulses:    5000,
			TR:         500.023e-6,
			Gain:       70,
			Cycle90:    []int{0},
			Cycle180:   []int{1},
			CycleDelay: 3 * time.Second,
			EchoWidth:  200,
			SkipEchoes: 1000,
			MaxT2:      3,
		},
		Mux: MuxConfig{
			Pins: []string{"GPIO14", "GPIO15"},
		},
		Channels: []ChannelConfig{
			{
				Name:  "br1",
				Title: "BR1 Culture T2",
				Pump:  1,
				Mux: []PinLevel{
					{Pin: "GPIO15", High: false},
					{Pin: "GPIO14", High: true},
				},
				F0:       22050900.0,
				T90:      60e-6,
				Amp90:    0.31,
				Amp180:   0.62,
				RxGain:   50,
				DataDir:  "Data/Run3_BR1",
				SaveRaw:  true,
				PlotFile: "BR1_T2.png",
			},
			{
				Name:  "br2",
				Title: "BR2 Culture T2",
				Pump:  2,
				Mux: []PinLevel{
					{Pin: "GPIO14", High: false},
					{Pin: "GPIO15", High: true},
				},
				F0:       22055500.0,
				T90:      60e-6,
				Amp90:    0.275,
				Amp180:   0.55,
				RxGain:   50,
				DataDir:  "Data/Run3_BR2",
				SaveRaw:  true,
				PlotFile: "BR2_T2.png",
			},
		},
		Output: OutputConfig{
			HistoryDir: ".",
			BackupDir:  "Data/Backup",
		},
		Mock: MockConfig{
			F0:         22050900.0 + 300,
			T90:        60e-6,
			T2:         1.2,
			T2Star:     2e-3,
			Amplitude:  0.5,
			NoiseLevel: 0.002,
			MaxChunk:   2040,
			Settle:     20 * time.Millisecond,
			Seed:       1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Channel returns the channel with the given name.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if len(c.Serial.Ports) == 0 {
		c.Serial.Ports = def.Serial.Ports
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Timeout == 0 {
		c.Serial.Timeout = def.Serial.Timeout
	}

	if len(c.Pump.Channels) == 0 {
		c.Pump.Channels = def.Pump.Channels
	}
	if c.Pump.DefaultSpeed == 0 {
		c.Pump.DefaultSpeed = def.Pump.DefaultSpeed
	}
	if c.Pump.RunSpeed == 0 {
		c.Pump.RunSpeed = def.Pump.RunSpeed
	}
	if c.Pump.Pause == 0 {
		c.Pump.Pause = def.Pump.Pause
	}

	if c.Radio.SampleRate == 0 {
		c.Radio.SampleRate = def.Radio.SampleRate
	}
	if c.Radio.DeadTime == 0 {
		c.Radio.DeadTime = def.Radio.DeadTime
	}
	if c.Radio.ZeroBufferTime == 0 {
		c.Radio.ZeroBufferTime = def.Radio.ZeroBufferTime
	}
	if c.Radio.TuneShift == 0 {
		c.Radio.TuneShift = def.Radio.TuneShift
	}
	if c.Radio.RecvChunk == 0 {
		c.Radio.RecvChunk = def.Radio.RecvChunk
	}
	if c.Radio.FilterOrder == 0 {
		c.Radio.FilterOrder = def.Radio.FilterOrder
	}
	if c.Radio.TxGain == 0 {
		c.Radio.TxGain = def.Radio.TxGain
	}
	if c.Radio.RxGain == 0 {
		c.Radio.RxGain = def.Radio.RxGain
	}

	if c.Calibration.File == "" {
		c.Calibration.File = def.Calibration.File
	}
	if c.Calibration.MaxAge == 0 {
		c.Calibration.MaxAge = def.Calibration.MaxAge
	}
	if c.Calibration.T90Step == 0 {
		c.Calibration.T90Start = def.Calibration.T90Start
		c.Calibration.T90Stop = def.Calibration.T90Stop
		c.Calibration.T90Step = def.Calibration.T90Step
	}
	if c.Calibration.F0Window.Length == 0 {
		c.Calibration.F0Window = def.Calibration.F0Window
	}

	if c.CPMG.NPulses == 0 {
		c.CPMG.NPulses = def.CPMG.NPulses
	}
	if c.CPMG.TR == 0 {
		c.CPMG.TR = def.CPMG.TR
	}
	if c.CPMG.Gain == 0 {
		c.CPMG.Gain = def.CPMG.Gain
	}
	if len(c.CPMG.Cycle90) == 0 || len(c.CPMG.Cycle90) != len(c.CPMG.Cycle180) {
		c.CPMG.Cycle90 = def.CPMG.Cycle90
		c.CPMG.Cycle180 = def.CPMG.Cycle180
	}
	if c.CPMG.EchoWidth == 0 {
		c.CPMG.EchoWidth = def.CPMG.EchoWidth
	}
	if c.CPMG.MaxT2 == 0 {
		c.CPMG.MaxT2 = def.CPMG.MaxT2
	}

	if len(c.Mux.Pins) == 0 {
		c.Mux.Pins = def.Mux.Pins
	}
	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}

	if c.Output.HistoryDir == "" {
		c.Output.HistoryDir = def.Output.HistoryDir
	}

	if c.Mock.T90 == 0 {
		c.Mock.T90 = def.Mock.T90
	}
	if c.Mock.T2 == 0 {
		c.Mock.T2 = def.Mock.T2
	}
	if c.Mock.T2Star == 0 {
		c.Mock.T2Star = def.Mock.T2Star
	}
	if c.Mock.Amplitude == 0 {
		c.Mock.Amplitude = def.Mock.Amplitude
	}
	if c.Mock.MaxChunk == 0 {
		c.Mock.MaxChunk = def.Mock.MaxChunk
	}
	if c.Mock.Settle == 0 {
		c.Mock.Settle = def.Mock.Settle
	}
}
