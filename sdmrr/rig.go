package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/itohio/sdmrr/pkg/calib"
	"github.com/itohio/sdmrr/pkg/config"
	"github.com/itohio/sdmrr/pkg/history"
	"github.com/itohio/sdmrr/pkg/mrr"
	"github.com/itohio/sdmrr/pkg/mux"
	"github.com/itohio/sdmrr/pkg/pump"
	"github.com/itohio/sdmrr/pkg/sdr"
)

func openRadio(cfg *config.Config) (sdr.Radio, error) {
	if useMock {
		log.Println("Using simulated radio")
		return sdr.NewMock(cfg.Mock, cfg.Radio.LOOffset), nil
	}
	radio, err := sdr.OpenUHD(cfg.Radio.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to open radio %q: %w", cfg.Radio.Args, err)
	}
	return radio, nil
}

// openEngine opens the radio and builds the sequence engine on it. The
// caller closes the returned radio.
func openEngine(ctx context.Context, cfg *config.Config, opts mrr.Options) (*mrr.Engine, sdr.Radio, error) {
	radio, err := openRadio(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts.AutoRecal = opts.AutoRecal || cfg.Calibration.Auto
	e, err := mrr.New(ctx, radio, cfg, calib.NewStore(cfg.Calibration.File), opts)
	if err != nil {
		radio.Close()
		return nil, nil, err
	}
	return e, radio, nil
}

func openPump(cfg *config.Config) (*pump.Pump, error) {
	opts := pump.Options{
		Ports:        cfg.Serial.Ports,
		BaudRate:     cfg.Serial.BaudRate,
		Timeout:      cfg.Serial.Timeout,
		Pause:        cfg.Pump.Pause,
		Verbose:      cfg.Serial.Verbose,
		Channels:     cfg.Pump.Channels,
		DefaultSpeed: cfg.Pump.DefaultSpeed,
	}
	if useMock {
		opts.Ports = []string{"mock"}
		opts.Opener = func(string) (io.ReadWriteCloser, error) {
			return pump.NewMock(cfg.Pump.Channels...), nil
		}
	}

	p, err := pump.Open(opts)
	if err != nil {
		return nil, err
	}
	c := p.Connection()
	for _, f := range c.Failed {
		log.Printf("Pump port %s unavailable: %v", f.Port, f.Err)
	}
	log.Printf("Pump connected on %s", c.Port)
	return p, nil
}

func openMux(cfg *config.Config) (mux.Selector, error) {
	if useMock {
		return mux.NewMock(cfg.Mux.Pins...), nil
	}
	return mux.Open(cfg.Mux.Pins)
}

// openExporter opens the configured result database, or returns nil when
// none is configured.
func openExporter(cfg *config.Config) (history.Exporter, error) {
	if cfg.Export.SQLite == "" {
		return nil, nil
	}
	db, err := history.OpenSQLite(cfg.Export.SQLite)
	if err != nil {
		return nil, err
	}
	log.Printf("Exporting results to %s, run %s", cfg.Export.SQLite, db.RunID)
	return db, nil
}
