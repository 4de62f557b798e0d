package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/config"
	"github.com/itohio/sdmrr/pkg/history"
	"github.com/itohio/sdmrr/pkg/mrr"
	"github.com/itohio/sdmrr/pkg/plot"
)

var (
	traceF0   float64
	traceT90  float64
	traceOut  string
	traceRaw  string
	traceEcho float64
)

// acquireTrace runs fn on a freshly opened engine and saves its trace.
func acquireTrace(cmd *cobra.Command, fn func(e *mrr.Engine, cfg *config.Config) ([]complex128, error)) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, radio, err := openEngine(ctx, cfg, mrr.Options{})
	if err != nil {
		return err
	}
	defer radio.Close()

	trace, err := fn(e, cfg)
	if err != nil {
		return err
	}

	peak, err := analysis.PeakFrequency(trace, e.SampleRate())
	if err == nil {
		fmt.Printf("%d samples, spectral peak at %.1f Hz\n", len(trace), peak)
	}
	if traceRaw != "" {
		if err := history.SaveTraces(traceRaw, [][]complex128{trace}); err != nil {
			return err
		}
	}
	if traceOut != "" {
		return plot.Trace(traceOut, trace, e.SampleRate())
	}
	return nil
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Acquire a single trace for inspection",
}

var onePulseCmd = &cobra.Command{
	Use:   "onepulse",
	Short: "Free induction decay after one pulse",
	RunE: func(cmd *cobra.Command, args []string) error {
		return acquireTrace(cmd, func(e *mrr.Engine, cfg *config.Config) ([]complex128, error) {
			return e.OnePulse(cmd.Context(), mrr.OnePulseParams{F0: traceF0, T90: traceT90})
		})
	},
}

var echoCmd = &cobra.Command{
	Use:   "echo",
	Short: "Spin echo",
	RunE: func(cmd *cobra.Command, args []string) error {
		return acquireTrace(cmd, func(e *mrr.Engine, cfg *config.Config) ([]complex128, error) {
			return e.PulseEcho(cmd.Context(), mrr.EchoParams{F0: traceF0, T90: traceT90, TR: traceEcho})
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{onePulseCmd, echoCmd} {
		c.Flags().Float64Var(&traceF0, "f0", 0, "Frequency in Hz (calibrated value when 0)")
		c.Flags().Float64Var(&traceT90, "t90", 0, "90 degree pulse width in seconds (calibrated value when 0)")
		c.Flags().StringVarP(&traceOut, "out", "o", "", "Save a figure of the trace")
		c.Flags().StringVar(&traceRaw, "raw", "", "Save the trace to this .npy file")
		traceCmd.AddCommand(c)
	}
	echoCmd.Flags().Float64Var(&traceEcho, "te", mrr.DefaultEchoTR, "Echo time in seconds")
	rootCmd.AddCommand(traceCmd)
}
