package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/history"
	"github.com/itohio/sdmrr/pkg/mrr"
	"github.com/itohio/sdmrr/pkg/plot"
)

var (
	cpmgPulses  int
	cpmgTR      float64
	cpmgAmp90   float64
	cpmgAmp180  float64
	cpmgSkip    int
	cpmgSumMax  bool
	cpmgPlot    string
	cpmgRaw     string
	cpmgChannel string
)

var cpmgCmd = &cobra.Command{
	Use:   "cpmg",
	Short: "Run one phase cycled CPMG acquisition and fit T2",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cp := cfg.CPMG
		params := mrr.PhaseLoopParams{
			Gain:     cp.Gain,
			TR:       cp.TR,
			NPulses:  cp.NPulses,
			Cycle90:  cp.Cycle90,
			Cycle180: cp.Cycle180,
			Amp90:    cpmgAmp90,
			Amp180:   cpmgAmp180,
			Delay:    cp.CycleDelay,
			Width:    cp.EchoWidth,
			Mode:     analysis.AbsMean,
		}
		if cpmgChannel != "" {
			ch, ok := cfg.Channel(cpmgChannel)
			if !ok {
				return fmt.Errorf("unknown channel %q", cpmgChannel)
			}
			params.F0, params.T90 = ch.F0, ch.T90
			params.Amp90, params.Amp180 = ch.Amp90, ch.Amp180
		}
		if cmd.Flags().Changed("npulses") {
			params.NPulses = cpmgPulses
		}
		if cmd.Flags().Changed("tr") {
			params.TR = cpmgTR
		}
		if cmd.Flags().Changed("amp90") {
			params.Amp90 = cpmgAmp90
		}
		if cmd.Flags().Changed("amp180") {
			params.Amp180 = cpmgAmp180
		}
		if cpmgSumMax {
			params.Mode = analysis.SumMax
		}
		skip := cp.SkipEchoes
		if cmd.Flags().Changed("skip") {
			skip = cpmgSkip
		}

		e, radio, err := openEngine(ctx, cfg, mrr.Options{})
		if err != nil {
			return err
		}
		defer radio.Close()

		res, err := e.CPMGPhaseLoop(ctx, params)
		if err != nil {
			return err
		}

		skip = min(max(skip, 0), len(res.Mags))
		echoes := res.Mags[skip:]
		fit, err := analysis.FitT2(echoes, res.TR)
		if err != nil {
			return err
		}
		fmt.Printf("f0 = %.1f Hz, t90 = %.1f us\n", res.F0, res.T90*1e6)
		fmt.Printf("T2: %.4f s (a=%.4g c=%.4g)\n", fit.T2, fit.A, fit.C)

		if cpmgPlot != "" {
			times := make([]float64, len(echoes))
			for i := range times {
				times[i] = float64(i) * res.TR
			}
			if err := plot.Decay(cpmgPlot, times, echoes, fit, res.F0); err != nil {
				log.Println(err)
			}
		}
		if cpmgRaw != "" {
			if err := history.SaveTraces(cpmgRaw, res.Traces); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	cpmgCmd.Flags().IntVarP(&cpmgPulses, "npulses", "n", 0, "Number of refocusing pulses")
	cpmgCmd.Flags().Float64Var(&cpmgTR, "tr", 0, "Echo spacing in seconds")
	cpmgCmd.Flags().Float64Var(&cpmgAmp90, "amp90", 0, "90 degree pulse amplitude")
	cpmgCmd.Flags().Float64Var(&cpmgAmp180, "amp180", 0, "180 degree pulse amplitude")
	cpmgCmd.Flags().IntVar(&cpmgSkip, "skip", 0, "Leading echoes excluded from the fit")
	cpmgCmd.Flags().BoolVar(&cpmgSumMax, "sum-max", false, "Combine phase cycles coherently")
	cpmgCmd.Flags().StringVar(&cpmgPlot, "plot", "", "Save the decay figure to this file")
	cpmgCmd.Flags().StringVar(&cpmgRaw, "raw", "", "Save the raw traces to this .npy file")
	cpmgCmd.Flags().StringVarP(&cpmgChannel, "channel", "c", "", "Use the calibration and amplitudes of a configured channel")
	rootCmd.AddCommand(cpmgCmd)
}
