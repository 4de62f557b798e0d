package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/mrr"
)

var (
	calF0    float64
	calT90   float64
	calCheck bool
	calScan  bool
)

var calCmd = &cobra.Command{
	Use:   "cal",
	Short: "Calibrate the resonance frequency and 90 degree pulse width",
	Long: `Measures whatever is not given: with neither --f0 nor --t90 both are
measured, with one of them only the other one is. With both the record is
simply overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		e, radio, err := openEngine(ctx, cfg, mrr.Options{NoCal: true})
		if err != nil {
			return err
		}
		defer radio.Close()

		if calCheck {
			fresh, err := e.CheckCal(ctx)
			if err != nil {
				return err
			}
			if fresh {
				fmt.Println("Calibration is current")
			}
			printRecord(e)
			return nil
		}

		if calScan {
			scan, err := e.FindT90(ctx, calF0)
			if err != nil {
				return err
			}
			for _, s := range scan {
				fmt.Printf("%6.1f us  %.6f\n", s.Width*1e6, s.Score)
			}
			best, err := analysis.BestT90(scan)
			if err != nil {
				return err
			}
			fmt.Printf("t90 = %.1f us\n", best*1e6)
			return nil
		}

		if _, err := e.Cal(ctx, mrr.CalParams{F0: calF0, T90: calT90}); err != nil {
			return err
		}
		printRecord(e)
		return nil
	},
}

func printRecord(e *mrr.Engine) {
	rec := e.Record()
	fmt.Printf("f0  = %.1f Hz\n", rec.F0)
	fmt.Printf("t90 = %.1f us\n", rec.T90*1e6)
	if rec.LastCal > 0 {
		fmt.Printf("last calibration %s\n", rec.LastCalTime().Format(time.ANSIC))
	}
}

func init() {
	calCmd.Flags().Float64Var(&calF0, "f0", 0, "Resonance frequency in Hz (measured when 0)")
	calCmd.Flags().Float64Var(&calT90, "t90", 0, "90 degree pulse width in seconds (measured when 0)")
	calCmd.Flags().BoolVar(&calCheck, "check", false, "Recalibrate only if the record is stale")
	calCmd.Flags().BoolVar(&calScan, "scan", false, "Print the pulse width sweep without storing it")
	rootCmd.AddCommand(calCmd)
}
