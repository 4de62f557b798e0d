package main

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/sdmrr/pkg/experiment"
	"github.com/itohio/sdmrr/pkg/mrr"
)

var skipPrepare bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Measure T2 on every configured channel once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log.Println("Running measurement pass", time.Now().Format(time.RFC3339))

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		p, err := openPump(cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		sel, err := openMux(cfg)
		if err != nil {
			return err
		}

		export, err := openExporter(cfg)
		if err != nil {
			return err
		}
		if export != nil {
			defer export.Close()
		}

		// Every channel sets its own calibration, the stored one is not checked.
		engine, radio, err := openEngine(ctx, cfg, mrr.Options{NoCal: true})
		if err != nil {
			return err
		}
		defer radio.Close()

		runner := experiment.New(cfg, p, sel, engine, nil, experiment.Options{Export: export})
		if !skipPrepare {
			if err := runner.Prepare(ctx); err != nil {
				return err
			}
		}

		results, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			status := "accepted"
			if !r.Accepted {
				status = "rejected"
			}
			log.Printf("%s: T2 = %.4f s (%s)", r.Channel, r.Fit.T2, status)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&skipPrepare, "no-prepare", false, "Skip the pump warm-up")
	rootCmd.AddCommand(runCmd)
}
