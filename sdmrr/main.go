// Command sdmrr drives the software defined magnetic resonance relaxometer:
// calibration, single CPMG measurements, unattended measurement passes and
// manual pump control.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itohio/sdmrr/pkg/config"
)

var (
	configPath string
	useMock    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "sdmrr",
	Short:         "Magnetic resonance relaxometer controller",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sdmrr.yaml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Use simulated radio, pump and multiplexer")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pump responses")
}

// loadConfig loads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Serial.Verbose = true
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
