package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/sdmrr/pkg/pump"
)

// withPump opens the pump controller for the duration of fn.
func withPump(fn func(p *pump.Pump) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := openPump(cfg)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}

func channelArg(s string) (int, error) {
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	return ch, nil
}

var pumpCmd = &cobra.Command{
	Use:   "pump",
	Short: "Control the peristaltic pump",
}

func init() {
	simple := func(use, short string, fn func(p *pump.Pump, ch int) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <channel>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ch, err := channelArg(args[0])
				if err != nil {
					return err
				}
				return withPump(func(p *pump.Pump) error { return fn(p, ch) })
			},
		}
	}
	query := func(use, short string, fn func(p *pump.Pump, ch int) (string, error)) *cobra.Command {
		return simple(use, short, func(p *pump.Pump, ch int) error {
			resp, err := fn(p, ch)
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		})
	}

	pumpCmd.AddCommand(
		simple("start", "Start a channel", (*pump.Pump).Start),
		simple("stop", "Stop a channel", (*pump.Pump).Stop),
		query("getspeed", "Print the speed of a channel", (*pump.Pump).GetSpeed),
		query("getalarm", "Print the alarm state of a channel", (*pump.Pump).GetAlarm),
		&cobra.Command{
			Use:   "speed <channel> <speed>",
			Short: "Set the speed of a channel",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ch, err := channelArg(args[0])
				if err != nil {
					return err
				}
				speed, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid speed %q", args[1])
				}
				return withPump(func(p *pump.Pump) error { return p.SetSpeed(ch, speed) })
			},
		},
		&cobra.Command{
			Use:   "dir <channel> <cw|ccw>",
			Short: "Set the rotation direction of a channel",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ch, err := channelArg(args[0])
				if err != nil {
					return err
				}
				dir, err := pump.ParseDirection(args[1])
				if err != nil {
					return err
				}
				return withPump(func(p *pump.Pump) error { return p.SetDirection(ch, dir) })
			},
		},
	)
	pumpTestCmd.Flags().DurationVar(&pumpTestHold, "hold", 10*time.Second, "Time to run counter-clockwise")
	pumpCmd.AddCommand(pumpTestCmd)
	rootCmd.AddCommand(pumpCmd)
}

var pumpTestHold time.Duration

// pumpTestCmd runs a channel backwards for a while, then forwards again and
// reports its alarm state.
var pumpTestCmd = &cobra.Command{
	Use:   "test <channel>",
	Short: "Exercise a channel in both directions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := channelArg(args[0])
		if err != nil {
			return err
		}
		return withPump(func(p *pump.Pump) error {
			if err := p.SetDirection(ch, pump.CounterClockwise); err != nil {
				return err
			}
			if err := p.Start(ch); err != nil {
				return err
			}

			t := time.NewTimer(pumpTestHold)
			defer t.Stop()
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-t.C:
			}

			if err := p.SetDirection(ch, pump.Clockwise); err != nil {
				return err
			}
			alarm, err := p.GetAlarm(ch)
			if err != nil {
				return err
			}
			fmt.Println(alarm)
			return p.Start(ch)
		})
	},
}
