// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var setHold time.Duration

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Send a motor set command",
	Long: `Send SET_CURRENT, SET_CURRENT_BRAKE, SET_RPM or SET_DUTY.

Set commands have no reply. The controller stops the motor when commands
stop arriving, so --hold repeats the command at poll.rate (--rate) for the
given duration. Ctrl+C stops early.

With --peer, the command is forwarded over CAN to that controller.

Examples:
  vescstat set current 5 --port /dev/ttyACM0
  vescstat set rpm 3000 --hold 10s --rate 20
  vescstat set duty 0.15 --peer 1`,
}

type setCommand struct {
	use   string
	short string
	build func(float64) []byte
	check func(float64) error
}

var setCommands = []setCommand{
	{"current <amps>", "Set motor current (SET_CURRENT)", vesc.NewSetCurrent, nil},
	{"brake <amps>", "Set brake current (SET_CURRENT_BRAKE)", vesc.NewSetBrakeCurrent, nil},
	{"rpm <erpm>", "Set electrical RPM (SET_RPM)", vesc.NewSetRPM, nil},
	{"duty <cycle>", "Set duty cycle, -1.0 to 1.0 (SET_DUTY)", vesc.NewSetDuty, func(v float64) error {
		if v < -1 || v > 1 {
			return fmt.Errorf("duty cycle %v out of range -1.0..1.0", v)
		}
		return nil
	}},
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.PersistentFlags().DurationVar(&setHold, "hold", 0, "Repeat the command for this long (0 sends once)")
	setCmd.PersistentFlags().Float64("rate", 10, "Repeat rate in Hz while holding")

	for _, sc := range setCommands {
		sc := sc
		setCmd.AddCommand(&cobra.Command{
			Use:   sc.use,
			Short: sc.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[0], err)
				}
				if sc.check != nil {
					if err := sc.check(value); err != nil {
						return err
					}
				}
				return runSet(cmd.Context(), sc.build(value))
			},
		})
	}
}

// forPeer wraps a payload for the configured CAN peer, if any
func forPeer(payload []byte) []byte {
	if cfg.Protocol.HasPeer() {
		return vesc.NewForwardToPeer(cfg.Protocol.Peer(), payload)
	}
	return payload
}

func runSet(ctx context.Context, payload []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return withSession(func(s *session) error {
		payload := forPeer(payload)
		return holdSend(ctx, setHold, cfg.Poll.Rate, func() error {
			_, err := s.client.Send(payload)
			return err
		})
	})
}

// holdSend calls send once, or repeatedly at hz until hold has elapsed or
// the process is interrupted
func holdSend(ctx context.Context, hold time.Duration, hz float64, send func() error) error {
	if err := send(); err != nil {
		return err
	}
	if hold <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, hold)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(hz), 1)
	sent := 1
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Deadline or interrupt
			logger.Info("hold finished", zap.Int("sent", sent))
			return nil
		}
		if err := send(); err != nil {
			return err
		}
		sent++
	}
}
