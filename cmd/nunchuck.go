// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	chuckX     uint8
	chuckY     uint8
	chuckLower bool
	chuckUpper bool
)

var nunchuckCmd = &cobra.Command{
	Use:   "nunchuck",
	Short: "Send emulated nunchuck input (SET_CHUCK_DATA)",
	Long: `Send joystick position and button state as SET_CHUCK_DATA.

The joystick is centred at 127 on both axes. Accelerometer values are sent
as zero. Use --hold to keep sending, as the controller releases the input
when updates stop.`,
	RunE: runNunchuck,
}

func init() {
	rootCmd.AddCommand(nunchuckCmd)
	def := vesc.DefaultNunchuck()
	nunchuckCmd.Flags().Uint8Var(&chuckX, "x", def.X, "Joystick X (0-255)")
	nunchuckCmd.Flags().Uint8Var(&chuckY, "y", def.Y, "Joystick Y (0-255)")
	nunchuckCmd.Flags().BoolVar(&chuckLower, "lower", false, "Lower (Z) button pressed")
	nunchuckCmd.Flags().BoolVar(&chuckUpper, "upper", false, "Upper (C) button pressed")
	nunchuckCmd.Flags().DurationVar(&setHold, "hold", 0, "Repeat the command for this long (0 sends once)")
	nunchuckCmd.Flags().Float64("rate", 10, "Repeat rate in Hz while holding")
}

func runNunchuck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return withSession(func(s *session) error {
		s.client.Nunchuck = vesc.NunchuckState{
			X:           chuckX,
			Y:           chuckY,
			LowerButton: chuckLower,
			UpperButton: chuckUpper,
		}
		if cfg.Protocol.HasPeer() {
			payload := forPeer(vesc.NewSetChuckData(s.client.Nunchuck))
			return holdSend(ctx, setHold, cfg.Poll.Rate, func() error {
				_, err := s.client.Send(payload)
				return err
			})
		}
		if err := holdSend(ctx, setHold, cfg.Poll.Rate, s.client.SendNunchuck); err != nil {
			return fmt.Errorf("send nunchuck: %w", err)
		}
		return nil
	})
}
