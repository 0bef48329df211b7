// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	sniffBMS        bool
	sniffShowErrors bool
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Display frames on the link in human-readable format",
	Long: `Passively decode and display VESC protocol frames as they arrive.

Nothing is sent. Each frame is shown with timestamp, command name, length,
CRC and decoded payload. Replies the decoder does not understand are shown
as a hex dump. Use --bms to interpret payloads with the battery-management
command table.

Framing errors (stray bytes, long frames, missing end markers, CRC
mismatches) are counted and summarised when the connection closes.

Supports both serial and WebSocket connections.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVar(&sniffBMS, "bms", false, "Interpret payloads as battery-management replies")
	sniffCmd.Flags().BoolVar(&sniffShowErrors, "show-errors", false, "Print framing errors as they happen")
}

func runSniff(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	dialect := vesc.DialectMotorController
	if sniffBMS {
		dialect = vesc.DialectBatteryManagement
	}

	fmt.Printf("vescstat - Frame Sniffer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Dialect: %s\n", dialect)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := vesc.NewStatistics()
	err = sniff(conn, dialect, stats, func(s string) { fmt.Print(s) })
	fmt.Println()
	fmt.Print(stats.String())

	if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
		logger.Info("connection closed")
		return nil
	}
	return err
}

// sniff feeds every byte read from r through a frame assembler and passes
// formatted frames to emit until r fails
func sniff(r io.Reader, dialect vesc.Dialect, stats *vesc.Statistics, emit func(string)) error {
	assembler := vesc.NewAssembler()
	buf := make([]byte, 128)

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			raw, feedErr := assembler.Feed(buf[i])
			if feedErr != nil {
				stats.RecordFraming(feedErr)
				logger.Debug("framing error", zap.Error(feedErr))
				if sniffShowErrors && !errors.Is(feedErr, vesc.ErrInvalidStartMarker) {
					emit(fmt.Sprintf("[ERROR] %v\n", feedErr))
				}
				continue
			}
			if raw == nil {
				continue
			}

			frame, parseErr := vesc.ParseFrame(raw)
			stats.RecordExchange(parseErr)
			if parseErr != nil {
				emit(fmt.Sprintf("[ERROR] %v\n  % X\n", parseErr, raw))
				continue
			}
			emit(vesc.FormatFrame(frame, dialect))
		}
		if err != nil {
			return err
		}
	}
}
