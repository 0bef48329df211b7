// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var packetTestWait time.Duration

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the link by requesting the firmware version",
	Long: `Send FW_VERSION repeatedly until a valid reply arrives or --wait elapses.

Each attempt waits for the reply deadline (--timeout). Stray bytes and long
frames are skipped; a reply must pass the CRC check and decode.

Exit codes:
  0 - Valid reply received before the wait elapsed
  1 - No valid reply within the wait
  2 - Connection error

Useful for testing connectivity to a controller or a WebSocket bridge.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().DurationVar(&packetTestWait, "wait", 10*time.Second, "How long to keep trying")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("vescstat - Packet Test\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Wait: %v (reply deadline %v)\n", packetTestWait, cfg.Protocol.Timeout)
	fmt.Printf("Requesting FW_VERSION...\n\n")

	code := packetTest(s, packetTestWait)
	s.Close()
	os.Exit(code)
	return nil
}

// packetTest returns the process exit code
func packetTest(s *session, wait time.Duration) int {
	deadline := time.Now().Add(wait)
	attempts := 0
	var lastErr error

	for time.Now().Before(deadline) {
		attempts++
		fw, err := s.client.FirmwareVersion()
		if err == nil {
			fmt.Printf("SUCCESS: Received valid reply\n")
			fmt.Printf("  Command: FW_VERSION (0x%02X)\n", vesc.CommFWVersion)
			fmt.Printf("  Firmware: %d.%d\n", fw.Major, fw.Minor)
			fmt.Printf("  Attempts: %d\n", attempts)
			return 0
		}
		if errors.Is(err, vesc.ErrStreamClosed) {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			return 2
		}
		logger.Debug("attempt failed", zap.Int("attempt", attempts), zap.Error(err))
		lastErr = err
	}

	fmt.Fprintf(os.Stderr, "TIMEOUT: No valid reply within %v (%d attempts)\n", wait, attempts)
	if lastErr != nil {
		fmt.Fprintf(os.Stderr, "  Last error: %v\n", lastErr)
	}
	fmt.Fprint(os.Stderr, s.stats.String())
	return 1
}
