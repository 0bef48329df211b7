// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	scanFirst int
	scanLast  int
	scanBMS   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find controllers on the CAN bus",
	Long: `Probe CAN peer ids through the connected controller.

For every id in --first..--last, FW_VERSION is forwarded with FORWARD_CAN and
ids that reply within the deadline (--timeout) are listed. With --bms, the
battery-management GET_VALUES request is probed instead.

Silent ids cost one deadline each, so a full 0-254 scan at 100ms takes about
25 seconds.

Examples:
  vescstat scan --port /dev/ttyACM0
  vescstat scan --first 0 --last 15 --bms

Exit codes:
  0 - At least one peer found
  1 - No peer replied
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanFirst, "first", 0, "First CAN id to probe")
	scanCmd.Flags().IntVar(&scanLast, "last", 254, "Last CAN id to probe")
	scanCmd.Flags().BoolVar(&scanBMS, "bms", false, "Probe for battery-management units")
}

// scanResult describes a peer that replied
type scanResult struct {
	id       uint8
	firmware vesc.FirmwareVersion
	soc      uint8
}

// scanPeers probes ids first..last and returns the ones that replied. It
// stops early only when the stream closes.
func scanPeers(client *vesc.Client, first, last int, bms bool, progress func(id int)) ([]scanResult, error) {
	var found []scanResult
	for id := first; id <= last; id++ {
		if progress != nil {
			progress(id)
		}

		var snap vesc.Snapshot
		var err error
		if bms {
			_, snap, err = client.ExchangeSnapshot(vesc.DialectBatteryManagement, vesc.NewForwardToPeer(uint8(id), vesc.NewBMSValuesRequest()))
		} else {
			_, snap, err = client.ExchangeSnapshot(vesc.DialectMotorController, vesc.NewForwardToPeer(uint8(id), vesc.NewFirmwareVersionRequest()))
		}
		if err != nil {
			if errors.Is(err, vesc.ErrStreamClosed) {
				return found, err
			}
			logger.Debug("no reply", zap.Int("id", id), zap.Error(err))
			continue
		}

		found = append(found, scanResult{
			id:       uint8(id),
			firmware: snap.Motor.Firmware,
			soc:      snap.Battery.StateOfCharge,
		})
	}
	return found, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFirst < 0 || scanLast > 255 || scanFirst > scanLast {
		return fmt.Errorf("invalid id range %d..%d", scanFirst, scanLast)
	}

	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	mode := "controllers (FW_VERSION)"
	if scanBMS {
		mode = "battery-management units (GET_VALUES)"
	}
	fmt.Printf("vescstat - CAN Scan\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Looking for: %s\n", mode)
	fmt.Printf("Ids: %d-%d, %v per id\n\n", scanFirst, scanLast, cfg.Protocol.Timeout)

	found, err := scanPeers(s.client, scanFirst, scanLast, scanBMS, func(id int) {
		fmt.Printf("\rProbing id %3d...", id)
	})
	fmt.Printf("\r                 \r")
	s.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	for _, r := range found {
		if scanBMS {
			fmt.Printf("Peer %3d: state of charge %d%%\n", r.id, r.soc)
		} else {
			fmt.Printf("Peer %3d: firmware %d.%d\n", r.id, r.firmware.Major, r.firmware.Minor)
		}
	}

	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Peers found: %d\n", len(found))

	if len(found) == 0 {
		fmt.Printf("No peers replied. Check CAN wiring, termination and controller ids.\n")
		os.Exit(1)
	}
	return nil
}
