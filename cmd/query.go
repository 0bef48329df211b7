// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var fwCmd = &cobra.Command{
	Use:   "fw",
	Short: "Read the controller firmware version",
	Long: `Send FW_VERSION and print the firmware version from the reply.

With --peer, the request is forwarded over CAN to that controller.`,
	RunE: runFW,
}

var valuesCmd = &cobra.Command{
	Use:   "values",
	Short: "Read motor controller telemetry",
	Long: `Send GET_VALUES_SETUP_SELECTIVE with the default field mask and print
temperature, currents, RPM, input voltage, watt hours and fault code.`,
	RunE: runValues,
}

var ppmCmd = &cobra.Command{
	Use:   "ppm",
	Short: "Read the decoded PPM throttle",
	Long: `Send GET_DECODED_PPM and print the throttle value (-1.0 to 1.0).

With --peer, the request is forwarded over CAN to that controller.`,
	RunE: runPPM,
}

var bmsCmd = &cobra.Command{
	Use:   "bms",
	Short: "Read battery state of charge and cell voltages",
	Long: `Query a DieBieMS battery-management unit reachable over CAN through the
connected controller. Requires --peer.

Sends GET_VALUES for the state of charge, then GET_BMS_CELLS for the cell
voltages, and prints both together with any out-of-range readings.`,
	RunE: runBMS,
}

func init() {
	for _, c := range []*cobra.Command{fwCmd, valuesCmd, ppmCmd, bmsCmd} {
		addFormatFlag(c)
		rootCmd.AddCommand(c)
	}
}

// withSession opens a session, runs fn and closes it
func withSession(fn func(s *session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// exchange runs a request in the motor-controller dialect, forwarded to
// the configured peer when one is set
func exchange(s *session, request []byte) (vesc.Snapshot, error) {
	if cfg.Protocol.HasPeer() {
		request = vesc.NewForwardToPeer(cfg.Protocol.Peer(), request)
	}
	_, snap, err := s.client.ExchangeSnapshot(vesc.DialectMotorController, request)
	return snap, err
}

func runFW(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		snap, err := exchange(s, vesc.NewFirmwareVersionRequest())
		if err != nil {
			return err
		}
		fw := snap.Motor.Firmware
		return printResult(fw, fmt.Sprintf("Firmware: %d.%d\n", fw.Major, fw.Minor))
	})
}

func runValues(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		snap, err := exchange(s, vesc.NewGetValuesRequest(vesc.DefaultValuesMask))
		if err != nil {
			return err
		}
		m := snap.Motor
		text := formatMotorValues(m) + formatAnomalies(&snap, vesc.FieldValues)
		return printResult(m, text)
	})
}

func runPPM(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		snap, err := exchange(s, vesc.NewDecodedPPMRequest())
		if err != nil {
			return err
		}
		throttle := snap.Motor.Throttle
		out := struct {
			Throttle float64 `json:"throttle" yaml:"throttle"`
		}{throttle}
		return printResult(out, fmt.Sprintf("Throttle: %.3f\n", throttle))
	})
}

func runBMS(cmd *cobra.Command, args []string) error {
	peer, err := requirePeer()
	if err != nil {
		return err
	}
	return withSession(func(s *session) error {
		if _, err := s.client.BMSValues(peer); err != nil {
			return fmt.Errorf("state of charge: %w", err)
		}
		b, err := s.client.BMSCells(peer)
		if err != nil {
			return fmt.Errorf("cell voltages: %w", err)
		}
		snap := vesc.Snapshot{Battery: b}
		text := formatBattery(b) + formatAnomalies(&snap, vesc.FieldStateOfCharge|vesc.FieldCells)
		return printResult(b, text)
	})
}

func formatMotorValues(m vesc.MotorTelemetry) string {
	result := fmt.Sprintf("Motor Temp:     %8.1f °C\n", m.TempMotor)
	result += fmt.Sprintf("Motor Current:  %8.2f A\n", m.AvgMotorCurrent)
	result += fmt.Sprintf("Input Current:  %8.2f A\n", m.AvgInputCurrent)
	result += fmt.Sprintf("RPM:            %8d\n", m.RPM)
	result += fmt.Sprintf("Input Voltage:  %8.1f V\n", m.InputVoltage)
	result += fmt.Sprintf("Watt Hours:     %8.4f Wh\n", m.WattHours)
	result += fmt.Sprintf("Charged:        %8.4f Wh\n", m.WattHoursCharged)
	result += fmt.Sprintf("Fault:          %s (0x%02X)\n", vesc.FormatFault(m.Fault), m.Fault)
	return result
}

func formatBattery(b vesc.BatteryTelemetry) string {
	result := fmt.Sprintf("State of Charge: %d%%\n", b.StateOfCharge)
	result += fmt.Sprintf("Cells: %d\n", b.CellCount)
	for i, v := range b.ValidCells() {
		result += fmt.Sprintf("  Cell %2d: %.3f V\n", i+1, v)
	}
	return result
}

func formatAnomalies(s *vesc.Snapshot, fields vesc.Fields) string {
	result := ""
	for _, v := range vesc.ValidateSnapshot(s, fields) {
		result += fmt.Sprintf("WARNING: %s: %s\n", v.Type, v.Message)
	}
	return result
}
