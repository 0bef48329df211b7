// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/internal/record"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	recordDuration time.Duration
	recordPPM      bool
	recordBMS      bool
	replayErrors   bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Poll telemetry and append it to a recording",
	Long: `Poll the controller like monitor does and write every exchange, including
failed ones, to a CBOR recording (record.path, --output).

The recording starts with a header carrying a session id, the start time and
the connection target. Stop with Ctrl+C or --duration. Play it back with
replay.`,
	RunE: runRecord,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Print a telemetry recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringP("output", "o", "vescstat.cbor", "Recording file")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	recordCmd.Flags().BoolVar(&recordPPM, "ppm", false, "Also record the decoded PPM throttle")
	recordCmd.Flags().BoolVar(&recordBMS, "bms", false, "Also record the battery-management unit at --peer")
	recordCmd.Flags().Float64("rate", 10, "Requests per second")

	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayErrors, "errors", false, "Only print failed exchanges")
}

// newEntry converts a poll result to a recording entry
func newEntry(res pollResult) record.Entry {
	e := record.Entry{
		Time:     res.time,
		Request:  res.request,
		Fields:   res.fields,
		Snapshot: res.snapshot,
	}
	if res.err != nil {
		e.Error = res.err.Error()
	}
	return e
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordBMS {
		if _, err := requirePeer(); err != nil {
			return err
		}
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := record.Create(cfg.Record.Path, s.info)
	if err != nil {
		return err
	}
	defer rec.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if recordDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	fmt.Printf("vescstat - Record\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Output: %s\n", cfg.Record.Path)
	fmt.Printf("Session: %s\n", rec.Header().Session)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	requests := buildPollCycle(cfg.Protocol.PeerID, recordPPM, recordBMS)
	entries := 0
	var writeErr error
	p := newPoller(s.client, requests, cfg.Poll.Rate, nil)
	runErr := p.run(ctx, func(res pollResult) {
		if writeErr != nil {
			return
		}
		if writeErr = rec.Write(newEntry(res)); writeErr != nil {
			cancel()
			return
		}
		entries++
		if entries%100 == 0 {
			logger.Info("recording", zap.Int("entries", entries))
		}
	})

	fmt.Printf("Recorded %d entries\n", entries)
	fmt.Print(s.stats.String())

	if writeErr != nil {
		return writeErr
	}
	return runErr
}

func runReplay(cmd *cobra.Command, args []string) error {
	p, err := record.Open(args[0])
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Printf("Session: %s\n", p.Header.Session)
	fmt.Printf("Target: %s\n", p.Header.Target)
	fmt.Printf("Started: %s\n\n", p.Header.Started.Format(time.RFC3339))

	return replay(p, os.Stdout, replayErrors)
}

// replay writes every entry of a recording to w
func replay(p *record.Player, w io.Writer, errorsOnly bool) error {
	total, failed := 0, 0
	for {
		e, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		total++

		timestamp := e.Time.Format("15:04:05.000")
		if e.Error != "" {
			failed++
			fmt.Fprintf(w, "[%s] %s: ERROR %s\n", timestamp, e.Request, e.Error)
			continue
		}
		if errorsOnly {
			continue
		}
		fmt.Fprintf(w, "[%s] %s (%s)\n", timestamp, e.Request, e.Fields)
		fmt.Fprint(w, formatRecorded(&e.Snapshot, e.Fields))
		for _, a := range vesc.ValidateSnapshot(&e.Snapshot, e.Fields) {
			fmt.Fprintf(w, "  WARNING: %s: %s\n", a.Type, a.Message)
		}
	}

	fmt.Fprintf(w, "\n%d entries, %d failed\n", total, failed)
	return nil
}

// formatRecorded formats the values a recorded exchange touched
func formatRecorded(s *vesc.Snapshot, fields vesc.Fields) string {
	var out string
	m := s.Motor
	if fields.Has(vesc.FieldFirmware) {
		out += fmt.Sprintf("  Firmware: %d.%d\n", m.Firmware.Major, m.Firmware.Minor)
	}
	if fields.Has(vesc.FieldValues) {
		out += fmt.Sprintf("  RPM: %d, Temp: %.1f°C, Motor: %.2fA, Input: %.2fA @ %.1fV, Fault: %s\n",
			m.RPM, m.TempMotor, m.AvgMotorCurrent, m.AvgInputCurrent, m.InputVoltage, vesc.FormatFault(m.Fault))
	}
	if fields.Has(vesc.FieldThrottle) {
		out += fmt.Sprintf("  Throttle: %.3f\n", m.Throttle)
	}
	if fields.Has(vesc.FieldStateOfCharge) {
		out += fmt.Sprintf("  State of Charge: %d%%\n", s.Battery.StateOfCharge)
	}
	if fields.Has(vesc.FieldCells) {
		for i, v := range s.Battery.ValidCells() {
			out += fmt.Sprintf("  Cell %2d: %.3fV\n", i+1, v)
		}
	}
	return out
}
