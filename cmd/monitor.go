// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/vescstat/internal/metrics"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	showAll       bool
	statsInterval time.Duration
	useTUI        bool
	monitorPPM    bool
	monitorBMS    bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll telemetry continuously and track errors",
	Long: `Poll the controller at poll.rate (--rate) and show live telemetry with
exchange statistics.

Each poll cycle requests GET_VALUES_SETUP_SELECTIVE, plus the decoded PPM
throttle with --ppm and the battery state of charge and cell voltages with
--bms (requires --peer). Replies are checked for:
  - Timeouts, CRC errors, unknown commands and short payloads
  - Stray bytes, long frames and malformed frames on the link
  - Anomalous values (motor over 120°C, input voltage outside 6-100V,
    fault codes, cell voltages outside 2.5-4.3V)

The connection is re-established with backoff if it drops.

In the terminal UI, press ':' to send a set command (current, brake, rpm,
duty, stop). With --tui=false, errors are printed as they happen and
statistics every --stats-interval.

With --metrics-addr, telemetry gauges and exchange counters are served for
Prometheus on /metrics.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Log every reply (not just errors)")
	monitorCmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "Statistics interval in text mode")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().BoolVar(&monitorPPM, "ppm", false, "Also poll the decoded PPM throttle")
	monitorCmd.Flags().BoolVar(&monitorBMS, "bms", false, "Also poll the battery-management unit at --peer")
	monitorCmd.Flags().Float64("rate", 10, "Requests per second")
	monitorCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")
}

// linkState tracks the session in use so set commands follow reconnects
type linkState struct {
	mu      sync.Mutex
	current *session
}

func (l *linkState) set(s *session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = s
}

func (l *linkState) send(payload []byte) error {
	l.mu.Lock()
	s := l.current
	l.mu.Unlock()
	if s == nil {
		return errors.New("not connected")
	}
	_, err := s.client.Send(forPeer(payload))
	return err
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorBMS {
		if _, err := requirePeer(); err != nil {
			return err
		}
	}
	target, err := cfg.ConnectionTarget()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stats := vesc.NewStatistics()
	var telemetry *metrics.Telemetry
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		telemetry = metrics.NewTelemetry(reg)
		metrics.RegisterStatistics(reg, stats)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	link := &linkState{}
	open := func() (*session, error) {
		s, err := openSessionWithStats(stats)
		if err == nil {
			link.set(s)
		}
		return s, err
	}
	requests := buildPollCycle(cfg.Protocol.PeerID, monitorPPM, monitorBMS)

	if useTUI {
		return runTUIMode(ctx, cancel, target, stats, link, open, requests, telemetry)
	}
	return runTextMode(ctx, target, stats, open, requests, telemetry)
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(ctx context.Context, cancel context.CancelFunc, target string, stats *vesc.Statistics,
	link *linkState, open func() (*session, error), requests []pollRequest, telemetry *metrics.Telemetry) error {
	m := initialModel(target, cfg.Poll.Rate, showAll, stats, link.send)
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		pollWithReconnect(ctx, open, requests, cfg.Poll.Rate, telemetry,
			func(res pollResult) { p.Send(pollMsg(res)) },
			func(ev connectionEvent) { p.Send(connMsg(ev)) })
	}()

	_, err := p.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// printPollError prints a failed exchange in highlighted format
func printPollError(res pollResult) {
	timestamp := res.time.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mEXCHANGE ERROR:\033[0m %s: %v\n", timestamp, res.request, res.err)
	var cmdErr *vesc.CommandError
	if errors.As(res.err, &cmdErr) {
		fmt.Printf("  Dialect: %s, Command: 0x%02X\n", cmdErr.Dialect, cmdErr.Command)
	}
	fmt.Println()
}

// printAnomalies prints out-of-range values from a decoded reply
func printAnomalies(res pollResult) {
	timestamp := res.time.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s (%s)\n", timestamp, res.request, res.fields)
	for i, a := range res.anomalies {
		fmt.Printf("  Issue %d: \033[1;33m%s\033[0m %s\n", i+1, a.Type, a.Message)
	}
	fmt.Println()
}

// runTextMode runs the monitor in text mode
func runTextMode(ctx context.Context, target string, stats *vesc.Statistics,
	open func() (*session, error), requests []pollRequest, telemetry *metrics.Telemetry) error {
	fmt.Printf("vescstat - Monitor\n")
	fmt.Printf("Connection: %s\n", target)
	fmt.Printf("Poll rate: %.1f req/s, %d request(s) per cycle\n", cfg.Poll.Rate, len(requests))
	fmt.Printf("Statistics interval: %v\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All replies\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	results := make(chan pollResult, 16)
	go func() {
		defer close(results)
		pollWithReconnect(ctx, open, requests, cfg.Poll.Rate, telemetry,
			func(res pollResult) { results <- res },
			func(ev connectionEvent) {
				if ev.connected {
					fmt.Printf("[LINK] Connected: %s\n\n", ev.info)
				} else {
					fmt.Printf("[LINK] \033[1;31mDisconnected:\033[0m %v\n\n", ev.err)
				}
			})
	}()

	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case res, ok := <-results:
			if !ok {
				fmt.Println()
				fmt.Print(stats.String())
				return nil
			}
			switch {
			case res.err != nil:
				printPollError(res)
			case len(res.anomalies) > 0:
				printAnomalies(res)
			case showAll:
				fmt.Printf("[%s] %s (%s)\n", res.time.Format("15:04:05.000"), res.request, res.fields)
				fmt.Print(vesc.FormatSnapshot(&res.snapshot))
				fmt.Println()
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
