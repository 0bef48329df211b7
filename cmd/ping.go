// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vescstat/pkg/vesc"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time with FW_VERSION exchanges",
	Long: `Send FW_VERSION repeatedly and report the round-trip time of each reply.

Each ping waits for the reply deadline (--timeout). With --peer the request
is forwarded over CAN, which measures the bus hop as well.

This is useful for verifying:
  - The link is up and bidirectional
  - A WebSocket bridge forwards bytes both ways
  - The reply deadline has headroom over the actual latency

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

// pingSummary accumulates round-trip times
type pingSummary struct {
	sent     int
	received int
	min      time.Duration
	max      time.Duration
	total    time.Duration
}

func (p *pingSummary) add(rtt time.Duration) {
	if p.received == 0 || rtt < p.min {
		p.min = rtt
	}
	if rtt > p.max {
		p.max = rtt
	}
	p.total += rtt
	p.received++
}

func (p *pingSummary) String() string {
	loss := 0.0
	if p.sent > 0 {
		loss = float64(p.sent-p.received) / float64(p.sent) * 100
	}
	result := fmt.Sprintf("%d pings sent, %d replies received, %.0f%% loss\n", p.sent, p.received, loss)
	if p.received > 0 {
		avg := p.total / time.Duration(p.received)
		result += fmt.Sprintf("rtt min/avg/max = %v/%v/%v\n",
			p.min.Round(time.Microsecond), avg.Round(time.Microsecond), p.max.Round(time.Microsecond))
	}
	return result
}

func runPing(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("vescstat - Ping\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Timeout: %v per ping\n", cfg.Protocol.Timeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	request := forPeer(vesc.NewFirmwareVersionRequest())
	var summary pingSummary

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		_, snap, err := s.client.ExchangeSnapshot(vesc.DialectMotorController, request)
		rtt := time.Since(start)
		summary.sent++

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fw := snap.Motor.Firmware
			fmt.Printf("reply from firmware %d.%d, rtt=%v\n", fw.Major, fw.Minor, rtt.Round(time.Microsecond))
			summary.add(rtt)
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Print(summary.String())

	if summary.received < summary.sent {
		s.Close()
		os.Exit(1)
	}
	return nil
}
