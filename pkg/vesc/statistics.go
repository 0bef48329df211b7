// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters holds the values tracked by Statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Exchange outcomes
	Exchanges           uint64
	Successful          uint64
	Timeouts            uint64
	ChecksumErrors      uint64
	UnsupportedCommands uint64
	ShortPayloads       uint64
	OtherErrors         uint64

	// Framing errors seen while scanning
	InvalidStartBytes uint64
	UnsupportedFrames uint64
	MalformedFrames   uint64
	Overflows         uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // failed exchanges/sec
}

// Statistics tracks exchange outcomes and framing errors. It is safe for
// concurrent use.
type Statistics struct {
	mu sync.Mutex
	Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		Counters: Counters{
			StartTime:      now,
			LastUpdateTime: now,
		},
	}
}

// RecordExchange counts the outcome of one request/response exchange
func (s *Statistics) RecordExchange(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Exchanges++
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
		s.Successful++
	case errors.Is(err, ErrTimeout):
		s.Timeouts++
	case errors.Is(err, ErrChecksumMismatch):
		s.ChecksumErrors++
	case errors.Is(err, ErrUnsupportedCommand):
		s.UnsupportedCommands++
	case errors.Is(err, ErrPayloadTooShort):
		s.ShortPayloads++
	default:
		s.OtherErrors++
	}
}

// RecordFraming counts an error reported by the frame assembler
func (s *Statistics) RecordFraming(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, ErrInvalidStartMarker):
		s.InvalidStartBytes++
	case errors.Is(err, ErrUnsupportedFrameType):
		s.UnsupportedFrames++
	case errors.Is(err, ErrMalformedFrame):
		s.MalformedFrames++
	case errors.Is(err, ErrBufferOverflow):
		s.Overflows++
	}
}

// Failed returns the number of exchanges that did not produce an update
func (s *Statistics) Failed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Exchanges - s.Successful
}

// Snapshot returns a copy of the counters with rates calculated
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculateRates()
	return s.Counters
}

// calculateRates calculates exchange and error rates. Caller holds mu.
func (s *Statistics) calculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.Exchanges) / elapsed
		s.ErrorRate = float64(s.Exchanges-s.Successful) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var successPercent float64
	if c.Exchanges > 0 {
		successPercent = float64(c.Successful) * 100.0 / float64(c.Exchanges)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Exchanges:       %8d\n", c.Exchanges)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", c.Successful, successPercent)

	if c.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", c.Timeouts)
	}
	if c.ChecksumErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", c.ChecksumErrors)
	}
	if c.UnsupportedCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d\n", c.UnsupportedCommands)
	}
	if c.ShortPayloads > 0 {
		result += fmt.Sprintf("Short Payloads:  %8d\n", c.ShortPayloads)
	}
	if c.OtherErrors > 0 {
		result += fmt.Sprintf("Other Errors:    %8d\n", c.OtherErrors)
	}
	if c.InvalidStartBytes > 0 || c.UnsupportedFrames > 0 || c.MalformedFrames > 0 || c.Overflows > 0 {
		result += "Framing:\n"
		result += fmt.Sprintf("  Invalid Start:    %5d\n", c.InvalidStartBytes)
		result += fmt.Sprintf("  Long Frames:      %5d\n", c.UnsupportedFrames)
		result += fmt.Sprintf("  Malformed:        %5d\n", c.MalformedFrames)
		result += fmt.Sprintf("  Overflows:        %5d\n", c.Overflows)
	}

	result += fmt.Sprintf("Exchange Rate:   %8.1f /sec\n", c.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f /sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.Counters = Counters{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
