// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ByteStream is the transport a Receiver reads from and a Client writes to.
type ByteStream interface {
	// Available returns the number of bytes that can be read without blocking.
	Available() int
	// ReadByte consumes one ready byte.
	ReadByte() (byte, error)
	// Write sends bytes to the device.
	Write(p []byte) (int, error)
}

// Clock is the time source used for receive deadlines.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

// Receiver pulls bytes from a ByteStream until a complete frame arrives
// or the deadline passes.
type Receiver struct {
	stream       ByteStream
	assembler    *Assembler
	clock        Clock
	logger       *zap.Logger
	pollInterval time.Duration
	stats        *Statistics
}

// ReceiverOption configures a Receiver
type ReceiverOption func(*Receiver)

// WithClock replaces the wall clock (used by tests)
func WithClock(c Clock) ReceiverOption {
	return func(r *Receiver) {
		r.clock = c
	}
}

// WithLogger sets the diagnostic sink. Log output never affects decoding.
func WithLogger(l *zap.Logger) ReceiverOption {
	return func(r *Receiver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPollInterval sets how long to wait when no bytes are available.
// Non-positive values are ignored.
func WithPollInterval(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithStatistics counts framing errors into s
func WithStatistics(s *Statistics) ReceiverOption {
	return func(r *Receiver) {
		r.stats = s
	}
}

// NewReceiver creates a receiver reading from stream
func NewReceiver(stream ByteStream, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		stream:       stream,
		assembler:    NewAssembler(),
		clock:        systemClock{},
		logger:       zap.NewNop(),
		pollInterval: time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive waits up to timeout for one complete frame and returns its
// validated payload. Recoverable framing errors are logged and skipped;
// if no frame completes in time the error matches ErrTimeout and also
// wraps the last framing error seen.
func (r *Receiver) Receive(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := r.clock.Now().Add(timeout)
	r.assembler.Reset()

	var lastErr error
	for r.clock.Now().Before(deadline) {
		n := r.stream.Available()
		if n == 0 {
			if s, ok := r.stream.(interface{ Err() error }); ok && s.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrStreamClosed, s.Err())
			}
			r.clock.Sleep(r.pollInterval)
			continue
		}

		for i := 0; i < n; i++ {
			b, err := r.stream.ReadByte()
			if err != nil {
				if errors.Is(err, ErrStreamClosed) {
					return nil, err
				}
				return nil, fmt.Errorf("read byte: %w", err)
			}

			raw, err := r.assembler.Feed(b)
			if err != nil {
				if r.stats != nil {
					r.stats.RecordFraming(err)
				}
				if !IsRecoverable(err) {
					r.logger.Warn("frame aborted", zap.Error(err))
					return nil, err
				}
				lastErr = err
				if errors.Is(err, ErrInvalidStartMarker) {
					r.logger.Debug("skipping byte", zap.Error(err))
				} else {
					r.logger.Warn("frame skipped", zap.Error(err))
				}
				continue
			}
			if raw == nil {
				continue
			}

			r.logger.Debug("frame received", zap.Int("length", len(raw)), zap.String("raw", fmt.Sprintf("% X", raw)))
			payload, err := Unpack(raw)
			if err != nil {
				r.logger.Warn("frame rejected", zap.Error(err))
				return nil, err
			}
			return payload, nil
		}
	}

	r.logger.Debug("receive timed out", zap.Duration("timeout", timeout))
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %v (last framing error: %w)", ErrTimeout, timeout, lastErr)
	}
	return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
}
