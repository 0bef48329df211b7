// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
)

// Framing errors
var (
	// ErrInvalidStartMarker is reported for a first byte that is neither a
	// short nor a long frame marker. Non-fatal: the receiver keeps scanning.
	ErrInvalidStartMarker = errors.New("invalid start marker")
	// ErrUnsupportedFrameType is reported for long frames (start marker 3).
	ErrUnsupportedFrameType = errors.New("long frames are not supported")
	// ErrMalformedFrame is reported when a frame reached its declared length
	// without the end marker, or does not match its declared length.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrBufferOverflow aborts a receive when the frame buffer is full.
	ErrBufferOverflow = errors.New("frame buffer overflow")
	// ErrTimeout is returned when no complete frame arrived before the deadline.
	ErrTimeout = errors.New("receive timeout")
	// ErrChecksumMismatch is returned when the frame CRC does not match.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrStreamClosed is returned when the underlying stream has gone away.
	ErrStreamClosed = errors.New("stream closed")
)

// Payload errors
var (
	ErrPayloadTooLarge    = errors.New("payload too large for short frame")
	ErrPayloadTooShort    = errors.New("payload too short")
	ErrEmptyPayload       = errors.New("empty payload")
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// CommandError describes a payload the decoder could not apply.
type CommandError struct {
	Dialect Dialect
	Command uint8
	Err     error
}

// Error implements the error interface
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command %s (0x%02X): %v", e.Dialect, FormatCommand(e.Dialect, e.Command), e.Command, e.Err)
}

// Unwrap returns the underlying sentinel
func (e *CommandError) Unwrap() error {
	return e.Err
}

// OverrunError is the panic value raised when a Buffer or Reader cursor
// would move past its capacity.
type OverrunError struct {
	Op       string
	Offset   int
	Width    int
	Capacity int
}

// Error implements the error interface
func (e *OverrunError) Error() string {
	return fmt.Sprintf("vesc: %s of %d bytes at offset %d overruns capacity %d", e.Op, e.Width, e.Offset, e.Capacity)
}

// IsRecoverable reports whether a framing error leaves the stream usable,
// so the receiver should keep scanning for the next frame.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInvalidStartMarker) ||
		errors.Is(err, ErrUnsupportedFrameType) ||
		errors.Is(err, ErrMalformedFrame)
}
