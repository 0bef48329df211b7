// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"time"
)

// Frame represents a validated short frame
type Frame struct {
	length    uint8
	payload   []byte
	crc       uint16
	timestamp time.Time
}

// Length returns the declared payload length
func (f *Frame) Length() uint8 {
	return f.length
}

// Payload returns the payload bytes (command id first)
func (f *Frame) Payload() []byte {
	return f.payload
}

// Command returns the command id, or 0 for an empty payload
func (f *Frame) Command() uint8 {
	if len(f.payload) == 0 {
		return 0
	}
	return f.payload[0]
}

// CRC returns the frame CRC value
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns the time the frame was parsed
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Pack wraps a payload in a short frame:
// 0x02, length, payload..., crc (big-endian), 0x03.
func Pack(payload []byte) ([]byte, error) {
	if len(payload) > MaxShortPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxShortPayload)
	}

	crc := CalculateCRC(payload)

	frame := make([]byte, 0, len(payload)+FrameOverhead)
	frame = append(frame, StartShort, uint8(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, byte(crc>>8), byte(crc&0xFF))
	frame = append(frame, EndByte)

	return frame, nil
}

// MustPack is like Pack but panics on error. Only use it with payloads
// built by this package.
func MustPack(payload []byte) []byte {
	frame, err := Pack(payload)
	if err != nil {
		panic(fmt.Sprintf("vesc: pack error: %v", err))
	}
	return frame
}

// Unpack validates a raw short frame and returns a copy of its payload.
// The payload is never returned when the checksum does not match.
func Unpack(raw []byte) ([]byte, error) {
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, err
	}
	return f.payload, nil
}

// ParseFrame validates a raw short frame and returns it as a Frame
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < FrameOverhead {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the frame overhead", ErrMalformedFrame, len(raw))
	}

	switch raw[0] {
	case StartShort:
	case StartLong:
		return nil, ErrUnsupportedFrameType
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidStartMarker, raw[0])
	}

	length := int(raw[1])
	if length+FrameOverhead != len(raw) {
		return nil, fmt.Errorf("%w: declared length %d, frame has %d payload bytes", ErrMalformedFrame, length, len(raw)-FrameOverhead)
	}
	if raw[len(raw)-1] != EndByte {
		return nil, fmt.Errorf("%w: end marker 0x%02X", ErrMalformedFrame, raw[len(raw)-1])
	}

	received := uint16(raw[len(raw)-3])<<8 | uint16(raw[len(raw)-2])
	calculated := CalculateCRC(raw[2 : len(raw)-3])
	if received != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksumMismatch, calculated, received)
	}

	payload := make([]byte, length)
	copy(payload, raw[2:2+length])

	return &Frame{
		length:    uint8(length),
		payload:   payload,
		crc:       received,
		timestamp: time.Now(),
	}, nil
}
