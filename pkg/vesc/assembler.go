// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "fmt"

// Assembler implements the frame assembly state machine. It is fed one byte
// at a time and yields complete raw frames, ready for Unpack.
type Assembler struct {
	state    int
	buffer   []byte
	index    int
	expected int
	skip     int // long frame bytes left to discard
	lenBytes int // long frame length bytes read
}

// NewAssembler creates an assembler with a MaxFrameSize buffer
func NewAssembler() *Assembler {
	return newAssembler(MaxFrameSize)
}

func newAssembler(capacity int) *Assembler {
	return &Assembler{
		state:  stateIdle,
		buffer: make([]byte, capacity),
	}
}

// Reset drops any partial frame and returns to scanning for a start marker
func (a *Assembler) Reset() {
	a.state = stateIdle
	a.index = 0
	a.expected = 0
	a.skip = 0
	a.lenBytes = 0
}

// RawBytes returns the bytes of the frame currently being assembled
func (a *Assembler) RawBytes() []byte {
	return a.buffer[:a.index]
}

// Draining reports whether the assembler is skipping an unsupported frame
func (a *Assembler) Draining() bool {
	switch a.state {
	case stateLongLength, stateLongBody, stateDrain:
		return true
	}
	return false
}

// Feed processes a single byte through the assembler state machine.
// Returns a copy of the raw frame once it is complete, or nil.
// Returned errors other than ErrBufferOverflow are recoverable: the
// assembler is already scanning for the next frame.
//
// Long frames are discarded by their declared length, so start markers
// inside their body are ignored. If the discarded frame does not end with
// an end marker, bytes are dropped until the next short start marker.
func (a *Assembler) Feed(b byte) ([]byte, error) {
	switch a.state {
	case stateIdle, stateDrain:
		if b == StartShort {
			a.Reset()
			a.buffer[a.index] = b
			a.index++
			a.state = stateHeader
			return nil, nil
		}
		if a.state == stateDrain {
			return nil, nil
		}
		if b == StartLong {
			a.Reset()
			a.state = stateLongLength
			return nil, ErrUnsupportedFrameType
		}
		return nil, fmt.Errorf("%w: 0x%02X", ErrInvalidStartMarker, b)

	case stateLongLength:
		a.skip = a.skip<<8 | int(b)
		a.lenBytes++
		if a.lenBytes < 2 {
			return nil, nil
		}
		// body + crc(2) + end
		a.skip += 3
		a.state = stateLongBody
		return nil, nil

	case stateLongBody:
		a.skip--
		if a.skip > 0 {
			return nil, nil
		}
		if b != EndByte {
			a.Reset()
			a.state = stateDrain
			return nil, fmt.Errorf("%w: long frame ended with 0x%02X", ErrMalformedFrame, b)
		}
		a.Reset()
		return nil, nil

	case stateHeader:
		if a.index >= len(a.buffer) {
			a.Reset()
			return nil, fmt.Errorf("%w at length byte", ErrBufferOverflow)
		}
		a.buffer[a.index] = b
		a.index++
		a.expected = int(b) + FrameOverhead
		a.state = stateBody
		return nil, nil

	case stateBody:
		if a.index >= len(a.buffer) {
			a.Reset()
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrBufferOverflow, len(a.buffer))
		}
		a.buffer[a.index] = b
		a.index++
		if a.index < a.expected {
			return nil, nil
		}

		if b != EndByte {
			a.Reset()
			return nil, fmt.Errorf("%w: expected end marker 0x%02X, got 0x%02X", ErrMalformedFrame, EndByte, b)
		}
		frame := make([]byte, a.index)
		copy(frame, a.buffer[:a.index])
		a.Reset()
		return frame, nil

	default:
		a.Reset()
		return nil, fmt.Errorf("invalid state: %d", a.state)
	}
}
