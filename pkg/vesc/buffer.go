// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"encoding/binary"
	"math"
)

// Buffer is a bounded big-endian payload writer. Appending past its
// capacity panics with an *OverrunError.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer creates a buffer holding at most capacity bytes
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// NewPayloadBuffer creates a buffer sized to the firmware payload limit
func NewPayloadBuffer() *Buffer {
	return NewBuffer(MaxPayloadSize)
}

// grow reserves n bytes and returns the slice to write into
func (b *Buffer) grow(op string, n int) []byte {
	if b.pos+n > len(b.data) {
		panic(&OverrunError{Op: op, Offset: b.pos, Width: n, Capacity: len(b.data)})
	}
	s := b.data[b.pos : b.pos+n]
	b.pos += n
	return s
}

// Bytes returns the written portion of the buffer
func (b *Buffer) Bytes() []byte {
	return b.data[:b.pos]
}

// Len returns the number of bytes written
func (b *Buffer) Len() int {
	return b.pos
}

// Cap returns the buffer capacity
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Reset rewinds the cursor to the start
func (b *Buffer) Reset() {
	b.pos = 0
}

func (b *Buffer) AppendUint8(v uint8) {
	b.grow("append uint8", 1)[0] = v
}

func (b *Buffer) AppendBytes(p []byte) {
	copy(b.grow("append bytes", len(p)), p)
}

func (b *Buffer) AppendInt16(v int16) {
	binary.BigEndian.PutUint16(b.grow("append int16", 2), uint16(v))
}

func (b *Buffer) AppendUint16(v uint16) {
	binary.BigEndian.PutUint16(b.grow("append uint16", 2), v)
}

func (b *Buffer) AppendInt32(v int32) {
	binary.BigEndian.PutUint32(b.grow("append int32", 4), uint32(v))
}

func (b *Buffer) AppendUint32(v uint32) {
	binary.BigEndian.PutUint32(b.grow("append uint32", 4), v)
}

// AppendBool writes a single 0 or 1 byte
func (b *Buffer) AppendBool(v bool) {
	var x uint8
	if v {
		x = 1
	}
	b.grow("append bool", 1)[0] = x
}

// AppendFloat16 stores round(v*scale) as a signed 16-bit integer,
// saturating at the int16 range
func (b *Buffer) AppendFloat16(v, scale float64) {
	b.AppendInt16(int16(scaled(v, scale, math.MinInt16, math.MaxInt16)))
}

// AppendFloat32 stores round(v*scale) as a signed 32-bit integer,
// saturating at the int32 range
func (b *Buffer) AppendFloat32(v, scale float64) {
	b.AppendInt32(int32(scaled(v, scale, math.MinInt32, math.MaxInt32)))
}

// scaled rounds v*scale and clamps it to [lo, hi]. NaN encodes as zero.
func scaled(v, scale, lo, hi float64) float64 {
	x := math.Round(v * scale)
	switch {
	case math.IsNaN(x):
		return 0
	case x < lo:
		return lo
	case x > hi:
		return hi
	}
	return x
}

// Reader is a big-endian cursor over a received payload. Reading past the
// end panics with an *OverrunError, so decoders check lengths first.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a reader starting at offset 0
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(op string, n int) []byte {
	if r.pos+n > len(r.data) {
		panic(&OverrunError{Op: op, Offset: r.pos, Width: n, Capacity: len(r.data)})
	}
	s := r.data[r.pos : r.pos+n]
	r.pos += n
	return s
}

// Offset returns the current cursor position
func (r *Reader) Offset() int {
	return r.pos
}

// Remaining returns the number of unread bytes
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Skip advances the cursor by n bytes
func (r *Reader) Skip(n int) {
	r.take("skip", n)
}

func (r *Reader) Uint8() uint8 {
	return r.take("get uint8", 1)[0]
}

func (r *Reader) Bool() bool {
	return r.take("get bool", 1)[0] != 0
}

func (r *Reader) Int16() int16 {
	return int16(binary.BigEndian.Uint16(r.take("get int16", 2)))
}

func (r *Reader) Uint16() uint16 {
	return binary.BigEndian.Uint16(r.take("get uint16", 2))
}

func (r *Reader) Int32() int32 {
	return int32(binary.BigEndian.Uint32(r.take("get int32", 4)))
}

func (r *Reader) Uint32() uint32 {
	return binary.BigEndian.Uint32(r.take("get uint32", 4))
}

// Float16 reads a signed 16-bit integer and divides it by scale
func (r *Reader) Float16(scale float64) float64 {
	return float64(r.Int16()) / scale
}

// Float32 reads a signed 32-bit integer and divides it by scale
func (r *Reader) Float32(scale float64) float64 {
	return float64(r.Int32()) / scale
}
