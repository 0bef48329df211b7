// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"io"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Test Doubles
// ============================================================

// memStream is an in-memory ByteStream. Bytes passed to feed become
// readable; writes are recorded and, when reply is set, answered.
type memStream struct {
	mu      sync.Mutex
	rx      []byte
	written [][]byte
	reply   func(frame []byte) []byte
	err     error
}

func newMemStream(data ...byte) *memStream {
	return &memStream{rx: append([]byte(nil), data...)}
}

func (m *memStream) feed(data ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, data...)
}

func (m *memStream) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

func (m *memStream) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rx) == 0 {
		return 0, io.ErrNoProgress
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, append([]byte(nil), p...))
	if m.reply != nil {
		m.rx = append(m.rx, m.reply(p)...)
	}
	return len(p), nil
}

func (m *memStream) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *memStream) lastWritten() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.written) == 0 {
		return nil
	}
	return m.written[len(m.written)-1]
}

// fakeClock advances only when Sleep is called
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	onTick func(now time.Time)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	now, tick := c.now, c.onTick
	c.mu.Unlock()
	if tick != nil {
		tick(now)
	}
}

// ============================================================
// Fuzz Helpers
// ============================================================

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// valuesReply builds a GET_VALUES_SETUP_SELECTIVE reply payload
func valuesReply(temp, motorCurrent, inputCurrent float64, rpm int32, voltage, wh, whCharged float64, fault uint8) []byte {
	b := NewPayloadBuffer()
	b.AppendUint8(CommGetValuesSetupSelective)
	b.AppendUint32(DefaultValuesMask)
	b.AppendFloat16(temp, 10)
	b.AppendFloat32(motorCurrent, 100)
	b.AppendFloat32(inputCurrent, 100)
	b.AppendInt32(rpm)
	b.AppendFloat16(voltage, 10)
	b.AppendFloat32(wh, 10000)
	b.AppendFloat32(whCharged, 10000)
	b.AppendUint8(fault)
	return b.Bytes()
}

// cellsReply builds a BMS GET_BMS_CELLS reply payload
func cellsReply(count uint8, volts ...float64) []byte {
	b := NewPayloadBuffer()
	b.AppendUint8(BMSCommGetBMSCells)
	b.AppendUint8(count)
	for i := 0; i < BMSCellSlots; i++ {
		v := 0.0
		if i < len(volts) {
			v = volts[i]
		}
		b.AppendFloat16(v, 1000)
	}
	return b.Bytes()
}

// longFrame builds a frame with the two byte length header
func longFrame(body []byte) []byte {
	crc := CalculateCRC(body)
	frame := []byte{StartLong, byte(len(body) >> 8), byte(len(body))}
	frame = append(frame, body...)
	return append(frame, byte(crc>>8), byte(crc), EndByte)
}
