// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/vescstat/internal/config"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// ============================================================
// Test Doubles
// ============================================================

// replyStream is an in-memory ByteStream that answers every written frame
// with the bytes returned by reply
type replyStream struct {
	mu      sync.Mutex
	rx      []byte
	written [][]byte
	reply   func(payload []byte) []byte
}

func (r *replyStream) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rx)
}

func (r *replyStream) ReadByte() (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rx) == 0 {
		return 0, io.ErrNoProgress
	}
	b := r.rx[0]
	r.rx = r.rx[1:]
	return b, nil
}

func (r *replyStream) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written = append(r.written, append([]byte(nil), p...))
	if r.reply != nil {
		if payload, err := vesc.Unpack(p); err == nil {
			r.rx = append(r.rx, r.reply(payload)...)
		}
	}
	return len(p), nil
}

func (r *replyStream) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.written)
}

// firmwareReply answers any request with firmware 6.5
func firmwareReply(payload []byte) []byte {
	return vesc.MustPack([]byte{vesc.CommFWVersion, 6, 5})
}

func newTestClient(reply func([]byte) []byte) (*vesc.Client, *replyStream, *vesc.Statistics) {
	stream := &replyStream{reply: reply}
	stats := vesc.NewStatistics()
	client := vesc.NewClient(stream, vesc.ClientConfig{
		Timeout:    20 * time.Millisecond,
		Statistics: stats,
	})
	return client, stream, stats
}

// withConfig installs a default configuration for the duration of a test
func withConfig(t *testing.T, peer int) {
	t.Helper()
	saved := cfg
	cfg = &config.Config{
		Protocol: config.ProtocolConfig{Timeout: 20 * time.Millisecond, PeerID: peer},
		Poll:     config.PollConfig{Rate: 100},
	}
	t.Cleanup(func() { cfg = saved })
}

// longFrame builds a frame with the two byte length header
func longFrame(body []byte) []byte {
	crc := vesc.CalculateCRC(body)
	frame := []byte{vesc.StartLong, byte(len(body) >> 8), byte(len(body))}
	frame = append(frame, body...)
	return append(frame, byte(crc>>8), byte(crc), vesc.EndByte)
}
