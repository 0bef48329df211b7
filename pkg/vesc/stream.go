// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"io"
	"sync"
)

// PortStream adapts a blocking io.ReadWriteCloser (serial port, websocket
// bridge) to a ByteStream. A background goroutine reads into a queue so
// Available never blocks.
type PortStream struct {
	conn io.ReadWriteCloser

	mu     sync.Mutex
	queue  []byte
	err    error
	closed bool
	done   chan struct{}
}

// NewPortStream starts reading from conn
func NewPortStream(conn io.ReadWriteCloser) *PortStream {
	s := &PortStream{
		conn:  conn,
		queue: make([]byte, 0, MaxFrameSize*2),
		done:  make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *PortStream) readLoop() {
	defer close(s.done)
	buf := make([]byte, 128)
	for {
		n, err := s.conn.Read(buf)
		s.mu.Lock()
		if n > 0 {
			s.queue = append(s.queue, buf[:n]...)
		}
		if err != nil {
			s.err = err
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Available returns the number of queued bytes
func (s *PortStream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ReadByte consumes one queued byte. Once the queue is empty and the reader
// has stopped, the error wraps ErrStreamClosed.
func (s *PortStream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		if s.err != nil {
			return 0, fmt.Errorf("%w: %w", ErrStreamClosed, s.err)
		}
		return 0, io.ErrNoProgress
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	return b, nil
}

// Err returns the error that stopped the reader, if any
func (s *PortStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Flush discards queued bytes, typically stale data before a request
func (s *PortStream) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.queue)
	s.queue = s.queue[:0]
	return n
}

// Write sends bytes to the underlying connection
func (s *PortStream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

// Close closes the connection and waits for the reader to stop
func (s *PortStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}
