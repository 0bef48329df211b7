// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/vescstat/internal/config"
	"github.com/Thermoquad/vescstat/pkg/vesc"
)

// PasswordEnv names the environment variable holding the bridge password
const PasswordEnv = "VESCSTAT_PASSWORD"

// Connection provides a common interface for reading/writing bytes from serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err == nil && n == 0 {
		// go.bug.st/serial returns 0, nil once the port is closed
		return 0, io.EOF
	}
	return n, err
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading.
// The bridge forwards raw UART bytes in binary messages.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		// Text frames are bridge status messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection, 8N1
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// promptedPassword is reused on reconnect so the TUI never prompts
var promptedPassword string

// GetPassword retrieves the bridge password from the environment or prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	if promptedPassword != "" {
		return promptedPassword, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		promptedPassword = strings.TrimSpace(password)
		return promptedPassword, nil
	}

	fmt.Fprintln(os.Stderr)
	promptedPassword = string(passwordBytes)
	return promptedPassword, nil
}

// OpenConnection opens either a serial or WebSocket connection from the
// resolved configuration
func OpenConnection(c *config.Config) (Connection, string, error) {
	target, err := c.ConnectionTarget()
	if err != nil {
		return nil, "", err
	}

	if c.WebSocket.URL != "" {
		password := ""
		if c.WebSocket.Username != "" {
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(c.WebSocket.URL, c.WebSocket.Username, password, c.WebSocket.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, target, nil
	}

	conn, err := OpenSerialConnection(c.Serial.Port, c.Serial.Baud)
	if err != nil {
		return nil, "", err
	}
	return conn, target, nil
}

// session is an open connection with a protocol client on top
type session struct {
	stream *vesc.PortStream
	client *vesc.Client
	stats  *vesc.Statistics
	info   string
}

// openSession opens the configured connection and wraps it in a client
func openSession() (*session, error) {
	return openSessionWithStats(vesc.NewStatistics())
}

// openSessionWithStats is openSession with counters that outlive the
// connection, for commands that reconnect
func openSessionWithStats(stats *vesc.Statistics) (*session, error) {
	conn, info, err := OpenConnection(cfg)
	if err != nil {
		return nil, err
	}

	stream := vesc.NewPortStream(conn)
	client := vesc.NewClient(stream, vesc.ClientConfig{
		Timeout:    cfg.Protocol.Timeout,
		Logger:     logger.Named("vesc"),
		Statistics: stats,
	})
	logger.Info("connected", zap.String("target", info))

	return &session{stream: stream, client: client, stats: stats, info: info}, nil
}

// Close closes the underlying connection
func (s *session) Close() error {
	return s.stream.Close()
}

// requirePeer returns the configured CAN peer, or an error naming the flag
func requirePeer() (uint8, error) {
	if !cfg.Protocol.HasPeer() {
		return 0, errors.New("a CAN peer id is required (--peer)")
	}
	return cfg.Protocol.Peer(), nil
}
