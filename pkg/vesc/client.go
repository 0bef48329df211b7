// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client runs request/response exchanges over a ByteStream and accumulates
// decoded values in its Snapshot. Exchanges are serialised: one request is
// in flight at a time.
type Client struct {
	stream   ByteStream
	receiver *Receiver
	logger   *zap.Logger
	stats    *Statistics
	timeout  time.Duration

	mu sync.Mutex

	// Snapshot is updated in place by every successful exchange. Reading it
	// directly is only safe when no exchange can run concurrently; use the
	// values returned by ExchangeSnapshot and the getters otherwise.
	Snapshot Snapshot
	// Nunchuck is sent by SendNunchuck
	Nunchuck NunchuckState
}

// ClientConfig holds exchange settings
type ClientConfig struct {
	Timeout    time.Duration
	Logger     *zap.Logger
	Statistics *Statistics
	Clock      Clock
}

// NewClient creates a client for stream
func NewClient(stream ByteStream, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}

	return &Client{
		stream: stream,
		receiver: NewReceiver(stream,
			WithClock(cfg.Clock),
			WithLogger(cfg.Logger),
			WithStatistics(cfg.Statistics),
		),
		logger:   cfg.Logger,
		stats:    cfg.Statistics,
		timeout:  cfg.Timeout,
		Nunchuck: DefaultNunchuck(),
	}
}

// Send packs a payload and writes it, returning the number of bytes sent
func (c *Client) Send(payload []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(payload)
}

func (c *Client) send(payload []byte) (int, error) {
	if len(payload) == 0 {
		return 0, ErrEmptyPayload
	}
	frame, err := Pack(payload)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("sending frame", zap.String("command", FormatCommand(DialectMotorController, payload[0])), zap.String("raw", fmt.Sprintf("% X", frame)))
	n, err := c.stream.Write(frame)
	if err != nil {
		return n, fmt.Errorf("write frame: %w", err)
	}
	return n, nil
}

// Exchange sends request and decodes the reply in the given dialect into
// the client snapshot. It does not retry.
func (c *Client) Exchange(d Dialect, request []byte) (Fields, error) {
	fields, _, err := c.ExchangeSnapshot(d, request)
	return fields, err
}

// ExchangeSnapshot is Exchange that also returns a copy of the snapshot
// taken before another exchange can modify it.
func (c *Client) ExchangeSnapshot(d Dialect, request []byte) (Fields, Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := c.exchange(d, request)
	if c.stats != nil {
		c.stats.RecordExchange(err)
	}
	return fields, c.Snapshot, err
}

func (c *Client) exchange(d Dialect, request []byte) (Fields, error) {
	if f, ok := c.stream.(interface{ Flush() int }); ok {
		if n := f.Flush(); n > 0 {
			c.logger.Debug("discarded stale bytes", zap.Int("count", n))
		}
	}

	if _, err := c.send(request); err != nil {
		return FieldNone, err
	}

	payload, err := c.receiver.Receive(c.timeout)
	if err != nil {
		return FieldNone, err
	}

	fields, err := Decode(d, payload, &c.Snapshot)
	if err != nil {
		return FieldNone, err
	}
	c.logger.Debug("decoded reply", zap.Stringer("dialect", d), zap.Stringer("fields", fields))
	return fields, nil
}

// FirmwareVersion requests the controller firmware version
func (c *Client) FirmwareVersion() (FirmwareVersion, error) {
	_, snap, err := c.ExchangeSnapshot(DialectMotorController, NewFirmwareVersionRequest())
	return snap.Motor.Firmware, err
}

// Values requests the motor controller telemetry selected by DefaultValuesMask
func (c *Client) Values() (MotorTelemetry, error) {
	_, snap, err := c.ExchangeSnapshot(DialectMotorController, NewGetValuesRequest(DefaultValuesMask))
	return snap.Motor, err
}

// LocalPPM requests the decoded PPM input of the connected controller
func (c *Client) LocalPPM() (float64, error) {
	_, snap, err := c.ExchangeSnapshot(DialectMotorController, NewDecodedPPMRequest())
	return snap.Motor.Throttle, err
}

// PeerPPM requests the decoded PPM input of a controller on the CAN bus
func (c *Client) PeerPPM(peerID uint8) (float64, error) {
	_, snap, err := c.ExchangeSnapshot(DialectMotorController, NewForwardToPeer(peerID, NewDecodedPPMRequest()))
	return snap.Motor.Throttle, err
}

// BMSValues requests the state of charge of a battery management unit
// reachable through the controller
func (c *Client) BMSValues(peerID uint8) (BatteryTelemetry, error) {
	_, snap, err := c.ExchangeSnapshot(DialectBatteryManagement, NewForwardToPeer(peerID, NewBMSValuesRequest()))
	return snap.Battery, err
}

// BMSCells requests the cell voltages of a battery management unit
func (c *Client) BMSCells(peerID uint8) (BatteryTelemetry, error) {
	_, snap, err := c.ExchangeSnapshot(DialectBatteryManagement, NewForwardToPeer(peerID, NewBMSCellsRequest()))
	return snap.Battery, err
}

// SetCurrent commands motor current in amps
func (c *Client) SetCurrent(amps float64) error {
	_, err := c.Send(NewSetCurrent(amps))
	return err
}

// SetBrakeCurrent commands brake current in amps
func (c *Client) SetBrakeCurrent(amps float64) error {
	_, err := c.Send(NewSetBrakeCurrent(amps))
	return err
}

// SetRPM commands electrical RPM
func (c *Client) SetRPM(rpm float64) error {
	_, err := c.Send(NewSetRPM(rpm))
	return err
}

// SetDuty commands duty cycle (-1.0..1.0)
func (c *Client) SetDuty(duty float64) error {
	_, err := c.Send(NewSetDuty(duty))
	return err
}

// SendNunchuck sends the current Nunchuck state
func (c *Client) SendNunchuck() error {
	c.mu.Lock()
	state := c.Nunchuck
	c.mu.Unlock()

	c.logger.Debug("sending nunchuck",
		zap.Uint8("x", state.X), zap.Uint8("y", state.Y),
		zap.Bool("lower", state.LowerButton), zap.Bool("upper", state.UpperButton))
	_, err := c.Send(NewSetChuckData(state))
	return err
}
