// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package vesc provides a Go implementation of the UART protocol spoken by
// VESC motor controllers and DieBieMS battery-management units.
//
// The package covers frame packing/unpacking with CRC16 validation, a
// timeout-bounded frame receiver for byte streams, big-endian field codecs
// with scaled fixed-point floats, and a command decoder for both firmware
// dialects.
package vesc

import "time"

// Protocol framing bytes
const (
	StartShort = 0x02 // Payload length fits in one byte
	StartLong  = 0x03 // Two byte length, not supported
	EndByte    = 0x03
)

// Size limits
const (
	MaxShortPayload = 255
	MaxPayloadSize  = 256 // Buffer capacity used by the firmware
	FrameOverhead   = 5   // start + length + crc(2) + end
	MaxFrameSize    = MaxPayloadSize + FrameOverhead
)

// DefaultTimeout is the receive deadline used by the reference firmware
// library.
const DefaultTimeout = 100 * time.Millisecond

// Motor controller command ids
const (
	CommFWVersion               = 0
	CommGetValues               = 4
	CommSetDuty                 = 5
	CommSetCurrent              = 6
	CommSetCurrentBrake         = 7
	CommSetRPM                  = 8
	CommGetDecodedPPM           = 31
	CommForwardCAN              = 34
	CommSetChuckData            = 35
	CommGetValuesSetupSelective = 51
)

// Battery management command ids
const (
	BMSCommGetValues   = 4
	BMSCommGetBMSCells = 51
)

// DefaultValuesMask selects temperature, currents, rpm, input voltage,
// watt hours and fault code from GET_VALUES_SETUP_SELECTIVE.
const DefaultValuesMask = 0x000118AE

// BMSCellSlots is the fixed number of cell voltages in GET_BMS_CELLS.
const BMSCellSlots = 12

// Assembler states (internal)
const (
	stateIdle = iota
	stateHeader
	stateBody
	stateLongLength
	stateLongBody
	stateDrain
)

// Dialect selects which command table a payload is interpreted with.
type Dialect int

// Dialect values
const (
	DialectMotorController Dialect = iota
	DialectBatteryManagement
)

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case DialectMotorController:
		return "motor-controller"
	case DialectBatteryManagement:
		return "battery-management"
	default:
		return "unknown"
	}
}
