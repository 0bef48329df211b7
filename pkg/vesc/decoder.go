// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "fmt"

// commandKey identifies a decoder by dialect and command id
type commandKey struct {
	dialect Dialect
	command uint8
}

// commandHandler decodes the fields of one command into s.
// r is positioned after the command id.
type commandHandler struct {
	minLength int
	fields    Fields
	decode    func(r *Reader, s *Snapshot)
}

var commandTable = map[commandKey]commandHandler{
	{DialectMotorController, CommFWVersion}: {
		minLength: 2,
		fields:    FieldFirmware,
		decode:    decodeFirmwareVersion,
	},
	{DialectMotorController, CommGetValuesSetupSelective}: {
		// mask(4) + temp(2) + currents(4+4) + rpm(4) + voltage(2) + wh(4+4) + fault(1)
		minLength: 29,
		fields:    FieldValues,
		decode:    decodeValuesSetupSelective,
	},
	{DialectMotorController, CommGetDecodedPPM}: {
		minLength: 4,
		fields:    FieldThrottle,
		decode:    decodeDecodedPPM,
	},
	{DialectBatteryManagement, BMSCommGetValues}: {
		// pack voltage(4) + pack current(4) + soc(1)
		minLength: 9,
		fields:    FieldStateOfCharge,
		decode:    decodeBMSValues,
	},
	{DialectBatteryManagement, BMSCommGetBMSCells}: {
		minLength: 1 + BMSCellSlots*2,
		fields:    FieldCells,
		decode:    decodeBMSCells,
	},
}

// Decodes reports whether Decode understands the command in this dialect
func Decodes(d Dialect, command uint8) bool {
	_, ok := commandTable[commandKey{d, command}]
	return ok
}

// Decode interprets a validated payload in the given dialect and applies
// it to s. On success it returns the field groups it overwrote. On any
// error s is left exactly as it was.
func Decode(d Dialect, payload []byte, s *Snapshot) (Fields, error) {
	if len(payload) == 0 {
		return FieldNone, ErrEmptyPayload
	}

	command := payload[0]
	h, ok := commandTable[commandKey{d, command}]
	if !ok {
		return FieldNone, &CommandError{Dialect: d, Command: command, Err: ErrUnsupportedCommand}
	}

	body := payload[1:]
	if len(body) < h.minLength {
		return FieldNone, &CommandError{
			Dialect: d,
			Command: command,
			Err:     fmt.Errorf("%w: %d bytes (need %d)", ErrPayloadTooShort, len(body), h.minLength),
		}
	}

	// Decode into a copy so a failure cannot leave s half written
	next := *s
	h.decode(NewReader(body), &next)
	*s = next

	return h.fields, nil
}

func decodeFirmwareVersion(r *Reader, s *Snapshot) {
	s.Motor.Firmware.Major = r.Uint8()
	s.Motor.Firmware.Minor = r.Uint8()
}

func decodeValuesSetupSelective(r *Reader, s *Snapshot) {
	r.Skip(4) // selection mask
	m := &s.Motor
	m.TempMotor = r.Float16(10.0)
	m.AvgMotorCurrent = r.Float32(100.0)
	m.AvgInputCurrent = r.Float32(100.0)
	m.RPM = r.Int32()
	m.InputVoltage = r.Float16(10.0)
	m.WattHours = r.Float32(10000.0)
	m.WattHoursCharged = r.Float32(10000.0)
	m.Fault = r.Uint8()
}

func decodeDecodedPPM(r *Reader, s *Snapshot) {
	s.Motor.Throttle = float64(r.Int32()) / 10000.0
}

func decodeBMSValues(r *Reader, s *Snapshot) {
	r.Skip(8) // pack voltage and current
	s.Battery.StateOfCharge = r.Uint8()
}

func decodeBMSCells(r *Reader, s *Snapshot) {
	s.Battery.CellCount = r.Uint8()
	for i := 0; i < BMSCellSlots; i++ {
		s.Battery.CellVoltages[i] = r.Float16(1000.0)
	}
}
