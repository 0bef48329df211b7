// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "strings"

// FirmwareVersion is decoded from FW_VERSION
type FirmwareVersion struct {
	Major uint8 `json:"major" yaml:"major" cbor:"1,keyasint"`
	Minor uint8 `json:"minor" yaml:"minor" cbor:"2,keyasint"`
}

// MotorTelemetry holds values decoded from motor controller responses
type MotorTelemetry struct {
	Firmware         FirmwareVersion `json:"firmware" yaml:"firmware" cbor:"1,keyasint"`
	TempMotor        float64         `json:"tempMotor" yaml:"temp_motor" cbor:"2,keyasint"`                // °C
	AvgMotorCurrent  float64         `json:"avgMotorCurrent" yaml:"avg_motor_current" cbor:"3,keyasint"`   // A
	AvgInputCurrent  float64         `json:"avgInputCurrent" yaml:"avg_input_current" cbor:"4,keyasint"`   // A
	RPM              int32           `json:"rpm" yaml:"rpm" cbor:"5,keyasint"`                             // electrical RPM
	InputVoltage     float64         `json:"inputVoltage" yaml:"input_voltage" cbor:"6,keyasint"`          // V
	WattHours        float64         `json:"wattHours" yaml:"watt_hours" cbor:"7,keyasint"`                // Wh consumed
	WattHoursCharged float64         `json:"wattHoursCharged" yaml:"watt_hours_charged" cbor:"8,keyasint"` // Wh regenerated
	Fault            uint8           `json:"fault" yaml:"fault" cbor:"9,keyasint"`
	Throttle         float64         `json:"throttle" yaml:"throttle" cbor:"10,keyasint"` // decoded PPM, -1..1
}

// BatteryTelemetry holds values decoded from battery management responses
type BatteryTelemetry struct {
	StateOfCharge uint8                 `json:"stateOfCharge" yaml:"state_of_charge" cbor:"1,keyasint"` // %
	CellCount     uint8                 `json:"cellCount" yaml:"cell_count" cbor:"2,keyasint"`
	CellVoltages  [BMSCellSlots]float64 `json:"cellVoltages" yaml:"cell_voltages" cbor:"3,keyasint"` // V
}

// ValidCells returns the cell voltages the unit reported as populated
func (b *BatteryTelemetry) ValidCells() []float64 {
	n := int(b.CellCount)
	if n > BMSCellSlots {
		n = BMSCellSlots
	}
	return b.CellVoltages[:n]
}

// Snapshot accumulates decoded values across exchanges. A decode only
// overwrites the fields of the command it decoded.
type Snapshot struct {
	Motor   MotorTelemetry   `json:"motor" yaml:"motor" cbor:"1,keyasint"`
	Battery BatteryTelemetry `json:"battery" yaml:"battery" cbor:"2,keyasint"`
}

// Fields is a set of snapshot field groups touched by a decode
type Fields uint8

// Field groups
const (
	FieldFirmware Fields = 1 << iota
	FieldValues
	FieldThrottle
	FieldStateOfCharge
	FieldCells

	FieldNone Fields = 0
)

var fieldNames = []struct {
	f    Fields
	name string
}{
	{FieldFirmware, "firmware"},
	{FieldValues, "values"},
	{FieldThrottle, "throttle"},
	{FieldStateOfCharge, "soc"},
	{FieldCells, "cells"},
}

// Has reports whether all of other is set in f
func (f Fields) Has(other Fields) bool {
	return f&other == other && other != 0
}

// String returns a "|" separated list of field group names
func (f Fields) String() string {
	if f == FieldNone {
		return "none"
	}
	var parts []string
	for _, fn := range fieldNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
