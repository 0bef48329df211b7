// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import "fmt"

// AnomalyType represents different types of telemetry anomalies
type AnomalyType int

const (
	AnomalyHighTemp AnomalyType = iota
	AnomalyVoltageRange
	AnomalyCellCount
	AnomalyCellVoltage
	AnomalySOCRange
	AnomalyFault
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyHighTemp:
		return "HIGH_TEMP"
	case AnomalyVoltageRange:
		return "VOLTAGE_RANGE"
	case AnomalyCellCount:
		return "CELL_COUNT"
	case AnomalyCellVoltage:
		return "CELL_VOLTAGE"
	case AnomalySOCRange:
		return "SOC_RANGE"
	case AnomalyFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// Validation limits
const (
	MaxMotorTemp     = 120.0 // °C
	MinInputVoltage  = 6.0   // V
	MaxInputVoltage  = 100.0 // V
	MinCellVoltage   = 2.5   // V
	MaxCellVoltage   = 4.3   // V
	MaxStateOfCharge = 100   // %
)

// ValidationError represents a telemetry validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateSnapshot checks the field groups named by fields for values
// outside their plausible range. Returns a slice of validation errors
// (empty if everything checked is plausible).
func ValidateSnapshot(s *Snapshot, fields Fields) []ValidationError {
	errors := []ValidationError{}

	if fields.Has(FieldValues) {
		errors = append(errors, validateMotorValues(&s.Motor)...)
	}
	if fields.Has(FieldStateOfCharge) {
		errors = append(errors, validateStateOfCharge(&s.Battery)...)
	}
	if fields.Has(FieldCells) {
		errors = append(errors, validateCells(&s.Battery)...)
	}

	return errors
}

func validateMotorValues(m *MotorTelemetry) []ValidationError {
	errors := []ValidationError{}

	if m.TempMotor > MaxMotorTemp {
		errors = append(errors, ValidationError{
			Type:    AnomalyHighTemp,
			Message: fmt.Sprintf("Motor temperature %.1f°C above %.0f°C", m.TempMotor, MaxMotorTemp),
			Details: map[string]interface{}{"temp": m.TempMotor, "max": MaxMotorTemp},
		})
	}

	if m.InputVoltage < MinInputVoltage || m.InputVoltage > MaxInputVoltage {
		errors = append(errors, ValidationError{
			Type: AnomalyVoltageRange,
			Message: fmt.Sprintf("Input voltage %.1fV out of range (valid: %.0f to %.0fV)",
				m.InputVoltage, MinInputVoltage, MaxInputVoltage),
			Details: map[string]interface{}{"voltage": m.InputVoltage, "min": MinInputVoltage, "max": MaxInputVoltage},
		})
	}

	if m.Fault != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyFault,
			Message: fmt.Sprintf("Controller fault %s (0x%02X)", FormatFault(m.Fault), m.Fault),
			Details: map[string]interface{}{"fault": m.Fault},
		})
	}

	return errors
}

func validateStateOfCharge(b *BatteryTelemetry) []ValidationError {
	if b.StateOfCharge <= MaxStateOfCharge {
		return nil
	}
	return []ValidationError{{
		Type:    AnomalySOCRange,
		Message: fmt.Sprintf("State of charge %d%% above 100%%", b.StateOfCharge),
		Details: map[string]interface{}{"soc": b.StateOfCharge, "max": MaxStateOfCharge},
	}}
}

func validateCells(b *BatteryTelemetry) []ValidationError {
	errors := []ValidationError{}

	if b.CellCount == 0 || int(b.CellCount) > BMSCellSlots {
		errors = append(errors, ValidationError{
			Type:    AnomalyCellCount,
			Message: fmt.Sprintf("Invalid cell count %d (valid: 1 to %d)", b.CellCount, BMSCellSlots),
			Details: map[string]interface{}{"cell_count": b.CellCount, "max": BMSCellSlots},
		})
	}

	for i, v := range b.ValidCells() {
		if v < MinCellVoltage || v > MaxCellVoltage {
			errors = append(errors, ValidationError{
				Type: AnomalyCellVoltage,
				Message: fmt.Sprintf("Cell %d: %.3fV out of range (valid: %.1f to %.1fV)",
					i+1, v, MinCellVoltage, MaxCellVoltage),
				Details: map[string]interface{}{"cell": i + 1, "voltage": v, "min": MinCellVoltage, "max": MaxCellVoltage},
			})
		}
	}

	return errors
}
