// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string. Replies the
// decoder understands are shown with their decoded values; anything else is
// shown as a hex dump.
func FormatFrame(f *Frame, d Dialect) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	name := FormatCommand(d, f.Command())

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d crc=0x%04X\n", timestamp, name, f.Command(), f.length, f.crc)

	if len(f.payload) > 0 {
		result += FormatPayload(d, f.payload)
	}

	return result
}

// FormatCommand returns the human-readable name for a command id
func FormatCommand(d Dialect, command uint8) string {
	if d == DialectBatteryManagement {
		switch command {
		case BMSCommGetValues:
			return "BMS_GET_VALUES"
		case BMSCommGetBMSCells:
			return "BMS_GET_CELLS"
		default:
			return "UNKNOWN"
		}
	}

	switch command {
	// Requests and replies
	case CommFWVersion:
		return "FW_VERSION"
	case CommGetValues:
		return "GET_VALUES"
	case CommGetDecodedPPM:
		return "GET_DECODED_PPM"
	case CommGetValuesSetupSelective:
		return "GET_VALUES_SETUP_SELECTIVE"

	// Control
	case CommSetDuty:
		return "SET_DUTY"
	case CommSetCurrent:
		return "SET_CURRENT"
	case CommSetCurrentBrake:
		return "SET_CURRENT_BRAKE"
	case CommSetRPM:
		return "SET_RPM"
	case CommSetChuckData:
		return "SET_CHUCK_DATA"

	// Routing
	case CommForwardCAN:
		return "FORWARD_CAN"

	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the payload based on command id
func FormatPayload(d Dialect, payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	command := payload[0]
	body := payload[1:]

	if d == DialectMotorController {
		switch command {
		case CommForwardCAN:
			if len(body) >= 1 {
				inner := "(empty)"
				if len(body) >= 2 {
					inner = fmt.Sprintf("0x%02X", body[1])
				}
				return fmt.Sprintf("  Peer: %d, Inner: %s, %d bytes\n", body[0], inner, len(body)-1)
			}

		case CommSetDuty, CommSetCurrent, CommSetCurrentBrake, CommSetRPM:
			if len(body) >= 4 {
				v := NewReader(body).Int32()
				return fmt.Sprintf("  Value: %s\n", formatSetValue(command, v))
			}

		case CommSetChuckData:
			if len(body) >= 4 {
				return fmt.Sprintf("  X: %d, Y: %d, Lower: %t, Upper: %t\n", body[0], body[1], body[2] != 0, body[3] != 0)
			}
		}
	}

	if Decodes(d, command) {
		var s Snapshot
		fields, err := Decode(d, payload, &s)
		if err != nil {
			return fmt.Sprintf("  Error: %v\n%s", err, formatHex(payload))
		}
		return formatFields(&s, fields)
	}

	return formatHex(payload)
}

// FormatSnapshot formats every value in a snapshot
func FormatSnapshot(s *Snapshot) string {
	return formatFields(s, FieldFirmware|FieldValues|FieldThrottle|FieldStateOfCharge|FieldCells)
}

func formatFields(s *Snapshot, fields Fields) string {
	var b strings.Builder
	m := &s.Motor

	if fields.Has(FieldFirmware) {
		fmt.Fprintf(&b, "  Firmware: %d.%d\n", m.Firmware.Major, m.Firmware.Minor)
	}
	if fields.Has(FieldValues) {
		fmt.Fprintf(&b, "  Motor Temp: %.1f°C\n", m.TempMotor)
		fmt.Fprintf(&b, "  Current: motor=%.2fA input=%.2fA\n", m.AvgMotorCurrent, m.AvgInputCurrent)
		fmt.Fprintf(&b, "  RPM: %d\n", m.RPM)
		fmt.Fprintf(&b, "  Input Voltage: %.1fV\n", m.InputVoltage)
		fmt.Fprintf(&b, "  Energy: used=%.4fWh charged=%.4fWh\n", m.WattHours, m.WattHoursCharged)
		fmt.Fprintf(&b, "  Fault: %s (0x%02X)\n", FormatFault(m.Fault), m.Fault)
	}
	if fields.Has(FieldThrottle) {
		fmt.Fprintf(&b, "  Throttle: %.4f\n", m.Throttle)
	}
	if fields.Has(FieldStateOfCharge) {
		fmt.Fprintf(&b, "  State of Charge: %d%%\n", s.Battery.StateOfCharge)
	}
	if fields.Has(FieldCells) {
		cells := s.Battery.ValidCells()
		fmt.Fprintf(&b, "  Cells: %d\n", s.Battery.CellCount)
		for i, v := range cells {
			fmt.Fprintf(&b, "    Cell %2d: %.3fV\n", i+1, v)
		}
	}

	return b.String()
}

func formatSetValue(command uint8, v int32) string {
	switch command {
	case CommSetDuty:
		return fmt.Sprintf("%.3f duty", float64(v)/100000.0)
	case CommSetCurrent, CommSetCurrentBrake:
		return fmt.Sprintf("%.3fA", float64(v)/1000.0)
	default:
		return fmt.Sprintf("%d erpm", v)
	}
}

var faultNames = []string{
	"NONE",
	"OVER_VOLTAGE",
	"UNDER_VOLTAGE",
	"DRV",
	"ABS_OVER_CURRENT",
	"OVER_TEMP_FET",
	"OVER_TEMP_MOTOR",
}

// FormatFault returns the name of a motor controller fault code
func FormatFault(code uint8) string {
	if int(code) < len(faultNames) {
		return faultNames[code]
	}
	return "UNKNOWN"
}

func formatHex(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&b, "  %04X: % X\n", i, data[i:end])
	}
	return b.String()
}
