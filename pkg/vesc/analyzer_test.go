// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		command  uint8
		expected string
	}{
		{DialectMotorController, CommFWVersion, "FW_VERSION"},
		{DialectMotorController, CommGetValuesSetupSelective, "GET_VALUES_SETUP_SELECTIVE"},
		{DialectMotorController, CommGetDecodedPPM, "GET_DECODED_PPM"},
		{DialectMotorController, CommForwardCAN, "FORWARD_CAN"},
		{DialectMotorController, CommSetChuckData, "SET_CHUCK_DATA"},
		{DialectMotorController, 0xEE, "UNKNOWN"},
		{DialectBatteryManagement, BMSCommGetValues, "BMS_GET_VALUES"},
		{DialectBatteryManagement, BMSCommGetBMSCells, "BMS_GET_CELLS"},
		{DialectBatteryManagement, CommFWVersion, "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := FormatCommand(tt.dialect, tt.command); got != tt.expected {
			t.Errorf("FormatCommand(%v, 0x%02X) = %q, expected %q", tt.dialect, tt.command, got, tt.expected)
		}
	}
}

func TestFormatFrame(t *testing.T) {
	f, err := ParseFrame(MustPack([]byte{CommFWVersion, 6, 5}))
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}

	out := FormatFrame(f, DialectMotorController)
	for _, want := range []string{"FW_VERSION (0x00)", "len=3", "Firmware: 6.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatPayload(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		payload []byte
		want    string
	}{
		{"set current", DialectMotorController, NewSetCurrent(12.5), "12.500A"},
		{"set duty", DialectMotorController, NewSetDuty(-0.25), "-0.250 duty"},
		{"set rpm", DialectMotorController, NewSetRPM(3000), "3000 erpm"},
		{"forward", DialectMotorController, NewForwardToPeer(10, NewBMSCellsRequest()), "Peer: 10, Inner: 0x33"},
		{"nunchuck", DialectMotorController, NewSetChuckData(DefaultNunchuck()), "X: 127, Y: 127"},
		{"cells", DialectBatteryManagement, cellsReply(2, 3.7, 3.8), "Cell  2: 3.800V"},
		{"short reply", DialectMotorController, []byte{CommGetDecodedPPM, 1}, "payload too short"},
		{"unknown", DialectMotorController, []byte{0xEE, 0xAB}, "0000: EE AB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatPayload(tt.dialect, tt.payload)
			if !strings.Contains(out, tt.want) {
				t.Errorf("FormatPayload() = %q, expected to contain %q", out, tt.want)
			}
		})
	}
}

func TestFormatSnapshot(t *testing.T) {
	s := Snapshot{Motor: MotorTelemetry{RPM: 1234, Fault: 2}}
	out := FormatSnapshot(&s)
	for _, want := range []string{"RPM: 1234", "UNDER_VOLTAGE", "State of Charge: 0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatSnapshot() missing %q:\n%s", want, out)
		}
	}
}

func TestCommandError_Message(t *testing.T) {
	err := &CommandError{Dialect: DialectBatteryManagement, Command: BMSCommGetBMSCells, Err: ErrPayloadTooShort}
	msg := err.Error()
	if !strings.Contains(msg, "battery-management") || !strings.Contains(msg, "BMS_GET_CELLS") {
		t.Errorf("Error() = %q", msg)
	}
}

// ============================================================
// Validator Tests
// ============================================================

func anomalyTypes(errs []ValidationError) []AnomalyType {
	types := make([]AnomalyType, 0, len(errs))
	for _, e := range errs {
		types = append(types, e.Type)
	}
	return types
}

func TestValidateSnapshot_Valid(t *testing.T) {
	s := Snapshot{
		Motor:   MotorTelemetry{TempMotor: 40, InputVoltage: 48},
		Battery: BatteryTelemetry{StateOfCharge: 80, CellCount: 2},
	}
	s.Battery.CellVoltages[0] = 3.7
	s.Battery.CellVoltages[1] = 3.71

	errs := ValidateSnapshot(&s, FieldValues|FieldStateOfCharge|FieldCells)
	if len(errs) != 0 {
		t.Errorf("expected no anomalies, got %v", errs)
	}
}

func TestValidateSnapshot_Anomalies(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		fields   Fields
		expected []AnomalyType
	}{
		{
			name:     "hot motor",
			snapshot: Snapshot{Motor: MotorTelemetry{TempMotor: 130, InputVoltage: 48}},
			fields:   FieldValues,
			expected: []AnomalyType{AnomalyHighTemp},
		},
		{
			name:     "low voltage and fault",
			snapshot: Snapshot{Motor: MotorTelemetry{TempMotor: 20, InputVoltage: 2, Fault: 2}},
			fields:   FieldValues,
			expected: []AnomalyType{AnomalyVoltageRange, AnomalyFault},
		},
		{
			name:     "state of charge",
			snapshot: Snapshot{Battery: BatteryTelemetry{StateOfCharge: 150}},
			fields:   FieldStateOfCharge,
			expected: []AnomalyType{AnomalySOCRange},
		},
		{
			name:     "no cells",
			snapshot: Snapshot{},
			fields:   FieldCells,
			expected: []AnomalyType{AnomalyCellCount},
		},
		{
			name:     "unchecked groups ignored",
			snapshot: Snapshot{Motor: MotorTelemetry{TempMotor: 500}},
			fields:   FieldFirmware | FieldThrottle,
			expected: []AnomalyType{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := anomalyTypes(ValidateSnapshot(&tt.snapshot, tt.fields))
			if fmt.Sprint(got) != fmt.Sprint(tt.expected) {
				t.Errorf("anomalies = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestValidateSnapshot_CellVoltage(t *testing.T) {
	s := Snapshot{Battery: BatteryTelemetry{CellCount: 3}}
	s.Battery.CellVoltages = [BMSCellSlots]float64{3.7, 4.5, 2.1, 0.1}

	errs := ValidateSnapshot(&s, FieldCells)
	if len(errs) != 2 {
		t.Fatalf("expected 2 anomalies, got %v", errs)
	}
	for _, e := range errs {
		if e.Type != AnomalyCellVoltage {
			t.Errorf("type = %v, expected CELL_VOLTAGE", e.Type)
		}
	}
	if errs[0].Details["cell"] != 2 || errs[1].Details["cell"] != 3 {
		t.Errorf("cells flagged = %v, %v", errs[0].Details["cell"], errs[1].Details["cell"])
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_RecordExchange(t *testing.T) {
	s := NewStatistics()

	s.RecordExchange(nil)
	s.RecordExchange(nil)
	s.RecordExchange(fmt.Errorf("%w after 100ms", ErrTimeout))
	s.RecordExchange(fmt.Errorf("%w: expected 0x0001, got 0x0002", ErrChecksumMismatch))
	s.RecordExchange(&CommandError{Command: 0x99, Err: ErrUnsupportedCommand})
	s.RecordExchange(&CommandError{Command: CommFWVersion, Err: ErrPayloadTooShort})
	s.RecordExchange(errors.New("write frame: broken pipe"))

	c := s.Snapshot()
	if c.Exchanges != 7 || c.Successful != 2 {
		t.Errorf("exchanges=%d successful=%d", c.Exchanges, c.Successful)
	}
	if c.Timeouts != 1 || c.ChecksumErrors != 1 || c.UnsupportedCommands != 1 || c.ShortPayloads != 1 || c.OtherErrors != 1 {
		t.Errorf("classification wrong: %+v", c)
	}
	if s.Failed() != 5 {
		t.Errorf("Failed() = %d, expected 5", s.Failed())
	}
}

func TestStatistics_RecordFraming(t *testing.T) {
	s := NewStatistics()

	s.RecordFraming(fmt.Errorf("%w: 0x55", ErrInvalidStartMarker))
	s.RecordFraming(ErrUnsupportedFrameType)
	s.RecordFraming(ErrMalformedFrame)
	s.RecordFraming(ErrBufferOverflow)

	c := s.Snapshot()
	if c.InvalidStartBytes != 1 || c.UnsupportedFrames != 1 || c.MalformedFrames != 1 || c.Overflows != 1 {
		t.Errorf("framing counters wrong: %+v", c)
	}
	if c.Exchanges != 0 {
		t.Error("framing errors are not exchanges")
	}

	out := s.String()
	if !strings.Contains(out, "Long Frames:") {
		t.Errorf("String() should list framing errors:\n%s", out)
	}
}

func TestStatistics_Reset(t *testing.T) {
	s := NewStatistics()
	s.RecordExchange(nil)
	s.RecordFraming(ErrMalformedFrame)
	s.Reset()

	c := s.Snapshot()
	if c.Exchanges != 0 || c.MalformedFrames != 0 {
		t.Errorf("counters not reset: %+v", c)
	}
	if c.StartTime.IsZero() {
		t.Error("StartTime should be set after Reset")
	}
}
