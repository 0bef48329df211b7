// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

import (
	"errors"
	"math"
	"testing"
)

// ============================================================
// Motor Controller Decoder Tests
// ============================================================

func TestDecode_FirmwareVersion(t *testing.T) {
	var s Snapshot
	fields, err := Decode(DialectMotorController, []byte{CommFWVersion, 6, 5}, &s)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if fields != FieldFirmware {
		t.Errorf("fields = %v, expected firmware", fields)
	}
	if s.Motor.Firmware.Major != 6 || s.Motor.Firmware.Minor != 5 {
		t.Errorf("firmware = %d.%d, expected 6.5", s.Motor.Firmware.Major, s.Motor.Firmware.Minor)
	}
}

func TestDecode_ValuesAllZero(t *testing.T) {
	payload := make([]byte, 30)
	payload[0] = CommGetValuesSetupSelective
	payload[1], payload[2], payload[3], payload[4] = 0x00, 0x01, 0x18, 0xAE

	s := Snapshot{Motor: MotorTelemetry{
		TempMotor:        55,
		AvgMotorCurrent:  12,
		AvgInputCurrent:  3,
		RPM:              1500,
		InputVoltage:     48,
		WattHours:        1,
		WattHoursCharged: 2,
		Fault:            4,
	}}

	fields, err := Decode(DialectMotorController, payload, &s)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if fields != FieldValues {
		t.Errorf("fields = %v, expected values", fields)
	}

	m := s.Motor
	if m.TempMotor != 0 || m.AvgMotorCurrent != 0 || m.AvgInputCurrent != 0 || m.RPM != 0 ||
		m.InputVoltage != 0 || m.WattHours != 0 || m.WattHoursCharged != 0 || m.Fault != 0 {
		t.Errorf("all-zero reply decoded to %+v", m)
	}
}

func TestDecode_ValuesScaling(t *testing.T) {
	var s Snapshot
	payload := valuesReply(42.5, -12.34, 5.67, -15000, 50.4, 1.2345, 0.0678, 2)

	if _, err := Decode(DialectMotorController, payload, &s); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	tests := []struct {
		name     string
		got      float64
		expected float64
		scale    float64
	}{
		{"TempMotor", s.Motor.TempMotor, 42.5, 10},
		{"AvgMotorCurrent", s.Motor.AvgMotorCurrent, -12.34, 100},
		{"AvgInputCurrent", s.Motor.AvgInputCurrent, 5.67, 100},
		{"InputVoltage", s.Motor.InputVoltage, 50.4, 10},
		{"WattHours", s.Motor.WattHours, 1.2345, 10000},
		{"WattHoursCharged", s.Motor.WattHoursCharged, 0.0678, 10000},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.expected) > 0.5/tt.scale+1e-9 {
			t.Errorf("%s = %v, expected %v", tt.name, tt.got, tt.expected)
		}
	}
	if s.Motor.RPM != -15000 {
		t.Errorf("RPM = %d, expected -15000", s.Motor.RPM)
	}
	if s.Motor.Fault != 2 {
		t.Errorf("Fault = %d, expected 2", s.Motor.Fault)
	}
}

func TestDecode_DecodedPPM(t *testing.T) {
	tests := []struct {
		raw      int32
		expected float64
	}{
		{0, 0},
		{10000, 1.0},
		{-10000, -1.0},
		{5000, 0.5},
	}

	for _, tt := range tests {
		b := NewBuffer(5)
		b.AppendUint8(CommGetDecodedPPM)
		b.AppendInt32(tt.raw)

		var s Snapshot
		fields, err := Decode(DialectMotorController, b.Bytes(), &s)
		if err != nil {
			t.Fatalf("Decode(%d) error: %v", tt.raw, err)
		}
		if fields != FieldThrottle {
			t.Errorf("fields = %v", fields)
		}
		if s.Motor.Throttle != tt.expected {
			t.Errorf("Throttle = %v, expected %v", s.Motor.Throttle, tt.expected)
		}
	}
}

// ============================================================
// Battery Management Decoder Tests
// ============================================================

func TestDecode_BMSValues(t *testing.T) {
	payload := []byte{BMSCommGetValues, 0, 0, 0xBB, 0x80, 0, 0, 0x03, 0xE8, 87}

	var s Snapshot
	fields, err := Decode(DialectBatteryManagement, payload, &s)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if fields != FieldStateOfCharge {
		t.Errorf("fields = %v", fields)
	}
	if s.Battery.StateOfCharge != 87 {
		t.Errorf("StateOfCharge = %d, expected 87", s.Battery.StateOfCharge)
	}
}

func TestDecode_BMSCells(t *testing.T) {
	volts := []float64{3.701, 3.699, 3.712, 3.688}
	var s Snapshot

	fields, err := Decode(DialectBatteryManagement, cellsReply(4, volts...), &s)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if fields != FieldCells {
		t.Errorf("fields = %v", fields)
	}
	if s.Battery.CellCount != 4 {
		t.Errorf("CellCount = %d", s.Battery.CellCount)
	}
	cells := s.Battery.ValidCells()
	if len(cells) != 4 {
		t.Fatalf("ValidCells() = %v", cells)
	}
	for i, v := range volts {
		if math.Abs(cells[i]-v) > 0.0005+1e-9 {
			t.Errorf("cell %d = %v, expected %v", i, cells[i], v)
		}
	}
	for i := 4; i < BMSCellSlots; i++ {
		if s.Battery.CellVoltages[i] != 0 {
			t.Errorf("unused slot %d = %v", i, s.Battery.CellVoltages[i])
		}
	}
}

func TestDecode_DialectSelectsTable(t *testing.T) {
	// Command 51 is GET_VALUES_SETUP_SELECTIVE for the motor controller
	// and GET_BMS_CELLS for the battery unit
	payload := valuesReply(40, 1, 1, 100, 48, 1, 1, 0)

	var bms Snapshot
	fields, err := Decode(DialectBatteryManagement, payload, &bms)
	if err != nil || fields != FieldCells {
		t.Fatalf("BMS decode: fields=%v err=%v", fields, err)
	}

	var mc Snapshot
	fields, err = Decode(DialectMotorController, payload, &mc)
	if err != nil || fields != FieldValues {
		t.Fatalf("MC decode: fields=%v err=%v", fields, err)
	}
	if mc.Battery.CellCount != 0 {
		t.Error("motor controller decode touched battery fields")
	}
	if bms.Motor.RPM != 0 {
		t.Error("battery decode touched motor fields")
	}
}

// ============================================================
// Decoder Error Tests
// ============================================================

func TestDecode_UnknownCommandLeavesSnapshot(t *testing.T) {
	s := Snapshot{
		Motor: MotorTelemetry{
			Firmware:  FirmwareVersion{Major: 6, Minor: 2},
			TempMotor: 31.4,
			RPM:       -99,
			Throttle:  0.25,
		},
		Battery: BatteryTelemetry{StateOfCharge: 50, CellCount: 2},
	}
	s.Battery.CellVoltages[0] = 3.3
	before := s

	tests := []struct {
		dialect Dialect
		payload []byte
	}{
		{DialectMotorController, []byte{0xEE, 1, 2, 3}},
		{DialectMotorController, []byte{CommSetCurrent, 0, 0, 0, 0}},
		{DialectBatteryManagement, []byte{CommFWVersion, 6, 5}},
		{DialectBatteryManagement, []byte{CommGetDecodedPPM, 0, 0, 0, 1}},
	}

	for _, tt := range tests {
		fields, err := Decode(tt.dialect, tt.payload, &s)
		if !errors.Is(err, ErrUnsupportedCommand) {
			t.Errorf("%v 0x%02X: error = %v, expected ErrUnsupportedCommand", tt.dialect, tt.payload[0], err)
		}
		var ce *CommandError
		if !errors.As(err, &ce) || ce.Command != tt.payload[0] || ce.Dialect != tt.dialect {
			t.Errorf("%v 0x%02X: error should be a *CommandError for that command", tt.dialect, tt.payload[0])
		}
		if fields != FieldNone {
			t.Errorf("fields = %v on error", fields)
		}
		if s != before {
			t.Fatalf("snapshot changed: %+v", s)
		}
	}
}

func TestDecode_ShortPayloadLeavesSnapshot(t *testing.T) {
	full := valuesReply(40, 1, 1, 100, 48, 1, 1, 0)

	for n := 1; n < len(full); n++ {
		s := Snapshot{Motor: MotorTelemetry{TempMotor: 99, RPM: 7}}
		before := s

		_, err := Decode(DialectMotorController, full[:n], &s)
		if !errors.Is(err, ErrPayloadTooShort) {
			t.Fatalf("%d bytes: error = %v, expected ErrPayloadTooShort", n, err)
		}
		if s != before {
			t.Fatalf("%d bytes: snapshot changed", n)
		}
	}
}

func TestDecode_EmptyPayload(t *testing.T) {
	var s Snapshot
	_, err := Decode(DialectMotorController, nil, &s)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("error = %v, expected ErrEmptyPayload", err)
	}
}

func TestDecode_SparseAccumulation(t *testing.T) {
	var s Snapshot

	if _, err := Decode(DialectMotorController, []byte{CommFWVersion, 6, 5}, &s); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(DialectMotorController, valuesReply(30, 1, 2, 3000, 42, 0, 0, 0), &s); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(DialectBatteryManagement, []byte{BMSCommGetValues, 0, 0, 0, 0, 0, 0, 0, 0, 64}, &s); err != nil {
		t.Fatal(err)
	}

	if s.Motor.Firmware.Major != 6 {
		t.Error("values decode overwrote firmware version")
	}
	if s.Motor.RPM != 3000 {
		t.Error("battery decode overwrote motor values")
	}
	if s.Battery.StateOfCharge != 64 {
		t.Errorf("StateOfCharge = %d", s.Battery.StateOfCharge)
	}
}

func TestDecodes(t *testing.T) {
	if !Decodes(DialectMotorController, CommFWVersion) {
		t.Error("FW_VERSION should decode")
	}
	if Decodes(DialectMotorController, CommSetDuty) {
		t.Error("SET_DUTY has no reply to decode")
	}
	if !Decodes(DialectBatteryManagement, BMSCommGetBMSCells) {
		t.Error("GET_BMS_CELLS should decode")
	}
}

func TestFields_String(t *testing.T) {
	tests := []struct {
		f        Fields
		expected string
	}{
		{FieldNone, "none"},
		{FieldFirmware, "firmware"},
		{FieldValues | FieldCells, "values|cells"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.expected {
			t.Errorf("Fields(%d).String() = %q, expected %q", tt.f, got, tt.expected)
		}
	}
	if FieldValues.Has(FieldNone) {
		t.Error("Has(FieldNone) should be false")
	}
}

func TestValidCells_ClampsCount(t *testing.T) {
	b := BatteryTelemetry{CellCount: 200}
	if len(b.ValidCells()) != BMSCellSlots {
		t.Errorf("ValidCells() length = %d, expected %d", len(b.ValidCells()), BMSCellSlots)
	}
}
