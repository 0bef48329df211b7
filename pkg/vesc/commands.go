// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vesc

// Command builder functions return request payloads ready for Pack.
// These are convenience wrappers around Buffer that ensure the field
// widths and scale factors the firmware expects.

// NewFirmwareVersionRequest creates a FW_VERSION request (0x00).
func NewFirmwareVersionRequest() []byte {
	return []byte{CommFWVersion}
}

// NewGetValuesRequest creates a GET_VALUES_SETUP_SELECTIVE request (0x33).
// The mask selects which values the controller returns; the decoder
// expects DefaultValuesMask.
func NewGetValuesRequest(mask uint32) []byte {
	b := NewBuffer(5)
	b.AppendUint8(CommGetValuesSetupSelective)
	b.AppendUint32(mask)
	return b.Bytes()
}

// NewDecodedPPMRequest creates a GET_DECODED_PPM request (0x1F).
func NewDecodedPPMRequest() []byte {
	return []byte{CommGetDecodedPPM}
}

// NewForwardToPeer wraps a request so the controller forwards it over CAN
// to the device with the given id (0x22).
func NewForwardToPeer(peerID uint8, inner []byte) []byte {
	b := NewBuffer(2 + len(inner))
	b.AppendUint8(CommForwardCAN)
	b.AppendUint8(peerID)
	b.AppendBytes(inner)
	return b.Bytes()
}

// NewBMSValuesRequest creates a battery management GET_VALUES request.
// Send it through NewForwardToPeer.
func NewBMSValuesRequest() []byte {
	return []byte{BMSCommGetValues}
}

// NewBMSCellsRequest creates a battery management GET_BMS_CELLS request.
// Send it through NewForwardToPeer.
func NewBMSCellsRequest() []byte {
	return []byte{BMSCommGetBMSCells}
}

// NewSetCurrent creates a SET_CURRENT command (0x06) in amps.
func NewSetCurrent(amps float64) []byte {
	return newSetInt32(CommSetCurrent, int32(amps*1000))
}

// NewSetBrakeCurrent creates a SET_CURRENT_BRAKE command (0x07) in amps.
func NewSetBrakeCurrent(amps float64) []byte {
	return newSetInt32(CommSetCurrentBrake, int32(amps*1000))
}

// NewSetRPM creates a SET_RPM command (0x08) in electrical RPM.
func NewSetRPM(rpm float64) []byte {
	return newSetInt32(CommSetRPM, int32(rpm))
}

// NewSetDuty creates a SET_DUTY command (0x05). Duty is -1.0..1.0.
func NewSetDuty(duty float64) []byte {
	return newSetInt32(CommSetDuty, int32(duty*100000))
}

func newSetInt32(command uint8, value int32) []byte {
	b := NewBuffer(5)
	b.AppendUint8(command)
	b.AppendInt32(value)
	return b.Bytes()
}

// NunchuckState is the emulated auxiliary input sent with SET_CHUCK_DATA
type NunchuckState struct {
	X           uint8
	Y           uint8
	LowerButton bool
	UpperButton bool
}

// DefaultNunchuck returns a centered joystick with both buttons released
func DefaultNunchuck() NunchuckState {
	return NunchuckState{X: 127, Y: 127}
}

// NewSetChuckData creates a SET_CHUCK_DATA command (0x23). The six
// acceleration bytes are sent as zero.
func NewSetChuckData(state NunchuckState) []byte {
	b := NewBuffer(11)
	b.AppendUint8(CommSetChuckData)
	b.AppendUint8(state.X)
	b.AppendUint8(state.Y)
	b.AppendBool(state.LowerButton)
	b.AppendBool(state.UpperButton)
	b.AppendInt16(0)
	b.AppendInt16(0)
	b.AppendInt16(0)
	return b.Bytes()
}
