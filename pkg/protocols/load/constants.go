// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package load implements the fixed-length electronic load protocol.
//
// Every frame in either direction is 26 bytes: a 0xAA sync byte, the device
// address, a command byte, 22 payload bytes (unused bytes are zero) and the
// low byte of the sum of the preceding 25 bytes.
//
// A measurement reply with every field zero is byte-identical to the 0x5F
// request and is reported as a loopback fault.
package load

// Frame layout
const (
	SyncByte    = 0xAA
	FrameSize   = 26
	PayloadSize = 22
)

// Commands
const (
	CmdRemote        = 0x20
	CmdInput         = 0x21
	CmdMode          = 0x28
	CmdSetCurrent    = 0x2A
	CmdSetVoltage    = 0x2C
	CmdSetPower      = 0x2E
	CmdSetResistance = 0x30
	CmdMeasurements  = 0x5F
	CmdProductInfo   = 0x6A

	// CmdStatus only appears in replies
	CmdStatus = 0x12
)

// Status reply codes (payload[0] of a CmdStatus reply). The local-mode
// code is provisional.
const (
	StatusSuccess          = 0x80
	StatusChecksumRejected = 0x90
	StatusBadParameter     = 0xA0
	StatusUnrecognized     = 0xB0
	StatusLocalMode        = 0xC0
)

// Operating modes
type Mode uint8

const (
	ModeCC Mode = 0
	ModeCV Mode = 1
	ModeCW Mode = 2
	ModeCR Mode = 3
)

// String returns the front-panel name of the mode
func (m Mode) String() string {
	switch m {
	case ModeCC:
		return "CC"
	case ModeCV:
		return "CV"
	case ModeCW:
		return "CW"
	case ModeCR:
		return "CR"
	}
	return "unknown"
}

// Measurement frame offsets
const (
	offVoltage   = 3  // u32 LE, 1 mV
	offCurrent   = 7  // u32 LE, 0.1 mA
	offPower     = 11 // u32 LE, 1 mW
	offOperation = 15 // bit flags
	offDemand    = 16 // u16 LE bit flags
)

// Product info frame offsets. Model and serial are ASCII, firmware is u16 LE.
const (
	offModel    = 3
	lenModel    = 5
	offFirmware = 8
	offSerial   = 10
	lenSerial   = 10
)

// Scaling divisors
const (
	voltageDivisor    = 1000
	currentDivisor    = 10000
	powerDivisor      = 1000
	resistanceDivisor = 1000
)
