// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package calib implements the calibration sub-protocol spoken by the
// reference meter behind the relay controller.
//
// Every frame is 9 bytes: 0x77, address, command, four data bytes, the
// low byte of the sum of bytes 0-6 and a closing 0x33.
//
// Read replies reuse the request's command byte, so a reading whose four
// data bytes are all zero (a reference of exactly 0.0000 V, a temperature
// of 0.0 °C) is byte-identical to its request. The echo gate reports such
// a reply as a loopback fault and it is not retried. Read the zero point
// through a range that yields a non-zero count.
package calib

// Frame layout
const (
	StartByte = 0x77
	EndByte   = 0x33
	FrameSize = 9
	DataSize  = 4
	dataAt    = 3
)

// Commands
const (
	CmdReadReference   = 0x10
	CmdReadTemperature = 0x11
	CmdSetRange        = 0x20
	CmdStorePoint      = 0x21

	// AckFlag is set on the command byte of an acknowledgement
	AckFlag = 0x80
	// CmdNAK is the command byte of a rejection
	CmdNAK = 0xFF
)

// AckCode is data[0] of an acknowledgement
const AckCode = 0x06

// NAK reasons (data[0])
const (
	ReasonRejected         = 1
	ReasonBusy             = 2
	ReasonChecksumRejected = 3
)

// Scaling divisors
const (
	referenceDivisor   = 10000
	temperatureDivisor = 10
)
