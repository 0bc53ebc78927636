// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package acsource implements the ASCII-embedded AC source protocol.
//
// Frames are variable length: 0x7B, a total length byte, the device
// address, a four character command token such as "RMO*", binary
// parameters, the low byte of the sum of bytes 1 through the last
// parameter, and a closing 0x7D.
package acsource

// Frame layout
const (
	StartByte = 0x7B
	EndByte   = 0x7D
	TokenSize = 4
	MaxFrame  = 0xFF

	// start, length, address, sum, end
	frameOverhead = 5
	tokenAt       = 3
	paramsAt      = tokenAt + TokenSize
)

// Command tokens
const (
	TokenRemote       = "RMO*"
	TokenLocal        = "LOC*"
	TokenOutput       = "OUT*"
	TokenSetVoltage   = "SVL*"
	TokenSetFrequency = "SFQ*"
	TokenMeasurements = "RMS*"
	TokenIdentity     = "IDN*"
)

// Command IDs select the decode shape of each token
const (
	CmdRemote uint16 = iota + 1
	CmdLocal
	CmdOutput
	CmdSetVoltage
	CmdSetFrequency
	CmdMeasurements
	CmdIdentity
)

// AckByte follows the echoed token in the reply to a set command
const AckByte = '#'

// NAK markers at the token position of a reply
const (
	NakBusy   = '!'
	NakReject = '?'

	ReasonLocal    = 'L'
	ReasonChecksum = 'S'
	ReasonRange    = 'P'
)

// Scaling divisors
const (
	voltageDivisor     = 10
	currentDivisor     = 1000
	powerDivisor       = 10
	frequencyDivisor   = 100
	powerFactorDivisor = 1000
)

// Payload sizes
const (
	measurementsSize = 12
	identitySize     = 16
)
