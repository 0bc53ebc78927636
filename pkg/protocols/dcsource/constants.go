// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dcsource implements the Modbus RTU DC source protocol.
//
// Reads use function 0x03 and writes use function 0x10. Function 0x06 is
// never used: its normal reply is a byte copy of the request and could not
// be told apart from a looped-back link.
package dcsource

// Holding registers
const (
	RegVoltage      = 0x0000 // ÷100 V
	RegCurrent      = 0x0001 // ÷1000 A
	RegOutput       = 0x0002
	RegRemote       = 0x0003
	RegMeasurements = 0x0010 // voltage, current, power (2 regs), status
	RegModel        = 0x0020 // 8 registers of ASCII
)

// Register counts
const (
	setpointRegs    = 4
	measurementRegs = 5
	modelRegs       = 8
)

// Command IDs
const (
	CmdSetVoltage uint16 = iota + 1
	CmdSetCurrent
	CmdSetOutput
	CmdSetRemote
	CmdReadSetpoints
	CmdReadStatus
	CmdReadModel
)

// ExceptionLocalMode is the vendor exception for front panel control
const ExceptionLocalMode = 0x80

// Status register bits
const (
	statusOutput = iota
	statusCV
	statusCC
	statusOVP
	statusOCP
	statusOTP
	statusRemote
)

// Scaling divisors
const (
	voltageDivisor = 100
	currentDivisor = 1000
	powerDivisor   = 100
)

// Frame sizes
const (
	exceptionSize  = 5
	writeReplySize = 8
)
