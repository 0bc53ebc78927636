// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package relay implements the relay and calibration controller protocol.
//
// Frame layout:
//
//	0x68 | addr | cmd | ^cmd | n | data[n] | CRC16 LE | 0x16
//
// The CRC-16/Modbus covers every byte before it.
package relay

// Frame layout
const (
	StartByte = 0x68
	EndByte   = 0x16
	MaxData   = 0xFF

	// start, addr, cmd, ^cmd, n, crc (2), end
	frameOverhead = 8
	lengthAt      = 4
	dataAt        = 5
)

// Commands. Error replies set ErrorFlag on the command byte.
const (
	CmdSetRelays     = 0x01
	CmdReadRelays    = 0x02
	CmdSelectChannel = 0x03
	CmdReadStatus    = 0x04
	CmdReadVersion   = 0x05
	CmdRemote        = 0x06

	ErrorFlag = 0x80
)

// Error reply reasons (data[0])
const (
	ReasonRejected         = 1
	ReasonCannotExecute    = 2
	ReasonBusy             = 3
	ReasonChecksumRejected = 4
	ReasonLocalMode        = 5
)

// DefaultRetries is the attempt bound for relay controllers
const DefaultRetries = 5

// Status bits
const (
	statusBusy = iota
	statusInterlockOpen
	statusCalibrating
	statusOverTemp
)
