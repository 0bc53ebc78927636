// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcsource

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/goburrow/modbus"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Name is the family name used in logs, metrics and configuration
const Name = "dcsource"

// Spec is the Modbus RTU frame layout: no sync or trailer, CRC-16/Modbus
// little-endian in the last two bytes, length by function code
var Spec = bench.FrameSpec{
	Name:         Name,
	Length:       bench.LengthVariable,
	MinSize:      exceptionSize,
	Checksum:     bench.ChecksumCRC16Modbus,
	ChecksumFrom: 0,
	AddressIndex: 0,
}

// Protocol implements bench.Protocol and bench.RemoteSwitcher for the
// DC source family
type Protocol struct{}

// New returns the DC source protocol
func New() *Protocol {
	return &Protocol{}
}

// NewRunner creates a runner for DC sources on bus
func NewRunner(bus *bench.Bus, opts ...bench.Option) *bench.Runner {
	return bench.NewRunner(bus, New(), opts...)
}

// Spec implements bench.Codec
func (p *Protocol) Spec() bench.FrameSpec {
	return Spec
}

// packager returns an RTU packager for one slave. Only its framing is
// used; the handler's own serial transport is never opened.
func packager(slave uint8) *modbus.RTUClientHandler {
	h := modbus.NewRTUClientHandler("")
	h.SlaveId = slave
	return h
}

// Encode implements bench.Codec. cmd.Code is the function code and
// cmd.Payload the PDU data.
func (p *Protocol) Encode(cmd bench.Command) ([]byte, error) {
	switch cmd.Code {
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeWriteMultipleRegisters:
	default:
		return nil, fmt.Errorf("unsupported function code 0x%02X", cmd.Code)
	}
	return packager(cmd.Address).Encode(&modbus.ProtocolDataUnit{
		FunctionCode: cmd.Code,
		Data:         cmd.Payload,
	})
}

// Decode implements bench.Codec
func (p *Protocol) Decode(sent, raw []byte) (*bench.Frame, error) {
	structure := func(raw []byte) error {
		return checkLength(sent, raw)
	}
	if err := bench.Validate(Spec, sent, raw, structure, checkException); err != nil {
		return nil, err
	}

	pdu, err := packager(raw[0]).Decode(raw)
	if err != nil {
		return nil, bench.WrapError(bench.KindChecksumMismatch, err, "%s: decoding RTU frame", Name)
	}
	f := &bench.Frame{Address: raw[0], Code: pdu.FunctionCode, Payload: pdu.Data, Raw: raw}
	if pdu.FunctionCode == modbus.FuncCodeReadHoldingRegisters {
		// drop the byte count
		f.Payload = pdu.Data[1:]
	}
	return f, nil
}

// RemoteCommand implements bench.RemoteSwitcher
func (p *Protocol) RemoteCommand(address uint8) bench.Command {
	return NewRemote(address, true)
}

// checkLength validates the reply size implied by the function code
func checkLength(sent, raw []byte) error {
	fc := sent[1]
	switch raw[1] {
	case fc | 0x80:
		if len(raw) != exceptionSize {
			return lengthError(raw, exceptionSize)
		}
		return nil
	case fc:
	default:
		return &bench.Error{
			Kind:    bench.KindMalformedFrame,
			Message: fmt.Sprintf("%s reply function 0x%02X, expected 0x%02X", Name, raw[1], fc),
			Details: map[string]interface{}{"received": raw[1], "expected": fc},
		}
	}

	switch fc {
	case modbus.FuncCodeReadHoldingRegisters:
		count := int(binary.BigEndian.Uint16(sent[4:6]))
		if int(raw[2]) != 2*count {
			return &bench.Error{
				Kind:    bench.KindMalformedFrame,
				Message: fmt.Sprintf("%s reply byte count %d, expected %d", Name, raw[2], 2*count),
				Details: map[string]interface{}{"received": raw[2], "expected": 2 * count},
			}
		}
		if want := 5 + int(raw[2]); len(raw) != want {
			return lengthError(raw, want)
		}
	case modbus.FuncCodeWriteMultipleRegisters:
		if len(raw) != writeReplySize {
			return lengthError(raw, writeReplySize)
		}
		if !bytes.Equal(raw[2:6], sent[2:6]) {
			return bench.Errorf(bench.KindMalformedFrame, "%s write reply address/quantity % X, expected % X", Name, raw[2:6], sent[2:6])
		}
	}
	return nil
}

func lengthError(raw []byte, want int) error {
	return &bench.Error{
		Kind:    bench.KindMalformedFrame,
		Message: fmt.Sprintf("%s frame length %d, expected %d", Name, len(raw), want),
		Details: map[string]interface{}{"received": len(raw), "expected": want},
	}
}

// checkException maps a Modbus exception reply to its device error
func checkException(raw []byte) error {
	if raw[1]&0x80 == 0 {
		return nil
	}
	exc := &modbus.ModbusError{FunctionCode: raw[1], ExceptionCode: raw[2]}

	var kind bench.ErrorKind
	switch exc.ExceptionCode {
	case modbus.ExceptionCodeServerDeviceBusy:
		kind = bench.KindDeviceBusy
	case modbus.ExceptionCodeServerDeviceFailure:
		kind = bench.KindDeviceCannotExecute
	case ExceptionLocalMode:
		kind = bench.KindDeviceInLocalMode
	default:
		// illegal function, data address or data value
		kind = bench.KindDeviceRejectedCommand
	}
	return &bench.Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s: device exception 0x%02X", Name, exc.ExceptionCode),
		Details: map[string]interface{}{"function": exc.FunctionCode & 0x7F, "exception": exc.ExceptionCode},
		Err:     exc,
	}
}

// Ensure interface compliance
var (
	_ bench.Protocol       = (*Protocol)(nil)
	_ bench.RemoteSwitcher = (*Protocol)(nil)
)
