// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Name is the family name used in logs, metrics and configuration
const Name = "relay"

// Spec is the relay controller frame layout
var Spec = bench.FrameSpec{
	Name:           Name,
	Head:           []byte{StartByte},
	Trailer:        []byte{EndByte},
	Length:         bench.LengthSelf,
	LengthIndex:    lengthAt,
	LengthOverhead: frameOverhead,
	MinSize:        frameOverhead,
	Checksum:       bench.ChecksumCRC16Modbus,
	ChecksumFrom:   0,
	AddressIndex:   1,
}

// Protocol implements bench.Protocol and bench.RemoteSwitcher for the
// relay controller
type Protocol struct{}

// New returns the relay protocol
func New() *Protocol {
	return &Protocol{}
}

// NewRunner creates a runner for relay controllers on bus. The family
// retry bound applies unless opts override it.
func NewRunner(bus *bench.Bus, opts ...bench.Option) *bench.Runner {
	opts = append([]bench.Option{bench.WithRetries(DefaultRetries)}, opts...)
	return bench.NewRunner(bus, New(), opts...)
}

// Spec implements bench.Codec
func (p *Protocol) Spec() bench.FrameSpec {
	return Spec
}

// Encode implements bench.Codec
func (p *Protocol) Encode(cmd bench.Command) ([]byte, error) {
	if len(cmd.Payload) > MaxData {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(cmd.Payload), MaxData)
	}
	if cmd.Code&ErrorFlag != 0 {
		return nil, fmt.Errorf("command 0x%02X collides with the error flag", cmd.Code)
	}
	body := make([]byte, 0, frameOverhead+len(cmd.Payload))
	body = append(body, StartByte, cmd.Address, cmd.Code, ^cmd.Code, byte(len(cmd.Payload)))
	body = append(body, cmd.Payload...)
	return Spec.Seal(body), nil
}

// Decode implements bench.Codec
func (p *Protocol) Decode(sent, raw []byte) (*bench.Frame, error) {
	structure := func(raw []byte) error {
		return checkCommand(sent, raw)
	}
	if err := bench.Validate(Spec, sent, raw, structure, checkError); err != nil {
		return nil, err
	}
	n := int(raw[lengthAt])
	return &bench.Frame{
		Address: raw[1],
		Code:    raw[2],
		Payload: raw[dataAt : dataAt+n],
		Raw:     raw,
	}, nil
}

// RemoteCommand implements bench.RemoteSwitcher
func (p *Protocol) RemoteCommand(address uint8) bench.Command {
	return NewRemote(address)
}

// checkCommand verifies the command/complement pair and that the reply
// answers the command sent
func checkCommand(sent, raw []byte) error {
	cmd, inv := raw[2], raw[3]
	if inv != ^cmd {
		return &bench.Error{
			Kind:    bench.KindMalformedFrame,
			Message: fmt.Sprintf("%s command 0x%02X with bad complement 0x%02X", Name, cmd, inv),
			Details: map[string]interface{}{"command": cmd, "complement": inv},
		}
	}
	if cmd&^ErrorFlag != sent[2] {
		return &bench.Error{
			Kind:    bench.KindMalformedFrame,
			Message: fmt.Sprintf("%s reply to command 0x%02X, expected 0x%02X", Name, cmd&^ErrorFlag, sent[2]),
			Details: map[string]interface{}{"received": cmd, "expected": sent[2]},
		}
	}
	return nil
}

// checkError maps an error reply to its device error
func checkError(raw []byte) error {
	if raw[2]&ErrorFlag == 0 {
		return nil
	}
	var reason byte
	if raw[lengthAt] > 0 {
		reason = raw[dataAt]
	}

	var kind bench.ErrorKind
	var msg string
	switch reason {
	case ReasonCannotExecute:
		kind, msg = bench.KindDeviceCannotExecute, "cannot execute"
	case ReasonBusy:
		kind, msg = bench.KindDeviceBusy, "busy"
	case ReasonChecksumRejected:
		kind, msg = bench.KindDeviceChecksumRejected, "rejected frame checksum"
	case ReasonLocalMode:
		kind, msg = bench.KindDeviceInLocalMode, "in local mode"
	default:
		kind, msg = bench.KindDeviceRejectedCommand, "rejected command"
	}
	return &bench.Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s: controller %s (reason %d)", Name, msg, reason),
		Details: map[string]interface{}{"reason": reason},
	}
}

// Ensure interface compliance
var (
	_ bench.Protocol       = (*Protocol)(nil)
	_ bench.RemoteSwitcher = (*Protocol)(nil)
)
