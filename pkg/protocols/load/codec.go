// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package load

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Name is the family name used in logs, metrics and configuration
const Name = "load"

// Spec is the load frame layout
var Spec = bench.FrameSpec{
	Name:         Name,
	Head:         []byte{SyncByte},
	Length:       bench.LengthFixed,
	Size:         FrameSize,
	Checksum:     bench.ChecksumSum8,
	ChecksumFrom: 0,
	AddressIndex: 1,
}

// Protocol implements bench.Protocol and bench.RemoteSwitcher for the
// load family
type Protocol struct{}

// New returns the load protocol
func New() *Protocol {
	return &Protocol{}
}

// NewRunner creates a runner for load instruments on bus
func NewRunner(bus *bench.Bus, opts ...bench.Option) *bench.Runner {
	return bench.NewRunner(bus, New(), opts...)
}

// Spec implements bench.Codec
func (p *Protocol) Spec() bench.FrameSpec {
	return Spec
}

// Encode builds the 26-byte frame. Unused payload bytes are zero.
func (p *Protocol) Encode(cmd bench.Command) ([]byte, error) {
	if len(cmd.Payload) > PayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(cmd.Payload), PayloadSize)
	}
	body := make([]byte, FrameSize-1)
	body[0] = SyncByte
	body[1] = cmd.Address
	body[2] = cmd.Code
	copy(body[3:], cmd.Payload)
	return Spec.Seal(body), nil
}

// Decode implements bench.Codec
func (p *Protocol) Decode(sent, raw []byte) (*bench.Frame, error) {
	if err := bench.Validate(Spec, sent, raw, nil, checkStatus); err != nil {
		return nil, err
	}
	return &bench.Frame{
		Address: raw[1],
		Code:    raw[2],
		Payload: raw[3 : FrameSize-1],
		Raw:     raw,
	}, nil
}

// RemoteCommand implements bench.RemoteSwitcher
func (p *Protocol) RemoteCommand(address uint8) bench.Command {
	return NewRemote(address, true)
}

// checkStatus maps a non-success status reply to its device error
func checkStatus(raw []byte) error {
	if raw[2] != CmdStatus {
		return nil
	}
	code := raw[3]
	switch code {
	case StatusSuccess:
		return nil
	case StatusChecksumRejected:
		return statusError(bench.KindDeviceChecksumRejected, code, "device rejected frame checksum")
	case StatusBadParameter:
		return statusError(bench.KindDeviceRejectedCommand, code, "device rejected parameter")
	case StatusUnrecognized:
		return statusError(bench.KindDeviceRejectedCommand, code, "device did not recognize command")
	case StatusLocalMode:
		return statusError(bench.KindDeviceInLocalMode, code, "device is under front panel control")
	}
	return statusError(bench.KindDeviceRejectedCommand, code, "unknown status")
}

func statusError(kind bench.ErrorKind, code byte, msg string) error {
	return &bench.Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %s (status 0x%02X)", Name, msg, code),
		Details: map[string]interface{}{"status": code},
	}
}

// Ensure interface compliance
var (
	_ bench.Protocol       = (*Protocol)(nil)
	_ bench.RemoteSwitcher = (*Protocol)(nil)
)
