// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calib

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Name is the family name used in logs, metrics and configuration
const Name = "calib"

// Spec is the calibration frame layout
var Spec = bench.FrameSpec{
	Name:         Name,
	Head:         []byte{StartByte},
	Trailer:      []byte{EndByte},
	Length:       bench.LengthFixed,
	Size:         FrameSize,
	Checksum:     bench.ChecksumSum8,
	ChecksumFrom: 0,
	AddressIndex: 1,
}

// Protocol implements bench.Protocol for the calibration meter. The meter
// has no front panel, so there is no remote switch.
type Protocol struct{}

// New returns the calibration protocol
func New() *Protocol {
	return &Protocol{}
}

// NewRunner creates a runner for calibration meters on bus
func NewRunner(bus *bench.Bus, opts ...bench.Option) *bench.Runner {
	return bench.NewRunner(bus, New(), opts...)
}

// Spec implements bench.Codec
func (p *Protocol) Spec() bench.FrameSpec {
	return Spec
}

// Encode implements bench.Codec
func (p *Protocol) Encode(cmd bench.Command) ([]byte, error) {
	if len(cmd.Payload) > DataSize {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(cmd.Payload), DataSize)
	}
	body := make([]byte, FrameSize-2)
	body[0] = StartByte
	body[1] = cmd.Address
	body[2] = cmd.Code
	copy(body[dataAt:], cmd.Payload)
	return Spec.Seal(body), nil
}

// Decode implements bench.Codec
func (p *Protocol) Decode(sent, raw []byte) (*bench.Frame, error) {
	structure := func(raw []byte) error {
		code := raw[2]
		if code == CmdNAK || code == sent[2] || code == sent[2]|AckFlag {
			return nil
		}
		return &bench.Error{
			Kind:    bench.KindMalformedFrame,
			Message: fmt.Sprintf("%s reply command 0x%02X does not answer 0x%02X", Name, code, sent[2]),
			Details: map[string]interface{}{"received": code, "expected": sent[2]},
		}
	}
	if err := bench.Validate(Spec, sent, raw, structure, checkNAK); err != nil {
		return nil, err
	}
	return &bench.Frame{
		Address: raw[1],
		Code:    raw[2],
		Payload: raw[dataAt : dataAt+DataSize],
		Raw:     raw,
	}, nil
}

func checkNAK(raw []byte) error {
	if raw[2] != CmdNAK {
		return nil
	}
	reason := raw[dataAt]
	kind := bench.KindDeviceRejectedCommand
	switch reason {
	case ReasonBusy:
		kind = bench.KindDeviceBusy
	case ReasonChecksumRejected:
		kind = bench.KindDeviceChecksumRejected
	}
	return &bench.Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s: meter returned NAK reason %d", Name, reason),
		Details: map[string]interface{}{"reason": reason},
	}
}

var _ bench.Protocol = (*Protocol)(nil)
