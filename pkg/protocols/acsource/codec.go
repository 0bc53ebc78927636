// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acsource

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Name is the family name used in logs, metrics and configuration
const Name = "acsource"

// Spec is the AC source frame layout. The length byte carries the total
// frame length and the checksum skips the start byte.
var Spec = bench.FrameSpec{
	Name:         Name,
	Head:         []byte{StartByte},
	Trailer:      []byte{EndByte},
	Length:       bench.LengthSelf,
	LengthIndex:  1,
	MinSize:      6,
	Checksum:     bench.ChecksumSum8,
	ChecksumFrom: 1,
	AddressIndex: 2,
}

// Protocol implements bench.Protocol and bench.RemoteSwitcher for the
// AC source family
type Protocol struct{}

// New returns the AC source protocol
func New() *Protocol {
	return &Protocol{}
}

// NewRunner creates a runner for AC sources on bus
func NewRunner(bus *bench.Bus, opts ...bench.Option) *bench.Runner {
	return bench.NewRunner(bus, New(), opts...)
}

// Spec implements bench.Codec
func (p *Protocol) Spec() bench.FrameSpec {
	return Spec
}

// Encode implements bench.Codec
func (p *Protocol) Encode(cmd bench.Command) ([]byte, error) {
	if len(cmd.Token) != TokenSize {
		return nil, fmt.Errorf("command token %q must be %d characters", cmd.Token, TokenSize)
	}
	n := frameOverhead + TokenSize + len(cmd.Payload)
	if n > MaxFrame {
		return nil, fmt.Errorf("frame too large: %d bytes (max %d)", n, MaxFrame)
	}
	body := make([]byte, 0, n)
	body = append(body, StartByte, byte(n), cmd.Address)
	body = append(body, cmd.Token...)
	body = append(body, cmd.Payload...)
	return Spec.Seal(body), nil
}

// Decode implements bench.Codec
func (p *Protocol) Decode(sent, raw []byte) (*bench.Frame, error) {
	structure := func(raw []byte) error {
		return checkToken(sent, raw)
	}
	if err := bench.Validate(Spec, sent, raw, structure, checkNAK); err != nil {
		return nil, err
	}
	return &bench.Frame{
		Address: raw[2],
		Payload: raw[paramsAt : len(raw)-2],
		Raw:     raw,
	}, nil
}

// RemoteCommand implements bench.RemoteSwitcher
func (p *Protocol) RemoteCommand(address uint8) bench.Command {
	return NewRemote(address)
}

func isNAK(raw []byte) bool {
	return raw[tokenAt] == NakBusy || raw[tokenAt] == NakReject
}

// checkToken requires a success reply to echo the request token
func checkToken(sent, raw []byte) error {
	if isNAK(raw) {
		return nil
	}
	if len(raw) < paramsAt+2 {
		return bench.Errorf(bench.KindMalformedFrame, "%s reply too short for a command token (%d bytes)", Name, len(raw))
	}
	want := string(sent[tokenAt:paramsAt])
	got := string(raw[tokenAt:paramsAt])
	if got != want {
		return &bench.Error{
			Kind:    bench.KindMalformedFrame,
			Message: fmt.Sprintf("%s reply token %q does not match request %q", Name, got, want),
			Details: map[string]interface{}{"received": got, "expected": want},
		}
	}
	return nil
}

// checkNAK maps '!' and '?<reason>' replies to device errors
func checkNAK(raw []byte) error {
	if !isNAK(raw) {
		return nil
	}
	if raw[tokenAt] == NakBusy {
		return nakError(bench.KindDeviceBusy, "device busy", 0)
	}
	var reason byte
	if tokenAt+1 < len(raw)-2 {
		reason = raw[tokenAt+1]
	}
	switch reason {
	case ReasonLocal:
		return nakError(bench.KindDeviceInLocalMode, "device is under front panel control", reason)
	case ReasonChecksum:
		return nakError(bench.KindDeviceChecksumRejected, "device rejected frame checksum", reason)
	case ReasonRange:
		return nakError(bench.KindDeviceCannotExecute, "parameter out of range", reason)
	}
	return nakError(bench.KindDeviceRejectedCommand, "device rejected command", reason)
}

func nakError(kind bench.ErrorKind, msg string, reason byte) error {
	e := &bench.Error{Kind: kind, Message: fmt.Sprintf("%s: %s", Name, msg)}
	if reason != 0 {
		e.Message += fmt.Sprintf(" (%q)", reason)
		e.Details = map[string]interface{}{"reason": string(rune(reason))}
	}
	return e
}

// Ensure interface compliance
var (
	_ bench.Protocol       = (*Protocol)(nil)
	_ bench.RemoteSwitcher = (*Protocol)(nil)
)
