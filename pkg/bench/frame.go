// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bench implements the instrument transaction engine shared by every
// bench instrument family: frame layout checks, checksums, the response
// waiter and the retrying transaction runner.
//
// Wire formats live in the per-family packages under pkg/protocols; this
// package only knows about them through FrameSpec and the Codec interface.
package bench

import (
	"bytes"
	"fmt"
)

// ChecksumKind selects the integrity check of a frame
type ChecksumKind int

const (
	ChecksumSum8 ChecksumKind = iota
	ChecksumCRC16Modbus
)

// Width returns the number of checksum bytes on the wire
func (c ChecksumKind) Width() int {
	if c == ChecksumCRC16Modbus {
		return 2
	}
	return 1
}

// LengthMode describes how the total frame length is known
type LengthMode int

const (
	// LengthFixed frames are always FrameSpec.Size bytes
	LengthFixed LengthMode = iota
	// LengthSelf frames carry a length byte at LengthIndex; the total is
	// raw[LengthIndex] + LengthOverhead
	LengthSelf
	// LengthVariable frames are checked by the family codec
	LengthVariable
)

// FrameSpec is the immutable layout of one instrument family's frames
type FrameSpec struct {
	Name           string
	Head           []byte
	Trailer        []byte // zero or one byte
	Length         LengthMode
	Size           int
	LengthIndex    int
	LengthOverhead int
	MinSize        int
	Checksum       ChecksumKind
	ChecksumFrom   int
	AddressIndex   int // -1 when the family has no address field
}

// checksumAt returns the index of the first checksum byte in a frame of n bytes
func (s FrameSpec) checksumAt(n int) int {
	return n - len(s.Trailer) - s.Checksum.Width()
}

// sum computes the checksum of body[ChecksumFrom:]
func (s FrameSpec) sum(body []byte) uint16 {
	if s.Checksum == ChecksumCRC16Modbus {
		return CRC16Modbus(body[s.ChecksumFrom:])
	}
	return uint16(Sum8(body[s.ChecksumFrom:]))
}

// Seal appends the checksum and trailer to a frame body
func (s FrameSpec) Seal(body []byte) []byte {
	sum := s.sum(body)
	out := make([]byte, 0, len(body)+s.Checksum.Width()+len(s.Trailer))
	out = append(out, body...)
	if s.Checksum == ChecksumCRC16Modbus {
		out = append(out, byte(sum&0xFF), byte(sum>>8))
	} else {
		out = append(out, byte(sum))
	}
	return append(out, s.Trailer...)
}

// CheckEcho reports a loopback fault when raw equals sent over their
// common length. Nothing is compared when either side is empty.
func CheckEcho(sent, raw []byte) error {
	n := len(sent)
	if len(raw) < n {
		n = len(raw)
	}
	if n == 0 {
		return nil
	}
	if bytes.Equal(sent[:n], raw[:n]) {
		return &Error{
			Kind:    KindLoopbackFault,
			Message: fmt.Sprintf("received %d bytes identical to transmission, link is looping back", n),
			Details: map[string]interface{}{"compared": n},
		}
	}
	return nil
}

// CheckStructure verifies head, trailer and length of a received frame
func (s FrameSpec) CheckStructure(raw []byte) error {
	minSize := s.MinSize
	if floor := len(s.Head) + s.Checksum.Width() + len(s.Trailer); minSize < floor {
		minSize = floor
	}
	if len(raw) < minSize {
		return &Error{
			Kind:    KindMalformedFrame,
			Message: fmt.Sprintf("%s frame too short (%d bytes, minimum %d)", s.Name, len(raw), minSize),
			Details: map[string]interface{}{"length": len(raw), "minimum": minSize},
		}
	}

	if !bytes.HasPrefix(raw, s.Head) {
		return &Error{
			Kind:    KindMalformedFrame,
			Message: fmt.Sprintf("%s frame bad sync byte 0x%02X", s.Name, raw[0]),
			Details: map[string]interface{}{"received": raw[0]},
		}
	}

	switch s.Length {
	case LengthFixed:
		if len(raw) != s.Size {
			return &Error{
				Kind:    KindMalformedFrame,
				Message: fmt.Sprintf("%s frame length %d, expected %d", s.Name, len(raw), s.Size),
				Details: map[string]interface{}{"received": len(raw), "expected": s.Size},
			}
		}
	case LengthSelf:
		if s.LengthIndex >= len(raw) {
			return Errorf(KindMalformedFrame, "%s frame missing length byte", s.Name)
		}
		want := int(raw[s.LengthIndex]) + s.LengthOverhead
		if len(raw) != want {
			return &Error{
				Kind:    KindMalformedFrame,
				Message: fmt.Sprintf("%s frame length %d, header declares %d", s.Name, len(raw), want),
				Details: map[string]interface{}{"received": len(raw), "expected": want},
			}
		}
	}

	if len(s.Trailer) > 0 && !bytes.HasSuffix(raw, s.Trailer) {
		return &Error{
			Kind:    KindMalformedFrame,
			Message: fmt.Sprintf("%s frame bad trailer byte 0x%02X", s.Name, raw[len(raw)-1]),
			Details: map[string]interface{}{"received": raw[len(raw)-1]},
		}
	}
	return nil
}

// CheckAddress verifies the reply comes from the addressed device
func (s FrameSpec) CheckAddress(sent, raw []byte) error {
	i := s.AddressIndex
	if i < 0 || i >= len(sent) || i >= len(raw) {
		return nil
	}
	if sent[i] != raw[i] {
		return &Error{
			Kind:    KindMalformedFrame,
			Message: fmt.Sprintf("%s reply from address %d, expected %d", s.Name, raw[i], sent[i]),
			Details: map[string]interface{}{"received": raw[i], "expected": sent[i]},
		}
	}
	return nil
}

// CheckChecksum recomputes the checksum over the encode-time range
func (s FrameSpec) CheckChecksum(raw []byte) error {
	at := s.checksumAt(len(raw))
	if at < s.ChecksumFrom {
		return Errorf(KindMalformedFrame, "%s frame too short for checksum", s.Name)
	}
	calculated := s.sum(raw[:at])
	var received uint16
	if s.Checksum == ChecksumCRC16Modbus {
		received = uint16(raw[at]) | uint16(raw[at+1])<<8
	} else {
		received = uint16(raw[at])
	}
	if received != calculated {
		return &Error{
			Kind:    KindChecksumMismatch,
			Message: fmt.Sprintf("%s checksum mismatch: expected 0x%04X, got 0x%04X", s.Name, calculated, received),
			Details: map[string]interface{}{"received": received, "calculated": calculated},
		}
	}
	return nil
}

// Body returns the region between the head and the checksum
func (s FrameSpec) Body(raw []byte) []byte {
	return raw[len(s.Head):s.checksumAt(len(raw))]
}

// Validate runs the decode gates in order: echo, structure (generic, family,
// then address), checksum, device NAK. The first failure is returned.
func Validate(s FrameSpec, sent, raw []byte, structure, nak func(raw []byte) error) error {
	if err := CheckEcho(sent, raw); err != nil {
		return err
	}
	if err := s.CheckStructure(raw); err != nil {
		return err
	}
	if structure != nil {
		if err := structure(raw); err != nil {
			return err
		}
	}
	if err := s.CheckAddress(sent, raw); err != nil {
		return err
	}
	if err := s.CheckChecksum(raw); err != nil {
		return err
	}
	if nak != nil {
		if err := nak(raw); err != nil {
			return err
		}
	}
	return nil
}
