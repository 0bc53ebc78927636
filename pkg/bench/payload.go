// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Payload value extraction helpers. Each returns false when the field does
// not fit inside b.

// Uint16LE extracts a little-endian uint16 at off
func Uint16LE(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b[off:]), true
}

// Uint16BE extracts a big-endian uint16 at off
func Uint16BE(b []byte, off int) (uint16, bool) {
	if off < 0 || off+2 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[off:]), true
}

// Int16LE extracts a little-endian int16 at off
func Int16LE(b []byte, off int) (int16, bool) {
	v, ok := Uint16LE(b, off)
	return int16(v), ok
}

// Uint32LE extracts a little-endian uint32 at off
func Uint32LE(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[off:]), true
}

// Uint32BE extracts a big-endian uint32 at off
func Uint32BE(b []byte, off int) (uint32, bool) {
	if off < 0 || off+4 > len(b) {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[off:]), true
}

// Int32LE extracts a little-endian int32 at off
func Int32LE(b []byte, off int) (int32, bool) {
	v, ok := Uint32LE(b, off)
	return int32(v), ok
}

// ASCII extracts a fixed-width text field, dropping trailing NULs and spaces
func ASCII(b []byte, off, n int) (string, bool) {
	if off < 0 || n < 0 || off+n > len(b) {
		return "", false
	}
	return strings.TrimRight(string(b[off:off+n]), "\x00 "), true
}

// Scale converts a raw device integer to physical units
func Scale(raw int64, divisor int64) float64 {
	return float64(raw) / float64(divisor)
}

// Unscale converts a physical value to the device integer, rounding to
// the nearest count
func Unscale(value float64, divisor int64) int64 {
	v := value * float64(divisor)
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}

// Counts16 converts a setpoint to device counts for an unsigned 16-bit
// field. Values that would not fit are refused rather than wrapped.
func Counts16(family, what string, value float64, divisor int64) (uint16, error) {
	n, err := counts(family, what, value, divisor, math.MaxUint16)
	return uint16(n), err
}

// Counts32 is Counts16 for an unsigned 32-bit field
func Counts32(family, what string, value float64, divisor int64) (uint32, error) {
	n, err := counts(family, what, value, divisor, math.MaxUint32)
	return uint32(n), err
}

func counts(family, what string, value float64, divisor int64, max uint64) (uint64, error) {
	v := value * float64(divisor)
	// rounding to nearest, so the last representable count is max
	if math.IsNaN(v) || value < 0 || v+0.5 >= float64(max)+1 {
		return 0, fmt.Errorf("%s: %s %g out of range (0 to %g)", family, what, value, float64(max)/float64(divisor))
	}
	return uint64(v + 0.5), nil
}

// Bit reports whether bit n of v is set
func Bit(v uint32, n uint) bool {
	return v&(1<<n) != 0
}

// PutUint16LE returns v as two little-endian bytes
func PutUint16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// PutUint32LE returns v as four little-endian bytes
func PutUint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// ShortPayload is the decode fault for a reply whose data region is too
// small for the command's shape
func ShortPayload(family string, cmd Command, need, have int) *Error {
	return &Error{
		Kind:    KindMalformedFrame,
		Message: fmt.Sprintf("%s: %s reply payload too short (%d bytes, need %d)", family, cmd, have, need),
		Details: map[string]interface{}{"length": have, "expected": need},
	}
}
