// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// ============================================================
// Test Protocol
// ============================================================

// testSpec is a 6-byte frame: AA addr code data sum 55
var testSpec = FrameSpec{
	Name:         "test",
	Head:         []byte{0xAA},
	Trailer:      []byte{0x55},
	Length:       LengthFixed,
	Size:         6,
	Checksum:     ChecksumSum8,
	AddressIndex: 1,
}

const (
	testIDAck     = 1
	testIDReading = 2
	testCodeNAK   = 0xEE
	testCodeReply = 0x80
)

type testProto struct{}

func (testProto) Spec() FrameSpec { return testSpec }

func (testProto) Encode(cmd Command) ([]byte, error) {
	var data byte
	if len(cmd.Payload) > 0 {
		data = cmd.Payload[0]
	}
	return testSpec.Seal([]byte{0xAA, cmd.Address, cmd.Code, data}), nil
}

func (testProto) Decode(sent, raw []byte) (*Frame, error) {
	err := Validate(testSpec, sent, raw, nil, func(raw []byte) error {
		if raw[2] != testCodeNAK {
			return nil
		}
		switch raw[3] {
		case 1:
			return Errorf(KindDeviceBusy, "busy")
		case 2:
			return Errorf(KindDeviceInLocalMode, "local")
		default:
			return Errorf(KindDeviceRejectedCommand, "rejected")
		}
	})
	if err != nil {
		return nil, err
	}
	return &Frame{Address: raw[1], Code: raw[2], Payload: raw[3:4], Raw: raw}, nil
}

func (testProto) DecodePayload(cmd Command, f *Frame) (Record, error) {
	switch cmd.ID {
	case testIDAck:
		return Ack{}, nil
	case testIDReading:
		return int(f.Payload[0]), nil
	}
	return nil, UnknownCommand("test", cmd)
}

func (testProto) RemoteCommand(address uint8) Command {
	return Command{ID: testIDAck, Name: "remote", Address: address, Code: 0x20, Payload: []byte{1}}
}

// testReply builds a valid device reply
func testReply(addr, code, data byte) []byte {
	return testSpec.Seal([]byte{0xAA, addr, code, data})
}

func testNAK(addr, reason byte) []byte {
	return testReply(addr, testCodeNAK, reason)
}

func readCmd(addr byte) Command {
	return Command{ID: testIDReading, Name: "read", Address: addr, Code: 0x10}
}

// ============================================================
// Checksum Tests
// ============================================================

func TestCRC16Modbus_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"check string", []byte("123456789"), 0x4B37},
		{"read holding register", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 0x0A84},
		{"empty", []byte{}, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CRC16Modbus(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestSum8(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", nil, 0x00},
		{"simple", []byte{0x01, 0x02, 0x03}, 0x06},
		{"wraps", []byte{0xFF, 0x02}, 0x01},
		{"head byte", []byte{0xAA, 0x00, 0x5F}, 0x09},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sum8(tt.data); got != tt.expected {
				t.Errorf("expected 0x%02X, got 0x%02X", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Frame Gate Tests
// ============================================================

func TestFrameSpec_SealCRCLittleEndian(t *testing.T) {
	spec := FrameSpec{Name: "rtu", Length: LengthVariable, Checksum: ChecksumCRC16Modbus, AddressIndex: 0}
	frame := spec.Seal([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if string(frame) != string(want) {
		t.Fatalf("expected % X, got % X", want, frame)
	}
	if err := spec.CheckChecksum(frame); err != nil {
		t.Errorf("sealed frame should verify: %v", err)
	}
}

func TestCheckEcho(t *testing.T) {
	sent := []byte{0xAA, 0x01, 0x10, 0x00, 0xBB, 0x55}

	tests := []struct {
		name     string
		raw      []byte
		loopback bool
	}{
		{"identical", sent, true},
		{"truncated echo", sent[:3], true},
		{"echo plus trailing garbage", append(append([]byte{}, sent...), 0x00), true},
		{"real reply", testReply(0x01, testCodeReply, 0x07), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEcho(sent, tt.raw)
			if tt.loopback && !errors.Is(err, ErrLoopbackFault) {
				t.Errorf("expected loopback fault, got %v", err)
			}
			if !tt.loopback && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFrameSpec_CheckStructure(t *testing.T) {
	good := testReply(0x01, testCodeReply, 0x07)

	mutate := func(i int, v byte) []byte {
		out := append([]byte{}, good...)
		out[i] = v
		return out
	}

	tests := []struct {
		name  string
		raw   []byte
		valid bool
	}{
		{"valid", good, true},
		{"too short", good[:2], false},
		{"bad head", mutate(0, 0xAB), false},
		{"bad trailer", mutate(5, 0x56), false},
		{"too long", append(append([]byte{}, good...), 0x55), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testSpec.CheckStructure(tt.raw)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected malformed frame, got %v", err)
			}
		})
	}
}

func TestFrameSpec_SelfLength(t *testing.T) {
	spec := FrameSpec{
		Name:         "self",
		Head:         []byte{0x7B},
		Trailer:      []byte{0x7D},
		Length:       LengthSelf,
		LengthIndex:  1,
		Checksum:     ChecksumSum8,
		ChecksumFrom: 1,
	}
	frame := spec.Seal([]byte{0x7B, 0x05, 0x01})
	if err := spec.CheckStructure(frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := spec.CheckChecksum(frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frame[1] = 0x06
	if err := spec.CheckStructure(frame); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected malformed frame for wrong declared length, got %v", err)
	}
}

func TestFrameSpec_CheckChecksum(t *testing.T) {
	good := testReply(0x01, testCodeReply, 0x07)
	if err := testSpec.CheckChecksum(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := append([]byte{}, good...)
	bad[3] ^= 0x01
	err := testSpec.CheckChecksum(bad)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Details["calculated"] == nil {
		t.Errorf("expected calculated checksum in details, got %#v", err)
	}
}

func TestValidate_GateOrder(t *testing.T) {
	sent, _ := testProto{}.Encode(readCmd(0x01))
	good := testReply(0x01, testCodeReply, 0x07)

	badSum := append([]byte{}, good...)
	badSum[4] ^= 0xFF

	badSumNAK := testNAK(0x01, 1)
	badSumNAK[4] ^= 0xFF

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"echo beats structure", sent[:2], ErrLoopbackFault},
		{"structure beats checksum", append(append([]byte{}, badSum...), 0x00), ErrMalformedFrame},
		{"checksum beats nak", badSumNAK, ErrChecksumMismatch},
		{"address beats nak", testNAK(0x02, 1), ErrMalformedFrame},
		{"nak", testNAK(0x01, 1), ErrDeviceBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testProto{}.Decode(sent, tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFrameSpec_Body(t *testing.T) {
	good := testReply(0x01, testCodeReply, 0x07)
	body := testSpec.Body(good)
	want := []byte{0x01, testCodeReply, 0x07}
	if string(body) != string(want) {
		t.Errorf("expected % X, got % X", want, body)
	}
}

// ============================================================
// Error Tests
// ============================================================

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("sampling load: %w", Errorf(KindDeviceBusy, "device busy"))
	if !errors.Is(err, ErrDeviceBusy) {
		t.Error("wrapped error should match its kind")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("wrapped error should not match another kind")
	}
	if KindOf(err) != KindDeviceBusy {
		t.Errorf("expected device_busy, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should be unknown kind")
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Kind: KindTimeout, Message: "no reply", Attempts: 3}
	if got := e.Error(); got != "no reply (after 3 attempts)" {
		t.Errorf("unexpected message %q", got)
	}
	e = WrapError(KindPortUnavailable, errors.New("no such file"), "opening /dev/ttyUSB0")
	if got := e.Error(); got != "opening /dev/ttyUSB0: no such file" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestErrorKind_Names(t *testing.T) {
	for k := range kindNames {
		name := k.String()
		if strings.ContainsAny(name, " -") {
			t.Errorf("kind name %q should be snake_case", name)
		}
		parsed, ok := ParseErrorKind(name)
		if !ok || parsed != k {
			t.Errorf("ParseErrorKind(%q) = %v, %v", name, parsed, ok)
		}
	}
	if _, ok := ParseErrorKind("nonsense"); ok {
		t.Error("unknown names should not parse")
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{KindTimeout, true},
		{KindChecksumMismatch, true},
		{KindMalformedFrame, true},
		{KindDeviceBusy, true},
		{KindDeviceRejectedCommand, true},
		{KindDeviceChecksumRejected, true},
		{KindDeviceCannotExecute, true},
		{KindDeviceInLocalMode, true},
		{KindLoopbackFault, false},
		{KindPortUnavailable, false},
		{KindUnknownResponse, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.retryable {
				t.Errorf("expected %v, got %v", tt.retryable, got)
			}
		})
	}
}

// ============================================================
// Payload Tests
// ============================================================

func TestPayloadExtraction(t *testing.T) {
	b := []byte{0x00, 0x00, 0x00, 0x08, 0xE2, 0x01, 0x00}

	v, ok := Uint32LE(b, 3)
	if !ok || v != 123400 {
		t.Fatalf("expected 123400, got %d (%v)", v, ok)
	}
	if got := Scale(int64(v), 1000); got != 123.4 {
		t.Errorf("expected 123.4, got %v", got)
	}
	if _, ok := Uint32LE(b, 4); ok {
		t.Error("out of range read should fail")
	}

	be, ok := Uint16BE([]byte{0x04, 0xD2}, 0)
	if !ok || be != 1234 {
		t.Errorf("expected 1234, got %d", be)
	}

	neg, ok := Int16LE([]byte{0xF6, 0xFF}, 0)
	if !ok || neg != -10 {
		t.Errorf("expected -10, got %d", neg)
	}

	s, ok := ASCII([]byte("xPS30 \x00\x00"), 1, 7)
	if !ok || s != "PS30" {
		t.Errorf("expected PS30, got %q", s)
	}
}

func TestUnscale(t *testing.T) {
	tests := []struct {
		value    float64
		divisor  int64
		expected int64
	}{
		{12.5, 100, 1250},
		{0.1234, 10000, 1234},
		{230.04, 100, 23004},
		{-2.5, 10, -25},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.value), func(t *testing.T) {
			if got := Unscale(tt.value, tt.divisor); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestCounts16(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		divisor int64
		want    uint16
		wantErr bool
	}{
		{"zero", 0, 10, 0, false},
		{"largest", 65535, 1, 65535, false},
		{"rounds down to largest", 65535.4, 1, 65535, false},
		{"rounds up past largest", 65535.5, 1, 0, true},
		{"one count over", 65536, 1, 0, true},
		{"scaled largest", 6553.5, 10, 65535, false},
		{"scaled over", 6553.6, 10, 0, true},
		{"negative", -0.1, 10, 0, true},
		{"NaN", math.NaN(), 10, 0, true},
		{"infinity", math.Inf(1), 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Counts16("test", "voltage", tt.value, tt.divisor)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCounts32(t *testing.T) {
	if got, err := Counts32("test", "voltage", 4294967.295, 1000); err != nil || got != math.MaxUint32 {
		t.Errorf("expected %d, got %d (err=%v)", uint32(math.MaxUint32), got, err)
	}
	if _, err := Counts32("test", "voltage", 5e6, 1000); err == nil {
		t.Error("expected error for 5e9 counts")
	}
}

// ============================================================
// Format Tests
// ============================================================

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(nil); got != "(empty)" {
		t.Errorf("unexpected %q", got)
	}
	if got := FormatBytes([]byte{0xAA, 0x01}); got != "AA 01" {
		t.Errorf("unexpected %q", got)
	}
	long := FormatBytes(make([]byte, 17))
	if strings.Count(long, "\n") != 1 {
		t.Errorf("expected a line break after 16 bytes, got %q", long)
	}
}

func TestFormatRecord(t *testing.T) {
	if got := FormatRecord(Ack{}); got != "ACK" {
		t.Errorf("unexpected %q", got)
	}
	if got := FormatRecord(nil); got != "(no record)" {
		t.Errorf("unexpected %q", got)
	}
}
