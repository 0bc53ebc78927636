// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/powerbench/pkg/bench"
	"github.com/Thermoquad/powerbench/pkg/bench/benchtest"
)

// ============================================================
// Test Helpers
// ============================================================

// frame builds a device frame around region (token plus data, or a NAK)
// must unwraps a builder result for fixtures with known-good setpoints
func must(cmd bench.Command, err error) bench.Command {
	if err != nil {
		panic(err)
	}
	return cmd
}

func frame(addr byte, region ...byte) []byte {
	n := frameOverhead + len(region)
	body := append([]byte{StartByte, byte(n), addr}, region...)
	return Spec.Seal(body)
}

func reply(addr byte, token string, data ...byte) []byte {
	return frame(addr, append([]byte(token), data...)...)
}

func ackReply(addr byte, token string) []byte {
	return reply(addr, token, AckByte)
}

func measurementData() []byte {
	var b []byte
	b = append(b, bench.PutUint16LE(2301)...) // 230.1 V
	b = append(b, bench.PutUint16LE(1250)...) // 1.25 A
	b = append(b, bench.PutUint32LE(2876)...) // 287.6 W
	b = append(b, bench.PutUint16LE(5000)...) // 50.00 Hz
	b = append(b, bench.PutUint16LE(998)...)  // 0.998
	return b
}

func newTestRunner(link *benchtest.Link) *bench.Runner {
	w := &bench.Waiter{
		Clock:  benchtest.NewClock(),
		Timing: bench.Timing{PollInterval: time.Millisecond, ArrivalPolls: 5, MaxPolls: 20},
	}
	return NewRunner(bench.NewBus(link), bench.WithWaiter(w))
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_Layout(t *testing.T) {
	got, err := New().Encode(NewRemote(0x05))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x7B, 0x09, 0x05, 'R', 'M', 'O', '*', 0x00, 0x7D}
	want[7] = bench.Sum8(want[1:7])
	if string(got) != string(want) {
		t.Errorf("expected % X, got % X", want, got)
	}
}

func TestEncode_SetVoltage(t *testing.T) {
	got, err := New().Encode(must(NewSetVoltage(0x01, 230.0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int(got[1]) != len(got) {
		t.Errorf("length byte %d does not match frame length %d", got[1], len(got))
	}
	v, _ := bench.Uint16LE(got, paramsAt)
	if v != 2300 {
		t.Errorf("expected 2300, got %d", v)
	}
	if got[len(got)-2] != bench.Sum8(got[1:len(got)-2]) {
		t.Error("checksum should skip the start byte")
	}
}

func TestEncode_BadToken(t *testing.T) {
	cmd := NewRemote(1)
	cmd.Token = "RMO"
	if _, err := New().Encode(cmd); err == nil {
		t.Error("expected error for short token")
	}
}

func TestEncode_SetpointRange(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (bench.Command, error)
		wantErr bool
		counts  uint16
	}{
		{"voltage 65535 counts", func() (bench.Command, error) { return NewSetVoltage(1, 6553.5) }, false, 65535},
		{"voltage 65536 counts", func() (bench.Command, error) { return NewSetVoltage(1, 6553.6) }, true, 0},
		{"voltage 7000 V", func() (bench.Command, error) { return NewSetVoltage(1, 7000) }, true, 0},
		{"negative voltage", func() (bench.Command, error) { return NewSetVoltage(1, -1) }, true, 0},
		{"frequency 65535 counts", func() (bench.Command, error) { return NewSetFrequency(1, 655.35) }, false, 65535},
		{"frequency 65536 counts", func() (bench.Command, error) { return NewSetFrequency(1, 655.36) }, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := tt.build()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected out of range error, got payload % X", cmd.Payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v, _ := bench.Uint16LE(cmd.Payload, 0); v != tt.counts {
				t.Errorf("expected %d counts, got %d", tt.counts, v)
			}
		})
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_Measurements(t *testing.T) {
	cmd := NewReadMeasurements(0x01)
	sent, _ := New().Encode(cmd)

	f, err := New().Decode(sent, reply(0x01, TokenMeasurements, measurementData()...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := New().DecodePayload(cmd, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := rec.(Measurements)
	if m.Voltage != 230.1 || m.Current != 1.25 || m.Power != 287.6 || m.Frequency != 50 || m.PowerFactor != 0.998 {
		t.Errorf("unexpected measurements %+v", m)
	}
}

func TestDecode_Identity(t *testing.T) {
	cmd := NewReadIdentity(0x01)
	sent, _ := New().Encode(cmd)
	model := []byte("AFV-P 1000      ")

	f, err := New().Decode(sent, reply(0x01, TokenIdentity, model...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := New().DecodePayload(cmd, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.(Identity).Model != "AFV-P 1000" {
		t.Errorf("unexpected model %q", rec.(Identity).Model)
	}
}

func TestDecode_ShortMeasurements(t *testing.T) {
	cmd := NewReadMeasurements(0x01)
	sent, _ := New().Encode(cmd)
	f, err := New().Decode(sent, reply(0x01, TokenMeasurements, 0x01, 0x02))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := New().DecodePayload(cmd, f); !errors.Is(err, bench.ErrMalformedFrame) {
		t.Errorf("expected malformed frame, got %v", err)
	}
}

func TestDecode_NAK(t *testing.T) {
	tests := []struct {
		name   string
		region []byte
		want   error
	}{
		{"busy", []byte{NakBusy}, bench.ErrDeviceBusy},
		{"local", []byte{NakReject, ReasonLocal}, bench.ErrDeviceInLocalMode},
		{"checksum", []byte{NakReject, ReasonChecksum}, bench.ErrDeviceChecksumRejected},
		{"range", []byte{NakReject, ReasonRange}, bench.ErrDeviceCannotExecute},
		{"other", []byte{NakReject, 'X'}, bench.ErrDeviceRejectedCommand},
		{"bare", []byte{NakReject}, bench.ErrDeviceRejectedCommand},
	}

	sent, _ := New().Encode(NewOutput(0x01, true))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Decode(sent, frame(0x01, tt.region...))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecode_TokenMismatch(t *testing.T) {
	sent, _ := New().Encode(NewReadMeasurements(0x01))
	_, err := New().Decode(sent, reply(0x01, TokenIdentity, measurementData()...))
	if !errors.Is(err, bench.ErrMalformedFrame) {
		t.Errorf("expected malformed frame, got %v", err)
	}
}

func TestDecode_LengthMismatch(t *testing.T) {
	sent, _ := New().Encode(NewReadMeasurements(0x01))
	raw := reply(0x01, TokenMeasurements, measurementData()...)
	raw[1]++
	if _, err := New().Decode(sent, raw); !errors.Is(err, bench.ErrMalformedFrame) {
		t.Errorf("expected malformed frame, got %v", err)
	}
}

func TestDecode_Loopback(t *testing.T) {
	sent, _ := New().Encode(must(NewSetFrequency(0x01, 60)))
	if _, err := New().Decode(sent, sent); !errors.Is(err, bench.ErrLoopbackFault) {
		t.Errorf("expected loopback fault, got %v", err)
	}
}

func TestDecode_AckIsNotEcho(t *testing.T) {
	for _, cmd := range []bench.Command{NewRemote(1), NewLocal(1), NewOutput(1, true), must(NewSetVoltage(1, 120)), must(NewSetFrequency(1, 60))} {
		sent, _ := New().Encode(cmd)
		f, err := New().Decode(sent, ackReply(1, cmd.Token))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", cmd, err)
			continue
		}
		if _, err := New().DecodePayload(cmd, f); err != nil {
			t.Errorf("%s: unexpected error: %v", cmd, err)
		}
	}
}

func TestDecode_SingleBitFlip(t *testing.T) {
	rng := benchtest.NewRand(t)
	rounds := benchtest.FuzzRounds()

	sent, _ := New().Encode(NewReadMeasurements(0x01))
	raw := reply(0x01, TokenMeasurements, measurementData()...)
	// parameters and checksum; header flips are structural faults
	first := paramsAt
	last := len(raw) - 2

	for i := 0; i < rounds; i++ {
		index := first + rng.Intn(last-first+1)
		bit := uint(rng.Intn(8))
		_, err := New().Decode(sent, benchtest.FlipBit(raw, index, bit))
		if !errors.Is(err, bench.ErrChecksumMismatch) {
			t.Fatalf("round %d: flip of byte %d bit %d not caught: %v", i, index, bit, err)
		}
	}
}

func TestDecode_CompensatingFlipsPassSum8(t *testing.T) {
	sent, _ := New().Encode(NewReadMeasurements(0x01))
	data := measurementData()
	data[0] = 0x10 // bit 4 set
	data[1] = 0x00 // bit 4 clear
	raw := reply(0x01, TokenMeasurements, data...)

	flipped := benchtest.FlipBit(benchtest.FlipBit(raw, paramsAt, 4), paramsAt+1, 4)
	if _, err := New().Decode(sent, flipped); err != nil {
		t.Errorf("8-bit sum should not detect compensating flips, got %v", err)
	}
}

// ============================================================
// Client Tests
// ============================================================

func TestClient_RemoteRecovery(t *testing.T) {
	link := benchtest.NewLink(
		benchtest.Bytes(frame(0x01, NakReject, ReasonLocal)),
		benchtest.Bytes(ackReply(0x01, TokenRemote)),
		benchtest.Split(reply(0x01, TokenMeasurements, measurementData()...), 4),
	)
	c := NewClient(newTestRunner(link), 0x01)

	m, err := c.ReadMeasurements(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Frequency != 50 {
		t.Errorf("expected 50 Hz, got %v", m.Frequency)
	}
	writes := link.Writes()
	if len(writes) != 3 || string(writes[1][tokenAt:paramsAt]) != TokenRemote {
		t.Errorf("expected one RMO* between the two queries, got %d writes", len(writes))
	}
}

func TestClient_SetVoltageRange(t *testing.T) {
	link := benchtest.NewLink()
	c := NewClient(newTestRunner(link), 0x01)
	if err := c.SetVoltage(context.Background(), 7000); err == nil {
		t.Error("expected out of range error")
	}
	if len(link.Writes()) != 0 {
		t.Error("out of range setpoint should not be sent")
	}
}
