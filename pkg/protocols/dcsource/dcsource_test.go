// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Thermoquad/powerbench/pkg/bench"
	"github.com/Thermoquad/powerbench/pkg/bench/benchtest"
)

// ============================================================
// Test Helpers
// ============================================================

// readReply builds a function 0x03 reply carrying register values
// must unwraps a builder result for fixtures with known-good setpoints
func must(cmd bench.Command, err error) bench.Command {
	if err != nil {
		panic(err)
	}
	return cmd
}

func readReply(addr byte, regs ...uint16) []byte {
	body := []byte{addr, modbus.FuncCodeReadHoldingRegisters, byte(2 * len(regs))}
	for _, r := range regs {
		body = append(body, byte(r>>8), byte(r))
	}
	return Spec.Seal(body)
}

// writeReply builds a function 0x10 reply for a request
func writeReply(cmd bench.Command) []byte {
	body := append([]byte{cmd.Address, modbus.FuncCodeWriteMultipleRegisters}, cmd.Payload[:4]...)
	return Spec.Seal(body)
}

func exceptionReply(addr, fc, code byte) []byte {
	return Spec.Seal([]byte{addr, fc | 0x80, code})
}

func asciiRegs(s string, n int) []uint16 {
	b := make([]byte, 2*n)
	copy(b, s)
	regs := make([]uint16, n)
	for i := range regs {
		regs[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return regs
}

func newTestRunner(link *benchtest.Link) *bench.Runner {
	w := &bench.Waiter{
		Clock:  benchtest.NewClock(),
		Timing: bench.Timing{PollInterval: time.Millisecond, ArrivalPolls: 5, MaxPolls: 20},
	}
	return NewRunner(bench.NewBus(link), bench.WithWaiter(w))
}

func decode(t *testing.T, cmd bench.Command, raw []byte) (bench.Record, error) {
	t.Helper()
	sent, err := New().Encode(cmd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := New().Decode(sent, raw)
	if err != nil {
		return nil, err
	}
	return New().DecodePayload(cmd, f)
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_KnownFrame(t *testing.T) {
	cmd := bench.Command{Address: 0x01, Code: modbus.FuncCodeReadHoldingRegisters, Payload: readPDU(0x0000, 1)}
	got, err := New().Encode(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01, 0x84, 0x0A}
	if string(got) != string(want) {
		t.Errorf("expected % X, got % X", want, got)
	}
	if err := Spec.CheckChecksum(got); err != nil {
		t.Errorf("encoded frame should verify: %v", err)
	}
}

func TestEncode_WriteMultiple(t *testing.T) {
	got, err := New().Encode(must(NewSetVoltage(0x02, 12.34)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// slave, fc, reg, count, byte count, value, crc
	if len(got) != 11 {
		t.Fatalf("expected 11 bytes, got %d", len(got))
	}
	if got[1] != modbus.FuncCodeWriteMultipleRegisters || got[6] != 2 {
		t.Errorf("bad header % X", got[:7])
	}
	if v := uint16(got[7])<<8 | uint16(got[8]); v != 1234 {
		t.Errorf("expected 1234, got %d", v)
	}
	if err := Spec.CheckChecksum(got); err != nil {
		t.Errorf("encoded frame should verify: %v", err)
	}
}

func TestEncode_SingleRegisterWriteRefused(t *testing.T) {
	cmd := bench.Command{Address: 1, Code: modbus.FuncCodeWriteSingleRegister, Payload: []byte{0, 2, 0, 1}}
	if _, err := New().Encode(cmd); err == nil {
		t.Error("function 0x06 should be refused")
	}
}

func TestEncode_SetpointRange(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (bench.Command, error)
		wantErr bool
		counts  uint16
	}{
		{"voltage 65535 counts", func() (bench.Command, error) { return NewSetVoltage(1, 655.35) }, false, 65535},
		{"voltage 65536 counts", func() (bench.Command, error) { return NewSetVoltage(1, 655.36) }, true, 0},
		{"voltage 700 V", func() (bench.Command, error) { return NewSetVoltage(1, 700) }, true, 0},
		{"current 65535 counts", func() (bench.Command, error) { return NewSetCurrent(1, 65.535) }, false, 65535},
		{"current 65536 counts", func() (bench.Command, error) { return NewSetCurrent(1, 65.536) }, true, 0},
		{"negative current", func() (bench.Command, error) { return NewSetCurrent(1, -0.001) }, true, 0},
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
			// register, count, byte count, then the value big-endian
			if v, _ := bench.Uint16BE(cmd.Payload, 5); v != tt.counts {
				t.Errorf("expected %d counts, got %d", tt.counts, v)
			}
		})
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_Status(t *testing.T) {
	// 12.00 V, 1.500 A, 18.00 W, output on + CC + remote
	rec, err := decode(t, NewReadStatus(0x01), readReply(0x01, 1200, 1500, 0, 1800, 0x0045))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := rec.(Status)
	if s.Voltage != 12 || s.Current != 1.5 || s.Power != 18 {
		t.Errorf("unexpected values %+v", s)
	}
	if !s.OutputOn || !s.CC || s.CV || !s.Remote || s.OVP {
		t.Errorf("unexpected flags %+v", s)
	}
}

func TestDecode_PowerSpansTwoRegisters(t *testing.T) {
	// 100000 = 0x000186A0 -> 1000.00 W
	rec, err := decode(t, NewReadStatus(0x01), readReply(0x01, 0, 0, 0x0001, 0x86A0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.(Status).Power != 1000 {
		t.Errorf("expected 1000 W, got %v", rec.(Status).Power)
	}
}

func TestDecode_Model(t *testing.T) {
	rec, err := decode(t, NewReadModel(0x01), readReply(0x01, asciiRegs("PSU-3005D", modelRegs)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.(Model).Name != "PSU-3005D" {
		t.Errorf("unexpected model %q", rec.(Model).Name)
	}
}

func TestDecode_Setpoints(t *testing.T) {
	rec, err := decode(t, NewReadSetpoints(0x01), readReply(0x01, 500, 2000, 1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sp := rec.(Setpoints)
	if sp.Voltage != 5 || sp.Current != 2 || !sp.Output || !sp.Remote {
		t.Errorf("unexpected setpoints %+v", sp)
	}
}

func TestDecode_WriteAck(t *testing.T) {
	cmd := NewOutput(0x01, true)
	rec, err := decode(t, cmd, writeReply(cmd))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rec.(bench.Ack); !ok {
		t.Errorf("expected Ack, got %T", rec)
	}
}

func TestDecode_Exceptions(t *testing.T) {
	tests := []struct {
		name string
		code byte
		want error
	}{
		{"illegal function", modbus.ExceptionCodeIllegalFunction, bench.ErrDeviceRejectedCommand},
		{"illegal address", modbus.ExceptionCodeIllegalDataAddress, bench.ErrDeviceRejectedCommand},
		{"illegal value", modbus.ExceptionCodeIllegalDataValue, bench.ErrDeviceRejectedCommand},
		{"device failure", modbus.ExceptionCodeServerDeviceFailure, bench.ErrDeviceCannotExecute},
		{"busy", modbus.ExceptionCodeServerDeviceBusy, bench.ErrDeviceBusy},
		{"local", ExceptionLocalMode, bench.ErrDeviceInLocalMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, NewReadStatus(0x01), exceptionReply(0x01, modbus.FuncCodeReadHoldingRegisters, tt.code))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var mbErr *modbus.ModbusError
			if !errors.As(err, &mbErr) || mbErr.ExceptionCode != tt.code {
				t.Errorf("expected modbus exception 0x%02X as cause, got %v", tt.code, err)
			}
		})
	}
}

func TestDecode_Structure(t *testing.T) {
	short := readReply(0x01, 1, 2, 3, 4)
	wrongFC := Spec.Seal([]byte{0x01, 0x04, 0x02, 0x00, 0x01})
	cmd := must(NewSetVoltage(1, 5))
	badEcho := Spec.Seal([]byte{0x01, modbus.FuncCodeWriteMultipleRegisters, 0x00, 0x01, 0x00, 0x01})

	tests := []struct {
		name string
		cmd  bench.Command
		raw  []byte
	}{
		{"byte count", NewReadStatus(0x01), short},
		{"function code", NewReadStatus(0x01), wrongFC},
		{"write echo", cmd, badEcho},
		{"truncated", NewReadStatus(0x01), short[:len(short)-3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.cmd, tt.raw)
			if !errors.Is(err, bench.ErrMalformedFrame) && !errors.Is(err, bench.ErrChecksumMismatch) {
				t.Errorf("expected structural fault, got %v", err)
			}
			if tt.name != "truncated" && !errors.Is(err, bench.ErrMalformedFrame) {
				t.Errorf("expected malformed frame, got %v", err)
			}
		})
	}
}

func TestDecode_WrongSlave(t *testing.T) {
	_, err := decode(t, NewReadStatus(0x01), readReply(0x02, 1, 2, 3, 4, 5))
	if !errors.Is(err, bench.ErrMalformedFrame) {
		t.Errorf("expected malformed frame, got %v", err)
	}
}

func TestDecode_Loopback(t *testing.T) {
	cmd := must(NewSetCurrent(0x01, 1))
	sent, _ := New().Encode(cmd)
	if _, err := New().Decode(sent, sent); !errors.Is(err, bench.ErrLoopbackFault) {
		t.Errorf("expected loopback fault, got %v", err)
	}
}

func TestDecode_EverySingleBitFlip(t *testing.T) {
	cmd := NewReadStatus(0x01)
	sent, _ := New().Encode(cmd)
	raw := readReply(0x01, 1200, 1500, 0, 1800, 0x0045)

	for index := range raw {
		for bit := uint(0); bit < 8; bit++ {
			_, err := New().Decode(sent, benchtest.FlipBit(raw, index, bit))
			if err == nil {
				t.Fatalf("flip of byte %d bit %d not detected", index, bit)
			}
			// past slave, function and byte count only the CRC can catch it
			if index >= 3 && !errors.Is(err, bench.ErrChecksumMismatch) {
				t.Errorf("flip of byte %d bit %d: expected checksum mismatch, got %v", index, bit, err)
			}
		}
	}
}

// ============================================================
// Client Tests
// ============================================================

func TestClient_RemoteRecovery(t *testing.T) {
	link := benchtest.NewLink(
		benchtest.Bytes(exceptionReply(0x01, modbus.FuncCodeWriteMultipleRegisters, ExceptionLocalMode)),
		benchtest.Bytes(writeReply(NewRemote(0x01, true))),
		benchtest.Bytes(writeReply(NewOutput(0x01, true))),
	)
	c := NewClient(newTestRunner(link), 0x01)

	if err := c.SetOutput(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writes := link.Writes()
	if len(writes) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(writes))
	}
	remote, _ := New().Encode(NewRemote(0x01, true))
	if string(writes[1]) != string(remote) {
		t.Errorf("expected remote enable write, got % X", writes[1])
	}
}

func TestClient_ReadStatus(t *testing.T) {
	link := benchtest.NewLink(benchtest.Split(readReply(0x07, 500, 100, 0, 50, 0x01), 6))
	c := NewClient(newTestRunner(link), 0x07)

	s, err := c.ReadStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Voltage != 5 || s.Current != 0.1 || s.Power != 0.5 || !s.OutputOn {
		t.Errorf("unexpected status %+v", s)
	}
}
