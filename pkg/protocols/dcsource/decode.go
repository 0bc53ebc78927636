// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcsource

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Status is the record of CmdReadStatus
type Status struct {
	Voltage  float64 // V
	Current  float64 // A
	Power    float64 // W
	OutputOn bool
	CV       bool
	CC       bool
	OVP      bool
	OCP      bool
	OTP      bool
	Remote   bool
}

func (s Status) String() string {
	mode := "off"
	switch {
	case s.OutputOn && s.CC:
		mode = "CC"
	case s.OutputOn && s.CV:
		mode = "CV"
	case s.OutputOn:
		mode = "on"
	}
	out := fmt.Sprintf("%.2f V  %.3f A  %.2f W  %s", s.Voltage, s.Current, s.Power, mode)
	for _, p := range []struct {
		set  bool
		name string
	}{{s.OVP, "OVP"}, {s.OCP, "OCP"}, {s.OTP, "OTP"}} {
		if p.set {
			out += " " + p.name
		}
	}
	return out
}

// Setpoints is the record of CmdReadSetpoints
type Setpoints struct {
	Voltage float64 // V
	Current float64 // A
	Output  bool
	Remote  bool
}

// Model is the record of CmdReadModel
type Model struct {
	Name string
}

func (m Model) String() string {
	return m.Name
}

// DecodePayload implements bench.PayloadDecoder
func (p *Protocol) DecodePayload(cmd bench.Command, f *bench.Frame) (bench.Record, error) {
	switch cmd.ID {
	case CmdSetVoltage, CmdSetCurrent, CmdSetOutput, CmdSetRemote:
		return bench.Ack{}, nil
	case CmdReadSetpoints:
		if len(f.Payload) < 2*setpointRegs {
			return nil, bench.ShortPayload(Name, cmd, 2*setpointRegs, len(f.Payload))
		}
		v, _ := bench.Uint16BE(f.Payload, 0)
		i, _ := bench.Uint16BE(f.Payload, 2)
		out, _ := bench.Uint16BE(f.Payload, 4)
		remote, _ := bench.Uint16BE(f.Payload, 6)
		return Setpoints{
			Voltage: bench.Scale(int64(v), voltageDivisor),
			Current: bench.Scale(int64(i), currentDivisor),
			Output:  out != 0,
			Remote:  remote != 0,
		}, nil
	case CmdReadStatus:
		if len(f.Payload) < 2*measurementRegs {
			return nil, bench.ShortPayload(Name, cmd, 2*measurementRegs, len(f.Payload))
		}
		return decodeStatus(f.Payload), nil
	case CmdReadModel:
		if len(f.Payload) < 2*modelRegs {
			return nil, bench.ShortPayload(Name, cmd, 2*modelRegs, len(f.Payload))
		}
		name, _ := bench.ASCII(f.Payload, 0, 2*modelRegs)
		return Model{Name: name}, nil
	}
	return nil, bench.UnknownCommand(Name, cmd)
}

func decodeStatus(b []byte) Status {
	v, _ := bench.Uint16BE(b, 0)
	i, _ := bench.Uint16BE(b, 2)
	w, _ := bench.Uint32BE(b, 4)
	st, _ := bench.Uint16BE(b, 8)
	bits := uint32(st)
	return Status{
		Voltage:  bench.Scale(int64(v), voltageDivisor),
		Current:  bench.Scale(int64(i), currentDivisor),
		Power:    bench.Scale(int64(w), powerDivisor),
		OutputOn: bench.Bit(bits, statusOutput),
		CV:       bench.Bit(bits, statusCV),
		CC:       bench.Bit(bits, statusCC),
		OVP:      bench.Bit(bits, statusOVP),
		OCP:      bench.Bit(bits, statusOCP),
		OTP:      bench.Bit(bits, statusOTP),
		Remote:   bench.Bit(bits, statusRemote),
	}
}
