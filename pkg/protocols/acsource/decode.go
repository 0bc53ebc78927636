// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acsource

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Measurements is the record of an RMS* query
type Measurements struct {
	Voltage     float64 // V rms
	Current     float64 // A rms
	Power       float64 // W
	Frequency   float64 // Hz
	PowerFactor float64
}

func (m Measurements) String() string {
	return fmt.Sprintf("%.1f V  %.3f A  %.1f W  %.2f Hz  PF %.3f",
		m.Voltage, m.Current, m.Power, m.Frequency, m.PowerFactor)
}

// Identity is the record of an IDN* query
type Identity struct {
	Model string
}

func (i Identity) String() string {
	return i.Model
}

// DecodePayload implements bench.PayloadDecoder
func (p *Protocol) DecodePayload(cmd bench.Command, f *bench.Frame) (bench.Record, error) {
	switch cmd.ID {
	case CmdRemote, CmdLocal, CmdOutput, CmdSetVoltage, CmdSetFrequency:
		if len(f.Payload) != 1 || f.Payload[0] != AckByte {
			return nil, &bench.Error{
				Kind:    bench.KindMalformedFrame,
				Message: fmt.Sprintf("%s: %s reply is not an acknowledgement (% X)", Name, cmd, f.Payload),
			}
		}
		return bench.Ack{}, nil
	case CmdMeasurements:
		if len(f.Payload) < measurementsSize {
			return nil, bench.ShortPayload(Name, cmd, measurementsSize, len(f.Payload))
		}
		return decodeMeasurements(f.Payload), nil
	case CmdIdentity:
		if len(f.Payload) < identitySize {
			return nil, bench.ShortPayload(Name, cmd, identitySize, len(f.Payload))
		}
		model, _ := bench.ASCII(f.Payload, 0, identitySize)
		return Identity{Model: model}, nil
	}
	return nil, bench.UnknownCommand(Name, cmd)
}

func decodeMeasurements(b []byte) Measurements {
	v, _ := bench.Uint16LE(b, 0)
	i, _ := bench.Uint16LE(b, 2)
	w, _ := bench.Uint32LE(b, 4)
	hz, _ := bench.Uint16LE(b, 8)
	pf, _ := bench.Uint16LE(b, 10)
	return Measurements{
		Voltage:     bench.Scale(int64(v), voltageDivisor),
		Current:     bench.Scale(int64(i), currentDivisor),
		Power:       bench.Scale(int64(w), powerDivisor),
		Frequency:   bench.Scale(int64(hz), frequencyDivisor),
		PowerFactor: bench.Scale(int64(pf), powerFactorDivisor),
	}
}
