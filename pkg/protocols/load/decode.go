// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package load

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// OperationState is the status byte of a measurement reply
type OperationState struct {
	Calculating bool
	Fault       bool
	OverTemp    bool // reserved on some models
	Remote      bool
	InputOn     bool
}

// DemandState flags the protection conditions of a measurement reply
type DemandState struct {
	Reverse      bool
	OverVoltage  bool
	OverCurrent  bool
	OverPower    bool
	OverTemp     bool
	NotConnected bool
}

// Measurements is the record of CmdMeasurements
type Measurements struct {
	Voltage   float64 // V
	Current   float64 // A
	Power     float64 // W
	Operation OperationState
	Demand    DemandState
}

func (m Measurements) String() string {
	s := fmt.Sprintf("%.3f V  %.4f A  %.3f W", m.Voltage, m.Current, m.Power)
	var flags []string
	if m.Operation.InputOn {
		flags = append(flags, "input-on")
	}
	if m.Operation.Remote {
		flags = append(flags, "remote")
	}
	if m.Operation.Fault {
		flags = append(flags, "fault")
	}
	if m.Demand.Reverse {
		flags = append(flags, "reverse")
	}
	if m.Demand.OverVoltage {
		flags = append(flags, "OV")
	}
	if m.Demand.OverCurrent {
		flags = append(flags, "OC")
	}
	if m.Demand.OverPower {
		flags = append(flags, "OP")
	}
	if m.Demand.OverTemp {
		flags = append(flags, "OT")
	}
	if len(flags) > 0 {
		s += "  [" + strings.Join(flags, " ") + "]"
	}
	return s
}

// ProductInfo is the record of CmdProductInfo
type ProductInfo struct {
	Model    string
	Firmware uint16
	Serial   string
}

func (p ProductInfo) String() string {
	return fmt.Sprintf("%s fw %d.%02d s/n %s", p.Model, p.Firmware/100, p.Firmware%100, p.Serial)
}

// DecodePayload implements bench.PayloadDecoder
func (p *Protocol) DecodePayload(cmd bench.Command, f *bench.Frame) (bench.Record, error) {
	switch cmd.ID {
	case CmdRemote, CmdInput, CmdMode, CmdSetCurrent, CmdSetVoltage, CmdSetPower, CmdSetResistance:
		if err := expectCode(cmd, f, CmdStatus); err != nil {
			return nil, err
		}
		return bench.Ack{}, nil
	case CmdMeasurements:
		if err := expectCode(cmd, f, CmdMeasurements); err != nil {
			return nil, err
		}
		return decodeMeasurements(f.Raw), nil
	case CmdProductInfo:
		if err := expectCode(cmd, f, CmdProductInfo); err != nil {
			return nil, err
		}
		return decodeProductInfo(f.Raw), nil
	}
	return nil, bench.UnknownCommand(Name, cmd)
}

// expectCode rejects a validated frame answering a different command
func expectCode(cmd bench.Command, f *bench.Frame, want uint8) error {
	if f.Code == want {
		return nil
	}
	return &bench.Error{
		Kind:    bench.KindMalformedFrame,
		Message: fmt.Sprintf("%s: %s answered with command 0x%02X, expected 0x%02X", Name, cmd, f.Code, want),
		Details: map[string]interface{}{"received": f.Code, "expected": want},
	}
}

// decodeMeasurements reads a full, validated 26-byte frame
func decodeMeasurements(raw []byte) Measurements {
	v, _ := bench.Uint32LE(raw, offVoltage)
	i, _ := bench.Uint32LE(raw, offCurrent)
	w, _ := bench.Uint32LE(raw, offPower)
	op := uint32(raw[offOperation])
	demand, _ := bench.Uint16LE(raw, offDemand)
	d := uint32(demand)

	return Measurements{
		Voltage: bench.Scale(int64(v), voltageDivisor),
		Current: bench.Scale(int64(i), currentDivisor),
		Power:   bench.Scale(int64(w), powerDivisor),
		Operation: OperationState{
			Calculating: bench.Bit(op, 0),
			Fault:       bench.Bit(op, 1),
			OverTemp:    bench.Bit(op, 2),
			Remote:      bench.Bit(op, 3),
			InputOn:     bench.Bit(op, 4),
		},
		Demand: DemandState{
			Reverse:      bench.Bit(d, 0),
			OverVoltage:  bench.Bit(d, 1),
			OverCurrent:  bench.Bit(d, 2),
			OverPower:    bench.Bit(d, 3),
			OverTemp:     bench.Bit(d, 4),
			NotConnected: bench.Bit(d, 5),
		},
	}
}

func decodeProductInfo(raw []byte) ProductInfo {
	model, _ := bench.ASCII(raw, offModel, lenModel)
	fw, _ := bench.Uint16LE(raw, offFirmware)
	serial, _ := bench.ASCII(raw, offSerial, lenSerial)
	return ProductInfo{Model: model, Firmware: fw, Serial: serial}
}
