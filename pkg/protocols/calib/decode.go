// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calib

import (
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Reading is the record of the read commands
type Reading struct {
	Value float64
	Unit  string
}

func (r Reading) String() string {
	return fmt.Sprintf("%g %s", r.Value, r.Unit)
}

// DecodePayload implements bench.PayloadDecoder
func (p *Protocol) DecodePayload(cmd bench.Command, f *bench.Frame) (bench.Record, error) {
	switch cmd.ID {
	case CmdReadReference:
		if err := expectCode(cmd, f, CmdReadReference); err != nil {
			return nil, err
		}
		v, _ := bench.Int32LE(f.Payload, 0)
		return Reading{Value: bench.Scale(int64(v), referenceDivisor), Unit: "V"}, nil
	case CmdReadTemperature:
		if err := expectCode(cmd, f, CmdReadTemperature); err != nil {
			return nil, err
		}
		v, _ := bench.Int16LE(f.Payload, 0)
		return Reading{Value: bench.Scale(int64(v), temperatureDivisor), Unit: "°C"}, nil
	case CmdSetRange, CmdStorePoint:
		if f.Code != uint8(cmd.ID)|AckFlag || f.Payload[0] != AckCode {
			return nil, &bench.Error{
				Kind:    bench.KindMalformedFrame,
				Message: fmt.Sprintf("%s: %s reply is not an acknowledgement (0x%02X % X)", Name, cmd, f.Code, f.Payload),
			}
		}
		return bench.Ack{}, nil
	}
	return nil, bench.UnknownCommand(Name, cmd)
}

func expectCode(cmd bench.Command, f *bench.Frame, want uint8) error {
	if f.Code == want {
		return nil
	}
	return bench.Errorf(bench.KindMalformedFrame, "%s: %s answered with 0x%02X", Name, cmd, f.Code)
}
