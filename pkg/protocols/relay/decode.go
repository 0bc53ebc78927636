// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// State is the record of CmdReadRelays: bit n set means relay n is closed
type State struct {
	Mask uint32
}

// Closed reports whether relay n is closed
func (s State) Closed(n uint) bool {
	return n < 32 && bench.Bit(s.Mask, n)
}

func (s State) String() string {
	var closed []string
	for n := uint(0); n < 32; n++ {
		if s.Closed(n) {
			closed = append(closed, fmt.Sprint(n))
		}
	}
	if len(closed) == 0 {
		return "all open"
	}
	return "closed: " + strings.Join(closed, ",")
}

// Status is the record of CmdReadStatus
type Status struct {
	Busy          bool
	InterlockOpen bool
	Calibrating   bool
	OverTemp      bool
}

// Version is the record of CmdReadVersion
type Version struct {
	Firmware string
}

func (v Version) String() string {
	return v.Firmware
}

// DecodePayload implements bench.PayloadDecoder
func (p *Protocol) DecodePayload(cmd bench.Command, f *bench.Frame) (bench.Record, error) {
	switch cmd.ID {
	case CmdSetRelays, CmdSelectChannel, CmdRemote:
		return bench.Ack{}, nil
	case CmdReadRelays:
		mask, ok := bench.Uint32LE(f.Payload, 0)
		if !ok {
			return nil, bench.ShortPayload(Name, cmd, 4, len(f.Payload))
		}
		return State{Mask: mask}, nil
	case CmdReadStatus:
		if len(f.Payload) < 1 {
			return nil, bench.ShortPayload(Name, cmd, 1, 0)
		}
		bits := uint32(f.Payload[0])
		return Status{
			Busy:          bench.Bit(bits, statusBusy),
			InterlockOpen: bench.Bit(bits, statusInterlockOpen),
			Calibrating:   bench.Bit(bits, statusCalibrating),
			OverTemp:      bench.Bit(bits, statusOverTemp),
		}, nil
	case CmdReadVersion:
		v, _ := bench.ASCII(f.Payload, 0, len(f.Payload))
		return Version{Firmware: v}, nil
	}
	return nil, bench.UnknownCommand(Name, cmd)
}
