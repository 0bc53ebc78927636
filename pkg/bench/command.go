// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"context"
	"fmt"
)

// Command is one logical request to an instrument. It is built fresh per
// call and never modified after encoding.
type Command struct {
	ID      uint16 // logical command, selects the decode shape
	Name    string
	Address uint8
	Code    uint8  // wire opcode or function code
	Token   string // ASCII command token, families that embed one
	Payload []byte
}

// String returns a short description for logs
func (c Command) String() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Token != "" {
		return c.Token
	}
	return fmt.Sprintf("0x%02X", c.Code)
}

// Frame is a response that passed every validation gate
type Frame struct {
	Address uint8
	Code    uint8
	Payload []byte
	Raw     []byte
}

// Record is the typed result of one decoded response
type Record interface{}

// Ack is the record for commands whose reply carries no data
type Ack struct{}

// Codec turns commands into frames and validates replies for one family
type Codec interface {
	Spec() FrameSpec
	Encode(cmd Command) ([]byte, error)
	// Decode validates raw against the bytes just sent and extracts the
	// frame fields. Errors are *Error values.
	Decode(sent, raw []byte) (*Frame, error)
}

// PayloadDecoder maps a validated frame to a typed record
type PayloadDecoder interface {
	DecodePayload(cmd Command, f *Frame) (Record, error)
}

// RemoteSwitcher is implemented by families that can take a device out of
// front-panel control
type RemoteSwitcher interface {
	RemoteCommand(address uint8) Command
}

// Protocol bundles what a Runner needs from one instrument family
type Protocol interface {
	Codec
	PayloadDecoder
}

// UnknownCommand is the decode fault for a command ID with no decode shape
func UnknownCommand(family string, cmd Command) *Error {
	return &Error{
		Kind:    KindUnknownResponse,
		Message: fmt.Sprintf("%s: no decoder for command %s (id 0x%04X)", family, cmd, cmd.ID),
		Details: map[string]interface{}{"id": cmd.ID},
	}
}

// Executor runs logical commands. *Runner is the production
// implementation; family clients depend only on this.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Record, error)
}

// RecordAs converts an Execute result to the record type its command
// decodes to
func RecordAs[T any](rec Record, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	v, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected record type %T, want %T", rec, zero)
	}
	return v, nil
}
