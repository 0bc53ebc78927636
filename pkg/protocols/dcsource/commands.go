// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcsource

import (
	"context"
	"encoding/binary"

	"github.com/goburrow/modbus"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// readPDU builds the data of a read holding registers request
func readPDU(reg, count uint16) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:], reg)
	binary.BigEndian.PutUint16(b[2:], count)
	return b
}

// writePDU builds the data of a write multiple registers request
func writePDU(reg uint16, values ...uint16) []byte {
	b := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(b[0:], reg)
	binary.BigEndian.PutUint16(b[2:], uint16(len(values)))
	b[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(b[5+2*i:], v)
	}
	return b
}

func readCommand(address uint8, id uint16, name string, reg, count uint16) bench.Command {
	return bench.Command{
		ID:      id,
		Name:    name,
		Address: address,
		Code:    modbus.FuncCodeReadHoldingRegisters,
		Payload: readPDU(reg, count),
	}
}

func writeCommand(address uint8, id uint16, name string, reg uint16, values ...uint16) bench.Command {
	return bench.Command{
		ID:      id,
		Name:    name,
		Address: address,
		Code:    modbus.FuncCodeWriteMultipleRegisters,
		Payload: writePDU(reg, values...),
	}
}

func flag(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// NewSetVoltage writes the voltage setpoint in volts
func NewSetVoltage(address uint8, volts float64) (bench.Command, error) {
	n, err := bench.Counts16(Name, "voltage", volts, voltageDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return writeCommand(address, CmdSetVoltage, "set-voltage", RegVoltage, n), nil
}

// NewSetCurrent writes the current limit in amperes
func NewSetCurrent(address uint8, amps float64) (bench.Command, error) {
	n, err := bench.Counts16(Name, "current", amps, currentDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return writeCommand(address, CmdSetCurrent, "set-current", RegCurrent, n), nil
}

// NewOutput enables or disables the output
func NewOutput(address uint8, on bool) bench.Command {
	return writeCommand(address, CmdSetOutput, "output", RegOutput, flag(on))
}

// NewRemote enables or disables remote control
func NewRemote(address uint8, remote bool) bench.Command {
	return writeCommand(address, CmdSetRemote, "remote", RegRemote, flag(remote))
}

// NewReadSetpoints reads the voltage, current, output and remote registers
func NewReadSetpoints(address uint8) bench.Command {
	return readCommand(address, CmdReadSetpoints, "setpoints", RegVoltage, setpointRegs)
}

// NewReadStatus reads the measurement and status registers
func NewReadStatus(address uint8) bench.Command {
	return readCommand(address, CmdReadStatus, "status", RegMeasurements, measurementRegs)
}

// NewReadModel reads the model name registers
func NewReadModel(address uint8) bench.Command {
	return readCommand(address, CmdReadModel, "model", RegModel, modelRegs)
}

// Client wraps an executor bound to one DC source slave address
type Client struct {
	exec    bench.Executor
	address uint8
}

// NewClient creates a client for the DC source at address
func NewClient(exec bench.Executor, address uint8) *Client {
	return &Client{exec: exec, address: address}
}

// Address returns the slave address
func (c *Client) Address() uint8 {
	return c.address
}

func (c *Client) ack(ctx context.Context, cmd bench.Command) error {
	_, err := c.exec.Execute(ctx, cmd)
	return err
}

// SetRemote enables or disables remote control
func (c *Client) SetRemote(ctx context.Context, remote bool) error {
	return c.ack(ctx, NewRemote(c.address, remote))
}

// SetOutput enables or disables the output
func (c *Client) SetOutput(ctx context.Context, on bool) error {
	return c.ack(ctx, NewOutput(c.address, on))
}

// SetVoltage writes the voltage setpoint in volts
func (c *Client) SetVoltage(ctx context.Context, volts float64) error {
	cmd, err := NewSetVoltage(c.address, volts)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// SetCurrent writes the current limit in amperes
func (c *Client) SetCurrent(ctx context.Context, amps float64) error {
	cmd, err := NewSetCurrent(c.address, amps)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// ReadSetpoints reads back the programmed setpoints
func (c *Client) ReadSetpoints(ctx context.Context) (Setpoints, error) {
	return bench.RecordAs[Setpoints](c.exec.Execute(ctx, NewReadSetpoints(c.address)))
}

// ReadStatus reads the output measurements and status flags
func (c *Client) ReadStatus(ctx context.Context) (Status, error) {
	return bench.RecordAs[Status](c.exec.Execute(ctx, NewReadStatus(c.address)))
}

// ReadModel reads the model name
func (c *Client) ReadModel(ctx context.Context) (Model, error) {
	return bench.RecordAs[Model](c.exec.Execute(ctx, NewReadModel(c.address)))
}
