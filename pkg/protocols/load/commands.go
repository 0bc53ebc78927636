// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package load

import (
	"context"
	"fmt"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Command builder functions create bench.Command values ready for a
// runner. Setpoints are given in physical units and scaled here.

func newCommand(address uint8, code uint8, name string, payload []byte) bench.Command {
	return bench.Command{
		ID:      uint16(code),
		Name:    name,
		Address: address,
		Code:    code,
		Payload: payload,
	}
}

func boolByte(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// NewRemote switches between remote (true) and front panel control
func NewRemote(address uint8, remote bool) bench.Command {
	return newCommand(address, CmdRemote, "remote", boolByte(remote))
}

// NewInput turns the load input on or off
func NewInput(address uint8, on bool) bench.Command {
	return newCommand(address, CmdInput, "input", boolByte(on))
}

// NewMode selects the operating mode
func NewMode(address uint8, mode Mode) bench.Command {
	return newCommand(address, CmdMode, "mode", []byte{byte(mode)})
}

// NewSetCurrent sets the constant-current setpoint in amperes
func NewSetCurrent(address uint8, amps float64) (bench.Command, error) {
	n, err := bench.Counts32(Name, "current setpoint", amps, currentDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return newCommand(address, CmdSetCurrent, "set-current", bench.PutUint32LE(n)), nil
}

// NewSetVoltage sets the constant-voltage setpoint in volts
func NewSetVoltage(address uint8, volts float64) (bench.Command, error) {
	n, err := bench.Counts32(Name, "voltage setpoint", volts, voltageDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return newCommand(address, CmdSetVoltage, "set-voltage", bench.PutUint32LE(n)), nil
}

// NewSetPower sets the constant-power setpoint in watts
func NewSetPower(address uint8, watts float64) (bench.Command, error) {
	n, err := bench.Counts32(Name, "power setpoint", watts, powerDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return newCommand(address, CmdSetPower, "set-power", bench.PutUint32LE(n)), nil
}

// NewSetResistance sets the constant-resistance setpoint in ohms
func NewSetResistance(address uint8, ohms float64) (bench.Command, error) {
	n, err := bench.Counts32(Name, "resistance setpoint", ohms, resistanceDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return newCommand(address, CmdSetResistance, "set-resistance", bench.PutUint32LE(n)), nil
}

// NewReadMeasurements requests voltage, current, power and state
func NewReadMeasurements(address uint8) bench.Command {
	return newCommand(address, CmdMeasurements, "measurements", nil)
}

// NewReadProductInfo requests model, firmware and serial number
func NewReadProductInfo(address uint8) bench.Command {
	return newCommand(address, CmdProductInfo, "product-info", nil)
}

// Client wraps an executor bound to one load address
type Client struct {
	exec    bench.Executor
	address uint8
}

// NewClient creates a client for the load at address
func NewClient(exec bench.Executor, address uint8) *Client {
	return &Client{exec: exec, address: address}
}

// Address returns the device address
func (c *Client) Address() uint8 {
	return c.address
}

func (c *Client) ack(ctx context.Context, cmd bench.Command) error {
	_, err := c.exec.Execute(ctx, cmd)
	return err
}

// SetRemote switches the load between remote and front panel control
func (c *Client) SetRemote(ctx context.Context, remote bool) error {
	return c.ack(ctx, NewRemote(c.address, remote))
}

// SetInput turns the input on or off
func (c *Client) SetInput(ctx context.Context, on bool) error {
	return c.ack(ctx, NewInput(c.address, on))
}

// SetMode selects the operating mode
func (c *Client) SetMode(ctx context.Context, mode Mode) error {
	if mode > ModeCR {
		return fmt.Errorf("%s: invalid mode %d", Name, mode)
	}
	return c.ack(ctx, NewMode(c.address, mode))
}

// SetCurrent sets the constant-current setpoint in amperes
func (c *Client) SetCurrent(ctx context.Context, amps float64) error {
	cmd, err := NewSetCurrent(c.address, amps)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// SetVoltage sets the constant-voltage setpoint in volts
func (c *Client) SetVoltage(ctx context.Context, volts float64) error {
	cmd, err := NewSetVoltage(c.address, volts)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// SetPower sets the constant-power setpoint in watts
func (c *Client) SetPower(ctx context.Context, watts float64) error {
	cmd, err := NewSetPower(c.address, watts)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// SetResistance sets the constant-resistance setpoint in ohms
func (c *Client) SetResistance(ctx context.Context, ohms float64) error {
	cmd, err := NewSetResistance(c.address, ohms)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// ReadMeasurements reads voltage, current, power and state flags
func (c *Client) ReadMeasurements(ctx context.Context) (Measurements, error) {
	return bench.RecordAs[Measurements](c.exec.Execute(ctx, NewReadMeasurements(c.address)))
}

// ReadProductInfo reads the model, firmware version and serial number
func (c *Client) ReadProductInfo(ctx context.Context) (ProductInfo, error) {
	return bench.RecordAs[ProductInfo](c.exec.Execute(ctx, NewReadProductInfo(c.address)))
}
