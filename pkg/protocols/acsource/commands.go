// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package acsource

import (
	"context"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

func newCommand(address uint8, id uint16, token string, payload []byte) bench.Command {
	return bench.Command{
		ID:      id,
		Name:    token,
		Address: address,
		Token:   token,
		Payload: payload,
	}
}

// NewRemote takes the source out of front panel control
func NewRemote(address uint8) bench.Command {
	return newCommand(address, CmdRemote, TokenRemote, nil)
}

// NewLocal returns the source to front panel control
func NewLocal(address uint8) bench.Command {
	return newCommand(address, CmdLocal, TokenLocal, nil)
}

// NewOutput enables or disables the output
func NewOutput(address uint8, on bool) bench.Command {
	var b byte
	if on {
		b = 1
	}
	return newCommand(address, CmdOutput, TokenOutput, []byte{b})
}

// NewSetVoltage sets the output voltage in volts rms (0.1 V resolution)
func NewSetVoltage(address uint8, volts float64) (bench.Command, error) {
	n, err := bench.Counts16(Name, "voltage", volts, voltageDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return newCommand(address, CmdSetVoltage, TokenSetVoltage, bench.PutUint16LE(n)), nil
}

// NewSetFrequency sets the output frequency in hertz (0.01 Hz resolution)
func NewSetFrequency(address uint8, hz float64) (bench.Command, error) {
	n, err := bench.Counts16(Name, "frequency", hz, frequencyDivisor)
	if err != nil {
		return bench.Command{}, err
	}
	return newCommand(address, CmdSetFrequency, TokenSetFrequency, bench.PutUint16LE(n)), nil
}

// NewReadMeasurements queries voltage, current, power, frequency and power factor
func NewReadMeasurements(address uint8) bench.Command {
	return newCommand(address, CmdMeasurements, TokenMeasurements, nil)
}

// NewReadIdentity queries the model string
func NewReadIdentity(address uint8) bench.Command {
	return newCommand(address, CmdIdentity, TokenIdentity, nil)
}

// Client wraps an executor bound to one AC source address
type Client struct {
	exec    bench.Executor
	address uint8
}

// NewClient creates a client for the AC source at address
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

// SetRemote switches between remote and front panel control
func (c *Client) SetRemote(ctx context.Context, remote bool) error {
	if remote {
		return c.ack(ctx, NewRemote(c.address))
	}
	return c.ack(ctx, NewLocal(c.address))
}

// SetOutput enables or disables the output
func (c *Client) SetOutput(ctx context.Context, on bool) error {
	return c.ack(ctx, NewOutput(c.address, on))
}

// SetVoltage sets the output voltage in volts rms
func (c *Client) SetVoltage(ctx context.Context, volts float64) error {
	cmd, err := NewSetVoltage(c.address, volts)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// SetFrequency sets the output frequency in hertz
func (c *Client) SetFrequency(ctx context.Context, hz float64) error {
	cmd, err := NewSetFrequency(c.address, hz)
	if err != nil {
		return err
	}
	return c.ack(ctx, cmd)
}

// ReadMeasurements reads the output measurements
func (c *Client) ReadMeasurements(ctx context.Context) (Measurements, error) {
	return bench.RecordAs[Measurements](c.exec.Execute(ctx, NewReadMeasurements(c.address)))
}

// ReadIdentity reads the model string
func (c *Client) ReadIdentity(ctx context.Context) (Identity, error) {
	return bench.RecordAs[Identity](c.exec.Execute(ctx, NewReadIdentity(c.address)))
}
