// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calib

import (
	"context"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

func newCommand(address uint8, code uint8, name string, data []byte) bench.Command {
	return bench.Command{
		ID:      uint16(code),
		Name:    name,
		Address: address,
		Code:    code,
		Payload: data,
	}
}

// NewReadReference reads the reference voltage
func NewReadReference(address uint8) bench.Command {
	return newCommand(address, CmdReadReference, "reference", nil)
}

// NewReadTemperature reads the meter temperature
func NewReadTemperature(address uint8) bench.Command {
	return newCommand(address, CmdReadTemperature, "temperature", nil)
}

// NewSetRange selects a measurement range
func NewSetRange(address uint8, rng uint8) bench.Command {
	return newCommand(address, CmdSetRange, "set-range", []byte{rng})
}

// NewStorePoint stores the current reading as calibration point index
func NewStorePoint(address uint8, index uint8) bench.Command {
	return newCommand(address, CmdStorePoint, "store-point", []byte{index})
}

// Client wraps an executor bound to one calibration meter
type Client struct {
	exec    bench.Executor
	address uint8
}

// NewClient creates a client for the meter at address
func NewClient(exec bench.Executor, address uint8) *Client {
	return &Client{exec: exec, address: address}
}

// Address returns the meter address
func (c *Client) Address() uint8 {
	return c.address
}

// ReadReference reads the reference voltage
func (c *Client) ReadReference(ctx context.Context) (Reading, error) {
	return bench.RecordAs[Reading](c.exec.Execute(ctx, NewReadReference(c.address)))
}

// ReadTemperature reads the meter temperature
func (c *Client) ReadTemperature(ctx context.Context) (Reading, error) {
	return bench.RecordAs[Reading](c.exec.Execute(ctx, NewReadTemperature(c.address)))
}

// SetRange selects a measurement range
func (c *Client) SetRange(ctx context.Context, rng uint8) error {
	_, err := c.exec.Execute(ctx, NewSetRange(c.address, rng))
	return err
}

// StorePoint stores the current reading as a calibration point
func (c *Client) StorePoint(ctx context.Context, index uint8) error {
	_, err := c.exec.Execute(ctx, NewStorePoint(c.address, index))
	return err
}
