// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

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

// NewSetRelays closes the relays whose bits are set in mask and opens the rest
func NewSetRelays(address uint8, mask uint32) bench.Command {
	return newCommand(address, CmdSetRelays, "set-relays", bench.PutUint32LE(mask))
}

// NewReadRelays reads the relay mask
func NewReadRelays(address uint8) bench.Command {
	return newCommand(address, CmdReadRelays, "read-relays", nil)
}

// NewSelectChannel routes calibration channel ch to the reference
func NewSelectChannel(address uint8, ch uint8) bench.Command {
	return newCommand(address, CmdSelectChannel, "select-channel", []byte{ch})
}

// NewReadStatus reads the controller status flags
func NewReadStatus(address uint8) bench.Command {
	return newCommand(address, CmdReadStatus, "status", nil)
}

// NewReadVersion reads the firmware version string
func NewReadVersion(address uint8) bench.Command {
	return newCommand(address, CmdReadVersion, "version", nil)
}

// NewRemote enables remote control
func NewRemote(address uint8) bench.Command {
	return newCommand(address, CmdRemote, "remote", []byte{1})
}

// Client wraps an executor bound to one relay controller
type Client struct {
	exec    bench.Executor
	address uint8
}

// NewClient creates a client for the controller at address
func NewClient(exec bench.Executor, address uint8) *Client {
	return &Client{exec: exec, address: address}
}

// Address returns the controller address
func (c *Client) Address() uint8 {
	return c.address
}

// SetRelays closes exactly the relays set in mask
func (c *Client) SetRelays(ctx context.Context, mask uint32) error {
	_, err := c.exec.Execute(ctx, NewSetRelays(c.address, mask))
	return err
}

// ReadRelays reads the relay mask
func (c *Client) ReadRelays(ctx context.Context) (State, error) {
	return bench.RecordAs[State](c.exec.Execute(ctx, NewReadRelays(c.address)))
}

// SelectChannel routes a calibration channel to the reference
func (c *Client) SelectChannel(ctx context.Context, ch uint8) error {
	_, err := c.exec.Execute(ctx, NewSelectChannel(c.address, ch))
	return err
}

// ReadStatus reads the controller status flags
func (c *Client) ReadStatus(ctx context.Context) (Status, error) {
	return bench.RecordAs[Status](c.exec.Execute(ctx, NewReadStatus(c.address)))
}

// ReadVersion reads the firmware version string
func (c *Client) ReadVersion(ctx context.Context) (Version, error) {
	return bench.RecordAs[Version](c.exec.Execute(ctx, NewReadVersion(c.address)))
}
