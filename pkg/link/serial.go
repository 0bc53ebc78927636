// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link provides bench.Link implementations for local serial ports
// and for serial-over-WebSocket bridges.
package link

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// DefaultBaudRate is used when a serial link is configured without one
const DefaultBaudRate = 9600

// pollTimeout bounds the read that backs BytesPending
const pollTimeout = time.Millisecond

// Opener opens a serial port. It matches serial.Open.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

// SerialLink is a bench.Link over a local serial port. The port is opened
// lazily and reopened after a failure.
type SerialLink struct {
	mu   sync.Mutex
	name string
	mode *serial.Mode
	open Opener
	port serial.Port
	buf  []byte
}

// NewSerialLink creates a link for the named port, 8N1 at baud
func NewSerialLink(name string, baud int) *SerialLink {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &SerialLink{
		name: name,
		mode: &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		open: serial.Open,
	}
}

// WithOpener replaces the function used to open the port
func (s *SerialLink) WithOpener(open Opener) *SerialLink {
	s.open = open
	return s
}

// String describes the link
func (s *SerialLink) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", s.name, s.mode.BaudRate)
}

// EnsureOpen implements bench.Link
func (s *SerialLink) EnsureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	port, err := s.open(s.name, s.mode)
	if err != nil {
		return bench.WrapError(bench.KindPortUnavailable, err, "failed to open serial port %s", s.name)
	}
	if err := port.SetReadTimeout(pollTimeout); err != nil {
		port.Close()
		return bench.WrapError(bench.KindPortUnavailable, err, "failed to configure serial port %s", s.name)
	}
	s.port = port
	s.buf = nil
	return nil
}

// Write implements bench.Link
func (s *SerialLink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return bench.Errorf(bench.KindPortUnavailable, "serial port %s is not open", s.name)
	}
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			s.closeLocked()
			return bench.WrapError(bench.KindPortUnavailable, err, "write to %s", s.name)
		}
		p = p[n:]
	}
	return nil
}

// BytesPending implements bench.Link. The port has no queue query, so
// whatever arrives within a short read is moved into the link buffer.
func (s *SerialLink) BytesPending() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return 0, bench.Errorf(bench.KindPortUnavailable, "serial port %s is not open", s.name)
	}
	var chunk [256]byte
	n, err := s.port.Read(chunk[:])
	if err != nil {
		s.closeLocked()
		return 0, bench.WrapError(bench.KindPortUnavailable, err, "read from %s", s.name)
	}
	s.buf = append(s.buf, chunk[:n]...)
	return len(s.buf), nil
}

// ReadAvailable implements bench.Link
func (s *SerialLink) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buf
	s.buf = nil
	return out, nil
}

// DrainStale implements bench.Link
func (s *SerialLink) DrainStale() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	if s.port == nil {
		return nil
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		s.closeLocked()
		return bench.WrapError(bench.KindPortUnavailable, err, "flush %s", s.name)
	}
	return nil
}

// Close implements bench.Link
func (s *SerialLink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *SerialLink) closeLocked() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.buf = nil
	return err
}

var _ bench.Link = (*SerialLink)(nil)
