// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import "sync"

// Link is one physical half-duplex channel to one or more instruments
type Link interface {
	// EnsureOpen opens the link if it is not open. Failures are
	// KindPortUnavailable.
	EnsureOpen() error
	Write(p []byte) error
	// BytesPending returns how many received bytes are waiting to be read
	BytesPending() (int, error)
	// ReadAvailable returns and consumes every pending byte
	ReadAvailable() ([]byte, error)
	// DrainStale discards anything left over from an earlier transaction
	DrainStale() error
	Close() error
}

// Bus serializes whole transactions on one Link. Instruments sharing a
// multi-drop link share one Bus.
type Bus struct {
	mu   sync.Mutex
	link Link
}

// NewBus wraps a link
func NewBus(link Link) *Bus {
	return &Bus{link: link}
}

// Do runs fn with exclusive use of the link
func (b *Bus) Do(fn func(Link) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b.link)
}

// Close closes the underlying link once no transaction is in flight
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link.Close()
}
