// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package benchtest provides a scripted link and a manual clock for
// exercising the transaction engine without hardware.
package benchtest

import (
	"errors"
	"sync"
	"time"
)

// Reply scripts the device side of one exchange
type Reply struct {
	// Chunks become visible one per BytesPending poll
	Chunks [][]byte
	// Echo replies with exactly the bytes written
	Echo bool
}

// Bytes is a reply delivered in a single chunk
func Bytes(b []byte) Reply {
	return Reply{Chunks: [][]byte{b}}
}

// Split is a reply delivered in two chunks split at n
func Split(b []byte, n int) Reply {
	return Reply{Chunks: [][]byte{b[:n], b[n:]}}
}

// Silence is a reply that never arrives
func Silence() Reply {
	return Reply{}
}

// ErrClosed is returned by a closed link that is not reopened
var ErrClosed = errors.New("benchtest: link closed")

// Link is a scripted bench.Link. Every Write consumes the next scripted
// Reply; once the script runs out Respond is consulted, and after that
// the device stays silent.
type Link struct {
	mu sync.Mutex

	Replies []Reply
	Respond func(sent []byte) Reply

	// OpenErr fails EnsureOpen; PendingErr fails BytesPending
	OpenErr    error
	WriteErr   error
	PendingErr error
	ReadErr    error

	Written [][]byte
	Opens   int
	Drains  int
	Polls   int
	open    bool
	pending []byte
	queued  [][]byte
}

// NewLink returns a link that answers with replies in order
func NewLink(replies ...Reply) *Link {
	return &Link{Replies: replies}
}

// EnsureOpen implements bench.Link
func (l *Link) EnsureOpen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.OpenErr != nil {
		return l.OpenErr
	}
	if !l.open {
		l.open = true
		l.Opens++
	}
	return nil
}

// Write implements bench.Link
func (l *Link) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.WriteErr != nil {
		return l.WriteErr
	}
	if !l.open {
		return ErrClosed
	}
	sent := append([]byte(nil), p...)
	l.Written = append(l.Written, sent)

	var r Reply
	switch {
	case len(l.Replies) > 0:
		r = l.Replies[0]
		l.Replies = l.Replies[1:]
	case l.Respond != nil:
		r = l.Respond(sent)
	}
	if r.Echo {
		l.queued = append(l.queued, sent)
		return nil
	}
	for _, c := range r.Chunks {
		l.queued = append(l.queued, append([]byte(nil), c...))
	}
	return nil
}

// BytesPending implements bench.Link. Each call makes one more queued
// chunk visible.
func (l *Link) BytesPending() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Polls++
	if l.PendingErr != nil {
		return 0, l.PendingErr
	}
	if len(l.queued) > 0 {
		l.pending = append(l.pending, l.queued[0]...)
		l.queued = l.queued[1:]
	}
	return len(l.pending), nil
}

// ReadAvailable implements bench.Link
func (l *Link) ReadAvailable() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ReadErr != nil {
		return nil, l.ReadErr
	}
	out := l.pending
	l.pending = nil
	return out, nil
}

// DrainStale implements bench.Link
func (l *Link) DrainStale() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Drains++
	l.pending = nil
	l.queued = nil
	return nil
}

// Close implements bench.Link
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	return nil
}

// Inject makes b pending as if it arrived unsolicited
func (l *Link) Inject(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, b...)
}

// Writes returns a copy of every frame written so far
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.Written...)
}

// Clock is a manual bench.Clock. Sleep advances time instantly.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	Sleeps int
	Slept  time.Duration
}

// NewClock returns a clock starting at a fixed instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now implements bench.Clock
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep implements bench.Clock
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps++
	c.Slept += d
	c.now = c.now.Add(d)
}
