// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"context"
	"fmt"
	"time"
)

// Clock is the time source used by the waiter
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock uses the real wall clock
var SystemClock Clock = systemClock{}

// Timing bounds the two polling phases
type Timing struct {
	PollInterval time.Duration
	// ArrivalPolls is how many empty polls are allowed before the first
	// byte arrives
	ArrivalPolls int
	// MaxPolls caps the whole wait, arrival included
	MaxPolls int
}

// Default polling: 100 x 5 ms for the first byte, 2 s hard cap
var DefaultTiming = Timing{
	PollInterval: 5 * time.Millisecond,
	ArrivalPolls: 100,
	MaxPolls:     400,
}

// Waiter blocks until a reply has plausibly finished arriving. No family
// declares its total length in the first bytes, so completion is judged
// by quiescence: two consecutive polls with the same non-zero count.
type Waiter struct {
	Clock  Clock
	Timing Timing
}

// NewWaiter returns a waiter using the system clock
func NewWaiter(timing Timing) *Waiter {
	return &Waiter{Clock: SystemClock, Timing: timing}
}

// Wait polls link until the pending count stops growing and returns it
func (w *Waiter) Wait(ctx context.Context, link Link) (int, error) {
	clock := w.Clock
	if clock == nil {
		clock = SystemClock
	}
	t := w.Timing
	start := clock.Now()

	// Phase 1: arrival
	polls := 0
	last := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := link.BytesPending()
		if err != nil {
			return 0, WrapError(KindPortUnavailable, err, "reading pending byte count")
		}
		polls++
		if n > 0 {
			last = n
			break
		}
		if polls >= t.ArrivalPolls {
			return 0, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("no reply after %d polls (%v)", polls, clock.Now().Sub(start)),
				Details: map[string]interface{}{"polls": polls, "received": 0},
			}
		}
		clock.Sleep(t.PollInterval)
	}

	// Phase 2: quiescence
	for {
		if polls >= t.MaxPolls {
			return last, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("reply still arriving after %d polls (%d bytes)", polls, last),
				Details: map[string]interface{}{"polls": polls, "received": last},
			}
		}
		clock.Sleep(t.PollInterval)
		if err := ctx.Err(); err != nil {
			return last, err
		}
		n, err := link.BytesPending()
		if err != nil {
			return last, WrapError(KindPortUnavailable, err, "reading pending byte count")
		}
		polls++
		if n > 0 && n == last {
			return n, nil
		}
		last = n
	}
}
