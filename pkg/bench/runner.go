// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRetries is the attempt bound used when none is configured
const DefaultRetries = 3

// Transaction states
const (
	stateSending = iota
	stateWaiting
	stateValidating
	stateDecoding
	stateRetryPending
	stateFailed
)

// Runner executes commands of one instrument family over a shared Bus
type Runner struct {
	bus        *Bus
	proto      Protocol
	remote     RemoteSwitcher
	waiter     *Waiter
	retries    int
	retryDelay time.Duration
	log        *logrus.Entry
	observer   Observer
}

// Option configures a Runner
type Option func(*Runner)

// WithRetries sets the attempt bound. Values below one are ignored.
func WithRetries(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.retries = n
		}
	}
}

// WithWaiter replaces the response waiter
func WithWaiter(w *Waiter) Option {
	return func(r *Runner) { r.waiter = w }
}

// WithRetryDelay pauses between a failed attempt and its resend
func WithRetryDelay(d time.Duration) Option {
	return func(r *Runner) { r.retryDelay = d }
}

// WithLogger sets the log entry used for attempt and failure logging
func WithLogger(l *logrus.Entry) Option {
	return func(r *Runner) { r.log = l }
}

// WithObserver attaches transaction observers
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithoutRemoteRecovery disables the local-mode recovery even when the
// protocol supports it
func WithoutRemoteRecovery() Option {
	return func(r *Runner) { r.remote = nil }
}

// NewRunner creates a runner. Protocols implementing RemoteSwitcher get
// local-mode recovery.
func NewRunner(bus *Bus, proto Protocol, opts ...Option) *Runner {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	r := &Runner{
		bus:     bus,
		proto:   proto,
		waiter:  NewWaiter(DefaultTiming),
		retries: DefaultRetries,
		log:     logrus.NewEntry(quiet),
	}
	if rs, ok := proto.(RemoteSwitcher); ok {
		r.remote = rs
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("family", proto.Spec().Name)
	return r
}

// Family returns the protocol family name
func (r *Runner) Family() string {
	return r.proto.Spec().Name
}

// Execute runs one logical command to completion. The link is held for
// the whole call, retries and remote-mode recovery included.
func (r *Runner) Execute(ctx context.Context, cmd Command) (Record, error) {
	start := r.clock().Now()
	var (
		rec Record
		sum Summary
	)
	err := r.bus.Do(func(link Link) error {
		var err error
		rec, sum, err = r.transact(ctx, link, cmd, true)
		return err
	})
	sum.Family = r.Family()
	sum.Command = cmd
	sum.Err = err
	sum.Elapsed = r.clock().Now().Sub(start)
	if r.observer != nil {
		r.observer.ObserveTransaction(sum)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Runner) clock() Clock {
	if r.waiter != nil && r.waiter.Clock != nil {
		return r.waiter.Clock
	}
	return SystemClock
}

// transact is the per-call state machine. The encoded frame is built once
// and resent byte-identical on every attempt.
func (r *Runner) transact(ctx context.Context, link Link, cmd Command, allowRecovery bool) (Record, Summary, error) {
	var sum Summary

	sent, err := r.proto.Encode(cmd)
	if err != nil {
		return nil, sum, fmt.Errorf("%s: encode %s: %w", r.Family(), cmd, err)
	}

	log := r.log.WithFields(logrus.Fields{
		"address": cmd.Address,
		"command": cmd.String(),
	})

	var (
		state     = stateSending
		failures  int
		lastErr   error
		frame     *Frame
		raw       []byte
		attemptAt time.Time
	)

	finishAttempt := func(err error) {
		if r.observer == nil {
			return
		}
		r.observer.ObserveAttempt(Attempt{
			Family:   r.Family(),
			Command:  cmd,
			Attempt:  sum.Attempts,
			Sent:     sent,
			Received: raw,
			Err:      err,
			Elapsed:  r.clock().Now().Sub(attemptAt),
			At:       attemptAt,
		})
	}

	for {
		switch state {
		case stateSending:
			if err := ctx.Err(); err != nil {
				lastErr = err
				state = stateFailed
				continue
			}
			sum.Attempts++
			raw = nil
			attemptAt = r.clock().Now()
			log.WithField("attempt", sum.Attempts).Debugf("-> % X", sent)
			if err := r.send(link, sent); err != nil {
				lastErr = err
				finishAttempt(err)
				state = stateFailed
				continue
			}
			state = stateWaiting

		case stateWaiting:
			if _, err := r.waiter.Wait(ctx, link); err != nil {
				lastErr = err
				finishAttempt(err)
				state = r.afterFailure(ctx, err)
				continue
			}
			state = stateValidating

		case stateValidating:
			raw, err = link.ReadAvailable()
			if err != nil {
				lastErr = WrapError(KindPortUnavailable, err, "reading reply")
				finishAttempt(lastErr)
				state = stateFailed
				continue
			}
			log.WithField("attempt", sum.Attempts).Debugf("<- % X", raw)

			frame, err = r.proto.Decode(sent, raw)
			if err != nil {
				lastErr = err
				finishAttempt(err)
				if KindOf(err) == KindDeviceInLocalMode && allowRecovery && !sum.Recovered && r.remote != nil {
					sum.Recovered = true
					log.Info("device in local mode, switching to remote control")
					if rerr := r.recover(ctx, link, cmd.Address); rerr != nil {
						lastErr = rerr
						if !surfacesDirectly(rerr) {
							lastErr = WrapError(KindDeviceInLocalMode, rerr, "switching %s to remote control", r.Family())
						}
						state = stateFailed
						continue
					}
					state = stateSending
					continue
				}
				state = r.afterFailure(ctx, err)
				continue
			}
			state = stateDecoding

		case stateDecoding:
			rec, err := r.proto.DecodePayload(cmd, frame)
			finishAttempt(err)
			if err != nil {
				lastErr = err
				state = r.afterFailure(ctx, err)
				continue
			}
			if failures > 0 {
				log.WithField("attempts", sum.Attempts).Info("succeeded after retry")
			}
			return rec, sum, nil

		case stateRetryPending:
			failures++
			if failures >= r.retries {
				state = stateFailed
				continue
			}
			log.WithFields(logrus.Fields{
				"attempt": sum.Attempts,
				"kind":    KindOf(lastErr).String(),
			}).Warnf("retrying: %v", lastErr)
			if r.retryDelay > 0 {
				r.clock().Sleep(r.retryDelay)
			}
			state = stateSending

		case stateFailed:
			err := withAttempts(lastErr, sum.Attempts)
			log.WithFields(logrus.Fields{
				"attempts": sum.Attempts,
				"kind":     KindOf(err).String(),
			}).Warnf("transaction failed: %v", err)
			return nil, sum, err
		}
	}
}

// send opens the link if needed, discards stale input and writes the frame
func (r *Runner) send(link Link, frame []byte) error {
	if err := link.EnsureOpen(); err != nil {
		return asPortError(err, "opening link")
	}
	if err := link.DrainStale(); err != nil {
		return asPortError(err, "draining stale input")
	}
	if err := link.Write(frame); err != nil {
		return asPortError(err, "writing frame")
	}
	return nil
}

// recover issues the family's remote-control command as a nested
// transaction with recovery disabled
func (r *Runner) recover(ctx context.Context, link Link, address uint8) error {
	_, _, err := r.transact(ctx, link, r.remote.RemoteCommand(address), false)
	return err
}

func (r *Runner) afterFailure(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return stateFailed
	}
	if KindOf(err).Retryable() {
		return stateRetryPending
	}
	return stateFailed
}

// surfacesDirectly reports whether a failed remote switch keeps its own
// kind: link faults, unknown replies and cancellation are not a device
// refusing remote control
func surfacesDirectly(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch KindOf(err) {
	case KindPortUnavailable, KindLoopbackFault, KindUnknownResponse:
		return true
	}
	return false
}

func asPortError(err error, action string) error {
	if KindOf(err) == KindPortUnavailable {
		return err
	}
	return WrapError(KindPortUnavailable, err, "%s", action)
}

// withAttempts stamps the attempt count on a classified error
func withAttempts(err error, attempts int) error {
	var e *Error
	if errors.As(err, &e) && e == err {
		stamped := *e
		stamped.Attempts = attempts
		return &stamped
	}
	return err
}

var _ Executor = (*Runner)(nil)
