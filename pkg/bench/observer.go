// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import "time"

// Attempt describes one send/receive exchange inside a transaction
type Attempt struct {
	Family   string
	Command  Command
	Attempt  int
	Sent     []byte
	Received []byte
	Err      error
	Elapsed  time.Duration
	At       time.Time
}

// Summary describes one finished logical call
type Summary struct {
	Family    string
	Command   Command
	Attempts  int
	Recovered bool
	Err       error
	Elapsed   time.Duration
}

// Observer receives transaction events. Implementations must not block.
type Observer interface {
	ObserveAttempt(a Attempt)
	ObserveTransaction(s Summary)
}

// Observers fans events out to several observers
type Observers []Observer

// ObserveAttempt implements Observer
func (o Observers) ObserveAttempt(a Attempt) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveAttempt(a)
		}
	}
}

// ObserveTransaction implements Observer
func (o Observers) ObserveTransaction(s Summary) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveTransaction(s)
		}
	}
}
