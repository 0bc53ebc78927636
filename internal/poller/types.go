// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package poller

import "time"

// Reading is the outcome of sampling one instrument
type Reading struct {
	Instrument string             `json:"instrument"`
	Family     string             `json:"family"`
	At         time.Time          `json:"at"`
	Values     map[string]float64 `json:"values,omitempty"`
	Error      string             `json:"error,omitempty"`
	// Kind is the bench error kind of a failed read
	Kind string `json:"kind,omitempty"`

	Err error `json:"-"`
}

// OK reports whether the instrument answered
func (r Reading) OK() bool {
	return r.Err == nil
}

// Snapshot is produced by one poll cycle
type Snapshot struct {
	At       time.Time
	Readings []Reading
}

// Failed counts the instruments that did not answer
func (s Snapshot) Failed() int {
	n := 0
	for _, r := range s.Readings {
		if !r.OK() {
			n++
		}
	}
	return n
}
