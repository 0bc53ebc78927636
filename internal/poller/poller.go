// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package poller samples every instrument of a bench on a fixed interval.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

// Sampler is the part of an instrument the poller needs
type Sampler interface {
	Name() string
	Family() string
	Sample(ctx context.Context) (map[string]float64, error)
}

// Poller is a clock-driven sampler. Instruments are read one after the
// other in configuration order.
type Poller struct {
	interval time.Duration
	samplers []Sampler
	now      func() time.Time
}

// New creates a poller
func New(interval time.Duration, samplers []Sampler) (*Poller, error) {
	if interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(samplers) == 0 {
		return nil, errors.New("poller: at least one instrument required")
	}
	return &Poller{interval: interval, samplers: samplers, now: time.Now}, nil
}

// PollOnce performs exactly one poll cycle. A failing instrument does not
// abort the cycle; its reading carries the error instead.
func (p *Poller) PollOnce(ctx context.Context) Snapshot {
	snap := Snapshot{At: p.now()}
	for _, s := range p.samplers {
		if ctx.Err() != nil {
			break
		}
		r := Reading{
			Instrument: s.Name(),
			Family:     s.Family(),
			At:         p.now(),
		}
		values, err := s.Sample(ctx)
		if err != nil {
			r.Err = err
			r.Error = err.Error()
			r.Kind = bench.KindOf(err).String()
		} else {
			r.Values = values
		}
		snap.Readings = append(snap.Readings, r)
	}
	return snap
}

// Run polls immediately and then on every tick until ctx is done.
// Snapshots are not dropped: a slow consumer delays the next cycle.
func (p *Poller) Run(ctx context.Context, out chan<- Snapshot) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap := p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case out <- snap:
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
