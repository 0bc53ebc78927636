// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package instrument turns a bench configuration into ready-to-use
// instruments: one runner per device, one bus per physical link.
package instrument

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/powerbench/internal/config"
	"github.com/Thermoquad/powerbench/pkg/bench"
	"github.com/Thermoquad/powerbench/pkg/link"
	"github.com/Thermoquad/powerbench/pkg/protocols/acsource"
	"github.com/Thermoquad/powerbench/pkg/protocols/calib"
	"github.com/Thermoquad/powerbench/pkg/protocols/dcsource"
	"github.com/Thermoquad/powerbench/pkg/protocols/load"
	"github.com/Thermoquad/powerbench/pkg/protocols/relay"
)

// device is the family-specific behaviour behind an Instrument
type device interface {
	identify(ctx context.Context) (string, error)
	sample(ctx context.Context) (map[string]float64, error)
	command(name string, arg string) (bench.Command, error)
	commands() []string
}

// Instrument is one configured device
type Instrument struct {
	name    string
	family  string
	link    string
	address uint8
	runner  *bench.Runner
	dev     device
}

// Name returns the configured instrument name
func (i *Instrument) Name() string { return i.name }

// Family returns the protocol family
func (i *Instrument) Family() string { return i.family }

// Link returns the name of the link the instrument is on
func (i *Instrument) Link() string { return i.link }

// Address returns the bus address
func (i *Instrument) Address() uint8 { return i.address }

// Runner returns the transaction runner bound to the instrument's bus
func (i *Instrument) Runner() *bench.Runner { return i.runner }

// Identify reads the model or firmware string
func (i *Instrument) Identify(ctx context.Context) (string, error) {
	return i.dev.identify(ctx)
}

// Sample reads the instrument's measurements as named values
func (i *Instrument) Sample(ctx context.Context) (map[string]float64, error) {
	return i.dev.sample(ctx)
}

// Command builds a named command for this instrument. arg is the single
// optional argument (a setpoint, flag or index).
func (i *Instrument) Command(name, arg string) (bench.Command, error) {
	return i.dev.command(name, arg)
}

// Commands lists the command names Command accepts
func (i *Instrument) Commands() []string {
	names := i.dev.commands()
	sort.Strings(names)
	return names
}

// Execute runs cmd and returns the decoded record
func (i *Instrument) Execute(ctx context.Context, cmd bench.Command) (bench.Record, error) {
	return i.runner.Execute(ctx, cmd)
}

// LinkOpener creates the bench.Link for a configured link
type LinkOpener func(cfg config.LinkConfig) (bench.Link, error)

// OpenLink creates a serial or WebSocket link. Links open lazily on the
// first transaction.
func OpenLink(cfg config.LinkConfig) (bench.Link, error) {
	if cfg.URL != "" {
		ws, err := link.NewWebSocketLink(link.WebSocketConfig{
			URL:           cfg.URL,
			Username:      cfg.Username,
			Password:      cfg.Password,
			SkipSSLVerify: cfg.SkipSSLVerify,
		})
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
	return link.NewSerialLink(cfg.Port, cfg.Baud), nil
}

// Bench holds every configured instrument and the buses they share
type Bench struct {
	instruments []*Instrument
	byName      map[string]*Instrument
	buses       map[string]*bench.Bus
}

// Options tune how runners are built
type Options struct {
	Logger   *logrus.Logger
	Observer bench.Observer
	// Clock replaces the waiter clock, for tests
	Clock bench.Clock
}

// Build creates the bench described by cfg. cfg must already be valid.
func Build(cfg *config.Config, open LinkOpener, opts Options) (*Bench, error) {
	if open == nil {
		open = OpenLink
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	b := &Bench{
		byName: make(map[string]*Instrument),
		buses:  make(map[string]*bench.Bus),
	}
	for _, lc := range cfg.Links {
		l, err := open(lc)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("link %q: %w", lc.Name, err)
		}
		b.buses[lc.Name] = bench.NewBus(l)
	}

	timing := bench.Timing{
		PollInterval: cfg.Timing.PollInterval,
		ArrivalPolls: cfg.Timing.ArrivalPolls,
		MaxPolls:     cfg.Timing.MaxPolls,
	}

	for _, ic := range cfg.Instruments {
		bus, ok := b.buses[ic.Link]
		if !ok {
			b.Close()
			return nil, fmt.Errorf("instrument %q: unknown link %q", ic.Name, ic.Link)
		}

		waiter := bench.NewWaiter(timing)
		if opts.Clock != nil {
			waiter.Clock = opts.Clock
		}
		ropts := []bench.Option{
			bench.WithWaiter(waiter),
			bench.WithRetryDelay(cfg.Timing.RetryDelay),
			bench.WithLogger(logger.WithFields(logrus.Fields{
				"instrument": ic.Name,
				"link":       ic.Link,
			})),
		}
		if ic.Retries > 0 {
			ropts = append(ropts, bench.WithRetries(ic.Retries))
		}
		if opts.Observer != nil {
			ropts = append(ropts, bench.WithObserver(opts.Observer))
		}

		in, err := newInstrument(ic, bus, ropts)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.instruments = append(b.instruments, in)
		b.byName[in.name] = in
	}
	return b, nil
}

func newInstrument(ic config.InstrumentConfig, bus *bench.Bus, opts []bench.Option) (*Instrument, error) {
	in := &Instrument{
		name:    ic.Name,
		family:  ic.Family,
		link:    ic.Link,
		address: uint8(ic.Address),
	}
	switch ic.Family {
	case load.Name:
		in.runner = load.NewRunner(bus, opts...)
		in.dev = &loadDevice{load.NewClient(in.runner, in.address)}
	case acsource.Name:
		in.runner = acsource.NewRunner(bus, opts...)
		in.dev = &acDevice{acsource.NewClient(in.runner, in.address)}
	case dcsource.Name:
		in.runner = dcsource.NewRunner(bus, opts...)
		in.dev = &dcDevice{dcsource.NewClient(in.runner, in.address)}
	case relay.Name:
		in.runner = relay.NewRunner(bus, opts...)
		in.dev = &relayDevice{relay.NewClient(in.runner, in.address)}
	case calib.Name:
		in.runner = calib.NewRunner(bus, opts...)
		in.dev = &calibDevice{calib.NewClient(in.runner, in.address)}
	default:
		return nil, fmt.Errorf("instrument %q: unknown family %q", ic.Name, ic.Family)
	}
	return in, nil
}

// Protocol returns the codec and payload decoder of a family
func Protocol(family string) (bench.Protocol, bool) {
	switch family {
	case load.Name:
		return load.New(), true
	case acsource.Name:
		return acsource.New(), true
	case dcsource.Name:
		return dcsource.New(), true
	case relay.Name:
		return relay.New(), true
	case calib.Name:
		return calib.New(), true
	}
	return nil, false
}

// Instruments returns every instrument in configuration order
func (b *Bench) Instruments() []*Instrument {
	return b.instruments
}

// Instrument returns the named instrument
func (b *Bench) Instrument(name string) (*Instrument, bool) {
	in, ok := b.byName[name]
	return in, ok
}

// Close closes every link
func (b *Bench) Close() error {
	var first error
	for _, bus := range b.buses {
		if err := bus.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
