// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/powerbench/pkg/bench"
	"github.com/Thermoquad/powerbench/pkg/protocols/acsource"
	"github.com/Thermoquad/powerbench/pkg/protocols/calib"
	"github.com/Thermoquad/powerbench/pkg/protocols/dcsource"
	"github.com/Thermoquad/powerbench/pkg/protocols/load"
	"github.com/Thermoquad/powerbench/pkg/protocols/relay"
)

// builder makes a command from the single CLI argument
type builder func(address uint8, arg string) (bench.Command, error)

type commandTable map[string]builder

func (t commandTable) build(family string, address uint8, name, arg string) (bench.Command, error) {
	b, ok := t[name]
	if !ok {
		return bench.Command{}, fmt.Errorf("%s has no command %q", family, name)
	}
	return b(address, arg)
}

func (t commandTable) names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	return names
}

func noArg(f func(uint8) bench.Command) builder {
	return func(address uint8, arg string) (bench.Command, error) {
		if arg != "" {
			return bench.Command{}, fmt.Errorf("command takes no argument")
		}
		return f(address), nil
	}
}

// floatArg parses a setpoint; the family builder range-checks it
func floatArg(f func(uint8, float64) (bench.Command, error)) builder {
	return func(address uint8, arg string) (bench.Command, error) {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return bench.Command{}, fmt.Errorf("invalid value %q: %w", arg, err)
		}
		return f(address, v)
	}
}

func boolArg(f func(uint8, bool) bench.Command) builder {
	return func(address uint8, arg string) (bench.Command, error) {
		switch strings.ToLower(arg) {
		case "on", "1", "true":
			return f(address, true), nil
		case "off", "0", "false":
			return f(address, false), nil
		}
		return bench.Command{}, fmt.Errorf("invalid flag %q (use on or off)", arg)
	}
}

func uintArg[T uint8 | uint32](f func(uint8, T) bench.Command, bits int) builder {
	return func(address uint8, arg string) (bench.Command, error) {
		v, err := strconv.ParseUint(arg, 0, bits)
		if err != nil {
			return bench.Command{}, fmt.Errorf("invalid value %q: %w", arg, err)
		}
		return f(address, T(v)), nil
	}
}

func onOff(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

// ============================================================
// Electronic load
// ============================================================

type loadDevice struct{ c *load.Client }

var loadCommands = commandTable{
	"remote":         boolArg(load.NewRemote),
	"input":          boolArg(load.NewInput),
	"set-current":    floatArg(load.NewSetCurrent),
	"set-voltage":    floatArg(load.NewSetVoltage),
	"set-power":      floatArg(load.NewSetPower),
	"set-resistance": floatArg(load.NewSetResistance),
	"measurements":   noArg(load.NewReadMeasurements),
	"product-info":   noArg(load.NewReadProductInfo),
	"mode": func(address uint8, arg string) (bench.Command, error) {
		for _, m := range []load.Mode{load.ModeCC, load.ModeCV, load.ModeCW, load.ModeCR} {
			if strings.EqualFold(arg, m.String()) {
				return load.NewMode(address, m), nil
			}
		}
		return bench.Command{}, fmt.Errorf("invalid mode %q (use CC, CV, CW or CR)", arg)
	},
}

func (d *loadDevice) identify(ctx context.Context) (string, error) {
	info, err := d.c.ReadProductInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.String(), nil
}

func (d *loadDevice) sample(ctx context.Context) (map[string]float64, error) {
	m, err := d.c.ReadMeasurements(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"voltage":  m.Voltage,
		"current":  m.Current,
		"power":    m.Power,
		"input_on": onOff(m.Operation.InputOn),
		"fault":    onOff(m.Operation.Fault),
	}, nil
}

func (d *loadDevice) command(name, arg string) (bench.Command, error) {
	return loadCommands.build(load.Name, d.c.Address(), name, arg)
}

func (d *loadDevice) commands() []string { return loadCommands.names() }

// ============================================================
// AC source
// ============================================================

type acDevice struct{ c *acsource.Client }

var acCommands = commandTable{
	"remote":        noArg(acsource.NewRemote),
	"local":         noArg(acsource.NewLocal),
	"output":        boolArg(acsource.NewOutput),
	"set-voltage":   floatArg(acsource.NewSetVoltage),
	"set-frequency": floatArg(acsource.NewSetFrequency),
	"measurements":  noArg(acsource.NewReadMeasurements),
	"identity":      noArg(acsource.NewReadIdentity),
}

func (d *acDevice) identify(ctx context.Context) (string, error) {
	id, err := d.c.ReadIdentity(ctx)
	if err != nil {
		return "", err
	}
	return id.Model, nil
}

func (d *acDevice) sample(ctx context.Context) (map[string]float64, error) {
	m, err := d.c.ReadMeasurements(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"voltage":      m.Voltage,
		"current":      m.Current,
		"power":        m.Power,
		"frequency":    m.Frequency,
		"power_factor": m.PowerFactor,
	}, nil
}

func (d *acDevice) command(name, arg string) (bench.Command, error) {
	return acCommands.build(acsource.Name, d.c.Address(), name, arg)
}

func (d *acDevice) commands() []string { return acCommands.names() }

// ============================================================
// DC source
// ============================================================

type dcDevice struct{ c *dcsource.Client }

var dcCommands = commandTable{
	"remote":      boolArg(dcsource.NewRemote),
	"output":      boolArg(dcsource.NewOutput),
	"set-voltage": floatArg(dcsource.NewSetVoltage),
	"set-current": floatArg(dcsource.NewSetCurrent),
	"setpoints":   noArg(dcsource.NewReadSetpoints),
	"status":      noArg(dcsource.NewReadStatus),
	"model":       noArg(dcsource.NewReadModel),
}

func (d *dcDevice) identify(ctx context.Context) (string, error) {
	m, err := d.c.ReadModel(ctx)
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

func (d *dcDevice) sample(ctx context.Context) (map[string]float64, error) {
	s, err := d.c.ReadStatus(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"voltage":   s.Voltage,
		"current":   s.Current,
		"power":     s.Power,
		"output_on": onOff(s.OutputOn),
		"protected": onOff(s.OVP || s.OCP || s.OTP),
	}, nil
}

func (d *dcDevice) command(name, arg string) (bench.Command, error) {
	return dcCommands.build(dcsource.Name, d.c.Address(), name, arg)
}

func (d *dcDevice) commands() []string { return dcCommands.names() }

// ============================================================
// Relay controller
// ============================================================

type relayDevice struct{ c *relay.Client }

var relayCommands = commandTable{
	"remote":         noArg(relay.NewRemote),
	"set-relays":     uintArg(relay.NewSetRelays, 32),
	"read-relays":    noArg(relay.NewReadRelays),
	"select-channel": uintArg(relay.NewSelectChannel, 8),
	"status":         noArg(relay.NewReadStatus),
	"version":        noArg(relay.NewReadVersion),
}

func (d *relayDevice) identify(ctx context.Context) (string, error) {
	v, err := d.c.ReadVersion(ctx)
	if err != nil {
		return "", err
	}
	return v.Firmware, nil
}

func (d *relayDevice) sample(ctx context.Context) (map[string]float64, error) {
	state, err := d.c.ReadRelays(ctx)
	if err != nil {
		return nil, err
	}
	status, err := d.c.ReadStatus(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"relays":         float64(state.Mask),
		"interlock_open": onOff(status.InterlockOpen),
		"over_temp":      onOff(status.OverTemp),
	}, nil
}

func (d *relayDevice) command(name, arg string) (bench.Command, error) {
	return relayCommands.build(relay.Name, d.c.Address(), name, arg)
}

func (d *relayDevice) commands() []string { return relayCommands.names() }

// ============================================================
// Calibration meter
// ============================================================

type calibDevice struct{ c *calib.Client }

var calibCommands = commandTable{
	"reference":   noArg(calib.NewReadReference),
	"temperature": noArg(calib.NewReadTemperature),
	"set-range":   uintArg(calib.NewSetRange, 8),
	"store-point": uintArg(calib.NewStorePoint, 8),
}

// The meter has no identity command; a temperature read proves it answers.
func (d *calibDevice) identify(ctx context.Context) (string, error) {
	r, err := d.c.ReadTemperature(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("calibration meter at %s", r), nil
}

func (d *calibDevice) sample(ctx context.Context) (map[string]float64, error) {
	ref, err := d.c.ReadReference(ctx)
	if err != nil {
		return nil, err
	}
	temp, err := d.c.ReadTemperature(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]float64{
		"reference":   ref.Value,
		"temperature": temp.Value,
	}, nil
}

func (d *calibDevice) command(name, arg string) (bench.Command, error) {
	return calibCommands.build(calib.Name, d.c.Address(), name, arg)
}

func (d *calibDevice) commands() []string { return calibCommands.names() }
