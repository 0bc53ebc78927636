// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/powerbench/pkg/protocols/acsource"
	"github.com/Thermoquad/powerbench/pkg/protocols/calib"
	"github.com/Thermoquad/powerbench/pkg/protocols/dcsource"
	"github.com/Thermoquad/powerbench/pkg/protocols/load"
	"github.com/Thermoquad/powerbench/pkg/protocols/relay"
)

// Families lists the instrument families a bench file may name
var Families = []string{load.Name, acsource.Name, dcsource.Name, relay.Name, calib.Name}

func knownFamily(name string) bool {
	for _, f := range Families {
		if f == name {
			return true
		}
	}
	return false
}

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q (use text or json)", cfg.Log.Format)
	}

	t := cfg.Timing
	if t.PollInterval <= 0 {
		return fmt.Errorf("timing: poll_interval must be positive")
	}
	if t.ArrivalPolls < 1 {
		return fmt.Errorf("timing: arrival_polls must be at least 1")
	}
	if t.MaxPolls <= t.ArrivalPolls {
		return fmt.Errorf("timing: max_polls (%d) must exceed arrival_polls (%d)", t.MaxPolls, t.ArrivalPolls)
	}
	if t.RetryDelay < 0 {
		return fmt.Errorf("timing: retry_delay must not be negative")
	}

	links := make(map[string]bool)
	for i, l := range cfg.Links {
		if l.Name == "" {
			return fmt.Errorf("link %d: name is required", i)
		}
		if links[l.Name] {
			return fmt.Errorf("link %q: duplicate name", l.Name)
		}
		links[l.Name] = true

		switch {
		case l.Port != "" && l.URL != "":
			return fmt.Errorf("link %q: port and url are mutually exclusive", l.Name)
		case l.Port == "" && l.URL == "":
			return fmt.Errorf("link %q: either port or url must be set", l.Name)
		}
		if l.Baud < 0 {
			return fmt.Errorf("link %q: baud must not be negative", l.Name)
		}
	}

	names := make(map[string]bool)
	// key = link | address
	owners := make(map[string]string)
	for i, in := range cfg.Instruments {
		if in.Name == "" {
			return fmt.Errorf("instrument %d: name is required", i)
		}
		if names[in.Name] {
			return fmt.Errorf("instrument %q: duplicate name", in.Name)
		}
		names[in.Name] = true

		if !knownFamily(in.Family) {
			return fmt.Errorf("instrument %q: unknown family %q", in.Name, in.Family)
		}
		if !links[in.Link] {
			return fmt.Errorf("instrument %q: unknown link %q", in.Name, in.Link)
		}
		if in.Address < 0 || in.Address > 0xFF {
			return fmt.Errorf("instrument %q: address %d out of range 0-255", in.Name, in.Address)
		}
		if in.Family == dcsource.Name && (in.Address < 1 || in.Address > 247) {
			return fmt.Errorf("instrument %q: modbus address %d out of range 1-247", in.Name, in.Address)
		}
		if in.Retries < 0 {
			return fmt.Errorf("instrument %q: retries must not be negative", in.Name)
		}

		key := fmt.Sprintf("%s|%d", in.Link, in.Address)
		if prev, exists := owners[key]; exists {
			return fmt.Errorf("address collision: link=%s address=%d used by %q and %q", in.Link, in.Address, prev, in.Name)
		}
		owners[key] = in.Name
	}

	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll: interval must be positive")
	}
	if cfg.Poll.Redis.Addr != "" && cfg.Poll.Redis.Channel == "" && cfg.Poll.Redis.Key == "" {
		return fmt.Errorf("poll: redis needs a channel or a key")
	}
	return nil
}
