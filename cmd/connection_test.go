// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"

	"github.com/Thermoquad/powerbench/internal/config"
)

func resetFlags() {
	portName, baudRate = "", 0
	wsURL, wsUsername, wsNoSSLVerify = "", "", false
	linkName = ""
	adhocFamily, adhocAddress = "", 1
}

// ============================================================================
// Connection flag overlay
// ============================================================================

func TestApplyConnectionFlags_NoFlags(t *testing.T) {
	resetFlags()
	cfg := config.Default()
	if err := applyConnectionFlags(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Links) != 0 {
		t.Errorf("links = %d, want 0", len(cfg.Links))
	}
}

func TestApplyConnectionFlags_DefaultLink(t *testing.T) {
	resetFlags()
	defer resetFlags()
	portName = "/dev/ttyUSB0"
	baudRate = 19200
	adhocFamily = "load"
	adhocAddress = 3

	cfg := config.Default()
	if err := applyConnectionFlags(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Links) != 1 {
		t.Fatalf("links = %d, want 1", len(cfg.Links))
	}
	l := cfg.Links[0]
	if l.Name != defaultLink || l.Port != "/dev/ttyUSB0" || l.Baud != 19200 {
		t.Errorf("link = %+v", l)
	}
	if len(cfg.Instruments) != 1 {
		t.Fatalf("instruments = %d, want 1", len(cfg.Instruments))
	}
	in := cfg.Instruments[0]
	if in.Name != "load" || in.Family != "load" || in.Link != defaultLink || in.Address != 3 {
		t.Errorf("instrument = %+v", in)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("overlaid config invalid: %v", err)
	}
}

func TestApplyConnectionFlags_OverridesFirstLink(t *testing.T) {
	resetFlags()
	defer resetFlags()
	wsURL = "ws://bridge.local/serial"
	wsUsername = "bench"

	cfg := config.Default()
	cfg.Links = []config.LinkConfig{
		{Name: "rs485", Port: "/dev/ttyUSB0", Baud: 9600},
		{Name: "usb", Port: "/dev/ttyACM0"},
	}
	if err := applyConnectionFlags(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l := cfg.Links[0]
	if l.URL != "ws://bridge.local/serial" || l.Port != "" || l.Username != "bench" {
		t.Errorf("link = %+v", l)
	}
	if cfg.Links[1].Port != "/dev/ttyACM0" {
		t.Errorf("second link changed: %+v", cfg.Links[1])
	}
}

func TestApplyConnectionFlags_NamedLink(t *testing.T) {
	resetFlags()
	defer resetFlags()
	portName = "/dev/ttyUSB9"
	linkName = "usb"

	cfg := config.Default()
	cfg.Links = []config.LinkConfig{
		{Name: "rs485", Port: "/dev/ttyUSB0"},
		{Name: "usb", Port: "/dev/ttyACM0"},
	}
	if err := applyConnectionFlags(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Links[0].Port != "/dev/ttyUSB0" || cfg.Links[1].Port != "/dev/ttyUSB9" {
		t.Errorf("links = %+v", cfg.Links)
	}
}

func TestApplyConnectionFlags_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func()
	}{
		{"port and url", func() { portName, wsURL = "/dev/ttyUSB0", "ws://x/" }},
		{"link without endpoint", func() { linkName = "rs485" }},
		{"family without endpoint", func() { adhocFamily = "load" }},
		{"unknown link", func() { portName, linkName = "/dev/ttyUSB0", "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			defer resetFlags()
			tt.setup()

			cfg := config.Default()
			cfg.Links = []config.LinkConfig{{Name: "rs485", Port: "/dev/ttyUSB0"}}
			if err := applyConnectionFlags(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ============================================================================
// Output helpers
// ============================================================================

func TestDescribeLink(t *testing.T) {
	tests := []struct {
		cfg  config.LinkConfig
		want string
	}{
		{config.LinkConfig{Name: "a", Port: "/dev/ttyUSB0"}, "a: Serial /dev/ttyUSB0 @ 9600 baud"},
		{config.LinkConfig{Name: "b", Port: "COM3", Baud: 115200}, "b: Serial COM3 @ 115200 baud"},
		{config.LinkConfig{Name: "c", URL: "wss://x/y"}, "c: WebSocket wss://x/y"},
	}
	for _, tt := range tests {
		if got := describeLink(tt.cfg); got != tt.want {
			t.Errorf("describeLink(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestFormatValues(t *testing.T) {
	got := formatValues(map[string]float64{"voltage": 12.5, "current": 1})
	// styled output keeps the values and the sorted order
	ci, vi := strings.Index(got, "current="), strings.Index(got, "voltage=")
	if ci < 0 || vi < 0 || ci > vi {
		t.Errorf("formatValues = %q", got)
	}
}
