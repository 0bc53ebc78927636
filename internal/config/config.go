// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bench description: links, the instruments on
// them and how they are polled.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LogConfig          `yaml:"log"`
	Timing      TimingConfig       `yaml:"timing"`
	Links       []LinkConfig       `yaml:"links"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Poll        PollConfig         `yaml:"poll"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// TimingConfig feeds bench.Timing and the runner retry delay
type TimingConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	ArrivalPolls int           `yaml:"arrival_polls"`
	MaxPolls     int           `yaml:"max_polls"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// LinkConfig is either a local serial port (Port) or a WebSocket bridge (URL)
type LinkConfig struct {
	Name string `yaml:"name"`

	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SkipSSLVerify bool   `yaml:"skip_ssl_verify"`
}

type InstrumentConfig struct {
	Name    string `yaml:"name"`
	Family  string `yaml:"family"`
	Link    string `yaml:"link"`
	Address int    `yaml:"address"`
	// Retries overrides the family attempt bound when non-zero
	Retries int `yaml:"retries"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Trace       string        `yaml:"trace"`
	Redis       RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	// Key, when set, keeps the latest reading per instrument in a hash
	Key string `yaml:"key"`
}

// Load reads a YAML bench file on top of Default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Timing: TimingConfig{
			PollInterval: 5 * time.Millisecond,
			ArrivalPolls: 100,
			MaxPolls:     400,
		},
		Poll: PollConfig{
			Interval: time.Second,
			Redis: RedisConfig{
				Channel: "powerbench.readings",
			},
		},
	}
}

// Link returns the named link
func (c *Config) Link(name string) (LinkConfig, bool) {
	for _, l := range c.Links {
		if l.Name == name {
			return l, true
		}
	}
	return LinkConfig{}, false
}

// Instrument returns the named instrument
func (c *Config) Instrument(name string) (InstrumentConfig, bool) {
	for _, in := range c.Instruments {
		if in.Name == name {
			return in, true
		}
	}
	return InstrumentConfig{}, false
}
