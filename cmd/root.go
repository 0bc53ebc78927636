// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/powerbench/internal/config"
)

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// linkName selects the link the connection flags apply to
	linkName string

	// Ad-hoc instrument on the flag link
	adhocFamily  string
	adhocAddress int
)

// Loaded by the root PersistentPreRunE
var (
	benchConfig *config.Config
	logger      *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "powerbench",
	Short: "Bench instrument transaction tool",
	Long: `Powerbench - drives electronic loads, AC and DC sources, relay
controllers and calibration meters over half-duplex serial links.

Instruments and the links they hang off are described in a YAML bench file
(--config). Connection flags override the endpoint of one link (--link, by
default the first); with no bench file they define a single link named
"default". --family adds an instrument on that link named after its family,
so a single device can be driven without a bench file:

  powerbench --port /dev/ttyUSB0 --family load --address 1 exec load measurements

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the
POWERBENCH_PASSWORD environment variable, or prompted interactively if not
set. The --password flag is intentionally not provided to avoid leaking
credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Bench file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides the bench file)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&linkName, "link", "", "Link the connection flags apply to")
	rootCmd.PersistentFlags().StringVar(&adhocFamily, "family", "", "Add an instrument of this family on the flag link")
	rootCmd.PersistentFlags().IntVar(&adhocAddress, "address", 1, "Bus address of the --family instrument")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	if err := applyConnectionFlags(cfg); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	l, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	benchConfig = cfg
	logger = l
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
