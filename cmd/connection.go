// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/powerbench/internal/config"
	"github.com/Thermoquad/powerbench/internal/instrument"
	"github.com/Thermoquad/powerbench/pkg/bench"
)

// defaultLink names the link created from connection flags alone
const defaultLink = "default"

// applyConnectionFlags points one configured link at the endpoint given on
// the command line
func applyConnectionFlags(cfg *config.Config) error {
	if portName == "" && wsURL == "" {
		if linkName != "" {
			return fmt.Errorf("--link requires --port or --url")
		}
		if adhocFamily != "" {
			return fmt.Errorf("--family requires --port or --url")
		}
		return nil
	}
	if portName != "" && wsURL != "" {
		return fmt.Errorf("--port and --url are mutually exclusive")
	}

	target := linkName
	if target == "" {
		if len(cfg.Links) > 0 {
			target = cfg.Links[0].Name
		} else {
			target = defaultLink
		}
	}

	idx := -1
	for i, l := range cfg.Links {
		if l.Name == target {
			idx = i
		}
	}
	if idx < 0 {
		if linkName != "" && len(cfg.Links) > 0 {
			return fmt.Errorf("unknown link %q", linkName)
		}
		cfg.Links = append(cfg.Links, config.LinkConfig{Name: target})
		idx = len(cfg.Links) - 1
	}

	l := &cfg.Links[idx]
	if portName != "" {
		l.Port, l.URL = portName, ""
		if baudRate > 0 {
			l.Baud = baudRate
		}
	} else {
		l.URL, l.Port = wsURL, ""
		if wsUsername != "" {
			l.Username = wsUsername
		}
		l.SkipSSLVerify = l.SkipSSLVerify || wsNoSSLVerify
	}

	if adhocFamily != "" {
		cfg.Instruments = append(cfg.Instruments, config.InstrumentConfig{
			Name:    adhocFamily,
			Family:  adhocFamily,
			Link:    l.Name,
			Address: adhocAddress,
		})
	}
	return nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("POWERBENCH_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// openLink opens a configured link, asking for the bridge password when
// a username is set without one
func openLink(cfg config.LinkConfig) (bench.Link, error) {
	if cfg.URL != "" && cfg.Username != "" && cfg.Password == "" {
		password, err := GetPassword()
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}
	return instrument.OpenLink(cfg)
}

// describeLink is the one-line connection summary printed by each tool
func describeLink(cfg config.LinkConfig) string {
	if cfg.URL != "" {
		return fmt.Sprintf("%s: WebSocket %s", cfg.Name, cfg.URL)
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = 9600
	}
	return fmt.Sprintf("%s: Serial %s @ %d baud", cfg.Name, cfg.Port, baud)
}

// openBench builds every configured instrument with obs attached
func openBench(obs bench.Observer) (*instrument.Bench, error) {
	return instrument.Build(benchConfig, openLink, instrument.Options{
		Logger:   logger,
		Observer: obs,
	})
}
