// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/powerbench/pkg/bench"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Identify every configured instrument",
	Long: `Ask every configured instrument for its model or firmware string.

Exit codes:
  0 - At least one instrument answered
  1 - No instrument answered
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 5, "Timeout in seconds per instrument")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if len(benchConfig.Instruments) == 0 {
		return fmt.Errorf("no instruments configured (use --config or --family)")
	}

	b, err := openBench(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	fmt.Println(titleStyle.Render("Powerbench - Probe"))
	for _, l := range benchConfig.Links {
		fmt.Println(headerStyle.Render(describeLink(l)))
	}
	fmt.Println()

	found := 0
	portErrors := 0
	for _, in := range b.Instruments() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(probeTimeout)*time.Second)
		id, err := in.Identify(ctx)
		cancel()

		name := fmt.Sprintf("%-12s %-9s %3d  ", in.Name(), in.Family(), in.Address())
		if err != nil {
			if bench.KindOf(err) == bench.KindPortUnavailable {
				portErrors++
			}
			fmt.Printf("%s%s %v\n", name, errorStyle.Render(bench.KindOf(err).String()), err)
			continue
		}
		found++
		fmt.Printf("%s%s\n", name, okStyle.Render(id))
	}

	// Summary
	fmt.Printf("\n--- Probe summary ---\n")
	fmt.Printf("Instruments answering: %d/%d\n", found, len(b.Instruments()))

	if found == 0 {
		if portErrors == len(b.Instruments()) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	return nil
}
