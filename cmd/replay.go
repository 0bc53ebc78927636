// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/powerbench/internal/instrument"
	"github.com/Thermoquad/powerbench/internal/trace"
	"github.com/Thermoquad/powerbench/pkg/bench"
)

var (
	replayFailuresOnly bool
	replayNoColor      bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace>",
	Short: "Print and re-validate a recorded trace",
	Long: `Print every exchange of a trace written by "poll --trace" and run the
received bytes through the family's validation gates again.

An exchange whose replayed outcome differs from the recorded one is
flagged; the exit code is 1 when any differ.

Example:
  powerbench replay bench.cbor --failures`,
	Args: cobra.ExactArgs(1),
	// A trace is self-describing; no bench file or link is needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFailuresOnly, "failures", false, "Only print failed exchanges")
	replayCmd.Flags().BoolVar(&replayNoColor, "no-color", false, "Disable styled output")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	render := func(s string, ok bool) string {
		if replayNoColor {
			return s
		}
		if ok {
			return okStyle.Render(s)
		}
		return errorStyle.Render(s)
	}

	r := trace.NewReader(f)
	total, failed, differ := 0, 0, 0
	for {
		ex, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("exchange %d: %w", total+1, err)
		}
		total++

		proto, ok := instrument.Protocol(ex.Family)
		if !ok {
			fmt.Printf("#%d: unknown family %q\n", total, ex.Family)
			differ++
			continue
		}

		rec, rerr := trace.Replay(ex, proto)
		replayed := ""
		if rerr != nil {
			replayed = bench.KindOf(rerr).String()
		}
		if ex.Kind != "" {
			failed++
		}
		mismatch := replayed != ex.Kind
		if mismatch {
			differ++
		}
		if replayFailuresOnly && ex.Kind == "" && !mismatch {
			continue
		}

		fmt.Printf("#%d %s %s addr=%d %s attempt %d (%v)\n",
			total, ex.At.Format("15:04:05.000"), ex.Family, ex.Address,
			ex.Cmd(), ex.Attempt, ex.Elapsed)
		fmt.Printf("  -> %s\n", indent(bench.FormatBytes(ex.Sent), "     "))
		fmt.Printf("  <- %s\n", indent(bench.FormatBytes(ex.Received), "     "))
		switch {
		case ex.Kind != "":
			fmt.Printf("  %s %s\n", render(ex.Kind, false), ex.Error)
		default:
			fmt.Printf("  %s\n", render(bench.FormatRecord(rec), true))
		}
		if mismatch {
			fmt.Printf("  %s recorded %q, replayed %q\n", render("DIFFERS", false), ex.Kind, replayed)
		}
	}

	fmt.Printf("\n--- Replay summary ---\n")
	fmt.Printf("Exchanges: %d, failed: %d, differing on replay: %d\n", total, failed, differ)
	if differ > 0 {
		os.Exit(1)
	}
	return nil
}
