// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/powerbench/internal/instrument"
	"github.com/Thermoquad/powerbench/pkg/bench"
)

var (
	execTimeout int
	execRaw     bool
)

var execCmd = &cobra.Command{
	Use:   "exec <instrument> [command] [arg]",
	Short: "Run one command against an instrument",
	Long: `Run one command against a configured instrument and print the decoded
reply. Without a command, the instrument's commands are listed.

The argument is the command's single setpoint, flag (on/off) or index.

Exit codes:
  0 - Command succeeded
  1 - The instrument answered with an error, or the reply was invalid
  2 - Link error (port unavailable, bridge unreachable)`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().IntVar(&execTimeout, "timeout", 10, "Timeout in seconds for the whole call")
	execCmd.Flags().BoolVar(&execRaw, "raw", false, "Print every attempt's sent and received bytes")
}

// attemptLog keeps the attempts of one call for printing
type attemptLog struct {
	mu       sync.Mutex
	attempts []bench.Attempt
}

func (l *attemptLog) ObserveAttempt(a bench.Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func (l *attemptLog) ObserveTransaction(bench.Summary) {}

func runExec(cmd *cobra.Command, args []string) error {
	attempts := &attemptLog{}
	b, err := openBench(attempts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	in, ok := b.Instrument(args[0])
	if !ok {
		return fmt.Errorf("unknown instrument %q", args[0])
	}

	if len(args) == 1 {
		fmt.Printf("%s (%s @ %d) commands:\n", in.Name(), in.Family(), in.Address())
		for _, name := range in.Commands() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}

	arg := ""
	if len(args) == 3 {
		arg = args[2]
	}
	c, err := in.Command(args[1], arg)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Powerbench - Exec"))
	fmt.Printf("%s%s (%s, address %d)\n", labelStyle.Render("Instrument:"), in.Name(), in.Family(), in.Address())
	fmt.Printf("%s%s\n", labelStyle.Render("Command:"), c)
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(execTimeout)*time.Second)
	defer cancel()

	start := time.Now()
	rec, err := in.Execute(ctx, c)
	elapsed := time.Since(start)

	if execRaw {
		printAttempts(attempts.attempts)
	}

	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("FAILED (%s)", bench.KindOf(err))))
		fmt.Printf("  %v\n", err)
		if bench.KindOf(err) == bench.KindPortUnavailable {
			os.Exit(2)
		}
		os.Exit(1)
	}

	if len(attempts.attempts) > 0 {
		last := attempts.attempts[len(attempts.attempts)-1]
		printFrame(in, last)
	}
	fmt.Printf("%s%s\n", labelStyle.Render("Reply:"), okStyle.Render(bench.FormatRecord(rec)))
	fmt.Printf("%s%d in %v\n", labelStyle.Render("Attempts:"), len(attempts.attempts), elapsed.Round(time.Millisecond))
	return nil
}

func printAttempts(attempts []bench.Attempt) {
	for _, a := range attempts {
		status := okStyle.Render("ok")
		if a.Err != nil {
			status = warnStyle.Render(bench.KindOf(a.Err).String())
		}
		fmt.Printf("%s %s\n", headerStyle.Render(fmt.Sprintf("Attempt %d:", a.Attempt)), status)
		fmt.Printf("  -> %s\n", indent(bench.FormatBytes(a.Sent), "     "))
		fmt.Printf("  <- %s\n", indent(bench.FormatBytes(a.Received), "     "))
	}
	fmt.Println()
}

// printFrame re-validates the accepted reply to show its header fields
func printFrame(in *instrument.Instrument, a bench.Attempt) {
	proto, ok := instrument.Protocol(in.Family())
	if !ok {
		return
	}
	f, err := proto.Decode(a.Sent, a.Received)
	if err != nil {
		return
	}
	fmt.Print(bench.FormatFrame(in.Family(), f))
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
