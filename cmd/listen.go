// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var listenDuration int

var listenCmd = &cobra.Command{
	Use:   "listen [link]",
	Short: "Print whatever arrives on a link without sending",
	Long: `Open a link and print every byte that arrives, without sending
anything. Useful for checking bridge stability and spotting unsolicited
traffic or echo on a half-duplex adapter.

Without an argument the first configured link is used.

Exit codes:
  0 - Link stayed up for the whole duration
  1 - Link error while listening
  2 - Connection error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().IntVar(&listenDuration, "duration", 30, "Listen duration in seconds")
}

func runListen(cmd *cobra.Command, args []string) error {
	if len(benchConfig.Links) == 0 {
		return fmt.Errorf("no links configured (use --config, --port or --url)")
	}
	lc := benchConfig.Links[0]
	if len(args) == 1 {
		var ok bool
		lc, ok = benchConfig.Link(args[0])
		if !ok {
			return fmt.Errorf("unknown link %q", args[0])
		}
	}

	l, err := openLink(lc)
	if err == nil {
		err = l.EnsureOpen()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer l.Close()

	fmt.Println(titleStyle.Render("Powerbench - Listen"))
	fmt.Printf("Connection: %s\n", describeLink(lc))
	fmt.Printf("Duration: %d seconds\n\n", listenDuration)

	start := time.Now()
	endTime := start.Add(time.Duration(listenDuration) * time.Second)
	heartbeat := start
	bytesReceived := 0
	chunks := 0

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		n, err := l.BytesPending()
		if err == nil && n > 0 {
			var data []byte
			data, err = l.ReadAvailable()
			if len(data) > 0 {
				bytesReceived += len(data)
				chunks++
				fmt.Printf("[%s] Received %d bytes: % X\n",
					time.Now().Format("15:04:05.000"), len(data), data)
			}
		}
		if err != nil {
			fmt.Printf("\n[%s] %s %v\n", time.Now().Format("15:04:05.000"),
				errorStyle.Render("Link error:"), err)
			printListenResults(time.Since(start), chunks, bytesReceived)
			fmt.Printf("Result: %s\n", errorStyle.Render("FAILED (link error)"))
			os.Exit(1)
		}

		if time.Since(heartbeat) >= time.Second {
			heartbeat = time.Now()
			fmt.Println(headerStyle.Render(fmt.Sprintf("[%s] Still connected... (%.0fs remaining)",
				heartbeat.Format("15:04:05.000"), time.Until(endTime).Seconds())))
		}
		time.Sleep(benchConfig.Timing.PollInterval)
	}

	printListenResults(time.Since(start), chunks, bytesReceived)
	fmt.Printf("Result: %s\n", okStyle.Render("PASSED (link stable)"))
	return nil
}

func printListenResults(elapsed time.Duration, chunks, bytes int) {
	fmt.Printf("\n--- Listen results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Second))
	fmt.Printf("Chunks received: %d\n", chunks)
	fmt.Printf("Bytes received: %d\n", bytes)
}
