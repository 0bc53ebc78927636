// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/powerbench/internal/metrics"
	"github.com/Thermoquad/powerbench/internal/poller"
	"github.com/Thermoquad/powerbench/internal/publish"
	"github.com/Thermoquad/powerbench/internal/trace"
	"github.com/Thermoquad/powerbench/pkg/bench"
)

var (
	pollShowAll       bool
	pollStatsInterval int
	pollInterval      time.Duration
	pollMetricsAddr   string
	pollTracePath     string
	pollCount         int
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Sample every instrument on a fixed interval",
	Long: `Sample every configured instrument on the poll interval until
interrupted (Ctrl+C) and print each snapshot.

Failed instruments are reported in the snapshot; the cycle continues with
the next instrument. Transaction statistics are printed periodically and
on exit.

Optional sinks, from the bench file or flags:
  --metrics-addr  serve Prometheus metrics on /metrics
  --trace         write every exchange to a CBOR trace (see "replay")
  poll.redis      publish readings to a Redis channel and hash`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().BoolVar(&pollShowAll, "show-all", false, "Print every snapshot, not only those with failures")
	pollCmd.Flags().IntVar(&pollStatsInterval, "stats-interval", 10, "Statistics print interval in seconds (0 disables)")
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Poll interval (overrides the bench file)")
	pollCmd.Flags().StringVar(&pollMetricsAddr, "metrics-addr", "", "Prometheus listen address (overrides the bench file)")
	pollCmd.Flags().StringVar(&pollTracePath, "trace", "", "Trace file (overrides the bench file)")
	pollCmd.Flags().IntVar(&pollCount, "count", 0, "Stop after this many cycles (0 runs until interrupted)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg := benchConfig.Poll
	if pollInterval > 0 {
		cfg.Interval = pollInterval
	}
	if pollMetricsAddr != "" {
		cfg.MetricsAddr = pollMetricsAddr
	}
	if pollTracePath != "" {
		cfg.Trace = pollTracePath
	}
	if len(benchConfig.Instruments) == 0 {
		return fmt.Errorf("no instruments configured (use --config or --family)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := bench.NewStatistics()
	observers := bench.Observers{stats}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		observers = append(observers, m)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(m)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
		defer srv.Close()
		logger.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
	}

	var rec *trace.Recorder
	if cfg.Trace != "" {
		f, err := os.Create(cfg.Trace)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		defer f.Close()
		rec = trace.NewRecorder(f)
		observers = append(observers, rec)
	}

	var pub *publish.Publisher
	if cfg.Redis.Addr != "" {
		var err error
		pub, err = publish.New(ctx, cfg.Redis, logger.WithField("component", "publish"))
		if err != nil {
			return err
		}
		defer pub.Close()
	}

	b, err := openBench(observers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	samplers := make([]poller.Sampler, 0, len(b.Instruments()))
	for _, in := range b.Instruments() {
		samplers = append(samplers, in)
	}
	p, err := poller.New(cfg.Interval, samplers)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Powerbench - Poll"))
	for _, l := range benchConfig.Links {
		fmt.Println(headerStyle.Render(describeLink(l)))
	}
	fmt.Printf("Interval: %v, %d instruments\n", cfg.Interval, len(samplers))
	fmt.Printf("Press Ctrl+C to stop\n\n")

	snapshots := make(chan poller.Snapshot)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, snapshots)
	}()

	var statsC <-chan time.Time
	if pollStatsInterval > 0 {
		t := time.NewTicker(time.Duration(pollStatsInterval) * time.Second)
		defer t.Stop()
		statsC = t.C
	}

	cycles := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-statsC:
			fmt.Print(stats.String())
			fmt.Println()
		case snap := <-snapshots:
			cycles++
			if m != nil {
				m.ObserveSnapshot(snap)
			}
			if pub != nil {
				if err := pub.Publish(ctx, snap); err != nil {
					logger.WithError(err).Warn("publish failed")
				}
			}
			if pollShowAll || snap.Failed() > 0 {
				printSnapshot(snap)
			}
			if pollCount > 0 && cycles >= pollCount {
				break loop
			}
		}
	}
	stop()
	<-done

	fmt.Printf("\nFinal ")
	fmt.Print(stats.String())
	if rec != nil {
		logger.WithFields(logrus.Fields{
			"exchanges": rec.Count(),
			"file":      cfg.Trace,
		}).Info("trace written")
		if err := rec.Err(); err != nil {
			return fmt.Errorf("trace: %w", err)
		}
	}
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func printSnapshot(snap poller.Snapshot) {
	fmt.Println(headerStyle.Render(snap.At.Format("15:04:05.000")))
	for _, r := range snap.Readings {
		if !r.OK() {
			fmt.Printf("  %-12s %s %s\n", r.Instrument, errorStyle.Render(r.Kind), r.Error)
			continue
		}
		fmt.Printf("  %-12s %s\n", r.Instrument, formatValues(r.Values))
	}
}

func formatValues(values map[string]float64) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, okStyle.Render(fmt.Sprintf("%g", values[name]))))
	}
	return strings.Join(parts, " ")
}
