// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	linkTestDuration time.Duration
	linkTestInterval time.Duration
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test link stability with repeated status queries",
	Long: `Connect to the cap and query its status repeatedly for a fixed duration,
then print the link statistics. Useful for debugging flaky USB adapters and
WebSocket bridges.

Exit codes:
  0 - Every exchange succeeded
  1 - At least one exchange failed after its retries
  2 - Connection error`,
	Args: cobra.NoArgs,
	Run:  runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().DurationVar(&linkTestDuration, "duration", 30*time.Second, "Test duration")
	linkTestCmd.Flags().DurationVar(&linkTestInterval, "interval", 250*time.Millisecond, "Delay between status queries")
}

func runLinkTest(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	dev, connInfo, err := openDevice(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %s\n\n", linkTestDuration)

	stats := dev.Statistics()
	stats.Reset()

	endTime := time.Now().Add(linkTestDuration)
	lastReport := time.Now()
	failures := 0

	for time.Now().Before(endTime) && ctx.Err() == nil {
		if _, err := dev.RefreshStatus(ctx); err != nil && ctx.Err() == nil {
			failures++
			fmt.Printf("[%s] Status query failed: %v\n", time.Now().Format("15:04:05.000"), err)
		}

		if time.Since(lastReport) >= time.Second {
			lastReport = time.Now()
			snap := stats.Snapshot()
			fmt.Printf("[%s] %d exchanges, %d retries, avg %s (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), snap.TotalExchanges, snap.Retries,
				snap.AvgLatency.Round(time.Microsecond), time.Until(endTime).Seconds())
		}

		select {
		case <-ctx.Done():
		case <-time.After(linkTestInterval):
		}
	}
	dev.Disconnect()

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Print(stats.String())
	if failures > 0 {
		fmt.Printf("Result: FAILED (%d status queries failed)\n", failures)
		os.Exit(1)
	}
	fmt.Printf("Result: PASSED (link stable)\n")
}
