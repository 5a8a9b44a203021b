// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by pinging the cap",
	Long: `Open the link, run the connection handshake and report the product id.

Exit codes:
  0 - The cap answered the ping
  1 - No valid answer before the timeout
  2 - Connection error

Useful for testing connectivity before starting a session.`,
	Args: cobra.NoArgs,
	Run:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "How long to wait for the cap")
}

func runPing(cmd *cobra.Command, args []string) {
	var (
		port     flatcap.Port
		connInfo = "Simulation"
		err      error
	)
	if !appCfg.Device.Simulate {
		port, connInfo, err = OpenConnection(appCfg.Connection)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
			os.Exit(2)
		}
	}

	dev, err := flatcap.New(appCfg.Device, port, flatcap.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer dev.Disconnect()

	fmt.Printf("Flatcap - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %s\n\n", pingTimeout)

	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()

	start := time.Now()
	if err := dev.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "TIMEOUT: no answer within %s: %v\n", pingTimeout, err)
		dev.Disconnect()
		os.Exit(1)
	}

	s := dev.Snapshot()
	fmt.Printf("SUCCESS: %s answered in %s\n", s.Dialect, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Product: %02d\n", s.ProductID)
	fmt.Printf("  Firmware: %s\n", s.Firmware)
	if s.StatusValid {
		fmt.Printf("  Status: %s\n", s.Status)
	}
}
