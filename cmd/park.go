// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

var parkWait time.Duration

var parkCmd = &cobra.Command{
	Use:   "park",
	Short: "Close the cover",
	Long: `Close the cover and wait until the cap reports it closed.

The cap is polled while the motor runs. If the motor stops short of the
closed position the command is re-issued once. Use --wait 0 to return as
soon as the command is acknowledged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMotion(cmd, (*flatcap.Device).Park)
	},
}

var unparkCmd = &cobra.Command{
	Use:   "unpark",
	Short: "Open the cover",
	Long: `Open the cover and wait until the cap reports it open.

The light panel cannot be switched while the cover is open.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMotion(cmd, (*flatcap.Device).Unpark)
	},
}

func init() {
	for _, c := range []*cobra.Command{parkCmd, unparkCmd} {
		c.Flags().DurationVarP(&parkWait, "wait", "w", 60*time.Second, "How long to wait for the motion to finish (0 to not wait)")
		rootCmd.AddCommand(c)
	}
}

func runMotion(cmd *cobra.Command, start func(*flatcap.Device, context.Context) (flatcap.OpState, error)) error {
	ctx := cmd.Context()
	dev, _, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	state, err := start(dev, ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cmd.Name(), state)

	state, err = waitForMotion(ctx, dev, parkWait, parkState)
	if err != nil {
		return err
	}
	if state == flatcap.OpAlert {
		return fmt.Errorf("%s failed", cmd.Name())
	}

	s := dev.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (cover %s)\n", cmd.Name(), state, s.Status.Cover)
	return nil
}
