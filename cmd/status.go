// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect and print the device state",
	Long: `Connect to the cap, read firmware, status, brightness and angles (and the
focuser readings on a focap), print them and disconnect.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the state as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	dev, _, err := openDevice(cmd.Context())
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	s := dev.Snapshot()
	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printState(cmd.OutOrStdout(), s)
	return nil
}
