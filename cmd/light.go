// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var lightCmd = &cobra.Command{
	Use:       "light on|off",
	Short:     "Switch the light panel",
	Long:      `Switch the electroluminescent panel. Refused while the cover is open.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, _, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer dev.Disconnect()

		if err := dev.EnableLight(cmd.Context(), args[0] == "on"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "light: %s\n", args[0])
		return nil
	},
}

var brightnessCmd = &cobra.Command{
	Use:   "brightness [value]",
	Short: "Read or set the panel brightness",
	Long: `Print the panel brightness, or set it when a value is given.

The flatcap accepts 1 to 255 and the focap 0 to 255.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, _, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer dev.Disconnect()

		if len(args) == 1 {
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid brightness %q: %w", args[0], err)
			}
			if err := dev.SetBrightness(cmd.Context(), value); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "brightness: %s\n", known(dev.Snapshot().Brightness))
		return nil
	},
}

var angleCmd = &cobra.Command{
	Use:   "angle open|closed [degrees]",
	Short: "Read or set the cover end angles",
	Long: `Print the open or closed cover angle, or set it when a value is given.

The flatcap accepts 0 to 300 degrees and the focap 0 to 360.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "open" && args[0] != "closed" {
			return fmt.Errorf("unknown angle %q (use open or closed)", args[0])
		}

		dev, _, err := openDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer dev.Disconnect()

		if len(args) == 2 {
			angle, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid angle %q: %w", args[1], err)
			}
			set := dev.SetOpenAngle
			if args[0] == "closed" {
				set = dev.SetClosedAngle
			}
			if err := set(cmd.Context(), angle); err != nil {
				return err
			}
		}

		s := dev.Snapshot()
		value := s.OpenAngle
		if args[0] == "closed" {
			value = s.ClosedAngle
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s angle: %s\n", args[0], known(value))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lightCmd, brightnessCmd, angleCmd)
}
