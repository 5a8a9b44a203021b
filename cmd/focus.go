// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

var focusWait time.Duration

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Drive the focap focuser",
	Long: `Commands for the focuser built into the focap.

Positions are absolute step counts. Moves wait for the focuser to stop unless
--wait 0 is given.`,
}

// withFocuser connects and runs fn, refusing early on a dialect without a focuser.
func withFocuser(cmd *cobra.Command, fn func(ctx context.Context, dev *flatcap.Device) error) error {
	dev, _, err := openDevice(cmd.Context())
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	if !dev.Dialect().HasFocuser() {
		return fmt.Errorf("%w: dialect %s has no focuser", flatcap.ErrUnsupported, dev.Dialect())
	}
	return fn(cmd.Context(), dev)
}

func parseTicks(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid step count %q: %w", s, err)
	}
	return uint32(v), nil
}

func runFocusMove(cmd *cobra.Command, move func(ctx context.Context, dev *flatcap.Device) (flatcap.OpState, error)) error {
	return withFocuser(cmd, func(ctx context.Context, dev *flatcap.Device) error {
		state, err := move(ctx, dev)
		if err != nil {
			return err
		}
		if state, err = waitForMotion(ctx, dev, focusWait, focusState); err != nil {
			return err
		}
		f := dev.Snapshot().Focuser
		fmt.Fprintf(cmd.OutOrStdout(), "focuser: %s at %d\n", state, f.Position)
		return nil
	})
}

var focusStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the focuser readings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocuser(cmd, func(ctx context.Context, dev *flatcap.Device) error {
			f := dev.Snapshot().Focuser
			fmt.Fprintf(cmd.OutOrStdout(), "position:     %d\n", f.Position)
			fmt.Fprintf(cmd.OutOrStdout(), "temperature:  %.1f C\n", f.Temperature)
			fmt.Fprintf(cmd.OutOrStdout(), "coefficient:  %+.1f\n", f.Coefficient)
			fmt.Fprintf(cmd.OutOrStdout(), "firmware:     %s\n", f.Firmware)
			return nil
		})
	},
}

var focusMoveCmd = &cobra.Command{
	Use:   "move <position>",
	Short: "Move to an absolute position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseTicks(args[0])
		if err != nil {
			return err
		}
		return runFocusMove(cmd, func(ctx context.Context, dev *flatcap.Device) (flatcap.OpState, error) {
			return dev.MoveFocuser(ctx, target)
		})
	},
}

func relativeMoveCmd(use, short string, dir flatcap.FocusDirection) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <steps>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticks, err := parseTicks(args[0])
			if err != nil {
				return err
			}
			return runFocusMove(cmd, func(ctx context.Context, dev *flatcap.Device) (flatcap.OpState, error) {
				return dev.MoveFocuserRelative(ctx, dir, ticks)
			})
		},
	}
}

var focusSyncCmd = &cobra.Command{
	Use:   "sync <position>",
	Short: "Declare the current position without moving",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticks, err := parseTicks(args[0])
		if err != nil {
			return err
		}
		return withFocuser(cmd, func(ctx context.Context, dev *flatcap.Device) error {
			return dev.SyncFocuser(ctx, ticks)
		})
	},
}

var focusAbortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Stop the focuser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocuser(cmd, func(ctx context.Context, dev *flatcap.Device) error {
			return dev.AbortFocuser(ctx)
		})
	},
}

var focusCompensationCmd = &cobra.Command{
	Use:       "compensation on|off",
	Short:     "Switch temperature compensation",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFocuser(cmd, func(ctx context.Context, dev *flatcap.Device) error {
			return dev.SetTemperatureCompensation(ctx, args[0] == "on")
		})
	},
}

func temperatureSettingCmd(use, short string, set func(*flatcap.Device, context.Context, float64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <value>",
		Short: short,
		Long:  short + ". Values run from -64 to 63.5 in steps of 0.5.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}
			return withFocuser(cmd, func(ctx context.Context, dev *flatcap.Device) error {
				return set(dev, ctx, value)
			})
		},
	}
}

func init() {
	in := relativeMoveCmd("in", "Move inward by a number of steps", flatcap.FocusInward)
	out := relativeMoveCmd("out", "Move outward by a number of steps", flatcap.FocusOutward)
	for _, c := range []*cobra.Command{focusMoveCmd, in, out} {
		c.Flags().DurationVarP(&focusWait, "wait", "w", 2*time.Minute, "How long to wait for the move to finish (0 to not wait)")
	}

	focusCmd.AddCommand(
		focusStatusCmd,
		focusMoveCmd,
		in,
		out,
		focusSyncCmd,
		focusAbortCmd,
		focusCompensationCmd,
		temperatureSettingCmd("calibration", "Set the temperature sensor offset", (*flatcap.Device).SetTemperatureCalibration),
		temperatureSettingCmd("coefficient", "Set the temperature compensation coefficient", (*flatcap.Device).SetTemperatureCoefficient),
	)
	rootCmd.AddCommand(focusCmd)
}
