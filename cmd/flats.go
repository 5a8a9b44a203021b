// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

// flatsOptions drives one flat-field session.
type flatsOptions struct {
	Brightness int
	Settle     time.Duration
	Hold       time.Duration
	Unpark     bool
	MotionWait time.Duration
}

var flatsOpts flatsOptions

var flatsCmd = &cobra.Command{
	Use:   "flats",
	Short: "Run a flat-field session: park, light on, hold, light off",
	Long: `Prepare the cap for flat frames and hold it there while the camera exposes.

Sequence:
  1. Park (close) the cover and wait until it reports closed
  2. Set the brightness when --brightness is given
  3. Switch the light on and wait --settle for the panel to stabilise
  4. Hold for --hold (or until Enter is pressed when --hold is 0)
  5. Switch the light off
  6. Unpark (open) the cover when --unpark is given

The light is switched off on the way out even when the session is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runFlats,
}

func init() {
	rootCmd.AddCommand(flatsCmd)
	f := flatsCmd.Flags()
	f.IntVar(&flatsOpts.Brightness, "brightness", -1, "Panel brightness for the session (-1 keeps the current value)")
	f.DurationVar(&flatsOpts.Settle, "settle", 2*time.Second, "Delay after switching the light on")
	f.DurationVar(&flatsOpts.Hold, "hold", 30*time.Second, "How long to keep the light on (0 waits for Enter)")
	f.BoolVar(&flatsOpts.Unpark, "unpark", false, "Open the cover when done")
	f.DurationVar(&flatsOpts.MotionWait, "wait", 60*time.Second, "How long to wait for each cover motion")
}

func runFlats(cmd *cobra.Command, args []string) error {
	dev, connInfo, err := openDevice(cmd.Context())
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Flatcap - Flat Field Session\n")
	fmt.Fprintf(out, "Connection: %s\n\n", connInfo)

	hold := holdFor(flatsOpts.Hold)
	if flatsOpts.Hold <= 0 {
		hold = waitForEnter(cmd.InOrStdin(), out)
	}
	return runFlatSequence(cmd.Context(), dev, flatsOpts, hold, out)
}

func holdFor(d time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}
}

func waitForEnter(in io.Reader, out io.Writer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		fmt.Fprintln(out, "Press Enter when the exposures are done")
		done := make(chan struct{})
		go func() {
			_, _ = bufio.NewReader(in).ReadString('\n')
			close(done)
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return nil
		}
	}
}

// runFlatSequence performs the session on a connected device. hold blocks
// for the exposure window.
func runFlatSequence(ctx context.Context, dev *flatcap.Device, opts flatsOptions, hold func(context.Context) error, out io.Writer) (err error) {
	step := func(format string, a ...any) {
		fmt.Fprintf(out, "[%s] %s\n", time.Now().Format("15:04:05"), fmt.Sprintf(format, a...))
	}

	step("Parking cover")
	if err := moveCover(ctx, dev, (*flatcap.Device).Park, opts.MotionWait); err != nil {
		return fmt.Errorf("park: %w", err)
	}

	if opts.Brightness >= 0 {
		step("Setting brightness to %d", opts.Brightness)
		if err := dev.SetBrightness(ctx, opts.Brightness); err != nil {
			return err
		}
	}

	step("Light on")
	if err := dev.EnableLight(ctx, true); err != nil {
		return err
	}
	defer func() {
		// The session context may already be cancelled
		offCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		step("Light off")
		if offErr := dev.EnableLight(offCtx, false); offErr != nil && err == nil {
			err = offErr
		}
		if err == nil && opts.Unpark {
			step("Unparking cover")
			if uerr := moveCover(ctx, dev, (*flatcap.Device).Unpark, opts.MotionWait); uerr != nil {
				err = fmt.Errorf("unpark: %w", uerr)
			}
		}
	}()

	if opts.Settle > 0 {
		if err := holdFor(opts.Settle)(ctx); err != nil {
			return err
		}
	}

	step("Panel ready at brightness %s, exposing", known(dev.Snapshot().Brightness))
	if err := hold(ctx); err != nil {
		return err
	}
	step("Exposures done")
	return nil
}

func moveCover(ctx context.Context, dev *flatcap.Device, start func(*flatcap.Device, context.Context) (flatcap.OpState, error), wait time.Duration) error {
	if _, err := start(dev, ctx); err != nil {
		return err
	}
	state, err := waitForMotion(ctx, dev, wait, parkState)
	if err != nil {
		return err
	}
	if state != flatcap.OpOk {
		return fmt.Errorf("cover motion ended %s", state)
	}
	return nil
}
