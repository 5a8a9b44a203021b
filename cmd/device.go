// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

// openDevice opens the configured link (or none when simulating), performs
// the handshake and returns the connected device with a link description.
func openDevice(ctx context.Context, opts ...flatcap.Option) (*flatcap.Device, string, error) {
	var (
		port flatcap.Port
		info = "Simulation"
	)
	if !appCfg.Device.Simulate {
		var err error
		port, info, err = OpenConnection(appCfg.Connection)
		if err != nil {
			return nil, "", err
		}
	}

	opts = append([]flatcap.Option{flatcap.WithLogger(logger)}, opts...)
	dev, err := flatcap.New(appCfg.Device, port, opts...)
	if err != nil {
		if port != nil {
			port.Close()
		}
		return nil, info, err
	}

	logger.Info("Connecting", "link", info, "dialect", appCfg.Device.Dialect)
	if err := dev.Connect(ctx); err != nil {
		dev.Disconnect()
		return nil, info, fmt.Errorf("connect failed: %w", err)
	}
	return dev, info, nil
}

// waitForMotion polls until state() leaves Busy, the timeout expires or ctx
// is cancelled. A zero timeout returns immediately.
func waitForMotion(ctx context.Context, dev *flatcap.Device, timeout time.Duration, state func(flatcap.State) flatcap.OpState) (flatcap.OpState, error) {
	s := state(dev.Snapshot())
	if timeout <= 0 || s != flatcap.OpBusy {
		return s, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(appCfg.Device.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return s, fmt.Errorf("still moving after %s", timeout)
			}
			return s, ctx.Err()
		case <-ticker.C:
		}

		if err := dev.Tick(ctx); err != nil {
			logger.Warn("Status poll failed", "error", err)
		}
		if s = state(dev.Snapshot()); s != flatcap.OpBusy {
			return s, nil
		}
	}
}

func parkState(s flatcap.State) flatcap.OpState { return s.Park }

func focusState(s flatcap.State) flatcap.OpState {
	if s.Focuser == nil {
		return flatcap.OpIdle
	}
	return s.Focuser.Move
}

// printState writes a human-readable snapshot.
func printState(w io.Writer, s flatcap.State) {
	fmt.Fprintf(w, "Device:       %s (product %02d, firmware %s)\n", s.Dialect, s.ProductID, s.Firmware)
	if s.Simulated {
		fmt.Fprintln(w, "Link:         simulated")
	}
	if s.StatusValid {
		fmt.Fprintf(w, "Cover:        %s\n", s.Status.Cover)
		fmt.Fprintf(w, "Light:        %s\n", s.Status.Light)
		fmt.Fprintf(w, "Motor:        %s\n", s.Status.Motor)
	} else {
		fmt.Fprintln(w, "Status:       unknown")
	}
	fmt.Fprintf(w, "Park:         %s (%s, switch %s)\n", s.Park, s.Direction, s.Switch)
	fmt.Fprintf(w, "Light switch: %s\n", onOff(s.LightOn))
	fmt.Fprintf(w, "Brightness:   %s\n", known(s.Brightness))
	fmt.Fprintf(w, "Open angle:   %s\n", known(s.OpenAngle))
	fmt.Fprintf(w, "Closed angle: %s\n", known(s.ClosedAngle))

	if f := s.Focuser; f != nil {
		fmt.Fprintln(w, strings.Repeat("-", 40))
		fmt.Fprintf(w, "Focuser:      firmware %s, %s\n", f.Firmware, f.Move)
		fmt.Fprintf(w, "Position:     %d (target %d)\n", f.Position, f.Target)
		fmt.Fprintf(w, "Temperature:  %.1f C (calibration %+.1f)\n", f.Temperature, f.Calibration)
		fmt.Fprintf(w, "Compensation: %s (coefficient %+.1f)\n", onOff(f.Compensation), f.Coefficient)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func known(v int) string {
	if v < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", v)
}
