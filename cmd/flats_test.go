// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

// simulatedDevice returns a connected simulated device and points the
// package configuration at it.
func simulatedDevice(t *testing.T, dialect string) *flatcap.Device {
	t.Helper()
	cfg := flatcap.DefaultConfig()
	cfg.Dialect = dialect
	cfg.Simulate = true
	cfg.PollInterval = time.Millisecond
	appCfg.Device = cfg

	dev, err := flatcap.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, dev.Connect(context.Background()))
	t.Cleanup(func() { dev.Disconnect() })
	return dev
}

func testFlatsOptions() flatsOptions {
	return flatsOptions{
		Brightness: 200,
		MotionWait: 5 * time.Second,
	}
}

func TestFlatSequence(t *testing.T) {
	dev := simulatedDevice(t, "flatcap")
	require.Equal(t, flatcap.SwitchUnparked, dev.Snapshot().Switch)

	var lightDuringHold bool
	hold := func(ctx context.Context) error {
		s := dev.Snapshot()
		lightDuringHold = s.LightOn && s.Switch == flatcap.SwitchParked
		return nil
	}

	var out bytes.Buffer
	require.NoError(t, runFlatSequence(context.Background(), dev, testFlatsOptions(), hold, &out))

	assert.True(t, lightDuringHold, "light on with the cover parked while exposing")

	s := dev.Snapshot()
	assert.False(t, s.LightOn)
	assert.Equal(t, flatcap.SwitchParked, s.Switch)
	assert.Equal(t, flatcap.OpOk, s.Park)
	assert.Equal(t, 200, s.Brightness)

	text := out.String()
	for _, step := range []string{"Parking cover", "Setting brightness to 200", "Light on", "Exposures done", "Light off"} {
		assert.Contains(t, text, step)
	}
	assert.NotContains(t, text, "Unparking")
}

func TestFlatSequence_Unpark(t *testing.T) {
	dev := simulatedDevice(t, "focap")
	opts := testFlatsOptions()
	opts.Brightness = -1
	opts.Unpark = true

	var out bytes.Buffer
	require.NoError(t, runFlatSequence(context.Background(), dev, opts, func(context.Context) error { return nil }, &out))

	s := dev.Snapshot()
	assert.False(t, s.LightOn)
	assert.Equal(t, flatcap.SwitchUnparked, s.Switch)
	assert.Equal(t, flatcap.OpOk, s.Park)
	assert.NotContains(t, out.String(), "Setting brightness")
	assert.Less(t, strings.Index(out.String(), "Light off"), strings.Index(out.String(), "Unparking cover"))
}

func TestFlatSequence_InterruptedHoldSwitchesLightOff(t *testing.T) {
	dev := simulatedDevice(t, "flatcap")
	opts := testFlatsOptions()
	opts.Unpark = true

	errStop := errors.New("stopped")
	var out bytes.Buffer
	err := runFlatSequence(context.Background(), dev, opts, func(context.Context) error { return errStop }, &out)
	require.ErrorIs(t, err, errStop)

	s := dev.Snapshot()
	assert.False(t, s.LightOn, "light is switched off on the way out")
	assert.Equal(t, flatcap.SwitchParked, s.Switch, "no unpark after a failed session")
}

func TestFlatSequence_InvalidBrightness(t *testing.T) {
	dev := simulatedDevice(t, "flatcap")
	opts := testFlatsOptions()
	opts.Brightness = 0 // flatcap minimum is 1

	err := runFlatSequence(context.Background(), dev, opts, func(context.Context) error { return nil }, &bytes.Buffer{})
	require.ErrorIs(t, err, flatcap.ErrOutOfRange)
	assert.False(t, dev.Snapshot().LightOn)
}

func TestHoldFor(t *testing.T) {
	require.NoError(t, holdFor(time.Millisecond)(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, holdFor(time.Hour)(ctx), context.Canceled)
}

func TestWaitForEnter(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, waitForEnter(strings.NewReader("\n"), &out)(context.Background()))
	assert.Contains(t, out.String(), "Press Enter")
}
