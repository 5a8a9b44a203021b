// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

func TestNew_RequiresPort(t *testing.T) {
	_, err := New(testConfig(gastro.DialectFlatcap), nil)
	require.Error(t, err)

	cfg := testConfig(gastro.DialectFlatcap)
	cfg.Simulate = true
	_, err = New(cfg, nil)
	require.NoError(t, err)

	cfg.Dialect = "nope"
	_, err = New(cfg, nil)
	require.Error(t, err)
}

func TestConnect_LoadsStartupData(t *testing.T) {
	h := connected(t, gastro.DialectFlatcap)

	require.NotNil(t, h.port.rts)
	assert.False(t, *h.port.rts, "RTS dropped before ping")
	assert.Equal(t, ">P000\n", h.port.written()[0])

	s := h.dev.Snapshot()
	assert.True(t, s.Connected)
	assert.Equal(t, uint16(99), s.ProductID)
	assert.Equal(t, "123", s.Firmware)
	assert.Equal(t, 128, s.Brightness)
	assert.Equal(t, 270, s.OpenAngle)
	assert.Equal(t, 7, s.ClosedAngle)
	assert.True(t, s.StatusValid)
	assert.Equal(t, gastro.CoverClosed, s.Status.Cover)
	assert.Nil(t, s.Focuser)

	// Closed cover with nothing outstanding syncs the switch.
	assert.Equal(t, SwitchParked, s.Switch)
	assert.Equal(t, OpOk, s.Park)

	// First poll always publishes.
	require.Len(t, h.rec.ofKind(EventStatus), 1)
	assert.ElementsMatch(t,
		[]Component{ComponentCover, ComponentLight, ComponentMotor},
		h.rec.ofKind(EventStatus)[0].Changed)
}

func TestConnect_RTSPolicy(t *testing.T) {
	fc := newFakeCap(gastro.DialectFlatcap)
	port := &fakePort{respond: fc.respond}

	cfg := testConfig(gastro.DialectFlatcap)
	dev, err := New(cfg, noRTSPort{port})
	require.NoError(t, err)
	err = dev.Connect(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, ErrNoControlLines)
	assert.Empty(t, port.written(), "no ping without the fallback")

	cfg.PingWithoutRTS = true
	dev, err = New(cfg, noRTSPort{port})
	require.NoError(t, err)
	require.NoError(t, dev.Connect(context.Background()))
	assert.True(t, dev.Snapshot().Connected)
}

func TestConnect_FocapKeepsRTS(t *testing.T) {
	h := connected(t, gastro.DialectFocap)
	assert.Nil(t, h.port.rts)
	assert.Equal(t, ">P000#", h.port.written()[0])
}

func TestConnect_NoResponse(t *testing.T) {
	h := newHarness(t, testConfig(gastro.DialectFlatcap))
	h.port.setFailWrites(1000)

	err := h.dev.Connect(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	assert.False(t, h.dev.Snapshot().Connected)
	// three handshake pings, each with three retries
	assert.Len(t, h.port.written(), 12)
}

func TestOperations_RequireConnection(t *testing.T) {
	h := newHarness(t, testConfig(gastro.DialectFocap))
	ctx := context.Background()

	_, err := h.dev.Park(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, h.dev.EnableLight(ctx, true), ErrNotConnected)
	require.ErrorIs(t, h.dev.SetBrightness(ctx, 10), ErrNotConnected)
	require.ErrorIs(t, h.dev.Tick(ctx), ErrNotConnected)
	_, err = h.dev.MoveFocuser(ctx, 10)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, h.port.written())
}

func TestSetValues(t *testing.T) {
	h := connected(t, gastro.DialectFlatcap)
	ctx := context.Background()

	require.NoError(t, h.dev.SetBrightness(ctx, 200))
	require.NoError(t, h.dev.SetOpenAngle(ctx, 180))
	require.NoError(t, h.dev.SetClosedAngle(ctx, 3))

	s := h.dev.Snapshot()
	assert.Equal(t, 200, s.Brightness)
	assert.Equal(t, 180, s.OpenAngle)
	assert.Equal(t, 3, s.ClosedAngle)
	assert.Contains(t, h.port.written(), ">B200\n")
	assert.Contains(t, h.port.written(), ">A180\n")
	assert.Contains(t, h.port.written(), ">Z003\n")

	// Setting the same value again publishes nothing new.
	before := len(h.rec.ofKind(EventNumber))
	require.NoError(t, h.dev.SetBrightness(ctx, 200))
	assert.Len(t, h.rec.ofKind(EventNumber), before)

	// Out of range never reaches the port.
	writes := len(h.port.written())
	require.ErrorIs(t, h.dev.SetOpenAngle(ctx, 301), ErrOutOfRange)
	require.ErrorIs(t, h.dev.SetBrightness(ctx, 0), ErrOutOfRange)
	assert.Len(t, h.port.written(), writes)
}

func TestSetClosedAngle_MalformedReply(t *testing.T) {
	h := connected(t, gastro.DialectFlatcap)
	h.cap.set(func(c *fakeCap) { c.override["Z"] = "*Z99abc" })

	err := h.dev.SetClosedAngle(context.Background(), 10)
	require.ErrorIs(t, err, ErrParse)
	assert.False(t, errors.Is(err, ErrTransport))
	assert.Equal(t, 7, h.dev.Snapshot().ClosedAngle)
	assert.Equal(t, uint64(1), h.dev.Statistics().Snapshot().ParseErrors)
}

func TestRefreshSettings(t *testing.T) {
	h := connected(t, gastro.DialectFlatcap)
	h.cap.set(func(c *fakeCap) { c.brightness = 50 })

	require.NoError(t, h.dev.RefreshSettings(context.Background()))
	assert.Equal(t, 50, h.dev.Snapshot().Brightness)
}

func TestDisconnect(t *testing.T) {
	h := connected(t, gastro.DialectFlatcap)
	h.cap.set(func(c *fakeCap) { c.codes.Cover = uint8(gastro.CoverOpen) })
	require.NoError(t, h.dev.Tick(context.Background()))

	_, err := h.dev.Park(context.Background())
	require.NoError(t, err)
	require.Len(t, h.sched.active(), 1)

	require.NoError(t, h.dev.Disconnect())
	assert.Empty(t, h.sched.active(), "watchdog cancelled")
	assert.True(t, h.port.closed)
	require.ErrorIs(t, h.dev.Tick(context.Background()), ErrNotConnected)

	events := h.rec.ofKind(EventConnection)
	require.Len(t, events, 2)
	assert.False(t, events[1].On)
}

func TestPing(t *testing.T) {
	h := newHarness(t, testConfig(gastro.DialectFlatcap))
	id, err := h.dev.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(99), id)
}

func TestRawExchange(t *testing.T) {
	h := connected(t, gastro.DialectFlatcap)
	cmd, err := gastro.ParseFrame(gastro.DialectFlatcap, ">J000")
	require.NoError(t, err)

	resp, err := h.dev.Exchange(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "*J99128", resp)
}
