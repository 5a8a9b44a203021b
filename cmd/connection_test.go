// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// bridge is a websocket server standing in for a serial bridge. reply maps
// each received message to the messages sent back.
func bridge(t *testing.T, reply func(msg string) []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, out := range reply(string(data)) {
				if out == "" {
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, []byte(out)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialBridge(t *testing.T, srv *httptest.Server) *WebSocketConnection {
	t.Helper()
	conn, err := OpenWebSocketConnection("ws"+strings.TrimPrefix(srv.URL, "http"), "", "", false)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// capReply answers flatcap frames with "*<op>99<value>\n".
func capReply(values map[byte]int) func(string) []string {
	return func(msg string) []string {
		if len(msg) < 2 || msg[0] != gastro.CapSentinel {
			return nil
		}
		return []string{fmt.Sprintf("*%c99%03d\n", msg[1], values[msg[1]])}
	}
}

func TestWebSocketConnection_ReadTimeout(t *testing.T) {
	conn := dialBridge(t, bridge(t, func(string) []string { return nil }))
	require.NoError(t, conn.SetReadTimeout(20*time.Millisecond))

	buf := make([]byte, 8)
	start := time.Now()
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWebSocketConnection_ReadSplitsMessages(t *testing.T) {
	conn := dialBridge(t, bridge(t, func(msg string) []string { return []string{"*S99011\n"} }))
	require.NoError(t, conn.SetReadTimeout(time.Second))

	_, err := conn.Write([]byte(">S000\n"))
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 3)
	for len(got) < len("*S99011\n") {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		require.NotZero(t, n)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "*S99011\n", string(got))
}

func TestWebSocketConnection_ResetInputBuffer(t *testing.T) {
	conn := dialBridge(t, bridge(t, func(msg string) []string { return []string{"stale-1", "stale-2"} }))

	_, err := conn.Write([]byte("x"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(conn.frames) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, conn.ResetInputBuffer())
	require.NoError(t, conn.SetReadTimeout(10*time.Millisecond))

	n, err := conn.Read(make([]byte, 16))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebSocketConnection_Closed(t *testing.T) {
	// An empty reply makes the bridge hang up
	conn := dialBridge(t, bridge(t, func(string) []string { return []string{""} }))
	require.NoError(t, conn.SetReadTimeout(time.Second))

	_, err := conn.Write([]byte("bye"))
	require.NoError(t, err)

	_, err = conn.Read(make([]byte, 8))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionClosed))
}

func TestWebSocketConnection_DrivesDevice(t *testing.T) {
	values := map[byte]int{
		gastro.OpPing:          0,
		gastro.OpFirmware:      123,
		gastro.OpStatus:        1, // closed
		gastro.OpGetBrightness: 128,
		gastro.OpGetOpenAngle:  270,
		gastro.OpGetCloseAngle: 0,
		gastro.OpLightOn:       0,
	}
	conn := dialBridge(t, bridge(t, capReply(values)))

	cfg := flatcap.DefaultConfig()
	cfg.HandshakeDelay = 0
	cfg.RetryBackoff = 0

	dev, err := flatcap.New(cfg, conn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, dev.Connect(ctx), "websocket links fall back to a plain ping")
	defer dev.Disconnect()

	s := dev.Snapshot()
	assert.Equal(t, uint16(99), s.ProductID)
	assert.Equal(t, "123", s.Firmware)
	assert.Equal(t, gastro.CoverClosed, s.Status.Cover)
	assert.Equal(t, flatcap.SwitchParked, s.Switch)
	assert.Equal(t, 128, s.Brightness)
	assert.Equal(t, 270, s.OpenAngle)
	assert.Equal(t, 0, s.ClosedAngle)

	require.NoError(t, dev.EnableLight(ctx, true))
	assert.True(t, dev.Snapshot().LightOn)
}

func TestOpenConnection_RequiresTarget(t *testing.T) {
	_, _, err := OpenConnection(connectionConfig{})
	require.Error(t, err)

	_, _, err = OpenConnection(connectionConfig{URL: "http://example.invalid"})
	require.Error(t, err)
}
