// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newSimServer returns a server driving a connected simulated device.
func newSimServer(t *testing.T, dialect string, opts Options) (*Server, *flatcap.Device) {
	t.Helper()

	hub := NewHub(nil)
	opts.Hub = hub

	cfg := flatcap.DefaultConfig()
	cfg.Dialect = dialect
	cfg.Simulate = true
	dev, err := flatcap.New(cfg, nil, flatcap.WithSink(hub))
	require.NoError(t, err)
	require.NoError(t, dev.Connect(context.Background()))
	t.Cleanup(func() { _ = dev.Disconnect() })

	return New(dev, opts), dev
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestGetStatus(t *testing.T) {
	s, _ := newSimServer(t, "flatcap", Options{})

	w := do(t, s.Handler(), http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "flatcap", body["dialect"])
	assert.Equal(t, "unparked", body["switch"])
	assert.NotContains(t, body, "focuser")
}

func TestParkAndLightPolicy(t *testing.T) {
	s, dev := newSimServer(t, "flatcap", Options{})
	h := s.Handler()

	// Unparked: the light is refused.
	w := do(t, h, http.MethodPost, "/api/light", `{"on":true}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/park", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"state":"Busy"}`, w.Body.String())

	for i := 0; i < 3; i++ {
		require.NoError(t, dev.Tick(context.Background()))
	}
	assert.Equal(t, flatcap.OpOk, dev.Snapshot().Park)

	w = do(t, h, http.MethodPost, "/api/light", `{"on":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, dev.Snapshot().LightOn)

	w = do(t, h, http.MethodPost, "/api/unpark", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSettings(t *testing.T) {
	s, dev := newSimServer(t, "flatcap", Options{})
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/brightness", `{"value":42}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 42, dev.Snapshot().Brightness)

	w = do(t, h, http.MethodPost, "/api/brightness", `{"value":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/brightness", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/angles", `{"open":250,"closed":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 250, dev.Snapshot().OpenAngle)
	assert.Equal(t, 5, dev.Snapshot().ClosedAngle)

	w = do(t, h, http.MethodPost, "/api/angles", `{"open":301}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/angles", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFocuserEndpoints(t *testing.T) {
	s, dev := newSimServer(t, "focap", Options{})
	h := s.Handler()

	w := do(t, h, http.MethodPost, "/api/focuser/move", `{"target":1500}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int32(1500), dev.Snapshot().Focuser.Position)

	w = do(t, h, http.MethodPost, "/api/focuser/move", `{"ticks":100,"direction":"in"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int32(1400), dev.Snapshot().Focuser.Position)

	w = do(t, h, http.MethodPost, "/api/focuser/move", `{"ticks":100,"direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/focuser/sync", `{"position":10}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(10), dev.Snapshot().Focuser.Position)

	w = do(t, h, http.MethodPost, "/api/focuser/compensation", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, dev.Snapshot().Focuser.Compensation)

	w = do(t, h, http.MethodPost, "/api/focuser/abort", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, flatcap.OpIdle, dev.Snapshot().Focuser.Move)
}

func TestFocuserUnsupported(t *testing.T) {
	s, _ := newSimServer(t, "flatcap", Options{})
	w := do(t, s.Handler(), http.MethodPost, "/api/focuser/abort", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIKey(t *testing.T) {
	s, _ := newSimServer(t, "flatcap", Options{APIKeys: []string{"secret"}})
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = do(t, h, http.MethodGet, "/api/status?key=wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := NewRegistry()
	metrics := flatcap.NewMetrics(reg)

	cfg := flatcap.DefaultConfig()
	cfg.Simulate = true
	dev, err := flatcap.New(cfg, nil, flatcap.WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, dev.Connect(context.Background()))
	require.NoError(t, dev.SetBrightness(context.Background(), 77))

	s := New(dev, Options{Metrics: MetricsHandler(reg)})
	w := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gastro_brightness 77")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusCode(flatcap.ErrTransport))
	assert.Equal(t, http.StatusBadGateway, statusCode(flatcap.ErrParse))
	assert.Equal(t, http.StatusServiceUnavailable, statusCode(flatcap.ErrNotConnected))
	assert.Equal(t, http.StatusInternalServerError, statusCode(bytes.ErrTooLarge))
}

func TestEventStream(t *testing.T) {
	s, dev := newSimServer(t, "flatcap", Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() flatcap.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, mt)
		e, err := flatcap.DecodeEvent(data)
		require.NoError(t, err)
		return e
	}

	// Initial snapshot
	assert.Equal(t, flatcap.EventConnection, read().Kind)
	status := read()
	require.Equal(t, flatcap.EventStatus, status.Kind)
	require.NotNil(t, status.Status)
	assert.Equal(t, flatcap.EventPark, read().Kind)
	assert.Equal(t, flatcap.EventLight, read().Kind)

	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, time.Second, 5*time.Millisecond)

	_, err = dev.Park(context.Background())
	require.NoError(t, err)

	e := read()
	assert.Equal(t, flatcap.EventPark, e.Kind)
	assert.Equal(t, flatcap.OpBusy, e.State)
	assert.Equal(t, flatcap.DirectionPark, e.Direction)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Hub().Count() == 0 }, time.Second, 5*time.Millisecond)
}
