// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api exposes a flatcap Device over HTTP: a small REST control
// surface, a websocket stream of CBOR events and Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

// Controller is the part of *flatcap.Device the API drives.
type Controller interface {
	Snapshot() flatcap.State
	Statistics() *flatcap.Statistics

	Park(ctx context.Context) (flatcap.OpState, error)
	Unpark(ctx context.Context) (flatcap.OpState, error)
	EnableLight(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, value int) error
	SetOpenAngle(ctx context.Context, angle int) error
	SetClosedAngle(ctx context.Context, angle int) error

	MoveFocuser(ctx context.Context, target uint32) (flatcap.OpState, error)
	MoveFocuserRelative(ctx context.Context, dir flatcap.FocusDirection, ticks uint32) (flatcap.OpState, error)
	SyncFocuser(ctx context.Context, ticks uint32) error
	AbortFocuser(ctx context.Context) error
	SetTemperatureCompensation(ctx context.Context, enable bool) error
}

// Options configures a Server.
type Options struct {
	Addr    string
	APIKeys []string

	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Hub     *Hub
	Logger  *slog.Logger
}

// Server wraps gin and the HTTP listener.
type Server struct {
	dev    Controller
	hub    *Hub
	log    *slog.Logger
	engine *gin.Engine
	srv    *http.Server
}

// New builds the router.
func New(dev Controller, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(log)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{dev: dev, hub: hub, log: log, engine: r}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := r.Group("/api")
	if len(opts.APIKeys) > 0 {
		api.Use(apiKeyAuth(opts.APIKeys, log))
	}
	api.GET("/status", s.getStatus)
	api.GET("/statistics", s.getStatistics)
	api.POST("/park", s.postPark)
	api.POST("/unpark", s.postUnpark)
	api.POST("/light", s.postLight)
	api.POST("/brightness", s.postBrightness)
	api.POST("/angles", s.postAngles)
	api.POST("/focuser/move", s.postFocuserMove)
	api.POST("/focuser/sync", s.postFocuserSync)
	api.POST("/focuser/abort", s.postFocuserAbort)
	api.POST("/focuser/compensation", s.postFocuserCompensation)

	ws := r.Group("/ws")
	if len(opts.APIKeys) > 0 {
		ws.Use(apiKeyAuth(opts.APIKeys, log))
	}
	ws.GET("", s.getEvents)

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the event hub. Register it as a device sink.
func (s *Server) Hub() *Hub { return s.hub }

// Start listens and serves until Shutdown (blocking).
func (s *Server) Start() error {
	s.log.Info("HTTP API listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown closes websocket clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
