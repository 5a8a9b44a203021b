// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/api"
	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the device over HTTP and WebSocket",
	Long: `Connect to the cap, poll it continuously and serve:

  GET  /api/status             device snapshot (JSON)
  GET  /api/statistics         link statistics (JSON)
  POST /api/park, /api/unpark  cover motion
  POST /api/light              {"on": true}
  POST /api/brightness         {"value": 128}
  POST /api/angles             {"open": 270, "closed": 0}
  POST /api/focuser/move       {"target": 1000} or {"ticks": 50, "direction": "in"}
  POST /api/focuser/sync       {"position": 1000}
  POST /api/focuser/abort
  POST /api/focuser/compensation {"enabled": true}
  GET  /ws                     CBOR event stream
  GET  /metrics                Prometheus metrics
  GET  /healthz

When serve.api_keys is set in the config file (or FLATCAP_SERVE_API_KEYS),
/api and /ws require one of the keys in the X-API-Key header.

If the cap does not answer at startup, the connection is retried with
exponential backoff until it does or the process is stopped.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default from config, :8624)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := appCfg.Serve.Listen
	if serveListen != "" {
		addr = serveListen
	}

	if !logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := api.NewRegistry()
	metrics := flatcap.NewMetrics(reg)
	hub := api.NewHub(logger)

	dev, err := connectWithBackoff(ctx, flatcap.WithSink(hub), flatcap.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	srv := api.New(dev, api.Options{
		Addr:    addr,
		APIKeys: appCfg.Serve.APIKeys,
		Metrics: api.MetricsHandler(reg),
		Hub:     hub,
		Logger:  logger,
	})

	go dev.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// connectWithBackoff keeps trying openDevice until it succeeds or ctx ends.
func connectWithBackoff(ctx context.Context, opts ...flatcap.Option) (*flatcap.Device, error) {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		dev, _, err := openDevice(ctx, opts...)
		if err == nil {
			return dev, nil
		}
		logger.Warn("Device not available, retrying", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
