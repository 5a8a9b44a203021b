// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile string

	// Loaded in PersistentPreRunE
	appCfg appConfig
	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "flatcap",
	Short: "Gastro flat-cap and focuser controller",
	Long: `Flatcap - A CLI tool for driving Gastro flat-field caps.

Controls the cover motor and the electroluminescent panel of a flatcap, and
the cover, panel and built-in focuser of the focap variant. The device can be
driven directly from the command line, from an interactive TUI, or exposed
over HTTP and WebSocket with "flatcap serve".

Connection modes:
  Serial:     --port /dev/ttyUSB0 [--baud 9600]
  WebSocket:  --url ws://host/path [--username user]
  Simulation: --simulate

For WebSocket authentication, the password is read from the FLATCAP_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Every flag can also be set in flatcap.yaml or with a FLATCAP_ environment
variable (for example FLATCAP_DEVICE_DIALECT=focap).`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configFile)
		if err != nil {
			return err
		}
		appCfg = cfg

		logger, logCloser, err = newLogger(cfg.Log)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogger()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (default ./flatcap.yaml or ~/.config/flatcap/flatcap.yaml)")

	// Serial connection flags
	pf.StringP("port", "p", "", "Serial port device")
	pf.IntP("baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	pf.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.String("username", "", "Username for HTTP Basic auth")
	pf.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Device flags
	pf.StringP("dialect", "d", "flatcap", "Device dialect (flatcap or focap)")
	pf.Bool("simulate", false, "Simulate the device instead of opening a port")
	pf.Duration("poll-interval", 0, "Status poll interval (default from config)")

	// Logging flags
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "auto", "Log format (auto, console, json)")
	pf.String("log-file", "", "Write logs to a rotated file instead of stderr")

	bindFlags(pf)
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
