// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phsym/console-slog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logCloser io.Closer

// newLogger builds the process logger. "auto" picks the console handler on a
// terminal and JSON otherwise; a log file always gets JSON.
func newLogger(cfg logConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer
		format = strings.ToLower(cfg.Format)
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out, closer = lj, lj
		format = "json"
	}

	switch format {
	case "", "auto":
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		} else {
			format = "json"
		}
	case "console", "json":
	default:
		return nil, nil, fmt.Errorf("invalid log format %q (use auto, console or json)", cfg.Format)
	}

	var h slog.Handler
	if format == "console" {
		h = console.NewHandler(out, &console.HandlerOptions{
			AddSource: level == slog.LevelDebug,
			Level:     level,
		})
	} else {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					a.Key = "ts"
				}
				return a
			},
		})
	}

	return slog.New(h), closer, nil
}

func closeLogger() error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}
