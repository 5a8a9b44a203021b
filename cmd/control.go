// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the cap",
	Long: `Control a Gastro cap via an interactive terminal UI.

Features:
  - Live cover, motor and light status
  - Park and unpark with progress
  - Light switch, brightness and cover angle settings
  - Focuser moves, sync, abort and temperature compensation (focap)
  - Link statistics and an event log

Keys are listed at the bottom of the screen.

Supports serial, WebSocket and simulated connections.`,
	Args: cobra.NoArgs,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	events := make(eventQueue, 256)
	dev, connInfo, err := openDevice(ctx, flatcap.WithSink(events))
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	m := initialControlModel(ctx, dev, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go dev.Run(ctx)
	go forwardEvents(ctx, events, p)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// forwardEvents batches device events into the program at a fixed rate so
// a burst of status changes costs one redraw.
func forwardEvents(ctx context.Context, events <-chan flatcap.Event, p *tea.Program) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var batch controlBatchMsg
	drainLoop:
		for {
			select {
			case e := <-events:
				batch.events = append(batch.events, e)
			default:
				break drainLoop
			}
		}

		if len(batch.events) > 0 {
			p.Send(batch)
		}
	}
}
