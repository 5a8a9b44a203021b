// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
)

var (
	monitorStatsInterval time.Duration
	monitorJSON          bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the device and print every state change",
	Long: `Connect, start the status poller and print each event as it happens:
status changes, park progress, light switch changes, settings and focuser
readings.

Link statistics are printed periodically. Use --json for one JSON event per
line, suitable for piping into other tools.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorStatsInterval, "stats-interval", 30*time.Second, "Statistics print interval (0 to disable)")
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "Print events as JSON lines")
}

var (
	eventTimeStyle  = lipgloss.NewStyle().Faint(true)
	eventKindStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	eventAlertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// eventQueue is a non-blocking sink feeding a printer goroutine.
type eventQueue chan flatcap.Event

func (q eventQueue) Publish(e flatcap.Event) {
	select {
	case q <- e:
	default:
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	events := make(eventQueue, 256)

	dev, connInfo, err := openDevice(ctx, flatcap.WithSink(events))
	if err != nil {
		return err
	}
	defer dev.Disconnect()

	out := cmd.OutOrStdout()
	if !monitorJSON {
		fmt.Fprintf(out, "Flatcap - Monitor\n")
		fmt.Fprintf(out, "Connection: %s\n", connInfo)
		fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")
		printState(out, dev.Snapshot())
		fmt.Fprintln(out)
	}

	go dev.Run(ctx)

	var statsC <-chan time.Time
	if monitorStatsInterval > 0 {
		t := time.NewTicker(monitorStatsInterval)
		defer t.Stop()
		statsC = t.C
	}

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			if monitorJSON {
				if err := enc.Encode(e); err != nil {
					return err
				}
				continue
			}
			printEvent(out, e)
		case <-statsC:
			if !monitorJSON {
				fmt.Fprintln(out)
				fmt.Fprint(out, dev.Statistics().String())
				fmt.Fprintln(out)
			}
		}
	}
}

func printEvent(w io.Writer, e flatcap.Event) {
	kind := eventKindStyle.Render(fmt.Sprintf("%-12s", e.Kind))
	text := e.String()
	if (e.Kind == flatcap.EventPark || e.Kind == flatcap.EventFocusMove) && e.State == flatcap.OpAlert {
		text = eventAlertStyle.Render(text)
	}
	fmt.Fprintf(w, "[%s] %s %s\n", eventTimeStyle.Render(e.At.Format("15:04:05.000")), kind, text)
}
