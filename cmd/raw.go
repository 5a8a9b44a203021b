// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/flatcap/pkg/flatcap"
	"github.com/Thermoquad/flatcap/pkg/gastro"
)

var rawCmd = &cobra.Command{
	Use:   "raw [frame...]",
	Short: "Send raw frames and print the replies",
	Long: `Send frames such as ">S000" or ":GP#" to the device and print each reply.

No handshake is performed, so this works against a device that fails to
connect normally. The terminator for the selected dialect is appended when
missing. With no arguments, frames are read from stdin one per line.

Supports both serial and WebSocket connections.`,
	RunE: runRaw,
}

func init() {
	rootCmd.AddCommand(rawCmd)
}

func runRaw(cmd *cobra.Command, args []string) error {
	dialect, err := gastro.ParseDialect(appCfg.Device.Dialect)
	if err != nil {
		return err
	}

	port, connInfo, err := OpenConnection(appCfg.Connection)
	if err != nil {
		return err
	}
	t := flatcap.NewTransport(port, flatcap.TransportOptions{
		Retries:    0,
		CommandGap: appCfg.Device.CommandGap,
		Logger:     logger,
	})
	defer t.Close()

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		for _, frame := range args {
			if err := sendRaw(cmd.Context(), out, t, dialect, frame); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintf(out, "Flatcap - Raw Exchange\n")
	fmt.Fprintf(out, "Connection: %s (%s)\n", connInfo, dialect)
	fmt.Fprintf(out, "Enter one frame per line, Ctrl+D to exit\n\n")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sendRaw(cmd.Context(), out, t, dialect, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "[ERROR] %v\n", err)
		}
	}
	return scanner.Err()
}

func sendRaw(ctx context.Context, out io.Writer, t *flatcap.Transport, d gastro.Dialect, text string) error {
	c, err := gastro.ParseFrame(d, text)
	if err != nil {
		return err
	}
	resp, err := t.Exchange(ctx, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, gastro.FormatExchange(c, resp))
	return nil
}
