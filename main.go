// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Flatcap - Gastro flat-cap and focuser controller
//
// A CLI tool for driving Gastro flat-field caps over serial or WebSocket,
// interactively or as an HTTP service.

package main

import (
	"os"

	"github.com/Thermoquad/flatcap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
