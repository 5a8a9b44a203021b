// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"io"
	"time"
)

// Port is the byte stream a device is attached to.
//
// Read must honour the timeout set by SetReadTimeout and return (0, nil)
// when it expires, the way go.bug.st/serial does.
type Port interface {
	io.Reader
	io.Writer
	io.Closer

	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// ControlPort is a Port that can drive the RTS modem line.
type ControlPort interface {
	Port
	SetRTS(rts bool) error
}

// dropRTS deasserts RTS so the cap does not reset when the port opens.
func dropRTS(p Port) error {
	cp, ok := p.(ControlPort)
	if !ok {
		return ErrNoControlLines
	}
	return cp.SetRTS(false)
}
