// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"errors"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// Error kinds returned by Device and Transport. Wrap with fmt.Errorf("%w")
// and test with errors.Is.
var (
	// ErrTransport means no response arrived within the timeout after all
	// retries, or the write or flush failed.
	ErrTransport = errors.New("transport failure")

	// ErrPolicy means a request was refused by a local rule without
	// touching the port.
	ErrPolicy = errors.New("request refused")

	// ErrNotConnected is returned by operations on a device that has not
	// completed the handshake or has been disconnected.
	ErrNotConnected = errors.New("device not connected")

	// ErrUnsupported is returned for focuser operations on a dialect without
	// a focuser.
	ErrUnsupported = errors.New("operation not supported by dialect")

	// ErrNoControlLines is returned when the port cannot drive RTS.
	ErrNoControlLines = errors.New("port has no modem control lines")
)

// Codec errors, re-exported so callers only need this package.
var (
	ErrParse            = gastro.ErrParse
	ErrProtocolMismatch = gastro.ErrProtocolMismatch
	ErrOutOfRange       = gastro.ErrOutOfRange
)
