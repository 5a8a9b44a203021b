// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gastro implements the ASCII command/response protocol spoken by
// Gastro flat-field caps and the combined cap/focuser (Focap).
//
// Cap commands are six bytes: a '>' sentinel, a one-letter opcode, a
// zero-padded three-digit argument and the dialect terminator. Focuser
// commands use the ':' sentinel, a two-letter opcode, an optional hex
// argument and '#'. This package only formats and parses frames; it never
// performs I/O.
package gastro

import (
	"fmt"
	"strings"
	"time"
)

// Frame sentinels
const (
	CapSentinel     = '>'
	FocuserSentinel = ':'
	AckSentinel     = '*'
)

// Frame terminators
const (
	TerminatorNewline = '\n'
	TerminatorHash    = '#'
)

// Frame sizes
const (
	CapCommandSize     = 6  // sentinel + opcode + 3 digits + terminator
	CapResponseSize    = 8  // flatcap firmware
	FocapResponseSize  = 9  // focap firmware pads one extra byte
	FocuserResponseMax = 32 // focuser sub-protocol replies
)

// Response field offsets
const (
	OffsetAck       = 0 // "*" + echoed opcode
	OffsetProductID = 2 // two digits, ping only
	OffsetValue     = 4 // three digits (angle, brightness, firmware)
	OffsetMotor     = 4 // status only
	OffsetLight     = 5
	OffsetCover     = 6
)

// Cap opcodes
const (
	OpPing          = 'P'
	OpPark          = 'C' // close
	OpUnpark        = 'O' // open
	OpSetOpenAngle  = 'A'
	OpSetCloseAngle = 'Z'
	OpGetOpenAngle  = 'H'
	OpGetCloseAngle = 'K'
	OpSetBrightness = 'B'
	OpGetBrightness = 'J'
	OpLightOn       = 'L'
	OpLightOff      = 'D'
	OpFirmware      = 'V'
	OpStatus        = 'S'
)

// Focuser opcodes
const (
	OpGetPosition        = "GP"
	OpGetTemperature     = "GT"
	OpGetTempCoefficient = "GC"
	OpIsMoving           = "GI"
	OpFocuserFirmware    = "GV"
	OpSetTempCalibration = "PO"
	OpSetTempCoefficient = "SC"
	OpCompensationOn     = "+"
	OpCompensationOff    = "-"
	OpSyncPosition       = "SP"
	OpSetTarget          = "SN"
	OpGoToTarget         = "FG"
	OpAbort              = "FQ"
)

// Value ranges
const (
	MaxArgument        = 999
	FlatcapMaxAngle    = 300
	FocapMaxAngle      = 360
	MaxBrightness      = 255
	FocuserFirmwareLen = 2
)

// Read timeouts by command class
const (
	FlatcapTimeout    = 3 * time.Second
	FocapQueryTimeout = 5 * time.Second
	FocapMotorTimeout = 10 * time.Second
	FocuserTimeout    = 3 * time.Second
)

// Dialect selects one of the two firmware families.
type Dialect int

const (
	// DialectFlatcap is the plain flat cap: '\n' terminated, 0-300 degree angles.
	DialectFlatcap Dialect = iota
	// DialectFocap is the cap with an integrated focuser: '#' terminated,
	// 0-360 degree angles and a ':' focuser sub-protocol.
	DialectFocap
)

// ParseDialect maps a configuration name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "flatcap", "":
		return DialectFlatcap, nil
	case "focap":
		return DialectFocap, nil
	default:
		return DialectFlatcap, fmt.Errorf("unknown dialect %q (use flatcap or focap)", name)
	}
}

func (d Dialect) String() string {
	switch d {
	case DialectFlatcap:
		return "flatcap"
	case DialectFocap:
		return "focap"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// Terminator returns the byte that ends cap commands and responses.
func (d Dialect) Terminator() byte {
	if d == DialectFocap {
		return TerminatorHash
	}
	return TerminatorNewline
}

// ResponseSize returns the maximum cap response length including the terminator.
func (d Dialect) ResponseSize() int {
	if d == DialectFocap {
		return FocapResponseSize
	}
	return CapResponseSize
}

// MaxAngle returns the largest open/closed angle the firmware accepts.
func (d Dialect) MaxAngle() int {
	if d == DialectFocap {
		return FocapMaxAngle
	}
	return FlatcapMaxAngle
}

// MinBrightness returns the lowest accepted brightness.
// The flatcap treats 0 as "light off" and rejects it as a brightness.
func (d Dialect) MinBrightness() int {
	if d == DialectFocap {
		return 0
	}
	return 1
}

// HasFocuser reports whether the dialect carries the focuser sub-protocol.
func (d Dialect) HasFocuser() bool {
	return d == DialectFocap
}

// DropsRTS reports whether the handshake lowers RTS before pinging.
func (d Dialect) DropsRTS() bool {
	return d == DialectFlatcap
}

// Timeout returns the read timeout for a cap opcode.
// Motor commands physically move the cover and need longer on the focap.
func (d Dialect) Timeout(op byte) time.Duration {
	if d != DialectFocap {
		return FlatcapTimeout
	}
	switch op {
	case OpPark, OpUnpark, OpSetOpenAngle, OpSetCloseAngle:
		return FocapMotorTimeout
	default:
		return FocapQueryTimeout
	}
}
